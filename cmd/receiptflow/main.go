package main

// @title           receiptflow API
// @version         1.0
// @description     Receipt ingestion pipeline. Accepts discovery events, exposes poll control, period ledgers and monthly aggregates.

// @contact.name   receiptflow maintainers
// @contact.url    https://github.com/custodia-labs/receiptflow/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Operator JWT. Format: "Bearer {token}"

// @securityDefinitions.apikey APIKeyAuth
// @in header
// @name X-API-Key
// @description Shared ingress key

var version = "dev"

func main() {
	Execute()
}

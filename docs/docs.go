// Package docs registers the receiptflow OpenAPI document with swag.
// Regenerate with: swag init -g cmd/receiptflow/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/ingress": {
            "post": {
                "security": [{"APIKeyAuth": []}],
                "description": "Accepts a receipts.new event. Resubmitting the same fileId and createdTime returns the same task.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Ingress"],
                "summary": "Submit a discovered file",
                "parameters": [
                    {
                        "description": "Discovery event",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/domain.DiscoveryEvent"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.IngressResult"}},
                    "400": {"description": "Invalid event", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "401": {"description": "Missing or wrong API key", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/sources": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sources"],
                "summary": "List watched sources",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.ScheduledPoll"}}}
                }
            }
        },
        "/sources/{id}/poll": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Enqueues an immediate poll task (admin only)",
                "produces": ["application/json"],
                "tags": ["Sources"],
                "summary": "Poll a source now",
                "parameters": [{"type": "string", "description": "Source ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/http.TaskResponse"}},
                    "404": {"description": "Unknown source", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/sources/{id}/watermark": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sources"],
                "summary": "Get a source's discovery state",
                "parameters": [{"type": "string", "description": "Source ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.WatermarkState"}},
                    "404": {"description": "Unknown source", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/periods": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Periods"],
                "summary": "List period aggregates",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.PeriodAggregate"}}}
                }
            }
        },
        "/periods/{period}/aggregate": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Periods"],
                "summary": "Get a period aggregate",
                "parameters": [
                    {"type": "string", "description": "Period (YYYY-MM)", "name": "period", "in": "path", "required": true},
                    {"type": "string", "description": "ETag of a previous response", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.PeriodAggregate"}},
                    "304": {"description": "Aggregate unchanged"},
                    "400": {"description": "Invalid period", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "No aggregate yet", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Rebuilds the aggregate from the period's ledger and stores it (admin only)",
                "produces": ["application/json"],
                "tags": ["Periods"],
                "summary": "Recompute a period aggregate",
                "parameters": [{"type": "string", "description": "Period (YYYY-MM)", "name": "period", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.PeriodAggregate"}},
                    "400": {"description": "Invalid period", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/periods/{period}/rows": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Periods"],
                "summary": "Get a period ledger",
                "parameters": [{"type": "string", "description": "Period (YYYY-MM)", "name": "period", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.RowsResponse"}},
                    "400": {"description": "Invalid period", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.DiscoveryEvent": {
            "type": "object",
            "properties": {
                "fileId": {"type": "string"},
                "name": {"type": "string"},
                "mimeType": {"type": "string"},
                "createdTime": {"type": "string"},
                "folderId": {"type": "string"},
                "idempotencyKey": {"type": "string"}
            }
        },
        "domain.IngressResult": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "taskId": {"type": "string"},
                "idempotencyKey": {"type": "string"}
            }
        },
        "domain.ScheduledPoll": {
            "type": "object",
            "properties": {
                "source_id": {"type": "string"},
                "folder_id": {"type": "string"},
                "interval": {"type": "integer"},
                "next_run": {"type": "string"},
                "last_run": {"type": "string"},
                "last_error": {"type": "string"},
                "enabled": {"type": "boolean"}
            }
        },
        "domain.WatermarkState": {
            "type": "object",
            "properties": {
                "lastCreatedAt": {"type": "string"},
                "seen": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "domain.PeriodAggregate": {
            "type": "object",
            "properties": {
                "period": {"type": "string"},
                "receiptsValid": {"type": "integer"},
                "receiptsAll": {"type": "integer"},
                "qtyValid": {"type": "number"},
                "qtyAll": {"type": "number"},
                "amountValid": {"type": "number"},
                "amountAll": {"type": "number"},
                "avgPerReceiptValid": {"type": "number"},
                "avgPerDayValid": {"type": "number"},
                "reviewedCount": {"type": "integer"},
                "reviewedPct": {"type": "number"},
                "distinctDaysValid": {"type": "integer"},
                "lastUpdated": {"type": "string"}
            }
        },
        "domain.LedgerRow": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "vendor": {"type": "string"},
                "item": {"type": "string"},
                "qty": {"type": "number"},
                "unitPrice": {"type": "number"},
                "lineTotal": {"type": "number"},
                "subtotal": {"type": "number"},
                "tax": {"type": "number"},
                "total": {"type": "number"},
                "currency": {"type": "string"},
                "paymentMethod": {"type": "string"},
                "receiptId": {"type": "string"},
                "contentHash": {"type": "string"},
                "status": {"type": "string"},
                "notes": {"type": "string"},
                "sourceLink": {"type": "string"}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "invalid request body"}}
        },
        "http.TaskResponse": {
            "type": "object",
            "properties": {
                "task_id": {"type": "string"},
                "type": {"type": "string", "example": "poll"}
            }
        },
        "http.RowsResponse": {
            "type": "object",
            "properties": {
                "period": {"type": "string", "example": "2025-09"},
                "header": {"type": "array", "items": {"type": "string"}},
                "rows": {"type": "array", "items": {"$ref": "#/definitions/domain.LedgerRow"}}
            }
        }
    },
    "securityDefinitions": {
        "APIKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"},
        "BearerAuth": {"description": "Type \"Bearer\" followed by a space and the JWT token.", "type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "receiptflow API",
	Description:      "Receipt ingestion pipeline: discovery ingress, source polling, ledgers and monthly aggregates.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

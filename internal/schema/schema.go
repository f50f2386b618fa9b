// Package schema validates inbound pipeline payloads against embedded JSON
// Schemas.
package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed discovery_event.schema.json
var discoveryEventSchema []byte

var (
	compileOnce sync.Once
	discovery   *jsonschema.Schema
	compileErr  error
)

func load() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		discovery, compileErr = compiler.Compile(discoveryEventSchema)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile discovery event schema: %w", compileErr)
		}
	})
	return discovery, compileErr
}

// ValidateDiscoveryEvent checks an ingress body against the discovery event
// schema. The error lists every failing keyword.
func ValidateDiscoveryEvent(data []byte) error {
	if !json.Valid(data) {
		return errors.New("body is not valid JSON")
	}
	s, err := load()
	if err != nil {
		return err
	}
	result := s.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for keyword, e := range result.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", keyword, e.Message))
	}
	sort.Strings(msgs)
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}

// Package contracts embeds the OpenAPI documents served and enforced by the API.
package contracts

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed access.yaml
var AccessYAML []byte

// LoadAccess parses and validates the access API document. Each call
// returns a fresh copy.
func LoadAccess() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(AccessYAML)
	if err != nil {
		return nil, fmt.Errorf("load access contract: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate access contract: %w", err)
	}
	return spec, nil
}

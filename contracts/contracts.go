// Package contracts embeds the public HTTP contract of the API server.
package contracts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed api.yaml
var apiYAML []byte

// APIPath is the file name the contract is published under.
const APIPath = "api.yaml"

// Raw returns the contract as written.
func Raw() []byte {
	return apiYAML
}

// Load parses and validates the embedded contract.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(apiYAML)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", APIPath, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", APIPath, err)
	}
	return doc, nil
}

package protocol

import (
	"embed"
	"fmt"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// RequestSchema returns the JSON schema describing the request payload of action.
func RequestSchema(action string) ([]byte, error) {
	data, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.json", action))
	if err != nil {
		return nil, fmt.Errorf("protocol: no schema for %s: %w", action, err)
	}
	return data, nil
}

package ocpp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
)

// payloadValidator checks request payloads against the embedded OCPP schemas.
type payloadValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func newPayloadValidator(actions []string) (*payloadValidator, error) {
	v := &payloadValidator{schemas: make(map[string]*gojsonschema.Schema, len(actions))}
	for _, action := range actions {
		raw, err := protocol.RequestSchema(action)
		if err != nil {
			return nil, err
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("ocpp: compile schema %s: %w", action, err)
		}
		v.schemas[action] = schema
	}
	return v, nil
}

// validate returns a ValidationFailed error listing every violated constraint.
func (v *payloadValidator) validate(action string, payload json.RawMessage) *Error {
	schema, ok := v.schemas[action]
	if !ok {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return NewError(ErrorCodeProtocolError, "payload is not valid JSON: %v", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return NewError(ErrorCodeValidationFailed, "%s", strings.Join(problems, "; "))
}

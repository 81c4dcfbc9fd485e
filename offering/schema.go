package offering

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInputMismatch signals a requirements payload that violates the offering's
// declared input schema.
var ErrInputMismatch = errors.New("offering: requirements do not match input schema")

// ValidateInput checks a requirements payload against the offering's declared
// JSON Schema. A nil or empty schema accepts anything: schemas are advisory
// contract surface, not a hard requirement on sellers. Validation runs before
// the payment gate so a buyer is never charged for a malformed request.
func ValidateInput(o Offering, requirements json.RawMessage) error {
	if len(o.InputSchema) == 0 || bytes.Equal(o.InputSchema, []byte("null")) {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("offering://"+o.Slug+"/input", bytes.NewReader(o.InputSchema)); err != nil {
		return fmt.Errorf("offering: bad input schema on %s: %w", o.Slug, err)
	}
	schema, err := compiler.Compile("offering://" + o.Slug + "/input")
	if err != nil {
		return fmt.Errorf("offering: compile input schema on %s: %w", o.Slug, err)
	}

	var doc any
	if err := json.Unmarshal(requirements, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrInputMismatch, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInputMismatch, err)
	}
	return nil
}

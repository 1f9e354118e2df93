package definitions

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/switchyard-dev/switchyard/internal/core"
)

//go:embed schema.json
var schemaJSON string

const schemaResource = "definitions.schema.json"

// schemaValidator runs the second, schema-based validation pass. It is
// best-effort: when the embedded schema fails to compile the loader runs
// with the structural pass alone.
type schemaValidator struct {
	schema *jsonschema.Schema
}

func newSchemaValidator() (*schemaValidator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	s, err := c.Compile(schemaResource)
	if err != nil {
		return nil, err
	}
	return &schemaValidator{schema: s}, nil
}

// validate checks a parsed YAML document against the schema. The document is
// round-tripped through JSON first because the schema library expects
// json.Unmarshal value types.
func (v *schemaValidator) validate(doc any) error {
	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return core.ErrSchema("definition file is not schema-checkable").WithCause(err)
	}
	if err := v.schema.Validate(normalized); err != nil {
		return core.ErrSchema("definition file violates the schema").WithCause(err)
	}
	return nil
}

func normalizeForSchema(doc any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the configuration schema.
const SchemaID = "https://github.com/mkschreder/jucid/schemas/config.schema.json"

var (
	compiledSchema *jschema.Schema
	compileErr     error
	compileOnce    sync.Once
)

// GenerateSchema generates a JSON Schema from the Config struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "jucid configuration"
	schema.Description = "Schema for the jucid config.yaml file"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("config").Hint("failed to marshal schema").Wrap(err)
	}
	return data, nil
}

// ValidateSchema validates YAML data against the configuration schema. An
// empty document is valid.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.In("config").Code(CodeInvalid).Hint("invalid YAML").Wrap(err)
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(doc)
	if err != nil {
		return oops.In("config").Code(CodeInvalid).Hint("config must be a mapping with string keys").Wrap(err)
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return oops.In("config").Code(CodeInvalid).Wrap(err)
	}

	sch, err := getCompiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return oops.In("config").Code(CodeInvalid).Hint(FormatSchemaError(err)).Wrap(err)
	}
	return nil
}

func getCompiledSchema() (*jschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = compileSchema()
	})
	return compiledSchema, compileErr
}

func compileSchema() (*jschema.Schema, error) {
	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	schemaData, err := jschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, oops.In("config").Hint("failed to parse schema JSON").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", schemaData); err != nil {
		return nil, oops.In("config").Hint("failed to add schema resource").Wrap(err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.In("config").Hint("failed to compile schema").Wrap(err)
	}
	return sch, nil
}

// FormatSchemaError returns the first line of a validation error, which
// names the failing location.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

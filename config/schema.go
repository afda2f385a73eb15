//go:generate go run ../tools/schema-generator -o ../schema/definitions/nicepick.schema.json

package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/grovetools/nicepick/schema"
)

// GenerateSchema generates the JSON Schema for nicepick configuration files.
// Typed sections are closed; extensions registered with schema.RegisterExtension
// are composed in as additional top-level properties, and unknown top-level
// keys are allowed.
func GenerateSchema() ([]byte, error) {
	s := reflector().Reflect(&Config{})
	s.Title = "nicepick configuration"
	s.Description = "Schema for nicepick.yml / nicepick.toml."
	s.Version = "http://json-schema.org/draft-07/schema#"
	s.AdditionalProperties = nil

	for _, ext := range schema.Extensions() {
		sub := reflector().Reflect(ext.Prototype)
		sub.Version = ""
		if ext.Description != "" {
			sub.Description = ext.Description
		}
		s.Properties.Set(ext.Key, sub)
	}

	return json.MarshalIndent(s, "", "  ")
}

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		DoNotReference:            true,
		Anonymous:                 true,
		// Use YAML field names for property names
		FieldNameTag: "yaml",
	}
}

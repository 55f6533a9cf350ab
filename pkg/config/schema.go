package config

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://neurogate.schemas.local/session-config.schema.json"

// sessionConfigSchema is the structural contract for the YAML document.
// Semantic rules (band nesting, ceiling ordering) live in Validate.
const sessionConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "thresholds", "risk_weights", "hard_ceiling", "ceilings"],
  "properties": {
    "schema_version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"},
    "thresholds": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["min_warn", "max_warn", "min_safe", "max_safe", "warn_epochs_to_flag", "risk_epochs_to_downgrade"],
        "properties": {
          "min_warn": {"type": "number"},
          "max_warn": {"type": "number"},
          "min_safe": {"type": "number"},
          "max_safe": {"type": "number"},
          "warn_epochs_to_flag": {"type": "integer", "minimum": 1},
          "risk_epochs_to_downgrade": {"type": "integer", "minimum": 1},
          "max_delta_per_sec": {"type": "number", "minimum": 0}
        }
      }
    },
    "risk_weights": {
      "type": "object",
      "additionalProperties": {"type": "number", "minimum": 0}
    },
    "hard_ceiling": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "ceilings": {
      "type": "object",
      "additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
    },
    "predicates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "expr"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "expr": {"type": "string", "minLength": 1}
        }
      }
    },
    "multi_tier_policy_refs": {"type": "array", "items": {"type": "string"}},
    "reversal": {
      "type": "object",
      "properties": {
        "permitted": {"type": "boolean"},
        "required_quorum": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var compiledSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(sessionConfigSchema)); err != nil {
		panic(fmt.Sprintf("config schema load failed: %v", err))
	}
	return c.MustCompile(schemaURL)
}()

// validateSchema checks raw YAML against the structural schema before any
// struct decoding happens.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: not valid YAML: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("config: schema validation failed: %w", err)
	}
	return nil
}

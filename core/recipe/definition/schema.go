package definition

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/qri-io/jsonschema"

	"github.com/raystack/scale/internal/errors"
)

const schemaJSON = `{
  "type": "object",
  "required": ["jobs"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "enum": ["1.0"]},
    "input_data": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "pattern": "^[a-zA-Z0-9_-]+$"},
          "type": {"type": "string", "enum": ["file", "files", "property"]},
          "required": {"type": "boolean"},
          "media_types": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "jobs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "additionalProperties": false,
        "oneOf": [{"required": ["job_type"]}, {"required": ["recipe_type"]}],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "job_type": {
            "type": "object",
            "required": ["name", "version"],
            "additionalProperties": false,
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "version": {"type": "string", "minLength": 1},
              "revision_num": {"type": "integer", "minimum": 1}
            }
          },
          "recipe_type": {
            "type": "object",
            "required": ["name", "revision_num"],
            "additionalProperties": false,
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "revision_num": {"type": "integer", "minimum": 1}
            }
          },
          "recipe_inputs": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["recipe_input", "job_input"],
              "additionalProperties": false,
              "properties": {
                "recipe_input": {"type": "string"},
                "job_input": {"type": "string"}
              }
            }
          },
          "dependencies": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "additionalProperties": false,
              "properties": {
                "name": {"type": "string"},
                "connections": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["output", "input"],
                    "additionalProperties": false,
                    "properties": {
                      "output": {"type": "string"},
                      "input": {"type": "string"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var schema = mustLoadSchema()

func mustLoadSchema() *jsonschema.Schema {
	jsonschema.LoadDraft2019_09()
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(schemaJSON), rs); err != nil {
		panic(fmt.Sprintf("recipe definition schema: %v", err))
	}
	return rs
}

func validateSchema(ctx context.Context, raw []byte) error {
	keyErrs, err := schema.ValidateBytes(ctx, raw)
	if err != nil {
		return errors.InvalidDefinition(EntityDefinition, KeyInvalidSchema, "unable to read definition: "+err.Error())
	}
	if len(keyErrs) == 0 {
		return nil
	}

	msgs := make([]string, len(keyErrs))
	for i, keyErr := range keyErrs {
		msgs[i] = keyErr.Error()
	}
	return errors.InvalidDefinition(EntityDefinition, KeyInvalidSchema, strings.Join(msgs, "; "))
}

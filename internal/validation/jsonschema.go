package validation

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// exportSchemaJSON is the JSON Schema for workflow export documents.
// Embedded as a constant to avoid filesystem dependencies. The GUI attaches
// presentation fields (positions, sizes) freely, so objects stay open except
// where a typo would silently break discovery.
const exportSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://invoke.client/schemas/workflow-export.json",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "name": { "type": "string" },
    "author": { "type": "string" },
    "description": { "type": "string" },
    "version": { "type": "string" },
    "meta": {
      "type": "object",
      "required": ["version"],
      "properties": {
        "version": { "type": "string" },
        "category": { "type": "string" }
      }
    },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "form": { "$ref": "#/$defs/form" },
    "exposedFields": {
      "type": "array",
      "items": { "$ref": "#/$defs/fieldIdentifier" }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type", "data"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string" },
        "data": {
          "type": "object",
          "required": ["id", "type"],
          "properties": {
            "id": { "type": "string", "minLength": 1 },
            "type": { "type": "string", "minLength": 1 },
            "version": { "type": "string" },
            "label": { "type": "string" },
            "inputs": {
              "type": "object",
              "additionalProperties": { "$ref": "#/$defs/inputField" }
            }
          }
        }
      }
    },
    "inputField": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "description": { "type": "string" },
        "value": {},
        "type": {
          "type": "object",
          "properties": {
            "name": { "type": "string" },
            "cardinality": { "type": "string" },
            "isCollection": { "type": "boolean" }
          }
        }
      }
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": { "type": "string" },
        "type": { "type": "string" },
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "sourceHandle": { "type": ["string", "null"] },
        "targetHandle": { "type": ["string", "null"] }
      }
    },
    "form": {
      "type": "object",
      "required": ["elements"],
      "properties": {
        "elements": {
          "type": "object",
          "additionalProperties": { "$ref": "#/$defs/formElement" }
        }
      }
    },
    "formElement": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["container", "node-field", "divider", "heading", "text"]
        },
        "parentId": { "type": "string" },
        "data": {
          "type": "object",
          "properties": {
            "children": {
              "type": "array",
              "items": { "type": "string" }
            },
            "layout": { "type": "string", "enum": ["row", "column"] },
            "fieldIdentifier": { "$ref": "#/$defs/fieldIdentifier" },
            "content": { "type": "string" }
          }
        }
      }
    },
    "fieldIdentifier": {
      "type": "object",
      "required": ["nodeId", "fieldName"],
      "properties": {
        "nodeId": { "type": "string", "minLength": 1 },
        "fieldName": { "type": "string", "minLength": 1 }
      }
    }
  }
}`

// scheduleSchemaJSON validates recurring-submission schedule files.
const scheduleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://invoke.client/schemas/schedules.json",
  "type": "object",
  "required": ["schedules"],
  "properties": {
    "schedules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "cron", "workflow"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "cron": { "type": "string", "minLength": 1 },
          "workflow": { "type": "string", "minLength": 1 },
          "queue_id": { "type": "string" },
          "board": { "type": "string" },
          "sets": {
            "type": "object",
            "additionalProperties": true
          }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// JSONSchemaValidator validates raw documents against the embedded schemas.
// It is safe for concurrent use; schemas are compiled once at construction.
type JSONSchemaValidator struct {
	exportSchema   *jsonschema.Schema
	scheduleSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the embedded schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	exportCompiled, err := compileEmbedded("https://invoke.client/schemas/workflow-export.json", exportSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("workflow export schema: %w", err)
	}
	scheduleCompiled, err := compileEmbedded("https://invoke.client/schemas/schedules.json", scheduleSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("schedule schema: %w", err)
	}
	return &JSONSchemaValidator{
		exportSchema:   exportCompiled,
		scheduleSchema: scheduleCompiled,
	}, nil
}

func compileEmbedded(url, raw string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// ValidateExport validates a raw workflow export document.
func (v *JSONSchemaValidator) ValidateExport(doc []byte) error {
	return v.validateRaw(v.exportSchema, doc)
}

// ValidateScheduleFile validates a raw schedules document.
func (v *JSONSchemaValidator) ValidateScheduleFile(doc []byte) error {
	return v.validateRaw(v.scheduleSchema, doc)
}

func (v *JSONSchemaValidator) validateRaw(compiled *jsonschema.Schema, doc []byte) error {
	if len(doc) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "document is empty")
	}

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(doc)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "document is not valid JSON").WithCause(err)
	}

	if err := compiled.Validate(parsed); err != nil {
		return toClientError(err)
	}
	return nil
}

// toClientError converts a jsonschema.ValidationError into a ClientError
// with one message per leaf violation.
func toClientError(err error) *schema.ClientError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

package validation

import "github.com/CodeGandee/invokeai-go-client/pkg/schema"

// WorkflowValidator orchestrates the three-stage load pipeline:
// 1. Structural (JSON Schema over the raw export)
// 2. Semantic (edge endpoints, form links, exposed fields)
// 3. DAG (cycle detection)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewWorkflowValidator creates a WorkflowValidator.
func NewWorkflowValidator() (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and DAG stages are skipped.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}

	result := validateStructural(wv.jsonSchema, def.Raw())
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(def))

	// DAG stage needs sound references.
	if result.Valid() {
		result.Merge(validateDAG(def))
	}

	return result
}

// ValidateDefinition satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	return wv.Validate(def).ToError()
}

// ValidateExport delegates to the underlying JSONSchemaValidator.
func (wv *WorkflowValidator) ValidateExport(doc []byte) error {
	return wv.jsonSchema.ValidateExport(doc)
}

// ValidateScheduleFile delegates to the underlying JSONSchemaValidator.
func (wv *WorkflowValidator) ValidateScheduleFile(doc []byte) error {
	return wv.jsonSchema.ValidateScheduleFile(doc)
}

// validateStructural converts JSON Schema violations into a ValidationResult.
func validateStructural(v *JSONSchemaValidator, doc []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateExport(doc)
	if err == nil {
		return result
	}

	ce, ok := err.(*schema.ClientError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if ce.Details != nil {
		if violations, ok := ce.Details["violations"].([]string); ok {
			for _, msg := range violations {
				result.AddError("/", schema.ErrCodeValidation, msg)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, ce.Message)
	return result
}

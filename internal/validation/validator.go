package validation

import "github.com/CodeGandee/invokeai-go-client/pkg/schema"

// Validator checks workflow exports for correctness before discovery runs.
// Structural checks use JSON Schema Draft 2020-12.
type Validator interface {
	ValidateDefinition(def *schema.WorkflowDefinition) error
	ValidateExport(doc []byte) error
}

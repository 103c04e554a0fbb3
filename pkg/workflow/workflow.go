// Package workflow turns a parsed GUI export into a working handle: inputs
// discovered from the form tree, typed value mutation, submission building,
// model resolution, and output correlation after a run completes.
//
// A Handle is not safe for concurrent mutation. Callers that share one across
// goroutines must serialize access themselves; one in-flight submission per
// handle is the intended usage.
package workflow

import (
	"errors"
	"log/slog"
	"os"

	"github.com/CodeGandee/invokeai-go-client/internal/expressions"
	"github.com/CodeGandee/invokeai-go-client/internal/validation"
	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Handle binds a workflow definition to its discovered inputs and the
// execution graph projection submissions are built from.
type Handle struct {
	def      *schema.WorkflowDefinition
	registry *fields.Registry
	logger   *slog.Logger
	jq       *expressions.GoJQEngine

	inputs  []*Input
	byField map[schema.FieldIdentifier]*Input
	base    *schema.Graph
	outputs []outputNode
}

// Option configures a Handle.
type Option func(*Handle)

// WithRegistry substitutes the field detection registry. The default is the
// built-in ladder from fields.DefaultRegistry.
func WithRegistry(r *fields.Registry) Option {
	return func(h *Handle) { h.registry = r }
}

// WithLogger sets the handle's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) {
		if l != nil {
			h.logger = l
		}
	}
}

// New builds a handle from an already-parsed definition: runs input
// discovery, projects the execution graph, and classifies output-capable
// nodes. Load and LoadFile additionally run the validation pipeline first.
func New(def *schema.WorkflowDefinition, opts ...Option) (*Handle, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	h := &Handle{
		def:    def,
		logger: slog.Default(),
		jq:     expressions.NewGoJQEngine(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = fields.DefaultRegistry()
	}

	inputs, err := discover(def, h.registry)
	if err != nil {
		return nil, err
	}
	h.inputs = inputs

	h.byField = make(map[schema.FieldIdentifier]*Input, len(inputs))
	for _, in := range inputs {
		fi := schema.FieldIdentifier{NodeID: in.NodeID, FieldName: in.FieldName}
		if _, dup := h.byField[fi]; !dup {
			h.byField[fi] = in
		}
	}

	base, err := def.BuildGraph()
	if err != nil {
		return nil, err
	}
	h.base = base
	h.outputs = classifyOutputs(def, h.byField)

	h.logger.Debug("workflow loaded",
		"workflow", def.Name,
		"nodes", len(def.Nodes),
		"inputs", len(h.inputs),
		"output_nodes", len(h.outputs),
	)
	return h, nil
}

// Load parses and validates a raw export, then builds the handle. Exports
// that fail the structural or semantic pipeline are rejected as incompatible.
func Load(data []byte, opts ...Option) (*Handle, error) {
	def, err := schema.ParseWorkflow(data)
	if err != nil {
		return nil, err
	}

	wv, err := validation.NewWorkflowValidator()
	if err != nil {
		return nil, err
	}
	if verr := wv.Validate(def).ToError(); verr != nil {
		var ce *schema.ClientError
		if errors.As(verr, &ce) {
			return nil, schema.NewErrorf(schema.ErrCodeDiscovery, "workflow rejected: %s", ce.Message).
				WithDetails(ce.Details).
				WithCause(verr)
		}
		return nil, verr
	}

	return New(def, opts...)
}

// LoadFile reads a workflow export from disk and loads it.
func LoadFile(path string, opts ...Option) (*Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDiscovery, "read workflow file %s: %v", path, err).WithCause(err)
	}
	return Load(data, opts...)
}

// Definition returns the immutable definition backing the handle.
func (h *Handle) Definition() *schema.WorkflowDefinition {
	return h.def
}

// Name returns the workflow's display name.
func (h *Handle) Name() string {
	return h.def.Name
}

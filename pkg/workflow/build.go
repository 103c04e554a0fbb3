package workflow

import (
	"errors"
	"sort"

	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// ValidateInputs checks every discovered input and aggregates all problems
// into an index keyed map. It never stops at the first violation, so a
// caller can surface the complete list in one pass.
func (h *Handle) ValidateInputs() schema.InputViolations {
	v := make(schema.InputViolations)

	for _, in := range h.inputs {
		if in.Required && fields.Empty(in.Field) {
			v.Add(in.Index, "required input %s has no value", in.Identifier())
			continue
		}
		if err := in.Field.Validate(); err != nil {
			v.Add(in.Index, "%s", violationMessage(err))
		}
		if in.original != nil {
			// A field that loaded with a value must still render one.
			if _, err := in.Field.JSONValue(); err != nil {
				v.Add(in.Index, "%s", violationMessage(err))
			}
		}
	}
	return v
}

// BuildSubmission renders the current input state as a single-run batch.
// The execution graph projection is cloned; only inputs whose value drifted
// from the export are written into the clone, so untouched fields keep their
// exported values and the topology is never altered. Repeated calls with no
// mutation in between produce equal payloads.
func (h *Handle) BuildSubmission() (*schema.Batch, error) {
	if err := h.ValidateInputs().ToError(); err != nil {
		return nil, err
	}

	g := h.base.Clone()
	for _, in := range h.inputs {
		val, changed, err := in.pendingValue()
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		if err := g.SetNodeField(in.NodeID, in.FieldName, val); err != nil {
			return nil, err
		}
	}

	return &schema.Batch{Graph: g, Runs: 1}, nil
}

// BuildSweepSubmission builds a multi-run batch: the base submission plus
// per-run value collections for the given input indices. All value lists are
// consumed in lockstep, so each must supply exactly one item per run.
func (h *Handle) BuildSweepSubmission(values map[int][]any, runs int) (*schema.Batch, error) {
	if runs <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "runs must be positive, got %d", runs)
	}

	batch, err := h.BuildSubmission()
	if err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(values))
	for i := range values {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var data []schema.BatchDatum
	for _, i := range indices {
		in, err := h.Input(i)
		if err != nil {
			return nil, err
		}
		items := values[i]
		if len(items) != runs {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"input %d (%s): %d sweep values for %d runs", i, in.Identifier(), len(items), runs).
				WithNode(in.NodeID)
		}
		data = append(data, schema.BatchDatum{
			NodePath:  in.NodeID,
			FieldName: in.FieldName,
			Items:     items,
		})
	}

	batch.Runs = runs
	if len(data) > 0 {
		batch.Data = [][]schema.BatchDatum{data}
	}
	return batch, nil
}

// violationMessage strips the structured-error prefix so aggregated
// violation lists read as plain sentences.
func violationMessage(err error) string {
	var ce *schema.ClientError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

// Package sweep expands per-input value specifications into the per-run
// collections a batch submission carries. A spec either lists its values
// literally or names an expr program; programs run in an environment holding
// the zero-based run index and the total run count, so "index * 10" and
// "0..2" both describe three-run sweeps.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/CodeGandee/invokeai-go-client/internal/expressions"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Spec describes how one workflow input varies across the runs of a batch.
// Exactly one of Expr and Values must be set.
type Spec struct {
	// Index is the workflow input index the values apply to.
	Index int `json:"index"`
	// Expr is an expr program. A program that yields a list supplies all
	// runs at once; any other result is re-evaluated once per run with the
	// run index in scope.
	Expr string `json:"expr,omitempty"`
	// Values lists the per-run values literally.
	Values []any `json:"values,omitempty"`
}

// Expander turns sweep specs into per-input value lists.
type Expander struct {
	engine *expressions.ExprEngine
}

// NewExpander creates an Expander with a fresh expression engine.
func NewExpander() *Expander {
	return &Expander{engine: expressions.NewExprEngine()}
}

// Expand evaluates the specs into one value list per input index, each exactly
// runs long. The result feeds Handle.BuildSweepSubmission unchanged.
func (x *Expander) Expand(ctx context.Context, specs []Spec, runs int) (map[int][]any, error) {
	if runs <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "runs must be positive, got %d", runs)
	}

	out := make(map[int][]any, len(specs))
	for _, spec := range specs {
		if _, dup := out[spec.Index]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"input %d appears in more than one sweep spec", spec.Index)
		}

		values, err := x.expand(ctx, spec, runs)
		if err != nil {
			return nil, err
		}
		if len(values) != runs {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"sweep for input %d yields %d values for %d runs", spec.Index, len(values), runs).
				WithDetails(map[string]any{"index": spec.Index, "expression": spec.Expr})
		}
		out[spec.Index] = values
	}
	return out, nil
}

func (x *Expander) expand(ctx context.Context, spec Spec, runs int) ([]any, error) {
	switch {
	case spec.Expr != "" && spec.Values != nil:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"sweep for input %d sets both an expression and literal values", spec.Index)
	case spec.Values != nil:
		return spec.Values, nil
	case spec.Expr == "":
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"sweep for input %d has neither an expression nor values", spec.Index)
	}

	first, err := x.engine.Evaluate(ctx, spec.Expr, sweepEnv(0, runs))
	if err != nil {
		return nil, exprFailure(spec, err)
	}
	if list, ok := asList(first); ok {
		return list, nil
	}

	// Scalar program: one evaluation per run index.
	values := make([]any, runs)
	values[0] = first
	for i := 1; i < runs; i++ {
		v, err := x.engine.Evaluate(ctx, spec.Expr, sweepEnv(i, runs))
		if err != nil {
			return nil, exprFailure(spec, err)
		}
		values[i] = v
	}
	return values, nil
}

func sweepEnv(index, runs int) map[string]any {
	return map[string]any{"index": index, "runs": runs}
}

// asList flattens any slice result to []any. Strings and byte slices stay
// scalar.
func asList(v any) ([]any, bool) {
	switch v.(type) {
	case nil, string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func exprFailure(spec Spec, err error) error {
	msg := err.Error()
	var ce *schema.ClientError
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "sweep for input %d: %s", spec.Index, msg).
		WithCause(err).
		WithDetails(map[string]any{"index": spec.Index, "expression": spec.Expr})
}

// ParseSpec parses a command-line sweep assignment of the form INDEX=EXPR,
// for example "2=index * 10" or "0=[\"a\", \"b\"]".
func ParseSpec(s string) (Spec, error) {
	left, right, found := strings.Cut(s, "=")
	if !found || strings.TrimSpace(right) == "" {
		return Spec{}, schema.NewErrorf(schema.ErrCodeValidation,
			"sweep spec %q is not of the form INDEX=EXPRESSION", s)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return Spec{}, schema.NewErrorf(schema.ErrCodeValidation,
			"sweep spec %q has a non-numeric input index", s)
	}
	if idx < 0 {
		return Spec{}, schema.NewErrorf(schema.ErrCodeValidation,
			"sweep spec %q has a negative input index", s)
	}
	return Spec{Index: idx, Expr: strings.TrimSpace(right)}, nil
}

// ParseSpecs parses a list of INDEX=EXPR assignments.
func ParseSpecs(raw []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(raw))
	for _, s := range raw {
		spec, err := ParseSpec(s)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// String renders the spec in its command-line form.
func (s Spec) String() string {
	if s.Expr != "" {
		return fmt.Sprintf("%d=%s", s.Index, s.Expr)
	}
	return fmt.Sprintf("%d=%v", s.Index, s.Values)
}

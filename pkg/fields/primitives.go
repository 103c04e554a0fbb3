package fields

import (
	"math"
	"strings"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// StringField holds free text, typically prompts and labels.
type StringField struct {
	Val         string
	Constraints *Constraints
}

func NewStringField(v string) *StringField { return &StringField{Val: v} }

func (f *StringField) Kind() Kind { return KindString }

func (f *StringField) Value() any { return f.Val }

func (f *StringField) SetValue(v any) error {
	s, ok := v.(string)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "string field wants string, got %T", v)
	}
	f.Val = s
	return nil
}

func (f *StringField) Validate() error {
	if c := f.Constraints; c != nil {
		n := len(f.Val)
		if c.MinLength != nil && n < *c.MinLength {
			return schema.NewErrorf(schema.ErrCodeValidation, "length %d below minimum %d", n, *c.MinLength)
		}
		if c.MaxLength != nil && n > *c.MaxLength {
			return schema.NewErrorf(schema.ErrCodeValidation, "length %d above maximum %d", n, *c.MaxLength)
		}
	}
	return nil
}

func (f *StringField) JSONValue() (any, error) { return f.Val, nil }

// IntegerField holds whole numbers: seeds, steps, dimensions.
type IntegerField struct {
	Val         int64
	Constraints *Constraints
}

func NewIntegerField(v int64) *IntegerField { return &IntegerField{Val: v} }

func (f *IntegerField) Kind() Kind { return KindInteger }

func (f *IntegerField) Value() any { return f.Val }

func (f *IntegerField) SetValue(v any) error {
	switch t := v.(type) {
	case int:
		f.Val = int64(t)
	case int32:
		f.Val = int64(t)
	case int64:
		f.Val = t
	case float64:
		if t != math.Trunc(t) {
			return schema.NewErrorf(schema.ErrCodeValidation, "integer field wants whole number, got %v", t)
		}
		f.Val = int64(t)
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "integer field wants integer, got %T", v)
	}
	return nil
}

func (f *IntegerField) Validate() error {
	if c := f.Constraints; c != nil {
		v := float64(f.Val)
		if c.Minimum != nil && v < *c.Minimum {
			return schema.NewErrorf(schema.ErrCodeValidation, "%d below minimum %v", f.Val, *c.Minimum)
		}
		if c.Maximum != nil && v > *c.Maximum {
			return schema.NewErrorf(schema.ErrCodeValidation, "%d above maximum %v", f.Val, *c.Maximum)
		}
		if c.MultipleOf != nil && *c.MultipleOf != 0 && math.Mod(v, *c.MultipleOf) != 0 {
			return schema.NewErrorf(schema.ErrCodeValidation, "%d not a multiple of %v", f.Val, *c.MultipleOf)
		}
	}
	return nil
}

func (f *IntegerField) JSONValue() (any, error) { return f.Val, nil }

// FloatField holds real numbers: CFG scale, denoise strength.
type FloatField struct {
	Val         float64
	Constraints *Constraints
}

func NewFloatField(v float64) *FloatField { return &FloatField{Val: v} }

func (f *FloatField) Kind() Kind { return KindFloat }

func (f *FloatField) Value() any { return f.Val }

func (f *FloatField) SetValue(v any) error {
	switch t := v.(type) {
	case float64:
		f.Val = t
	case float32:
		f.Val = float64(t)
	case int:
		f.Val = float64(t)
	case int64:
		f.Val = float64(t)
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "float field wants number, got %T", v)
	}
	return nil
}

func (f *FloatField) Validate() error {
	if c := f.Constraints; c != nil {
		if c.Minimum != nil && f.Val < *c.Minimum {
			return schema.NewErrorf(schema.ErrCodeValidation, "%v below minimum %v", f.Val, *c.Minimum)
		}
		if c.Maximum != nil && f.Val > *c.Maximum {
			return schema.NewErrorf(schema.ErrCodeValidation, "%v above maximum %v", f.Val, *c.Maximum)
		}
	}
	return nil
}

func (f *FloatField) JSONValue() (any, error) { return f.Val, nil }

// BooleanField holds switches like tiled decode or intermediate flags.
type BooleanField struct {
	Val bool
}

func NewBooleanField(v bool) *BooleanField { return &BooleanField{Val: v} }

func (f *BooleanField) Kind() Kind { return KindBoolean }

func (f *BooleanField) Value() any { return f.Val }

func (f *BooleanField) SetValue(v any) error {
	b, ok := v.(bool)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "boolean field wants bool, got %T", v)
	}
	f.Val = b
	return nil
}

func (f *BooleanField) Validate() error { return nil }

func (f *BooleanField) JSONValue() (any, error) { return f.Val, nil }

// EnumField holds one value from a fixed choice set, e.g. scheduler names.
// Unknown exported values are kept as-is and flagged by Validate only when
// the choice set is known.
type EnumField struct {
	Val     string
	Choices []string
}

func NewEnumField(v string, choices []string) *EnumField {
	return &EnumField{Val: v, Choices: choices}
}

func (f *EnumField) Kind() Kind { return KindEnum }

func (f *EnumField) Value() any { return f.Val }

func (f *EnumField) SetValue(v any) error {
	s, ok := v.(string)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "enum field wants string, got %T", v)
	}
	f.Val = s
	return nil
}

func (f *EnumField) Validate() error {
	if f.Val == "" || len(f.Choices) == 0 {
		return nil
	}
	for _, c := range f.Choices {
		if c == f.Val {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "%q not in choices [%s]", f.Val, strings.Join(f.Choices, ", "))
}

func (f *EnumField) JSONValue() (any, error) { return f.Val, nil }

package fields

import (
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// ColorField is an RGBA color. Attribute-bearing.
type ColorField struct {
	R, G, B, A int
}

func (f *ColorField) Kind() Kind { return KindColor }

func (f *ColorField) Validate() error {
	for _, c := range [...]struct {
		name string
		v    int
	}{{"r", f.R}, {"g", f.G}, {"b", f.B}, {"a", f.A}} {
		if c.v < 0 || c.v > 255 {
			return schema.NewErrorf(schema.ErrCodeValidation, "channel %s=%d outside 0..255", c.name, c.v)
		}
	}
	return nil
}

func (f *ColorField) JSONValue() (any, error) {
	return map[string]any{"r": f.R, "g": f.G, "b": f.B, "a": f.A}, nil
}

// BoundingBoxField is a pixel-space box with an optional detection score.
// Attribute-bearing.
type BoundingBoxField struct {
	XMin, XMax, YMin, YMax int
	Score                  *float64
}

func (f *BoundingBoxField) Kind() Kind { return KindBoundingBox }

func (f *BoundingBoxField) Validate() error {
	if f.XMax < f.XMin {
		return schema.NewErrorf(schema.ErrCodeValidation, "x_max %d below x_min %d", f.XMax, f.XMin)
	}
	if f.YMax < f.YMin {
		return schema.NewErrorf(schema.ErrCodeValidation, "y_max %d below y_min %d", f.YMax, f.YMin)
	}
	if f.Score != nil && (*f.Score < 0 || *f.Score > 1) {
		return schema.NewErrorf(schema.ErrCodeValidation, "score %v outside 0..1", *f.Score)
	}
	return nil
}

func (f *BoundingBoxField) JSONValue() (any, error) {
	out := map[string]any{
		"x_min": f.XMin, "x_max": f.XMax,
		"y_min": f.YMin, "y_max": f.YMax,
	}
	if f.Score != nil {
		out["score"] = *f.Score
	}
	return out, nil
}

// CollectionField is a homogeneous list of primitive items. ItemKind records
// the inferred element kind; KindString for an empty collection of unknown
// provenance is acceptable since the server validates element types anyway.
type CollectionField struct {
	Items    []any
	ItemKind Kind
}

func NewCollectionField(items []any, itemKind Kind) *CollectionField {
	return &CollectionField{Items: items, ItemKind: itemKind}
}

func (f *CollectionField) Kind() Kind { return KindCollection }

func (f *CollectionField) Value() any { return f.Items }

func (f *CollectionField) SetValue(v any) error {
	switch t := v.(type) {
	case []any:
		f.Items = t
	case []string:
		items := make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
		f.Items = items
	case []int:
		items := make([]any, len(t))
		for i, n := range t {
			items[i] = n
		}
		f.Items = items
	case []float64:
		items := make([]any, len(t))
		for i, n := range t {
			items[i] = n
		}
		f.Items = items
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "collection field wants a slice, got %T", v)
	}
	return nil
}

func (f *CollectionField) Validate() error {
	if f.ItemKind == "" || len(f.Items) == 0 {
		return nil
	}
	for i, item := range f.Items {
		k := inferItemKind(item)
		if k == "" || k == f.ItemKind {
			continue
		}
		// Whole numbers are fine in float collections.
		if f.ItemKind == KindFloat && k == KindInteger {
			continue
		}
		return schema.NewErrorf(schema.ErrCodeValidation, "item %d is %s, collection holds %s", i, k, f.ItemKind)
	}
	return nil
}

func (f *CollectionField) JSONValue() (any, error) {
	return append([]any(nil), f.Items...), nil
}

func inferItemKind(v any) Kind {
	switch t := v.(type) {
	case string:
		return KindString
	case bool:
		return KindBoolean
	case float64:
		if t == float64(int64(t)) {
			return KindInteger
		}
		return KindFloat
	case int, int64:
		return KindInteger
	case map[string]any:
		if _, ok := t["image_name"]; ok {
			return KindImage
		}
	}
	return ""
}

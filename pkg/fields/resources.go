package fields

import "github.com/CodeGandee/invokeai-go-client/pkg/schema"

// ImageField references a server-side image by name. The client never
// touches pixel data; uploads and downloads happen elsewhere.
type ImageField struct {
	Name string
}

func NewImageField(name string) *ImageField { return &ImageField{Name: name} }

func (f *ImageField) Kind() Kind { return KindImage }

func (f *ImageField) Value() any { return f.Name }

func (f *ImageField) SetValue(v any) error {
	switch t := v.(type) {
	case string:
		f.Name = t
	case map[string]any:
		name, ok := t["image_name"].(string)
		if !ok {
			return schema.NewError(schema.ErrCodeValidation, "image object has no image_name")
		}
		f.Name = name
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "image field wants name or image object, got %T", v)
	}
	return nil
}

func (f *ImageField) Validate() error { return nil }

func (f *ImageField) JSONValue() (any, error) {
	if f.Name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "image field has no image name")
	}
	return map[string]any{"image_name": f.Name}, nil
}

// BoardField selects the board generated images land on. Empty and "auto"
// normalize to the uncategorized sentinel.
type BoardField struct {
	ID string
}

func NewBoardField(id string) *BoardField {
	return &BoardField{ID: schema.NormalizeBoardID(id)}
}

func (f *BoardField) Kind() Kind { return KindBoard }

func (f *BoardField) Value() any { return f.ID }

func (f *BoardField) SetValue(v any) error {
	switch t := v.(type) {
	case string:
		f.ID = schema.NormalizeBoardID(t)
	case map[string]any:
		id, ok := t["board_id"].(string)
		if !ok {
			return schema.NewError(schema.ErrCodeValidation, "board object has no board_id")
		}
		f.ID = schema.NormalizeBoardID(id)
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "board field wants id or board object, got %T", v)
	}
	return nil
}

func (f *BoardField) Validate() error { return nil }

func (f *BoardField) JSONValue() (any, error) {
	return map[string]any{"board_id": schema.NormalizeBoardID(f.ID)}, nil
}

// LatentsField references a latents tensor produced earlier in a session.
type LatentsField struct {
	Name string
	Seed *int64
}

func NewLatentsField(name string) *LatentsField { return &LatentsField{Name: name} }

func (f *LatentsField) Kind() Kind { return KindLatents }

func (f *LatentsField) Value() any { return f.Name }

func (f *LatentsField) SetValue(v any) error {
	switch t := v.(type) {
	case string:
		f.Name = t
	case map[string]any:
		name, ok := t["latents_name"].(string)
		if !ok {
			return schema.NewError(schema.ErrCodeValidation, "latents object has no latents_name")
		}
		f.Name = name
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "latents field wants name or latents object, got %T", v)
	}
	return nil
}

func (f *LatentsField) Validate() error { return nil }

func (f *LatentsField) JSONValue() (any, error) {
	if f.Name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "latents field has no tensor name")
	}
	out := map[string]any{"latents_name": f.Name}
	if f.Seed != nil {
		out["seed"] = *f.Seed
	}
	return out, nil
}

// TensorField references a named tensor (masks, conditioning) by name.
type TensorField struct {
	Name string
}

func NewTensorField(name string) *TensorField { return &TensorField{Name: name} }

func (f *TensorField) Kind() Kind { return KindTensor }

func (f *TensorField) Value() any { return f.Name }

func (f *TensorField) SetValue(v any) error {
	switch t := v.(type) {
	case string:
		f.Name = t
	case map[string]any:
		name, ok := t["tensor_name"].(string)
		if !ok {
			return schema.NewError(schema.ErrCodeValidation, "tensor object has no tensor_name")
		}
		f.Name = name
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "tensor field wants name or tensor object, got %T", v)
	}
	return nil
}

func (f *TensorField) Validate() error { return nil }

func (f *TensorField) JSONValue() (any, error) {
	if f.Name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "tensor field has no tensor name")
	}
	return map[string]any{"tensor_name": f.Name}, nil
}

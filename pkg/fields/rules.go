package fields

import (
	"bytes"
	"strings"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Priority bands of the built-in detection ladder. Within a band, rules are
// consulted in registration order.
const (
	PriorityDeclaredType = 600
	PriorityNamePattern  = 500
	PriorityNodeType     = 400
	PriorityValueShape   = 300
	PriorityEnumChoices  = 200
	PriorityNumeric      = 100
)

// SchedulerNames are the scheduler choices accepted by denoise nodes.
var SchedulerNames = []string{
	"ddim", "ddpm", "deis", "deis_k",
	"dpmpp_2s", "dpmpp_2s_k", "dpmpp_2m", "dpmpp_2m_k",
	"dpmpp_2m_sde", "dpmpp_2m_sde_k", "dpmpp_3m", "dpmpp_3m_k",
	"dpmpp_sde", "dpmpp_sde_k",
	"euler", "euler_k", "euler_a",
	"heun", "heun_k",
	"kdpm_2", "kdpm_2_k", "kdpm_2_a", "kdpm_2_a_k",
	"lcm", "lms", "lms_k", "pndm", "tcd", "unipc", "unipc_k",
}

// declaredKinds maps export type tags to field kinds.
var declaredKinds = map[string]Kind{
	"StringField":           KindString,
	"IntegerField":          KindInteger,
	"FloatField":            KindFloat,
	"BooleanField":          KindBoolean,
	"EnumField":             KindEnum,
	"ImageField":            KindImage,
	"BoardField":            KindBoard,
	"LatentsField":          KindLatents,
	"ConditioningField":     KindTensor,
	"DenoiseMaskField":      KindTensor,
	"TensorField":           KindTensor,
	"ColorField":            KindColor,
	"BoundingBoxField":      KindBoundingBox,
	"ModelIdentifierField":  KindModelIdentifier,
	"MainModelField":        KindModelIdentifier,
	"SDXLMainModelField":    KindModelIdentifier,
	"SD3MainModelField":     KindModelIdentifier,
	"FluxMainModelField":    KindModelIdentifier,
	"VAEModelField":         KindModelIdentifier,
	"LoRAModelField":        KindModelIdentifier,
	"ControlNetModelField":  KindModelIdentifier,
	"T5EncoderModelField":   KindModelIdentifier,
	"CLIPEmbedModelField":   KindModelIdentifier,
	"UNetField":             KindModelConfig,
	"CLIPField":             KindModelConfig,
	"VAEField":              KindModelConfig,
	"TransformerField":      KindModelConfig,
}

// modelFieldNames are input names that conventionally carry model identities.
var modelFieldNames = map[string]bool{
	"model":         true,
	"vae":           true,
	"unet":          true,
	"clip":          true,
	"clip2":         true,
	"transformer":   true,
	"t5_encoder":    true,
	"refiner_model": true,
}

// primitiveNodeFields maps (node type, field name) of value-holder nodes to
// the kind of their payload field.
var primitiveNodeFields = map[[2]string]Kind{
	{"string", "value"}:  KindString,
	{"integer", "value"}: KindInteger,
	{"float", "value"}:   KindFloat,
	{"boolean", "value"}: KindBoolean,
	{"color", "color"}:   KindColor,
}

// RegisterDefaults installs the built-in detection ladder into r. Panics on
// conflict, which can only happen if called twice on the same registry.
func RegisterDefaults(r *Registry) {
	mustRegister := func(rule Rule) {
		if err := r.Register(rule); err != nil {
			panic(err)
		}
	}

	mustRegister(Rule{
		Name:     "declared-type",
		Priority: PriorityDeclaredType,
		Match: func(fs *FieldSchema) bool {
			if fs.DeclaredType == "" {
				return false
			}
			_, ok := declaredKinds[fs.DeclaredType]
			return ok
		},
		Build: func(fs *FieldSchema) (Field, error) {
			return buildKind(declaredKinds[fs.DeclaredType], fs)
		},
	})

	// --- name patterns ---

	mustRegister(Rule{
		Name:     "name-board",
		Priority: PriorityNamePattern,
		Match:    func(fs *FieldSchema) bool { return fs.FieldName == "board" },
		Build:    func(fs *FieldSchema) (Field, error) { return buildKind(KindBoard, fs) },
	})
	mustRegister(Rule{
		Name:     "name-image",
		Priority: PriorityNamePattern,
		Match: func(fs *FieldSchema) bool {
			return fs.FieldName == "image" || strings.HasSuffix(fs.FieldName, "_image")
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildKind(KindImage, fs) },
	})
	mustRegister(Rule{
		Name:     "name-model",
		Priority: PriorityNamePattern,
		Match: func(fs *FieldSchema) bool {
			return modelFieldNames[fs.FieldName] || strings.HasSuffix(fs.FieldName, "_model")
		},
		Build: func(fs *FieldSchema) (Field, error) {
			obj := fs.valueObject()
			if obj != nil && !looksLikeModelObject(obj) && hasNestedModelObject(obj) {
				return &ModelConfigField{Raw: obj}, nil
			}
			return buildKind(KindModelIdentifier, fs)
		},
	})
	mustRegister(Rule{
		Name:     "name-scheduler",
		Priority: PriorityNamePattern,
		Match:    func(fs *FieldSchema) bool { return fs.FieldName == "scheduler" },
		Build: func(fs *FieldSchema) (Field, error) {
			f, err := buildEnum(fs)
			if err != nil {
				return nil, err
			}
			if len(f.Choices) == 0 {
				f.Choices = append([]string(nil), SchedulerNames...)
			}
			return f, nil
		},
	})
	mustRegister(Rule{
		Name:     "name-color",
		Priority: PriorityNamePattern,
		Match:    func(fs *FieldSchema) bool { return fs.FieldName == "color" },
		Build:    func(fs *FieldSchema) (Field, error) { return buildKind(KindColor, fs) },
	})
	mustRegister(Rule{
		Name:     "name-bounding-box",
		Priority: PriorityNamePattern,
		Match: func(fs *FieldSchema) bool {
			return fs.FieldName == "bounding_box" || fs.FieldName == "bbox"
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildKind(KindBoundingBox, fs) },
	})
	mustRegister(Rule{
		Name:     "name-prompt",
		Priority: PriorityNamePattern,
		Match: func(fs *FieldSchema) bool {
			return fs.FieldName == "prompt" || strings.HasSuffix(fs.FieldName, "_prompt")
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildKind(KindString, fs) },
	})
	mustRegister(Rule{
		Name:     "name-seed",
		Priority: PriorityNamePattern,
		Match:    func(fs *FieldSchema) bool { return fs.FieldName == "seed" },
		Build:    func(fs *FieldSchema) (Field, error) { return buildKind(KindInteger, fs) },
	})
	mustRegister(Rule{
		Name:     "name-latents",
		Priority: PriorityNamePattern,
		Match: func(fs *FieldSchema) bool {
			return fs.FieldName == "latents" || strings.HasSuffix(fs.FieldName, "_latents")
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildKind(KindLatents, fs) },
	})

	// --- node primitive types ---

	mustRegister(Rule{
		Name:     "node-primitive",
		Priority: PriorityNodeType,
		Match: func(fs *FieldSchema) bool {
			_, ok := primitiveNodeFields[[2]string{fs.NodeType, fs.FieldName}]
			return ok
		},
		Build: func(fs *FieldSchema) (Field, error) {
			return buildKind(primitiveNodeFields[[2]string{fs.NodeType, fs.FieldName}], fs)
		},
	})

	// --- value shapes ---

	shapeRule := func(name string, keys []string, kind Kind) Rule {
		return Rule{
			Name:     name,
			Priority: PriorityValueShape,
			Match: func(fs *FieldSchema) bool {
				obj := fs.valueObject()
				if obj == nil {
					return false
				}
				for _, k := range keys {
					if _, ok := obj[k]; !ok {
						return false
					}
				}
				return true
			},
			Build: func(fs *FieldSchema) (Field, error) { return buildKind(kind, fs) },
		}
	}
	mustRegister(shapeRule("shape-image", []string{"image_name"}, KindImage))
	mustRegister(shapeRule("shape-board", []string{"board_id"}, KindBoard))
	mustRegister(Rule{
		Name:     "shape-model",
		Priority: PriorityValueShape,
		Match:    func(fs *FieldSchema) bool { return looksLikeModelObject(fs.valueObject()) },
		Build:    func(fs *FieldSchema) (Field, error) { return buildKind(KindModelIdentifier, fs) },
	})
	mustRegister(Rule{
		Name:     "shape-model-config",
		Priority: PriorityValueShape,
		Match: func(fs *FieldSchema) bool {
			obj := fs.valueObject()
			return obj != nil && hasNestedModelObject(obj)
		},
		Build: func(fs *FieldSchema) (Field, error) {
			return &ModelConfigField{Raw: fs.valueObject()}, nil
		},
	})
	mustRegister(shapeRule("shape-latents", []string{"latents_name"}, KindLatents))
	mustRegister(shapeRule("shape-tensor", []string{"tensor_name"}, KindTensor))
	mustRegister(shapeRule("shape-mask", []string{"mask_name"}, KindTensor))
	mustRegister(shapeRule("shape-color", []string{"r", "g", "b"}, KindColor))
	mustRegister(shapeRule("shape-bounding-box", []string{"x_min", "x_max", "y_min", "y_max"}, KindBoundingBox))
	mustRegister(Rule{
		Name:     "shape-collection",
		Priority: PriorityValueShape,
		Match: func(fs *FieldSchema) bool {
			return fs.HasValue() && bytes.HasPrefix(bytes.TrimSpace(fs.Value), []byte("["))
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildCollection(fs) },
	})

	// --- enum choices ---

	mustRegister(Rule{
		Name:     "enum-choices",
		Priority: PriorityEnumChoices,
		Match:    func(fs *FieldSchema) bool { return len(fs.Choices) > 0 },
		Build:    func(fs *FieldSchema) (Field, error) { return buildEnumField(fs) },
	})

	// --- numeric fallbacks ---

	mustRegister(Rule{
		Name:     "numeric-integer",
		Priority: PriorityNumeric,
		Match: func(fs *FieldSchema) bool {
			return isJSONNumber(fs.Value) && !hasFractionMarker(fs.Value)
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildKind(KindInteger, fs) },
	})
	mustRegister(Rule{
		Name:     "numeric-float",
		Priority: PriorityNumeric,
		Match:    func(fs *FieldSchema) bool { return isJSONNumber(fs.Value) },
		Build:    func(fs *FieldSchema) (Field, error) { return buildKind(KindFloat, fs) },
	})
	mustRegister(Rule{
		Name:     "numeric-constrained",
		Priority: PriorityNumeric - 10,
		Match: func(fs *FieldSchema) bool {
			c := fs.Constraints
			return !fs.HasValue() && c != nil && (c.Minimum != nil || c.Maximum != nil)
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildKind(KindFloat, fs) },
	})

	// --- scalar fallbacks; below enum so a choice set always wins ---

	mustRegister(Rule{
		Name:     "scalar-string",
		Priority: PriorityNumeric,
		Match: func(fs *FieldSchema) bool {
			return fs.HasValue() && bytes.HasPrefix(bytes.TrimSpace(fs.Value), []byte(`"`))
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildKind(KindString, fs) },
	})
	mustRegister(Rule{
		Name:     "scalar-boolean",
		Priority: PriorityNumeric,
		Match: func(fs *FieldSchema) bool {
			if !fs.HasValue() {
				return false
			}
			v := string(bytes.TrimSpace(fs.Value))
			return v == "true" || v == "false"
		},
		Build: func(fs *FieldSchema) (Field, error) { return buildKind(KindBoolean, fs) },
	})
}

func isJSONNumber(raw []byte) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || string(v) == "null" {
		return false
	}
	c := v[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func hasFractionMarker(raw []byte) bool {
	return bytes.ContainsAny(raw, ".eE")
}

func hasNestedModelObject(obj map[string]any) bool {
	for _, v := range obj {
		if sub, ok := v.(map[string]any); ok && looksLikeModelObject(sub) {
			return true
		}
	}
	return false
}

// buildKind constructs the variant for a kind from the schema literal.
func buildKind(kind Kind, fs *FieldSchema) (Field, error) {
	switch kind {
	case KindString:
		f := &StringField{Constraints: fs.Constraints}
		if fs.HasValue() {
			if err := fs.decodeValue(&f.Val); err != nil {
				return nil, err
			}
		}
		return f, nil
	case KindInteger:
		f := &IntegerField{Constraints: fs.Constraints}
		if fs.HasValue() {
			if err := fs.decodeValue(&f.Val); err != nil {
				return nil, err
			}
		}
		return f, nil
	case KindFloat:
		f := &FloatField{Constraints: fs.Constraints}
		if fs.HasValue() {
			if err := fs.decodeValue(&f.Val); err != nil {
				return nil, err
			}
		}
		return f, nil
	case KindBoolean:
		f := &BooleanField{}
		if fs.HasValue() {
			if err := fs.decodeValue(&f.Val); err != nil {
				return nil, err
			}
		}
		return f, nil
	case KindEnum:
		return buildEnumField(fs)
	case KindImage:
		f := &ImageField{}
		if fs.HasValue() {
			if err := setFromLiteral(f, fs); err != nil {
				return nil, err
			}
		}
		return f, nil
	case KindBoard:
		f := &BoardField{ID: schema.BoardNone}
		if fs.HasValue() {
			if err := setFromLiteral(f, fs); err != nil {
				return nil, err
			}
		}
		return f, nil
	case KindLatents:
		f := &LatentsField{}
		if fs.HasValue() {
			if err := setFromLiteral(f, fs); err != nil {
				return nil, err
			}
		}
		return f, nil
	case KindTensor:
		f := &TensorField{}
		if fs.HasValue() {
			if obj := fs.valueObject(); obj != nil {
				for _, key := range []string{"tensor_name", "mask_name", "conditioning_name"} {
					if name, ok := obj[key].(string); ok {
						f.Name = name
						break
					}
				}
			} else {
				var s string
				if err := fs.decodeValue(&s); err == nil {
					f.Name = s
				}
			}
		}
		return f, nil
	case KindModelIdentifier:
		if obj := fs.valueObject(); obj != nil {
			return modelFieldFromObject(obj), nil
		}
		return &ModelIdentifierField{}, nil
	case KindModelConfig:
		return &ModelConfigField{Raw: fs.valueObject()}, nil
	case KindColor:
		f := &ColorField{A: 255}
		if obj := fs.valueObject(); obj != nil {
			f.R = intFrom(obj["r"])
			f.G = intFrom(obj["g"])
			f.B = intFrom(obj["b"])
			if _, ok := obj["a"]; ok {
				f.A = intFrom(obj["a"])
			}
		}
		return f, nil
	case KindBoundingBox:
		f := &BoundingBoxField{}
		if obj := fs.valueObject(); obj != nil {
			f.XMin = intFrom(obj["x_min"])
			f.XMax = intFrom(obj["x_max"])
			f.YMin = intFrom(obj["y_min"])
			f.YMax = intFrom(obj["y_max"])
			if s, ok := obj["score"].(float64); ok {
				f.Score = &s
			}
		}
		return f, nil
	case KindCollection:
		return buildCollection(fs)
	}
	return nil, schema.NewErrorf(schema.ErrCodeInternal, "no builder for kind %q", kind)
}

func buildEnumField(fs *FieldSchema) (*EnumField, error) {
	return buildEnum(fs)
}

func buildEnum(fs *FieldSchema) (*EnumField, error) {
	f := &EnumField{Choices: append([]string(nil), fs.Choices...)}
	if fs.HasValue() {
		if err := fs.decodeValue(&f.Val); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func buildCollection(fs *FieldSchema) (Field, error) {
	f := &CollectionField{}
	if fs.HasValue() {
		if err := fs.decodeValue(&f.Items); err != nil {
			return nil, err
		}
	}
	for _, item := range f.Items {
		if k := inferItemKind(item); k != "" {
			f.ItemKind = k
			break
		}
	}
	return f, nil
}

// setFromLiteral decodes the schema literal generically and funnels it
// through the variant's SetValue coercions.
func setFromLiteral(f ValueField, fs *FieldSchema) error {
	var v any
	if err := fs.decodeValue(&v); err != nil {
		return err
	}
	return f.SetValue(v)
}

func intFrom(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	}
	return 0
}

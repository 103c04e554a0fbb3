package fields

import (
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// ModelIdentifierField pins a node to an installed model. Attribute-bearing:
// the identity pieces are set directly, typically by the resolver after
// matching against the server inventory.
type ModelIdentifierField struct {
	Key          string
	Hash         string
	Name         string
	Base         schema.BaseModel
	Type         schema.ModelType
	SubModelType string
}

func (f *ModelIdentifierField) Kind() Kind { return KindModelIdentifier }

func (f *ModelIdentifierField) Validate() error {
	if f.Key == "" && f.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "model field has neither key nor name")
	}
	return nil
}

func (f *ModelIdentifierField) JSONValue() (any, error) {
	out := map[string]any{
		"key":  f.Key,
		"hash": f.Hash,
		"name": f.Name,
		"base": string(f.Base),
		"type": string(f.Type),
	}
	if f.SubModelType != "" {
		out["submodel_type"] = f.SubModelType
	}
	return out, nil
}

// Identity returns the field as an inventory record for comparisons.
func (f *ModelIdentifierField) Identity() schema.ModelRecord {
	return schema.ModelRecord{
		Key:  f.Key,
		Hash: f.Hash,
		Name: f.Name,
		Base: f.Base,
		Type: f.Type,
	}
}

// Adopt overwrites the identity from an inventory record.
func (f *ModelIdentifierField) Adopt(rec schema.ModelRecord) {
	f.Key = rec.Key
	f.Hash = rec.Hash
	f.Name = rec.Name
	f.Base = rec.Base
	if rec.Type != "" {
		f.Type = rec.Type
	}
}

func modelFieldFromObject(obj map[string]any) *ModelIdentifierField {
	f := &ModelIdentifierField{}
	if s, ok := obj["key"].(string); ok {
		f.Key = s
	}
	if s, ok := obj["hash"].(string); ok {
		f.Hash = s
	}
	if s, ok := obj["name"].(string); ok {
		f.Name = s
	}
	if s, ok := obj["base"].(string); ok {
		f.Base = schema.BaseModel(s)
	}
	if s, ok := obj["type"].(string); ok {
		f.Type = schema.ModelType(s)
	}
	if s, ok := obj["submodel_type"].(string); ok {
		f.SubModelType = s
	}
	return f
}

// looksLikeModelObject reports whether a JSON object carries a model
// identity (inventory key plus base architecture).
func looksLikeModelObject(obj map[string]any) bool {
	if obj == nil {
		return false
	}
	_, hasKey := obj["key"]
	_, hasBase := obj["base"]
	return hasKey && hasBase
}

// ModelConfigField holds a composite sub-model configuration: an object
// whose members are themselves model identities (UNet, CLIP, VAE bundles and
// the like). Attribute-bearing; the raw object is preserved and individual
// components are addressed by name.
type ModelConfigField struct {
	Raw map[string]any
}

func (f *ModelConfigField) Kind() Kind { return KindModelConfig }

func (f *ModelConfigField) Validate() error {
	if len(f.Raw) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "model config is empty")
	}
	return nil
}

func (f *ModelConfigField) JSONValue() (any, error) {
	cp := make(map[string]any, len(f.Raw))
	for k, v := range f.Raw {
		cp[k] = v
	}
	return cp, nil
}

// Component returns the named sub-model as an identifier field when that
// member is a model object.
func (f *ModelConfigField) Component(name string) (*ModelIdentifierField, bool) {
	obj, ok := f.Raw[name].(map[string]any)
	if !ok || !looksLikeModelObject(obj) {
		return nil, false
	}
	return modelFieldFromObject(obj), true
}

// Components lists the member names that carry model identities.
func (f *ModelConfigField) Components() []string {
	var out []string
	for name, v := range f.Raw {
		if obj, ok := v.(map[string]any); ok && looksLikeModelObject(obj) {
			out = append(out, name)
		}
	}
	return out
}

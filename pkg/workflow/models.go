package workflow

import (
	"context"

	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Resolution records one model identifier rewrite: the identity the export
// carried and the inventory record that replaced it.
type Resolution struct {
	InputIndex int                `json:"input_index"`
	NodeID     string             `json:"node_id"`
	FieldName  string             `json:"field_name"`
	Previous   schema.ModelRecord `json:"previous"`
	Resolved   schema.ModelRecord `json:"resolved"`
	MatchedBy  string             `json:"matched_by"` // key, name or base
}

// ModelResolutionMiss reports a model field no inventory entry matched.
// Misses are informational: the field keeps its exported identity and the
// server decides whether that identity is still installable.
type ModelResolutionMiss struct {
	InputIndex int                `json:"input_index"`
	NodeID     string             `json:"node_id"`
	FieldName  string             `json:"field_name"`
	Identity   schema.ModelRecord `json:"identity"`
	Reason     string             `json:"reason"`
}

// ResolutionReport is the outcome of a model resolution pass.
type ResolutionReport struct {
	Resolutions []Resolution          `json:"resolutions"`
	Misses      []ModelResolutionMiss `json:"misses"`
}

// ResolveModels matches every discovered model-identifier field against the
// server's inventory and overwrites matched fields in place. Matching tiers:
// exact key, exact name (preferring same model type), then unique base
// architecture. Unmatched fields are left untouched and reported as misses.
func (h *Handle) ResolveModels(ctx context.Context, inventory []schema.ModelRecord) (*ResolutionReport, error) {
	report := &ResolutionReport{}

	for _, in := range h.inputs {
		if err := ctx.Err(); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout, "model resolution interrupted: %v", err).WithCause(err)
		}

		mf, ok := in.Field.(*fields.ModelIdentifierField)
		if !ok {
			continue
		}

		prev := mf.Identity()
		rec, matchedBy, reason := matchModel(prev, inventory)
		if rec == nil {
			report.Misses = append(report.Misses, ModelResolutionMiss{
				InputIndex: in.Index,
				NodeID:     in.NodeID,
				FieldName:  in.FieldName,
				Identity:   prev,
				Reason:     reason,
			})
			h.logger.Debug("model unresolved",
				"input", in.Index, "node_id", in.NodeID, "name", prev.Name, "reason", reason)
			continue
		}

		mf.Adopt(*rec)
		report.Resolutions = append(report.Resolutions, Resolution{
			InputIndex: in.Index,
			NodeID:     in.NodeID,
			FieldName:  in.FieldName,
			Previous:   prev,
			Resolved:   *rec,
			MatchedBy:  matchedBy,
		})
		h.logger.Debug("model resolved",
			"input", in.Index, "node_id", in.NodeID,
			"name", rec.Name, "base", string(rec.Base), "matched_by", matchedBy)
	}
	return report, nil
}

// matchModel finds the inventory record for an identity. Returns the record
// and the tier that matched, or a miss reason.
func matchModel(id schema.ModelRecord, inventory []schema.ModelRecord) (*schema.ModelRecord, string, string) {
	if id.Key == "" && id.Name == "" && id.Base == "" {
		return nil, "", "field carries no key, name or base to match on"
	}

	if id.Key != "" {
		for i := range inventory {
			if inventory[i].Key == id.Key {
				return &inventory[i], "key", ""
			}
		}
	}

	if id.Name != "" {
		var byName []*schema.ModelRecord
		for i := range inventory {
			if inventory[i].Name == id.Name {
				byName = append(byName, &inventory[i])
			}
		}
		if len(byName) > 1 && id.Type != "" {
			var typed []*schema.ModelRecord
			for _, r := range byName {
				if r.Type == id.Type {
					typed = append(typed, r)
				}
			}
			if len(typed) > 0 {
				byName = typed
			}
		}
		if len(byName) > 0 {
			return byName[0], "name", ""
		}
	}

	if id.Base != "" && id.Base != schema.BaseAny {
		var byBase []*schema.ModelRecord
		for i := range inventory {
			if inventory[i].Base != id.Base {
				continue
			}
			if id.Type != "" && inventory[i].Type != id.Type {
				continue
			}
			byBase = append(byBase, &inventory[i])
		}
		switch len(byBase) {
		case 1:
			return byBase[0], "base", ""
		case 0:
			return nil, "", "no inventory entry for base " + string(id.Base)
		default:
			return nil, "", "base " + string(id.Base) + " is ambiguous in the inventory"
		}
	}

	return nil, "", "no inventory entry named " + id.Name
}

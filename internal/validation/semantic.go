package validation

import (
	"fmt"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// validateSemantic checks cross-references the JSON Schema cannot express:
// edge endpoints, form element links, exposed field targets.
func validateSemantic(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for i, n := range def.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if n.Data.ID != "" && n.Data.ID != n.ID {
			result.AddWarning(path+".data.id", schema.ErrCodeValidation,
				fmt.Sprintf("data id %q differs from node id %q", n.Data.ID, n.ID))
		}
		for name, in := range n.Data.Inputs {
			if in.Name != "" && in.Name != name {
				result.AddWarning(fmt.Sprintf("%s.inputs.%s", path, name), schema.ErrCodeValidation,
					fmt.Sprintf("input key %q disagrees with name %q", name, in.Name))
			}
		}
	}

	for i, e := range def.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if _, ok := def.Node(e.Source); !ok {
			result.AddError(path+".source", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", e.Source))
		}
		if _, ok := def.Node(e.Target); !ok {
			result.AddError(path+".target", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", e.Target))
		}
		if e.Type != "collapsed" && (e.SourceHandle == "" || e.TargetHandle == "") {
			result.AddWarning(path, schema.ErrCodeValidation, "edge has no field handles")
		}
	}

	if def.Form != nil {
		validateForm(def, result)
	}

	for i, fi := range def.ExposedFields {
		path := fmt.Sprintf("exposedFields[%d]", i)
		if _, ok := def.Input(fi); !ok {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent input %s", fi))
		}
	}

	return result
}

// validateForm checks the element table: the root container, child links and
// node-field targets.
func validateForm(def *schema.WorkflowDefinition, result *schema.ValidationResult) {
	elements := def.Form.Elements

	root, ok := elements[schema.FormRootID]
	if !ok {
		result.AddError("form.elements", schema.ErrCodeValidation, "form has no root element")
		return
	}
	if root.Type != schema.ElementTypeContainer {
		result.AddError("form.elements.root", schema.ErrCodeValidation,
			fmt.Sprintf("root element is %q, want container", root.Type))
	}

	for id, el := range elements {
		path := fmt.Sprintf("form.elements.%s", id)
		if el.ID != "" && el.ID != id {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("element key %q disagrees with id %q", id, el.ID))
		}

		switch el.Type {
		case schema.ElementTypeContainer:
			for j, child := range el.Data.Children {
				if _, ok := elements[child]; !ok {
					result.AddError(fmt.Sprintf("%s.children[%d]", path, j), schema.ErrCodeValidation,
						fmt.Sprintf("references non-existent element %q", child))
				}
			}
		case schema.ElementTypeNodeField:
			fi := el.Data.FieldIdentifier
			if fi == nil {
				result.AddError(path, schema.ErrCodeValidation, "node-field element has no field identifier")
				continue
			}
			node, ok := def.Node(fi.NodeID)
			if !ok {
				result.AddError(path+".fieldIdentifier", schema.ErrCodeValidation,
					fmt.Sprintf("references non-existent node %q", fi.NodeID))
				continue
			}
			if _, ok := node.Data.Inputs[fi.FieldName]; !ok {
				result.AddError(path+".fieldIdentifier", schema.ErrCodeValidation,
					fmt.Sprintf("node %q has no input %q", fi.NodeID, fi.FieldName))
			}
		}
	}
}

package fields

import (
	"sort"
	"sync"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Rule pairs a detection predicate with a builder. Higher priority rules are
// consulted first; rules at equal priority keep registration order, so the
// outcome for a given schema never depends on map iteration.
type Rule struct {
	Name     string
	Priority int
	Match    func(*FieldSchema) bool
	Build    func(*FieldSchema) (Field, error)
}

// RuleInfo is the listing view of a registered rule.
type RuleInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

type ruleEntry struct {
	Rule
	seq int
}

// Registry is the thread-safe rule table driving field detection.
type Registry struct {
	mu    sync.RWMutex
	rules []ruleEntry
	names map[string]bool
	next  int
}

// NewRegistry creates an empty Registry. Most callers want DefaultRegistry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// DefaultRegistry creates a Registry with the built-in detection ladder.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// Register adds a rule. Returns error on duplicate name or missing parts.
func (r *Registry) Register(rule Rule) error {
	if rule.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "rule name is empty")
	}
	if rule.Match == nil || rule.Build == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "rule %q needs both match and build", rule.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names[rule.Name] {
		return schema.NewErrorf(schema.ErrCodeConflict, "rule %q already registered", rule.Name)
	}

	r.names[rule.Name] = true
	r.rules = append(r.rules, ruleEntry{Rule: rule, seq: r.next})
	r.next++
	sort.SliceStable(r.rules, func(i, j int) bool {
		if r.rules[i].Priority != r.rules[j].Priority {
			return r.rules[i].Priority > r.rules[j].Priority
		}
		return r.rules[i].seq < r.rules[j].seq
	})
	return nil
}

// Detect returns the first matching rule for the schema.
func (r *Registry) Detect(fs *FieldSchema) (*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.rules {
		if r.rules[i].Match(fs) {
			rule := r.rules[i].Rule
			return &rule, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeUnrecognizedField,
		"no rule recognizes field %s.%s", fs.NodeID, fs.FieldName).
		WithNode(fs.NodeID).
		WithDetails(map[string]any{
			"field_name":    fs.FieldName,
			"node_type":     fs.NodeType,
			"declared_type": fs.DeclaredType,
		})
}

// Build detects and constructs the typed field for the schema.
func (r *Registry) Build(fs *FieldSchema) (Field, error) {
	rule, err := r.Detect(fs)
	if err != nil {
		return nil, err
	}
	f, err := rule.Build(fs)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Rules lists registered rules in consultation order.
func (r *Registry) Rules() []RuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]RuleInfo, 0, len(r.rules))
	for i := range r.rules {
		infos = append(infos, RuleInfo{Name: r.rules[i].Name, Priority: r.rules[i].Priority})
	}
	return infos
}

// Has checks if a rule is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[name]
}

// Count returns the number of registered rules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

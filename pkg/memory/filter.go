package memory

// FilterOp is a comparison operator usable in a leaf [Filter].
type FilterOp string

const (
	OpEq   FilterOp = "eq"
	OpNe   FilterOp = "ne"
	OpGte  FilterOp = "gte"
	OpGt   FilterOp = "gt"
	OpLte  FilterOp = "lte"
	OpLt   FilterOp = "lt"
	OpIn   FilterOp = "in"
	OpNin  FilterOp = "nin"
	OpLike FilterOp = "like"
)

// ColumnFields enumerates the fields resolvable without touching the
// metadata JSON blob. Any field name not in this set is a metadata key:
// the whole name is looked up as a top-level key of Metadata (a dotted
// name such as "a.b" is not split into a nested path).
var ColumnFields = map[string]bool{
	"id":         true,
	"user_id":    true,
	"agent_id":   true,
	"run_id":     true,
	"actor_id":   true,
	"scope":      true,
	"category":   true,
	"memory_type": true,
	"created_at": true,
	"updated_at": true,
}

// Filter is a node in the filter tree: either a leaf comparison or an
// internal AND/OR combinator. Exactly one of Field (leaf) or And/Or
// (internal) is set.
type Filter struct {
	// Leaf fields.
	Field string   `json:"field,omitempty"`
	Op    FilterOp `json:"op,omitempty"`
	Value any      `json:"value,omitempty"`

	// Internal fields.
	And []Filter `json:"and,omitempty"`
	Or  []Filter `json:"or,omitempty"`
}

// IsLeaf reports whether f is a comparison leaf rather than an AND/OR node.
func (f Filter) IsLeaf() bool {
	return f.Field != ""
}

// IsColumnField reports whether f's field resolves to a physical column
// rather than a metadata JSON path. Only meaningful for leaves.
func (f Filter) IsColumnField() bool {
	return ColumnFields[f.Field]
}

// Eq builds an equality leaf filter.
func Eq(field string, value any) Filter { return Filter{Field: field, Op: OpEq, Value: value} }

// OpFilter builds a leaf filter with an explicit operator.
func OpFilter(field string, op FilterOp, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// And combines filters with logical AND.
func And(filters ...Filter) Filter { return Filter{And: filters} }

// Or combines filters with logical OR.
func Or(filters ...Filter) Filter { return Filter{Or: filters} }

// Walk calls fn for every leaf in the filter tree, depth-first.
func (f Filter) Walk(fn func(Filter)) {
	if f.IsLeaf() {
		fn(f)
		return
	}
	for _, c := range f.And {
		c.Walk(fn)
	}
	for _, c := range f.Or {
		c.Walk(fn)
	}
}

// OnlyColumnFields reports whether every leaf in the tree resolves to a
// column field — a precondition for the Hybrid Query Planner's native path
// (spec §4.4 eligibility rule 4).
func (f Filter) OnlyColumnFields() bool {
	ok := true
	f.Walk(func(leaf Filter) {
		if !leaf.IsColumnField() {
			ok = false
		}
	})
	return ok
}

// OwnerVisibilityFilter builds the filter tree equivalent of spec invariant
// I5: a read scoped to owner matches records with the exact owner tuple, or
// PUBLIC records, or AGENT_GROUP/USER_GROUP records sharing the matching id.
// Every leaf it produces resolves to a column field, so composing it with a
// caller filter never disqualifies the Hybrid Query Planner's native path.
func OwnerVisibilityFilter(owner Owner) Filter {
	if owner.Empty() {
		return Filter{}
	}

	var exactParts []Filter
	if owner.UserID != "" {
		exactParts = append(exactParts, Eq("user_id", owner.UserID))
	}
	if owner.AgentID != "" {
		exactParts = append(exactParts, Eq("agent_id", owner.AgentID))
	}
	if owner.RunID != "" {
		exactParts = append(exactParts, Eq("run_id", owner.RunID))
	}
	if owner.ActorID != "" {
		exactParts = append(exactParts, Eq("actor_id", owner.ActorID))
	}

	clauses := []Filter{And(exactParts...), Eq("scope", string(ScopePublic))}
	if owner.AgentID != "" {
		clauses = append(clauses, And(Eq("scope", string(ScopeAgentGroup)), Eq("agent_id", owner.AgentID)))
	}
	if owner.UserID != "" {
		clauses = append(clauses, And(Eq("scope", string(ScopeUserGroup)), Eq("user_id", owner.UserID)))
	}
	return Or(clauses...)
}

// WithFilter ANDs an identity-visibility filter with an additional caller
// filter; either side may be the zero Filter, in which case it is dropped.
func WithFilter(base, extra Filter) Filter {
	switch {
	case base.Field == "" && len(base.And) == 0 && len(base.Or) == 0:
		return extra
	case extra.Field == "" && len(extra.And) == 0 && len(extra.Or) == 0:
		return base
	default:
		return And(base, extra)
	}
}

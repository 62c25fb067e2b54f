package postgres

import (
	"fmt"
	"strings"

	"github.com/powermem-ai/powermem/pkg/memory"
)

// argList accumulates positional query arguments and renders "$N" refs for
// each new value added, mirroring the closure-based builder already used by
// this package's hand-rolled queries.
type argList struct {
	args []any
}

func (a *argList) next(v any) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d", len(a.args))
}

// buildWhere renders filter as a SQL boolean expression against the
// memories table, appending bind values to a. Column fields map straight to
// their column name; anything else is resolved as a metadata JSON path
// through the `metadata` JSONB column (spec §4.3 filter language).
func buildWhere(filter memory.Filter, a *argList) (string, error) {
	if !filter.IsLeaf() {
		if len(filter.And) > 0 {
			return joinClauses(filter.And, " AND ", a)
		}
		if len(filter.Or) > 0 {
			return joinClauses(filter.Or, " OR ", a)
		}
		return "TRUE", nil
	}

	col, isColumn := resolveColumn(filter.Field)
	if isColumn {
		return columnClause(col, filter, a)
	}
	return metadataClause(filter, a)
}

func joinClauses(nodes []memory.Filter, sep string, a *argList) (string, error) {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		clause, err := buildWhere(n, a)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+clause+")")
	}
	return strings.Join(parts, sep), nil
}

// resolveColumn maps a filter field name to its physical column, if any.
func resolveColumn(field string) (string, bool) {
	if !memory.ColumnFields[field] {
		return "", false
	}
	switch field {
	case "user_id", "agent_id", "run_id", "actor_id", "id", "scope", "category", "memory_type", "created_at", "updated_at":
		return field, true
	default:
		return "", false
	}
}

func columnClause(col string, f memory.Filter, a *argList) (string, error) {
	switch f.Op {
	case memory.OpEq, "":
		return fmt.Sprintf("%s = %s", col, a.next(f.Value)), nil
	case memory.OpNe:
		return fmt.Sprintf("%s != %s", col, a.next(f.Value)), nil
	case memory.OpGte:
		return fmt.Sprintf("%s >= %s", col, a.next(f.Value)), nil
	case memory.OpGt:
		return fmt.Sprintf("%s > %s", col, a.next(f.Value)), nil
	case memory.OpLte:
		return fmt.Sprintf("%s <= %s", col, a.next(f.Value)), nil
	case memory.OpLt:
		return fmt.Sprintf("%s < %s", col, a.next(f.Value)), nil
	case memory.OpIn:
		return fmt.Sprintf("%s = ANY(%s)", col, a.next(f.Value)), nil
	case memory.OpNin:
		return fmt.Sprintf("NOT (%s = ANY(%s))", col, a.next(f.Value)), nil
	case memory.OpLike:
		return fmt.Sprintf("%s LIKE %s", col, a.next(f.Value)), nil
	default:
		return "", fmt.Errorf("postgres: unsupported filter op %q", f.Op)
	}
}

// metadataClause resolves a non-column field through the metadata JSONB
// blob, comparing as text. Numeric operators cast the extracted value.
func metadataClause(f memory.Filter, a *argList) (string, error) {
	path := fmt.Sprintf("metadata->>'%s'", strings.ReplaceAll(f.Field, "'", ""))
	switch f.Op {
	case memory.OpEq, "":
		return fmt.Sprintf("%s = %s", path, a.next(fmt.Sprint(f.Value))), nil
	case memory.OpNe:
		return fmt.Sprintf("%s != %s", path, a.next(fmt.Sprint(f.Value))), nil
	case memory.OpLike:
		return fmt.Sprintf("%s LIKE %s", path, a.next(fmt.Sprint(f.Value))), nil
	case memory.OpGte, memory.OpGt, memory.OpLte, memory.OpLt:
		op := map[memory.FilterOp]string{
			memory.OpGte: ">=", memory.OpGt: ">", memory.OpLte: "<=", memory.OpLt: "<",
		}[f.Op]
		return fmt.Sprintf("(%s)::numeric %s %s", path, op, a.next(f.Value)), nil
	case memory.OpIn:
		return fmt.Sprintf("%s = ANY(%s)", path, a.next(f.Value)), nil
	case memory.OpNin:
		return fmt.Sprintf("NOT (%s = ANY(%s))", path, a.next(f.Value)), nil
	default:
		return "", fmt.Errorf("postgres: unsupported filter op %q", f.Op)
	}
}

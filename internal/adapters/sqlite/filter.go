package sqlite

import (
	"fmt"
	"strings"

	"github.com/example/casenotes/internal/db"
	"github.com/example/casenotes/internal/ports/secondary"
)

// compile translates a predicate into a parameterised WHERE clause over the
// case_notes table aliased as n.
func compile(pred secondary.Predicate) (string, []any, error) {
	if pred == nil {
		return "1=1", nil, nil
	}

	switch p := pred.(type) {
	case secondary.PersonIs:
		return "n.person_identifier = ?", []any{p.PersonIdentifier}, nil

	case secondary.CategoryIs:
		return "(n.type_code = ? AND n.sub_type_code = ?)", []any{p.Key.Type, p.Key.SubType}, nil

	case secondary.OriginIs:
		return "n.origin = ?", []any{string(p.Origin)}, nil

	case secondary.IDIn:
		if len(p.IDs) == 0 {
			return "1=0", nil, nil
		}
		args := make([]any, len(p.IDs))
		for i, id := range p.IDs {
			args[i] = id
		}
		return "n.id IN (" + placeholders(len(p.IDs)) + ")", args, nil

	case secondary.LegacyIDIn:
		if len(p.LegacyIDs) == 0 {
			return "1=0", nil, nil
		}
		args := make([]any, len(p.LegacyIDs))
		for i, id := range p.LegacyIDs {
			args[i] = id
		}
		return "n.legacy_id IN (" + placeholders(len(p.LegacyIDs)) + ")", args, nil

	case secondary.OccurredBetween:
		var clauses []string
		var args []any
		if !p.From.IsZero() {
			clauses = append(clauses, "n.occurred_at >= ?")
			args = append(args, db.FormatTime(p.From))
		}
		if !p.To.IsZero() {
			clauses = append(clauses, "n.occurred_at < ?")
			args = append(args, db.FormatTime(p.To))
		}
		if len(clauses) == 0 {
			return "1=1", nil, nil
		}
		return "(" + strings.Join(clauses, " AND ") + ")", args, nil

	case secondary.AllOf:
		return join(p.Predicates, " AND ", "1=1")

	case secondary.AnyOf:
		return join(p.Predicates, " OR ", "1=0")

	default:
		return "", nil, fmt.Errorf("unsupported predicate %T", pred)
	}
}

func join(preds []secondary.Predicate, op, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	clauses := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		clause, a, err := compile(p)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, a...)
	}
	return "(" + strings.Join(clauses, op) + ")", args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

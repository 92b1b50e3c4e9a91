package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/ports/secondary"
)

// CategoryRepository implements secondary.CategoryRegistry with SQLite.
type CategoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new SQLite category repository.
func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Find resolves the given keys to active categories.
func (r *CategoryRepository) Find(ctx context.Context, keys []casenote.CategoryKey) (map[casenote.CategoryKey]*secondary.CategoryRecord, error) {
	result := make(map[casenote.CategoryKey]*secondary.CategoryRecord, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		clauses = append(clauses, "(s.type_code = ? AND s.code = ?)")
		args = append(args, k.Type, k.SubType)
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT t.code, t.description, s.code, s.description, s.sync_to_legacy, s.restricted_use, s.sensitive
		FROM note_sub_types s
		JOIN note_types t ON t.code = s.type_code
		WHERE t.active = 1 AND s.active = 1 AND (`+strings.Join(clauses, " OR ")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c secondary.CategoryRecord
		if err := rows.Scan(&c.Type, &c.TypeDescription, &c.SubType, &c.SubTypeDescription,
			&c.SyncToLegacy, &c.RestrictedUse, &c.Sensitive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		result[casenote.CategoryKey{Type: c.Type, SubType: c.SubType}] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return result, nil
}

// Ensure CategoryRepository implements the interface
var _ secondary.CategoryRegistry = (*CategoryRepository)(nil)

package sqlite_test

import (
	"context"
	"testing"

	"github.com/example/casenotes/internal/adapters/sqlite"
	"github.com/example/casenotes/internal/core/casenote"
)

func TestCategoryRepository_Find(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCategoryRepository(db)
	ctx := context.Background()

	general := casenote.CategoryKey{Type: "GEN", SubType: "OSE"}
	omic := casenote.CategoryKey{Type: "OMIC", SubType: "GEN"}
	unknown := casenote.CategoryKey{Type: "NOPE", SubType: "NOPE"}

	found, err := repo.Find(ctx, []casenote.CategoryKey{general, omic, unknown})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	if len(found) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(found))
	}
	if _, ok := found[unknown]; ok {
		t.Error("expected unknown category to be absent")
	}

	gen := found[general]
	if gen == nil || !gen.SyncToLegacy || gen.TypeDescription != "General" {
		t.Errorf("unexpected GEN/OSE descriptor: %+v", gen)
	}

	om := found[omic]
	if om == nil || om.SyncToLegacy || !om.RestrictedUse || !om.Sensitive {
		t.Errorf("unexpected OMIC/GEN descriptor: %+v", om)
	}
	if info := om.Info(); info.Key != omic || !info.RestrictedUse {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestCategoryRepository_Find_InactiveExcluded(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCategoryRepository(db)
	ctx := context.Background()

	if _, err := db.Exec("UPDATE note_sub_types SET active = 0 WHERE type_code = 'GEN' AND code = 'HIS'"); err != nil {
		t.Fatalf("failed to deactivate: %v", err)
	}

	found, err := repo.Find(ctx, []casenote.CategoryKey{{Type: "GEN", SubType: "HIS"}})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected inactive category to be absent, got %+v", found)
	}
}

func TestCategoryRepository_Find_Empty(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCategoryRepository(db)

	found, err := repo.Find(context.Background(), nil)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected empty result, got %d", len(found))
	}
}

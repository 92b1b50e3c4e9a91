package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/casenotes/internal/adapters/sqlite"
	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/secondary"
)

func TestCaseNoteRepository_Create_AssignsLegacyIDForDPS(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	first := newNote("note-1", "A1234AA", casenote.OriginDPS)
	second := newNote("note-2", "A1234AA", casenote.OriginDPS)

	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if first.LegacyID != 1000000000 {
		t.Errorf("expected first legacy id 1000000000, got %d", first.LegacyID)
	}
	if second.LegacyID != first.LegacyID+1 {
		t.Errorf("expected sequential legacy id, got %d after %d", second.LegacyID, first.LegacyID)
	}
	if first.Version != 1 {
		t.Errorf("expected version 1, got %d", first.Version)
	}

	got, err := repo.GetByLegacyID(ctx, second.LegacyID)
	if err != nil {
		t.Fatalf("GetByLegacyID failed: %v", err)
	}
	if got.ID != "note-2" {
		t.Errorf("expected note-2, got %s", got.ID)
	}
}

func TestCaseNoteRepository_Create_LegacyKeepsSuppliedID(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	note := newNote("note-1", "A1234AA", casenote.OriginLegacy)
	note.LegacyID = 42
	if err := repo.Create(ctx, note); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if note.LegacyID != 42 {
		t.Errorf("expected legacy id 42, got %d", note.LegacyID)
	}

	dup := newNote("note-2", "A1234AA", casenote.OriginLegacy)
	dup.LegacyID = 42
	err := repo.Create(ctx, dup)
	if errs.CodeOf(err) != errs.IdentifierConflict {
		t.Fatalf("expected IDENTIFIER_CONFLICT, got %v", err)
	}

	// The failed create left nothing behind.
	if _, err := repo.GetByID(ctx, "note-2"); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND for note-2, got %v", err)
	}
}

func TestCaseNoteRepository_Create_LegacyWithoutIDStaysNull(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	note := seedCaseNote(t, db, newNote("note-1", "A1234AA", casenote.OriginLegacy))
	if note.LegacyID != 0 {
		t.Errorf("expected no legacy id, got %d", note.LegacyID)
	}

	got, err := repo.GetByID(ctx, "note-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.LegacyID != 0 {
		t.Errorf("expected stored legacy id to be empty, got %d", got.LegacyID)
	}
}

func TestCaseNoteRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	note := newNote("note-1", "A1234AA", casenote.OriginLegacy)
	note.LegacyID = 7
	note.SystemGenerated = true
	note.Amendments = []*secondary.AmendmentRecord{
		{ID: "am-2", AuthorUsername: "ABROWN", AuthorID: "1002", AuthorName: "Alice Brown", Text: "second", CreatedAt: baseTime.Add(2 * time.Hour), CreatedBy: "ABROWN"},
		{ID: "am-1", AuthorUsername: "JSMITH", AuthorID: "1001", AuthorName: "John Smith", Text: "first", CreatedAt: baseTime.Add(time.Hour), CreatedBy: "JSMITH"},
	}
	seedCaseNote(t, db, note)

	got, err := repo.GetByID(ctx, "note-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.PersonIdentifier != "A1234AA" || got.Type != "GEN" || got.SubType != "OSE" {
		t.Errorf("unexpected note identity: %+v", got)
	}
	if !got.OccurredAt.Equal(baseTime) {
		t.Errorf("expected occurredAt %v, got %v", baseTime, got.OccurredAt)
	}
	if !got.SystemGenerated {
		t.Error("expected systemGenerated to round-trip")
	}
	if got.Origin != casenote.OriginLegacy {
		t.Errorf("expected origin LEGACY, got %s", got.Origin)
	}
	if !got.LastModifiedAt.IsZero() {
		t.Errorf("expected no last modified stamp, got %v", got.LastModifiedAt)
	}
	if len(got.Amendments) != 2 {
		t.Fatalf("expected 2 amendments, got %d", len(got.Amendments))
	}
	if got.Amendments[0].ID != "am-1" || got.Amendments[1].ID != "am-2" {
		t.Errorf("expected amendments oldest first, got %s, %s", got.Amendments[0].ID, got.Amendments[1].ID)
	}
}

func TestCaseNoteRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	_, err = repo.GetByLegacyID(context.Background(), 99)
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestCaseNoteRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	seedCaseNote(t, db, newNote("note-1", "A1234AA", casenote.OriginLegacy))

	note, err := repo.GetByID(ctx, "note-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	note.Text = "Updated text"
	note.SubType = "HIS"
	note.LastModifiedAt = baseTime.Add(time.Hour)
	note.LastModifiedBy = "ABROWN"
	note.CreatedBy = "SOMEONE_ELSE"

	if err := repo.Update(ctx, note); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if note.Version != 2 {
		t.Errorf("expected version 2 after update, got %d", note.Version)
	}

	got, err := repo.GetByID(ctx, "note-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Text != "Updated text" || got.SubType != "HIS" {
		t.Errorf("expected updated fields, got %q %s", got.Text, got.SubType)
	}
	if got.CreatedBy != "JSMITH" {
		t.Errorf("expected createdBy to be immutable, got %s", got.CreatedBy)
	}
	if got.LastModifiedBy != "ABROWN" || !got.LastModifiedAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("unexpected last modified stamp: %s at %v", got.LastModifiedBy, got.LastModifiedAt)
	}
}

func TestCaseNoteRepository_Update_StaleVersion(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	seedCaseNote(t, db, newNote("note-1", "A1234AA", casenote.OriginLegacy))

	a, _ := repo.GetByID(ctx, "note-1")
	b, _ := repo.GetByID(ctx, "note-1")

	a.Text = "first writer"
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	b.Text = "second writer"
	err := repo.Update(ctx, b)
	if !errs.Is(err, errs.ConcurrentModification) {
		t.Fatalf("expected CONCURRENT_MODIFICATION, got %v", err)
	}
	if !errs.CodeOf(err).Retryable() {
		t.Error("expected concurrent modification to be retryable")
	}

	missing := newNote("missing", "A1234AA", casenote.OriginLegacy)
	if err := repo.Update(ctx, missing); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestCaseNoteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	note := newNote("note-1", "A1234AA", casenote.OriginLegacy)
	note.Amendments = []*secondary.AmendmentRecord{
		{ID: "am-1", AuthorUsername: "JSMITH", AuthorID: "1001", AuthorName: "John Smith", Text: "first", CreatedAt: baseTime, CreatedBy: "JSMITH"},
	}
	seedCaseNote(t, db, note)

	if err := repo.Delete(ctx, "note-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := repo.GetByID(ctx, "note-1"); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM case_note_amendments").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected amendments removed, got %d", count)
	}

	if err := repo.Delete(ctx, "note-1"); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NOT_FOUND on second delete, got %v", err)
	}
}

func TestCaseNoteRepository_Amendments(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	seedCaseNote(t, db, newNote("note-1", "A1234AA", casenote.OriginLegacy))

	added := []*secondary.AmendmentRecord{
		{AuthorUsername: "JSMITH", AuthorID: "1001", AuthorName: "John Smith", Text: "first", CreatedAt: baseTime, CreatedBy: "JSMITH"},
		{AuthorUsername: "ABROWN", AuthorID: "1002", AuthorName: "Alice Brown", Text: "second", CreatedAt: baseTime.Add(time.Minute), CreatedBy: "ABROWN"},
	}
	if err := repo.AddAmendments(ctx, "note-1", added); err != nil {
		t.Fatalf("AddAmendments failed: %v", err)
	}
	if added[0].ID == "" || added[0].CaseNoteID != "note-1" {
		t.Errorf("expected generated id and note id, got %+v", added[0])
	}

	replacement := []*secondary.AmendmentRecord{
		{ID: added[1].ID, AuthorUsername: "ABROWN", AuthorID: "1002", AuthorName: "Alice Brown", Text: "edited", CreatedAt: added[1].CreatedAt, CreatedBy: "ABROWN"},
	}
	if err := repo.ReplaceAmendments(ctx, "note-1", replacement); err != nil {
		t.Fatalf("ReplaceAmendments failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "note-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(got.Amendments) != 1 {
		t.Fatalf("expected 1 amendment, got %d", len(got.Amendments))
	}
	if got.Amendments[0].ID != added[1].ID || got.Amendments[0].Text != "edited" {
		t.Errorf("unexpected amendment: %+v", got.Amendments[0])
	}
}

func TestCaseNoteRepository_Find(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	ctx := context.Background()

	n1 := newNote("note-1", "A1234AA", casenote.OriginLegacy)
	n2 := newNote("note-2", "A1234AA", casenote.OriginDPS)
	n2.OccurredAt = baseTime.Add(48 * time.Hour)
	n3 := newNote("note-3", "A1234AA", casenote.OriginLegacy)
	n3.Type, n3.SubType = "ALERT", "ACTIVE"
	n3.OccurredAt = baseTime.Add(24 * time.Hour)
	n4 := newNote("note-4", "B5678BB", casenote.OriginLegacy)
	for _, n := range []*secondary.CaseNoteRecord{n1, n2, n3, n4} {
		seedCaseNote(t, db, n)
	}

	tests := []struct {
		name string
		pred secondary.Predicate
		want []string
	}{
		{"nil matches all", nil, []string{"note-1", "note-4", "note-3", "note-2"}},
		{"by person", secondary.PersonIs{PersonIdentifier: "A1234AA"}, []string{"note-1", "note-3", "note-2"}},
		{
			"person and origin",
			secondary.And(secondary.PersonIs{PersonIdentifier: "A1234AA"}, secondary.OriginIs{Origin: casenote.OriginLegacy}),
			[]string{"note-1", "note-3"},
		},
		{
			"person and category",
			secondary.And(secondary.PersonIs{PersonIdentifier: "A1234AA"}, secondary.CategoryIs{Key: casenote.CategoryKey{Type: "ALERT", SubType: "ACTIVE"}}),
			[]string{"note-3"},
		},
		{
			"half-open date range",
			secondary.And(secondary.PersonIs{PersonIdentifier: "A1234AA"}, secondary.OccurredBetween{From: baseTime.Add(24 * time.Hour), To: baseTime.Add(48 * time.Hour)}),
			[]string{"note-3"},
		},
		{"open upper bound", secondary.OccurredBetween{From: baseTime.Add(time.Hour)}, []string{"note-3", "note-2"}},
		{"id set", secondary.IDIn{IDs: []string{"note-2", "note-4", "nope"}}, []string{"note-4", "note-2"}},
		{"empty id set", secondary.IDIn{}, nil},
		{"legacy id set", secondary.LegacyIDIn{LegacyIDs: []int64{1000000000, 77}}, []string{"note-2"}},
		{
			"any of",
			secondary.Or(secondary.PersonIs{PersonIdentifier: "B5678BB"}, secondary.OriginIs{Origin: casenote.OriginDPS}),
			[]string{"note-4", "note-2"},
		},
		{"empty any of", secondary.Or(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Find(ctx, tt.pred)
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			var ids []string
			for _, n := range got {
				ids = append(ids, n.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, ids)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, ids)
					break
				}
			}
		})
	}
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCaseNoteRepository(db)
	archive := sqlite.NewArchiveRepository(db)
	tx := sqlite.NewTransactor(db)
	ctx := context.Background()

	seedCaseNote(t, db, newNote("note-1", "A1234AA", casenote.OriginLegacy))

	boom := errors.New("boom")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		note, err := repo.GetByID(ctx, "note-1")
		if err != nil {
			return err
		}
		if err := archive.Archive(ctx, &secondary.DeletedCaseNoteRecord{
			CaseNoteID:       note.ID,
			PersonIdentifier: note.PersonIdentifier,
			Cause:            casenote.CauseDelete,
			Origin:           note.Origin,
			DeletedBy:        "ADMIN",
			DeletedAt:        baseTime,
			Snapshot:         note,
		}); err != nil {
			return err
		}
		if err := repo.Delete(ctx, note.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := repo.GetByID(ctx, "note-1"); err != nil {
		t.Errorf("expected note to survive rollback, got %v", err)
	}
	history, err := archive.ListByCaseNote(ctx, "note-1")
	if err != nil {
		t.Fatalf("ListByCaseNote failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected no archive rows after rollback, got %d", len(history))
	}
}

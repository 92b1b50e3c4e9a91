// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Instead, use
// setupTestDB() and the seed* helpers.
package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/casenotes/internal/adapters/sqlite"
	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/db"
	"github.com/example/casenotes/internal/ports/secondary"
)

var baseTime = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

// setupTestDB creates an in-memory database with the authoritative schema
// and the category reference data.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// A second connection would see a different in-memory database.
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	// Use the authoritative schema from schema.go
	if _, err := testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	if err := db.SeedCategories(context.Background(), testDB); err != nil {
		t.Fatalf("failed to seed categories: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// newNote builds a valid note record for person in GEN/OSE.
func newNote(id, person string, origin casenote.Origin) *secondary.CaseNoteRecord {
	return &secondary.CaseNoteRecord{
		ID:               id,
		PersonIdentifier: person,
		Type:             "GEN",
		SubType:          "OSE",
		OccurredAt:       baseTime,
		LocationCode:     "MDI",
		AuthorUsername:   "JSMITH",
		AuthorID:         "1001",
		AuthorName:       "John Smith",
		Text:             "Discussed education goals.",
		Origin:           origin,
		CreatedAt:        baseTime,
		CreatedBy:        "JSMITH",
	}
}

// seedCaseNote inserts a note through the repository and returns it.
func seedCaseNote(t *testing.T, testDB *sql.DB, note *secondary.CaseNoteRecord) *secondary.CaseNoteRecord {
	t.Helper()
	repo := sqlite.NewCaseNoteRepository(testDB)
	if err := repo.Create(context.Background(), note); err != nil {
		t.Fatalf("failed to seed case note %s: %v", note.ID, err)
	}
	return note
}

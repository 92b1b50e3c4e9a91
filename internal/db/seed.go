package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type seedType struct {
	code, description string
}

type seedSubType struct {
	typeCode, code, description     string
	syncToLegacy, restricted, secure bool
}

var seedTypes = []seedType{
	{"GEN", "General"},
	{"ACP", "Accredited Programme"},
	{"ALERT", "Alert"},
	{"OMIC", "OMiC"},
	{"POS", "Positive Behaviour"},
}

var seedSubTypes = []seedSubType{
	{"GEN", "OSE", "Objective setting", true, false, false},
	{"GEN", "HIS", "History", true, false, false},
	{"ACP", "ASSESS", "Assessment", true, false, false},
	{"ALERT", "ACTIVE", "Made active", true, false, false},
	{"ALERT", "INACTIVE", "Made inactive", true, false, false},
	{"OMIC", "GEN", "General", false, true, true},
	{"POS", "IEP_ENC", "Incentive encouragement", false, false, false},
}

// SeedCategories loads the category registry reference data. Re-running it
// leaves existing rows untouched.
func SeedCategories(ctx context.Context, database Execer) error {
	for _, t := range seedTypes {
		if _, err := database.ExecContext(ctx,
			"INSERT OR IGNORE INTO note_types (code, description, active) VALUES (?, ?, 1)",
			t.code, t.description,
		); err != nil {
			return fmt.Errorf("seed note_types: %w", err)
		}
	}

	for _, s := range seedSubTypes {
		if _, err := database.ExecContext(ctx,
			`INSERT OR IGNORE INTO note_sub_types
				(type_code, code, description, active, sync_to_legacy, restricted_use, sensitive)
			VALUES (?, ?, ?, 1, ?, ?, ?)`,
			s.typeCode, s.code, s.description, s.syncToLegacy, s.restricted, s.secure,
		); err != nil {
			return fmt.Errorf("seed note_sub_types: %w", err)
		}
	}

	return nil
}

// SeedFixtures populates the database with development fixtures: a handful
// of DPS and legacy notes for two persons. Re-running it is a no-op.
func SeedFixtures(ctx context.Context, database Execer) error {
	base := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

	notes := []struct {
		id       string
		legacyID int64
		person   string
		typ, sub string
		origin   string
		text     string
		offset   time.Duration
	}{
		{"01900000-0000-7000-8000-000000000001", 5001, "A1234AA", "GEN", "OSE", "LEGACY", "Discussed education goals.", 0},
		{"01900000-0000-7000-8000-000000000002", 5002, "A1234AA", "GEN", "HIS", "LEGACY", "Transferred from HMP Leeds.", 2 * time.Hour},
		{"01900000-0000-7000-8000-000000000003", 1000000000, "A1234AA", "OMIC", "GEN", "DPS", "Key worker session.", 24 * time.Hour},
		{"01900000-0000-7000-8000-000000000004", 5003, "B5678BB", "ACP", "ASSESS", "LEGACY", "Programme suitability assessed.", 48 * time.Hour},
	}

	for _, n := range notes {
		at := FormatTime(base.Add(n.offset))
		if _, err := database.ExecContext(ctx,
			`INSERT OR IGNORE INTO case_notes
				(id, legacy_id, person_identifier, type_code, sub_type_code, occurred_at, location_code,
				 author_username, author_id, author_name, text, system_generated, origin, created_at, created_by, version)
			VALUES (?, ?, ?, ?, ?, ?, 'MDI', 'JSMITH', '1001', 'John Smith', ?, 0, ?, ?, 'JSMITH', 1)`,
			n.id, n.legacyID, n.person, n.typ, n.sub, at, n.text, n.origin, at,
		); err != nil {
			return fmt.Errorf("seed case_notes: %w", err)
		}
	}

	if _, err := database.ExecContext(ctx,
		`INSERT OR IGNORE INTO case_note_amendments
			(id, case_note_id, author_username, author_id, author_name, text, created_at, created_by)
		VALUES (?, ?, 'ABROWN', '1002', 'Alice Brown', 'Follow-up booked.', ?, 'ABROWN')`,
		"01900000-0000-7000-8000-0000000000a1", "01900000-0000-7000-8000-000000000001", FormatTime(base.Add(time.Hour)),
	); err != nil {
		return fmt.Errorf("seed case_note_amendments: %w", err)
	}

	// Keep the DPS sequence ahead of the fixture that used its first value.
	if _, err := database.ExecContext(ctx,
		"UPDATE legacy_id_sequence SET next_value = MAX(next_value, 1000000001) WHERE id = 1",
	); err != nil {
		return fmt.Errorf("seed legacy_id_sequence: %w", err)
	}

	return nil
}

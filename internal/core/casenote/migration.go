package casenote

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// FingerprintAmendment is the amendment content that takes part in a fingerprint.
type FingerprintAmendment struct {
	AuthorUsername string
	AuthorID       string
	AuthorName     string
	Text           string
	CreatedAt      time.Time
	CreatedBy      string
}

// FingerprintInput is the note content compared by migration to decide
// whether a resent legacy record is unchanged.
type FingerprintInput struct {
	PersonIdentifier string
	Type             string
	SubType          string
	OccurredAt       time.Time
	LocationCode     string
	AuthorUsername   string
	AuthorID         string
	AuthorName       string
	Text             string
	SystemGenerated  bool
	CreatedAt        time.Time
	CreatedBy        string
	Amendments       []FingerprintAmendment
}

// Fingerprint returns a stable digest of the note content. Times are
// normalised to UTC so equal instants hash equally regardless of zone.
func Fingerprint(in FingerprintInput) string {
	in.OccurredAt = in.OccurredAt.UTC()
	in.CreatedAt = in.CreatedAt.UTC()
	amendments := make([]FingerprintAmendment, len(in.Amendments))
	for i, a := range in.Amendments {
		a.CreatedAt = a.CreatedAt.UTC()
		amendments[i] = a
	}
	in.Amendments = amendments

	// json.Marshal of a plain struct cannot fail.
	data, _ := json.Marshal(in)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ExistingNote is a stored note of the person being migrated.
type ExistingNote struct {
	ID          string
	LegacyID    int64
	Origin      Origin
	Fingerprint string
}

// IncomingNote is one record of a migration batch.
type IncomingNote struct {
	LegacyID    int64
	Fingerprint string
}

// MigrationPlan describes how to replace a person's legacy-origin history.
type MigrationPlan struct {
	// Keep maps an incoming index to the id of a note left untouched.
	Keep map[int]string
	// Create lists incoming indices to insert, in input order.
	Create []int
	// Delete lists legacy-origin note ids to remove, in stored order.
	Delete []string
}

// PlanMigration computes the replace-all plan. This is a pure function -
// all existing notes must be pre-fetched by the caller.
// Rules:
// - A legacy-origin note whose legacy id is resent unchanged is kept (no id churn)
// - A DPS-origin note is never touched; a resent legacy id that names one maps to it
// - Every other legacy-origin note is deleted and incoming records are created
func PlanMigration(existing []ExistingNote, incoming []IncomingNote) MigrationPlan {
	plan := MigrationPlan{Keep: make(map[int]string)}

	byLegacyID := make(map[int64]ExistingNote, len(existing))
	for _, e := range existing {
		if e.LegacyID != 0 {
			byLegacyID[e.LegacyID] = e
		}
	}

	kept := make(map[string]bool)
	for i, in := range incoming {
		e, ok := byLegacyID[in.LegacyID]
		switch {
		case ok && e.Origin == OriginDPS:
			plan.Keep[i] = e.ID
		case ok && e.Fingerprint == in.Fingerprint && !kept[e.ID]:
			plan.Keep[i] = e.ID
			kept[e.ID] = true
		default:
			plan.Create = append(plan.Create, i)
		}
	}

	for _, e := range existing {
		if e.Origin == OriginLegacy && !kept[e.ID] {
			plan.Delete = append(plan.Delete, e.ID)
		}
	}
	return plan
}

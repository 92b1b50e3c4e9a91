package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/primary"
	"github.com/example/casenotes/internal/ports/secondary"
)

const (
	noteA1 = "0190a1b2-0000-7000-8000-0000000002a1"
	amendX = "0190a1b2-0000-7000-8000-0000000002b1"
	amendY = "0190a1b2-0000-7000-8000-0000000002b2"
	amendZ = "0190a1b2-0000-7000-8000-0000000002b3"
)

type adminFixture struct {
	service   *AdminServiceImpl
	notes     *mockCaseNoteRepository
	archive   *mockArchive
	events    *mockEventPublisher
	telemetry *mockTelemetry
}

func newAdminFixture() *adminFixture {
	notes := newMockCaseNoteRepository()
	archive := newMockArchive()
	events := newMockEventPublisher()
	telemetry := newMockTelemetry()
	tx := newMockTransactor(notes, archive, events)
	return &adminFixture{
		service:   NewAdminService(tx, notes, archive, newMockCategoryRegistry(), events, telemetry, testLogger()),
		notes:     notes,
		archive:   archive,
		events:    events,
		telemetry: telemetry,
	}
}

func amendedNote() *secondary.CaseNoteRecord {
	note := storedNote(noteA1, 9001, "A1234AA", casenote.OriginLegacy)
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{amendX, amendY, amendZ} {
		note.Amendments = append(note.Amendments, &secondary.AmendmentRecord{
			ID:             id,
			CaseNoteID:     noteA1,
			AuthorUsername: "JSMITH",
			AuthorID:       "1001",
			AuthorName:     "John Smith",
			Text:           "Amendment " + id[len(id)-2:],
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
			CreatedBy:      "JSMITH",
		})
	}
	return note
}

func replaceRequest() primary.ReplaceRequest {
	return primary.ReplaceRequest{
		Type:       "GEN",
		SubType:    "HIS",
		Text:       "Redacted.",
		OccurredAt: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		Reason:     "Contained third-party data",
	}
}

func TestReplace_OverwritesAndArchives(t *testing.T) {
	f := newAdminFixture()
	original := amendedNote()
	f.notes.put(original)

	req := replaceRequest()
	req.Amendments = []primary.AmendmentEdit{
		{ID: amendZ, Text: "Z edited"},
		{ID: amendX, Text: "X edited"},
	}

	got, err := f.service.Replace(context.Background(), dpsActor(), noteA1, req)

	require.NoError(t, err)
	assert.Equal(t, noteA1, got.ID)
	assert.Equal(t, int64(9001), got.LegacyID)
	assert.Equal(t, "HIS", got.SubType)
	assert.Equal(t, "Redacted.", got.Text)
	assert.Equal(t, "LEGACY", got.Origin, "origin survives a replace")
	assert.Equal(t, original.CreatedAt, got.CreatedAt)
	assert.Equal(t, original.CreatedBy, got.CreatedBy)
	require.NotNil(t, got.LastModifiedAt)
	assert.Equal(t, "ADMIN1", got.LastModifiedBy)

	require.Len(t, got.Amendments, 2, "unreferenced amendments are dropped")
	assert.Equal(t, amendX, got.Amendments[0].ID)
	assert.Equal(t, "X edited", got.Amendments[0].Text)
	assert.Equal(t, amendZ, got.Amendments[1].ID)
	assert.Equal(t, "Z edited", got.Amendments[1].Text)

	stored := f.notes.get(noteA1)
	assert.Len(t, stored.Amendments, 2)

	require.Len(t, f.archive.entries, 1)
	entry := f.archive.entries[0]
	assert.Equal(t, casenote.CauseUpdate, entry.Cause)
	assert.Equal(t, "ADMIN1", entry.DeletedBy)
	assert.Equal(t, "Contained third-party data", entry.Reason)
	assert.Equal(t, original.Text, entry.Snapshot.Text)
	assert.Len(t, entry.Snapshot.Amendments, 3, "the snapshot keeps the prior amendments")

	require.Len(t, f.events.events, 1)
	assert.Equal(t, secondary.EventCaseNoteUpdated, f.events.events[0].Type)
	assert.Equal(t, 1, f.telemetry.admin["UPDATE"])
}

func TestReplace_UnknownAmendmentIsNotFound(t *testing.T) {
	f := newAdminFixture()
	f.notes.put(amendedNote())

	req := replaceRequest()
	req.Amendments = []primary.AmendmentEdit{{ID: "0190a1b2-0000-7000-8000-0000000002ff", Text: "?"}}

	_, err := f.service.Replace(context.Background(), dpsActor(), noteA1, req)

	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
	assert.Empty(t, f.archive.entries)
	assert.Equal(t, "Discussed education goals.", f.notes.get(noteA1).Text)
}

func TestReplace_RestrictedCategoryNeedsPrivilege(t *testing.T) {
	f := newAdminFixture()
	f.notes.put(amendedNote())

	req := replaceRequest()
	req.Type = "OMIC"
	req.SubType = "GEN"

	_, err := f.service.Replace(context.Background(), dpsActor(), noteA1, req)
	require.Error(t, err)
	assert.Equal(t, errs.Forbidden, errs.CodeOf(err))

	privileged := dpsActor()
	privileged.Privileged = true
	got, err := f.service.Replace(context.Background(), privileged, noteA1, req)
	require.NoError(t, err)
	assert.Equal(t, "OMIC", got.Type)
}

func TestReplace_MissingNote(t *testing.T) {
	f := newAdminFixture()

	_, err := f.service.Replace(context.Background(), dpsActor(), noteA1, replaceRequest())

	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestReplace_UpdateFailureLeavesNoArchive(t *testing.T) {
	f := newAdminFixture()
	f.notes.put(amendedNote())
	f.notes.updateErr = errs.New(errs.ConcurrentModification, "stale")

	_, err := f.service.Replace(context.Background(), dpsActor(), noteA1, replaceRequest())

	require.Error(t, err)
	assert.Equal(t, errs.ConcurrentModification, errs.CodeOf(err))
	assert.Empty(t, f.archive.entries)
}

func TestDelete_IsRecoverableFromArchive(t *testing.T) {
	f := newAdminFixture()
	original := amendedNote()
	f.notes.put(original)
	ctx := context.Background()

	err := f.service.Delete(ctx, dpsActor(), noteA1, primary.DeleteRequest{Reason: "Wrong person"})
	require.NoError(t, err)

	_, err = f.service.GetCaseNote(ctx, noteA1)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))

	deleted, err := f.service.ListDeleted(ctx, noteA1)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "DELETE", deleted[0].Cause)
	assert.Equal(t, "Wrong person", deleted[0].Reason)
	assert.Equal(t, "ADMIN1", deleted[0].DeletedBy)
	assert.Equal(t, *recordToCaseNote(original), deleted[0].Snapshot)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, secondary.EventCaseNoteDeleted, f.events.events[0].Type)
	assert.Equal(t, 1, f.telemetry.admin["DELETE"])
}

func TestDelete_RequiresReason(t *testing.T) {
	f := newAdminFixture()
	f.notes.put(amendedNote())

	err := f.service.Delete(context.Background(), dpsActor(), noteA1, primary.DeleteRequest{})

	require.Error(t, err)
	assert.Equal(t, errs.ValidationFailure, errs.CodeOf(err))
	assert.NotNil(t, f.notes.get(noteA1))
}

func TestDelete_ArchiveFailureKeepsNote(t *testing.T) {
	f := newAdminFixture()
	f.notes.put(amendedNote())
	f.archive.archiveErr = errs.New(errs.Internal, "archive unavailable")

	err := f.service.Delete(context.Background(), dpsActor(), noteA1, primary.DeleteRequest{Reason: "x"})

	require.Error(t, err)
	assert.NotNil(t, f.notes.get(noteA1))
	assert.Empty(t, f.events.events)
}

func TestListDeleted_NewestFirst(t *testing.T) {
	f := newAdminFixture()
	f.notes.put(amendedNote())
	ctx := context.Background()

	first := replaceRequest()
	first.Text = "First edit."
	_, err := f.service.Replace(ctx, dpsActor(), noteA1, first)
	require.NoError(t, err)

	later := dpsActor()
	later.At = later.At.Add(time.Hour)
	require.NoError(t, f.service.Delete(ctx, later, noteA1, primary.DeleteRequest{Reason: "Duplicate"}))

	deleted, err := f.service.ListDeleted(ctx, noteA1)
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	assert.Equal(t, "DELETE", deleted[0].Cause)
	assert.Equal(t, "First edit.", deleted[0].Snapshot.Text)
	assert.Equal(t, "UPDATE", deleted[1].Cause)
	assert.Equal(t, "Discussed education goals.", deleted[1].Snapshot.Text)
}

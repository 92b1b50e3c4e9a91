package app

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/casenotes/internal/core/actor"
	"github.com/example/casenotes/internal/core/casenote"
	"github.com/example/casenotes/internal/errs"
	"github.com/example/casenotes/internal/ports/secondary"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// restorable is implemented by mocks whose state the mock transactor rolls back.
type restorable interface {
	snapshot() (restore func())
}

// mockTransactor runs fn and restores every participant when fn fails.
type mockTransactor struct {
	participants []restorable
	calls        int
}

func newMockTransactor(participants ...restorable) *mockTransactor {
	return &mockTransactor{participants: participants}
}

func (m *mockTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	restores := make([]func(), 0, len(m.participants))
	for _, p := range m.participants {
		restores = append(restores, p.snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// mockCaseNoteRepository implements secondary.CaseNoteRepository for testing.
// Reads return copies so callers cannot mutate stored state by accident.
type mockCaseNoteRepository struct {
	mu           sync.Mutex
	notes        map[string]*secondary.CaseNoteRecord
	nextLegacyID int64
	createErr    error
	updateErr    error
	findErr      error
	creates      int
	deletes      int
}

func newMockCaseNoteRepository() *mockCaseNoteRepository {
	return &mockCaseNoteRepository{
		notes:        make(map[string]*secondary.CaseNoteRecord),
		nextLegacyID: 1000000000,
	}
}

func (m *mockCaseNoteRepository) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[string]*secondary.CaseNoteRecord, len(m.notes))
	for id, n := range m.notes {
		saved[id] = n.Clone()
	}
	next := m.nextLegacyID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.notes = saved
		m.nextLegacyID = next
	}
}

// put stores a note directly, bypassing Create bookkeeping.
func (m *mockCaseNoteRepository) put(note *secondary.CaseNoteRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if note.Version == 0 {
		note.Version = 1
	}
	if note.Amendments == nil {
		note.Amendments = []*secondary.AmendmentRecord{}
	}
	m.notes[note.ID] = note.Clone()
}

func (m *mockCaseNoteRepository) get(id string) *secondary.CaseNoteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.notes[id]; ok {
		return n.Clone()
	}
	return nil
}

func (m *mockCaseNoteRepository) Create(ctx context.Context, note *secondary.CaseNoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.notes[note.ID]; ok {
		return errs.Conflict("case note %s already exists", note.ID)
	}
	if note.LegacyID == 0 && note.Origin == casenote.OriginDPS {
		note.LegacyID = m.nextLegacyID
		m.nextLegacyID++
	}
	if note.LegacyID != 0 {
		for _, n := range m.notes {
			if n.LegacyID == note.LegacyID {
				return errs.Conflict("case note with legacy id %d already exists", note.LegacyID)
			}
		}
	}
	note.Version = 1
	if note.Amendments == nil {
		note.Amendments = []*secondary.AmendmentRecord{}
	}
	for _, a := range note.Amendments {
		a.CaseNoteID = note.ID
	}
	m.notes[note.ID] = note.Clone()
	m.creates++
	return nil
}

func (m *mockCaseNoteRepository) GetByID(ctx context.Context, id string) (*secondary.CaseNoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.notes[id]; ok {
		return n.Clone(), nil
	}
	return nil, errs.NotFoundf("case note %s not found", id)
}

func (m *mockCaseNoteRepository) GetByLegacyID(ctx context.Context, legacyID int64) (*secondary.CaseNoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.LegacyID == legacyID {
			return n.Clone(), nil
		}
	}
	return nil, errs.NotFoundf("case note with legacy id %d not found", legacyID)
}

func (m *mockCaseNoteRepository) Find(ctx context.Context, pred secondary.Predicate) ([]*secondary.CaseNoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var result []*secondary.CaseNoteRecord
	for _, n := range m.notes {
		if matches(pred, n) {
			result = append(result, n.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].OccurredAt.Before(result[j].OccurredAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func matches(pred secondary.Predicate, n *secondary.CaseNoteRecord) bool {
	switch p := pred.(type) {
	case nil:
		return true
	case secondary.PersonIs:
		return n.PersonIdentifier == p.PersonIdentifier
	case secondary.CategoryIs:
		return n.Category() == p.Key
	case secondary.OriginIs:
		return n.Origin == p.Origin
	case secondary.IDIn:
		for _, id := range p.IDs {
			if id == n.ID {
				return true
			}
		}
		return false
	case secondary.LegacyIDIn:
		for _, id := range p.LegacyIDs {
			if id == n.LegacyID {
				return true
			}
		}
		return false
	case secondary.OccurredBetween:
		if !p.From.IsZero() && n.OccurredAt.Before(p.From) {
			return false
		}
		return p.To.IsZero() || n.OccurredAt.Before(p.To)
	case secondary.AllOf:
		for _, sub := range p.Predicates {
			if !matches(sub, n) {
				return false
			}
		}
		return true
	case secondary.AnyOf:
		for _, sub := range p.Predicates {
			if matches(sub, n) {
				return true
			}
		}
		return false
	}
	return false
}

func (m *mockCaseNoteRepository) Update(ctx context.Context, note *secondary.CaseNoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.notes[note.ID]
	if !ok {
		return errs.NotFoundf("case note %s not found", note.ID)
	}
	if stored.Version != note.Version {
		return errs.New(errs.ConcurrentModification, "case note %s was modified concurrently", note.ID)
	}

	updated := note.Clone()
	updated.Origin = stored.Origin
	updated.CreatedAt = stored.CreatedAt
	updated.CreatedBy = stored.CreatedBy
	if stored.LegacyID != 0 {
		updated.LegacyID = stored.LegacyID
	}
	updated.Amendments = stored.Amendments
	updated.Version = stored.Version + 1
	m.notes[note.ID] = updated

	note.Version++
	return nil
}

func (m *mockCaseNoteRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[id]; !ok {
		return errs.NotFoundf("case note %s not found", id)
	}
	delete(m.notes, id)
	m.deletes++
	return nil
}

func (m *mockCaseNoteRepository) AddAmendments(ctx context.Context, noteID string, amendments []*secondary.AmendmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.notes[noteID]
	if !ok {
		return errs.NotFoundf("case note %s not found", noteID)
	}
	for _, a := range amendments {
		a.CaseNoteID = noteID
		cp := *a
		stored.Amendments = append(stored.Amendments, &cp)
	}
	return nil
}

func (m *mockCaseNoteRepository) ReplaceAmendments(ctx context.Context, noteID string, amendments []*secondary.AmendmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.notes[noteID]
	if !ok {
		return errs.NotFoundf("case note %s not found", noteID)
	}
	stored.Amendments = make([]*secondary.AmendmentRecord, 0, len(amendments))
	for _, a := range amendments {
		a.CaseNoteID = noteID
		cp := *a
		stored.Amendments = append(stored.Amendments, &cp)
	}
	return nil
}

// mockArchive implements secondary.CaseNoteArchive for testing.
type mockArchive struct {
	entries    []*secondary.DeletedCaseNoteRecord
	archiveErr error
}

func newMockArchive() *mockArchive {
	return &mockArchive{}
}

func (m *mockArchive) snapshot() func() {
	saved := append([]*secondary.DeletedCaseNoteRecord(nil), m.entries...)
	return func() { m.entries = saved }
}

func (m *mockArchive) Archive(ctx context.Context, deleted *secondary.DeletedCaseNoteRecord) error {
	if m.archiveErr != nil {
		return m.archiveErr
	}
	m.entries = append(m.entries, deleted)
	return nil
}

func (m *mockArchive) ListByCaseNote(ctx context.Context, caseNoteID string) ([]*secondary.DeletedCaseNoteRecord, error) {
	var result []*secondary.DeletedCaseNoteRecord
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].CaseNoteID == caseNoteID {
			result = append(result, m.entries[i])
		}
	}
	return result, nil
}

// mockEventPublisher implements secondary.EventPublisher for testing.
type mockEventPublisher struct {
	events     []*secondary.CaseNoteEvent
	publishErr error
}

func newMockEventPublisher() *mockEventPublisher {
	return &mockEventPublisher{}
}

func (m *mockEventPublisher) snapshot() func() {
	saved := append([]*secondary.CaseNoteEvent(nil), m.events...)
	return func() { m.events = saved }
}

func (m *mockEventPublisher) Publish(ctx context.Context, events ...*secondary.CaseNoteEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.events = append(m.events, events...)
	return nil
}

// mockCategoryRegistry implements secondary.CategoryRegistry for testing.
type mockCategoryRegistry struct {
	categories map[casenote.CategoryKey]*secondary.CategoryRecord
	findErr    error
}

func newMockCategoryRegistry() *mockCategoryRegistry {
	m := &mockCategoryRegistry{categories: make(map[casenote.CategoryKey]*secondary.CategoryRecord)}
	m.add("GEN", "OSE", true, false)
	m.add("GEN", "HIS", true, false)
	m.add("ALERT", "ACTIVE", true, false)
	m.add("ALERT", "INACTIVE", true, false)
	m.add("OMIC", "GEN", false, true)
	return m
}

func (m *mockCategoryRegistry) add(typ, sub string, syncToLegacy, restricted bool) {
	m.categories[casenote.CategoryKey{Type: typ, SubType: sub}] = &secondary.CategoryRecord{
		Type:          typ,
		SubType:       sub,
		SyncToLegacy:  syncToLegacy,
		RestrictedUse: restricted,
	}
}

func (m *mockCategoryRegistry) Find(ctx context.Context, keys []casenote.CategoryKey) (map[casenote.CategoryKey]*secondary.CategoryRecord, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	result := make(map[casenote.CategoryKey]*secondary.CategoryRecord)
	for _, k := range keys {
		if c, ok := m.categories[k]; ok {
			result[k] = c
		}
	}
	return result, nil
}

// mockTelemetry implements secondary.Telemetry for testing.
type mockTelemetry struct {
	mu         sync.Mutex
	syncs      map[string]int
	migrations [][3]int
	moved      int
	admin      map[string]int
	reports    []secondary.ReconciliationReport
}

func newMockTelemetry() *mockTelemetry {
	return &mockTelemetry{syncs: make(map[string]int), admin: make(map[string]int)}
}

func (m *mockTelemetry) SyncRecorded(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs[action]++
}

func (m *mockTelemetry) MigrationRecorded(kept, created, deleted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrations = append(m.migrations, [3]int{kept, created, deleted})
}

func (m *mockTelemetry) NotesMoved(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moved += count
}

func (m *mockTelemetry) AdminMutation(cause string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admin[cause]++
}

func (m *mockTelemetry) ReconciliationRecorded(ctx context.Context, report secondary.ReconciliationReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
}

// mockAlertsClient implements secondary.AlertsClient for testing.
type mockAlertsClient struct {
	alerts []*secondary.AlertRecord
	err    error
	calls  int
}

func (m *mockAlertsClient) Alerts(ctx context.Context, personIdentifier string, from, to time.Time) ([]*secondary.AlertRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.alerts, nil
}

// mockAuthorDirectory implements secondary.AuthorDirectory for testing.
type mockAuthorDirectory struct {
	authors map[string]*secondary.AuthorRecord
	err     error
}

func newMockAuthorDirectory() *mockAuthorDirectory {
	return &mockAuthorDirectory{authors: map[string]*secondary.AuthorRecord{
		"JSMITH": {Username: "JSMITH", UserID: "1001", DisplayName: "John Smith"},
		"ABROWN": {Username: "ABROWN", UserID: "1002", DisplayName: "Alice Brown"},
	}}
}

func (m *mockAuthorDirectory) Resolve(ctx context.Context, username string) (*secondary.AuthorRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if a, ok := m.authors[username]; ok {
		return a, nil
	}
	return nil, errs.NotFoundf("user %s not found", username)
}

// ============================================================================
// Fixtures
// ============================================================================

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func legacyActor() actor.Actor {
	return actor.Actor{Username: "LEGACY_SYNC", UserID: "0", DisplayName: "Legacy", Source: actor.SourceLegacy, At: testNow}
}

func dpsActor() actor.Actor {
	return actor.Actor{Username: "ADMIN1", UserID: "900", DisplayName: "Admin One", Source: actor.SourceDPS, At: testNow}
}

// storedNote builds a note as it would exist in the store.
func storedNote(id string, legacyID int64, person string, origin casenote.Origin) *secondary.CaseNoteRecord {
	at := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	return &secondary.CaseNoteRecord{
		ID:               id,
		LegacyID:         legacyID,
		PersonIdentifier: person,
		Type:             "GEN",
		SubType:          "OSE",
		OccurredAt:       at,
		LocationCode:     "MDI",
		AuthorUsername:   "JSMITH",
		AuthorID:         "1001",
		AuthorName:       "John Smith",
		Text:             "Discussed education goals.",
		Origin:           origin,
		CreatedAt:        at,
		CreatedBy:        "JSMITH",
		Version:          1,
		Amendments:       []*secondary.AmendmentRecord{},
	}
}

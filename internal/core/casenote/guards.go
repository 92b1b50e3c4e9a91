package casenote

import (
	"fmt"
	"sort"

	"github.com/example/casenotes/internal/errs"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
	Code    errs.Code
	Details []string
}

// Error converts the guard result to a coded error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	e := errs.New(r.Code, "%s", r.Reason)
	if len(r.Details) > 0 {
		e = e.WithDetails(r.Details...)
	}
	return e
}

func allowed() GuardResult { return GuardResult{Allowed: true} }

// CheckCategories validates every requested category in a single pass.
// Unknown categories take precedence over non-syncable ones; each failure
// lists every offending pair, sorted, so the caller can fix the whole batch.
// requireSync is set for paths reachable from the legacy system.
func CheckCategories(requested []CategoryKey, known map[CategoryKey]CategoryInfo, requireSync bool) GuardResult {
	seen := make(map[CategoryKey]bool, len(requested))
	var missing, notSyncable []string

	for _, key := range requested {
		if seen[key] {
			continue
		}
		seen[key] = true

		info, ok := known[key]
		if !ok {
			missing = append(missing, key.String())
			continue
		}
		if requireSync && !info.SyncToLegacy {
			notSyncable = append(notSyncable, key.String())
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return GuardResult{
			Code:    errs.UnknownCategory,
			Reason:  "case note types not found",
			Details: missing,
		}
	}
	if len(notSyncable) > 0 {
		sort.Strings(notSyncable)
		return GuardResult{
			Code:    errs.CategoryNotSyncable,
			Reason:  "case note types are not sync-eligible",
			Details: notSyncable,
		}
	}
	return allowed()
}

// SyncUpdateContext provides context for the sync update guard.
type SyncUpdateContext struct {
	NoteID          string
	ExistingPerson  string
	RequestedPerson string
}

// CanSyncUpdate evaluates whether a resolved note may be overwritten by sync.
// Rules:
// - The note must belong to the person the request claims
func CanSyncUpdate(ctx SyncUpdateContext) GuardResult {
	if ctx.ExistingPerson != ctx.RequestedPerson {
		return GuardResult{
			Code: errs.IdentifierConflict,
			Reason: fmt.Sprintf("case note %s belongs to %s, not %s",
				ctx.NoteID, ctx.ExistingPerson, ctx.RequestedPerson),
			Details: []string{ctx.NoteID},
		}
	}
	return allowed()
}

// MoveDecision is the outcome of evaluating one note for relocation.
type MoveDecision int

const (
	MoveNote MoveDecision = iota
	// MoveSkip means the note is already where it should be.
	MoveSkip
	MoveConflict
)

// MoveContext provides context for the move guard.
type MoveContext struct {
	NoteID        string
	CurrentPerson string
	From          string
	To            string
}

// EvaluateMove decides what to do with one note named in a move request.
// Rules:
// - A note under From is moved
// - A note already under To is skipped (retry after partial success)
// - A note under any other person is a conflict
func EvaluateMove(ctx MoveContext) (MoveDecision, GuardResult) {
	switch ctx.CurrentPerson {
	case ctx.From:
		return MoveNote, allowed()
	case ctx.To:
		return MoveSkip, allowed()
	default:
		return MoveConflict, GuardResult{
			Code: errs.IdentifierConflict,
			Reason: fmt.Sprintf("case note %s belongs to %s, not %s",
				ctx.NoteID, ctx.CurrentPerson, ctx.From),
			Details: []string{ctx.NoteID},
		}
	}
}

// CategoryUseContext provides context for the restricted-use guard.
type CategoryUseContext struct {
	Category   CategoryInfo
	Privileged bool
}

// CanUseCategory evaluates whether the actor may write a note of the category.
// Rules:
// - Restricted-use categories require a privileged actor
func CanUseCategory(ctx CategoryUseContext) GuardResult {
	if ctx.Category.RestrictedUse && !ctx.Privileged {
		return GuardResult{
			Code:    errs.Forbidden,
			Reason:  fmt.Sprintf("case note type %s is restricted", ctx.Category.Key),
			Details: []string{ctx.Category.Key.String()},
		}
	}
	return allowed()
}

package casenote

import (
	"fmt"
	"time"

	"github.com/example/casenotes/internal/errs"
)

// AmendmentKey is the natural key of an amendment coming from the legacy
// system, which has no amendment identifiers. Timestamps must be equal to
// full precision; there is no fuzzy matching.
type AmendmentKey struct {
	AuthorUsername string
	CreatedAt      time.Time
}

func (k AmendmentKey) matches(o AmendmentKey) bool {
	return k.AuthorUsername == o.AuthorUsername && k.CreatedAt.Equal(o.CreatedAt)
}

// UnmatchedAmendments returns the indices of incoming amendments that match
// no existing amendment, in input order. Existing amendments that the request
// does not mention are never reported: sync only ever appends.
func UnmatchedAmendments(existing, incoming []AmendmentKey) []int {
	known := append([]AmendmentKey(nil), existing...)
	var result []int

	for i, in := range incoming {
		found := false
		for _, k := range known {
			if k.matches(in) {
				found = true
				break
			}
		}
		if !found {
			result = append(result, i)
			known = append(known, in)
		}
	}
	return result
}

// AmendmentEdit replaces the text of an existing amendment.
type AmendmentEdit struct {
	ID   string
	Text string
}

// PlanAmendmentReplace resolves the edits of an admin replace against the
// ids present on the original note. It returns the new text per kept id;
// ids absent from the result are dropped from the note.
func PlanAmendmentReplace(existingIDs []string, edits []AmendmentEdit) (map[string]string, GuardResult) {
	present := make(map[string]bool, len(existingIDs))
	for _, id := range existingIDs {
		present[id] = true
	}

	kept := make(map[string]string, len(edits))
	for _, e := range edits {
		if !present[e.ID] {
			return nil, GuardResult{
				Code:    errs.NotFound,
				Reason:  fmt.Sprintf("case note amendment %s not found", e.ID),
				Details: []string{e.ID},
			}
		}
		if _, dup := kept[e.ID]; dup {
			return nil, GuardResult{
				Code:    errs.ValidationFailure,
				Reason:  fmt.Sprintf("case note amendment %s referenced more than once", e.ID),
				Details: []string{e.ID},
			}
		}
		kept[e.ID] = e.Text
	}
	return kept, allowed()
}

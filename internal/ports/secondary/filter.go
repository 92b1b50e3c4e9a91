package secondary

import (
	"time"

	"github.com/example/casenotes/internal/core/casenote"
)

// Predicate is a typed filter over stored case notes. Adapters compile
// predicates to their native query language.
type Predicate interface {
	predicate()
}

// PersonIs matches notes belonging to a person.
type PersonIs struct{ PersonIdentifier string }

// CategoryIs matches notes of a category.
type CategoryIs struct{ Key casenote.CategoryKey }

// OriginIs matches notes of an origin.
type OriginIs struct{ Origin casenote.Origin }

// IDIn matches notes whose id is in the set. An empty set matches nothing.
type IDIn struct{ IDs []string }

// LegacyIDIn matches notes whose legacy id is in the set. An empty set matches nothing.
type LegacyIDIn struct{ LegacyIDs []int64 }

// OccurredBetween matches notes with From <= occurredAt < To.
// A zero bound is open.
type OccurredBetween struct {
	From time.Time
	To   time.Time
}

// AllOf matches notes satisfying every predicate. An empty AllOf matches all notes.
type AllOf struct{ Predicates []Predicate }

// AnyOf matches notes satisfying at least one predicate. An empty AnyOf matches nothing.
type AnyOf struct{ Predicates []Predicate }

func (PersonIs) predicate()        {}
func (CategoryIs) predicate()      {}
func (OriginIs) predicate()        {}
func (IDIn) predicate()            {}
func (LegacyIDIn) predicate()      {}
func (OccurredBetween) predicate() {}
func (AllOf) predicate()           {}
func (AnyOf) predicate()           {}

// And combines predicates conjunctively.
func And(preds ...Predicate) Predicate {
	return AllOf{Predicates: preds}
}

// Or combines predicates disjunctively.
func Or(preds ...Predicate) Predicate {
	return AnyOf{Predicates: preds}
}

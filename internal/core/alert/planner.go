// Package alert contains the pure planning logic that mirrors an external
// alert timeline as synthetic case notes.
// This is part of the Functional Core - no I/O, only pure functions.
package alert

import (
	"fmt"
	"time"
)

// Category codes of the synthetic notes.
const (
	NoteType            = "ALERT"
	NoteSubTypeActive   = "ACTIVE"
	NoteSubTypeInactive = "INACTIVE"
)

// Kind says which lifecycle transition a synthetic note records.
type Kind string

const (
	KindActive   Kind = "active"
	KindInactive Kind = "inactive"
)

// SubType returns the note sub-type code for the kind.
func (k Kind) SubType() string {
	if k == KindInactive {
		return NoteSubTypeInactive
	}
	return NoteSubTypeActive
}

// Alert is one alert instance as reported by the alerts service.
// ActiveFrom and ActiveTo are calendar dates; only their date part is used.
type Alert struct {
	TypeDescription    string
	SubTypeDescription string
	ActiveFrom         time.Time
	ActiveTo           *time.Time
	CreatedAt          time.Time
	CreatedBy          string
	MadeInactiveAt     *time.Time
	MadeInactiveBy     string
}

// ActiveText is the deterministic text of a "made active" note.
func ActiveText(typeDescription, subTypeDescription string) string {
	return fmt.Sprintf("Alert %s and %s made active.", typeDescription, subTypeDescription)
}

// InactiveText is the deterministic text of a "made inactive" note.
func InactiveText(typeDescription, subTypeDescription string) string {
	return fmt.Sprintf("Alert %s and %s made inactive.", typeDescription, subTypeDescription)
}

// ExpectedNote is a synthetic note that should exist for the timeline.
type ExpectedNote struct {
	Kind           Kind
	Text           string
	OccurredAt     time.Time
	AuthorUsername string
}

// ExistingNote is the part of a stored synthetic note used for matching.
type ExistingNote struct {
	Text       string
	OccurredAt time.Time
}

// Window is a half-open date range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) contains(day time.Time) bool {
	d := dateOf(day)
	return !d.Before(dateOf(w.From)) && d.Before(dateOf(w.To))
}

// Expected computes the synthetic notes the alerts imply within the window.
// Rules:
// - An active note is dated at ActiveFrom with the time of day of CreatedAt
// - An inactive note exists only once ActiveTo has been reached (on or before today)
//   and is dated at ActiveTo with the time of day of MadeInactiveAt
// - Only transitions whose date falls inside the window are considered
func Expected(alerts []Alert, window Window, today time.Time) []ExpectedNote {
	var result []ExpectedNote
	seen := make(map[string]bool)

	add := func(n ExpectedNote) {
		k := key(n.Text, n.OccurredAt)
		if seen[k] {
			return
		}
		seen[k] = true
		result = append(result, n)
	}

	for _, a := range alerts {
		if window.contains(a.ActiveFrom) {
			add(ExpectedNote{
				Kind:           KindActive,
				Text:           ActiveText(a.TypeDescription, a.SubTypeDescription),
				OccurredAt:     combine(a.ActiveFrom, a.CreatedAt),
				AuthorUsername: a.CreatedBy,
			})
		}

		if a.ActiveTo == nil || dateOf(*a.ActiveTo).After(dateOf(today)) || !window.contains(*a.ActiveTo) {
			continue
		}
		clock := dateOf(*a.ActiveTo)
		if a.MadeInactiveAt != nil {
			clock = *a.MadeInactiveAt
		}
		author := a.MadeInactiveBy
		if author == "" {
			author = a.CreatedBy
		}
		add(ExpectedNote{
			Kind:           KindInactive,
			Text:           InactiveText(a.TypeDescription, a.SubTypeDescription),
			OccurredAt:     combine(*a.ActiveTo, clock),
			AuthorUsername: author,
		})
	}
	return result
}

// Missing returns the expected notes that no existing note accounts for.
// A note matches on its text and the calendar date it occurred on.
func Missing(expected []ExpectedNote, existing []ExistingNote) []ExpectedNote {
	present := make(map[string]bool, len(existing))
	for _, e := range existing {
		present[key(e.Text, e.OccurredAt)] = true
	}

	var result []ExpectedNote
	for _, n := range expected {
		if !present[key(n.Text, n.OccurredAt)] {
			result = append(result, n)
		}
	}
	return result
}

// Counts tallies notes per kind.
type Counts struct {
	Active   int
	Inactive int
}

// Count tallies the notes by kind.
func Count(notes []ExpectedNote) Counts {
	var c Counts
	for _, n := range notes {
		if n.Kind == KindInactive {
			c.Inactive++
		} else {
			c.Active++
		}
	}
	return c
}

func key(text string, at time.Time) string {
	return text + "|" + at.UTC().Format(time.DateOnly)
}

func dateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// combine takes the date of day and the time of day of clock.
func combine(day, clock time.Time) time.Time {
	d := day.UTC()
	c := clock.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, time.UTC)
}

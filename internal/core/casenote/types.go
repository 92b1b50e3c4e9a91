// Package casenote contains the pure business logic shared by the sync,
// migration, move, admin and reconciliation engines.
// This is part of the Functional Core - no I/O, only pure functions.
package casenote

import (
	"fmt"
	"time"

	"github.com/example/casenotes/internal/core/actor"
)

// Origin records which system created a note.
type Origin string

const (
	OriginDPS    Origin = "DPS"
	OriginLegacy Origin = "LEGACY"
)

// Cause tags an audit archive snapshot with the destructive event that produced it.
type Cause string

const (
	CauseDelete Cause = "DELETE"
	CauseUpdate Cause = "UPDATE"
	CauseMove   Cause = "MOVE"
)

// CategoryKey identifies a note category by parent (type) and sub-type code.
type CategoryKey struct {
	Type    string
	SubType string
}

func (k CategoryKey) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.SubType)
}

// CategoryInfo is the slice of a category descriptor the guards need.
type CategoryInfo struct {
	Key           CategoryKey
	SyncToLegacy  bool
	RestrictedUse bool
	Sensitive     bool
}

// Stamp is an audit stamp: when and by whom.
type Stamp struct {
	At time.Time
	By string
}

// Created returns the creation stamp for a record created by a.
// Timestamps are truncated to the microsecond, the precision the store keeps.
func Created(a actor.Actor) Stamp {
	return Stamp{At: a.At.UTC().Truncate(time.Microsecond), By: a.Username}
}

// Mutated returns the last-modified stamp for a record changed by a.
func Mutated(a actor.Actor) Stamp {
	return Stamp{At: a.At.UTC().Truncate(time.Microsecond), By: a.Username}
}

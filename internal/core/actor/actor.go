// Package actor describes who is performing a mutation and from which system.
// Every engine takes an Actor as an explicit parameter; nothing reads the
// acting identity from ambient request state.
package actor

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the system a request originates from.
type Source string

const (
	SourceDPS    Source = "DPS"
	SourceLegacy Source = "LEGACY"
)

// Well-known identity used for system-initiated mutations (moves, reconciliation).
const (
	SystemUsername    = "SYS"
	SystemDisplayName = "System"
)

// Actor is the acting context for one engine call.
type Actor struct {
	Username    string
	UserID      string
	DisplayName string
	Source      Source
	// Privileged actors may write categories flagged restricted-use.
	Privileged bool
	// At is the request timestamp; all audit stamps for the call use it.
	At time.Time
}

// System returns the system actor stamped at now.
func System(now time.Time) Actor {
	return Actor{
		Username:    SystemUsername,
		UserID:      SystemUsername,
		DisplayName: SystemDisplayName,
		Source:      SourceDPS,
		At:          now,
	}
}

// ParseSource parses a source header value. Empty defaults to DPS.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToUpper(strings.TrimSpace(s))) {
	case "", SourceDPS:
		return SourceDPS, nil
	case SourceLegacy:
		return SourceLegacy, nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// IsSystem reports whether a is the well-known system actor.
func (a Actor) IsSystem() bool {
	return a.Username == SystemUsername
}

// Valid reports whether a carries enough identity to stamp audit fields.
func (a Actor) Valid() bool {
	return a.Username != "" && !a.At.IsZero()
}

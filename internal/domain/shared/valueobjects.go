// Package shared contains common domain types, errors and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ClimberID identifies a climber.
type ClimberID string

// String returns the string representation.
func (c ClimberID) String() string { return string(c) }

// IsEmpty checks if the ID is empty.
func (c ClimberID) IsEmpty() bool { return c == "" }

// NewClimberID creates a ClimberID from a raw identifier.
func NewClimberID(id string) (ClimberID, error) {
	cid := ClimberID(strings.TrimSpace(id))
	if cid.IsEmpty() {
		return "", NewDomainError("shared", "NewClimberID", ErrInvalidID, "climber ID cannot be empty")
	}
	return cid, nil
}

// ProblemID identifies a bouldering problem. It is the stable key of every
// per-problem map in the statistics pipeline.
type ProblemID string

// String returns the string representation.
func (p ProblemID) String() string { return string(p) }

// SessionID identifies a climbing session.
type SessionID string

// String returns the string representation.
func (s SessionID) String() string { return string(s) }

// GymID identifies a gym.
type GymID string

// String returns the string representation.
func (g GymID) String() string { return string(g) }

// IsUUID reports whether the identifier looks like a UUID.
// Stores are free to use other identifier formats.
func IsUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// ═══════════════════════════════════════════════════════════════════════════
// Date Range
// ═══════════════════════════════════════════════════════════════════════════

// DateRange is a half-open [From, To) window of session dates.
// A zero From or To leaves that side unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Validate checks that the range is not inverted.
func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return ErrInvalidDateRange
	}
	return nil
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// SPDX-License-Identifier: MIT

// Package types provides type-safe enumerations for sessionflow.
//
// This package centralizes the lifecycle status enum and related typed
// constants to prevent string-based bugs and enable exhaustive switches.
package types

import (
	"encoding/json"
	"fmt"
)

// SessionStatus represents the lifecycle state of a training session.
//
// SessionStatus provides type safety for workflow state management,
// preventing string-based typos and enabling exhaustive switch statements.
type SessionStatus string

// Session status constants define all lifecycle states of a session.
const (
	// StatusDraft is the initial state of every session.
	StatusDraft SessionStatus = "draft"

	// StatusReview indicates the session is awaiting editorial review.
	StatusReview SessionStatus = "review"

	// StatusReady indicates the session passed review and may be published.
	StatusReady SessionStatus = "ready"

	// StatusPublished indicates the session is live and visible to end users.
	StatusPublished SessionStatus = "published"

	// StatusCompleted indicates a published session whose end time has passed.
	StatusCompleted SessionStatus = "completed"

	// StatusRetired indicates the session was withdrawn after publication.
	StatusRetired SessionStatus = "retired"

	// StatusCancelled indicates the session was abandoned.
	StatusCancelled SessionStatus = "cancelled"
)

// allowedTransitions is the authoritative transition table. Terminal
// states have no entry and therefore no outgoing transitions.
var allowedTransitions = map[SessionStatus][]SessionStatus{
	StatusDraft:     {StatusReview, StatusReady, StatusPublished, StatusCancelled},
	StatusReview:    {StatusDraft, StatusReady, StatusPublished, StatusCancelled},
	StatusReady:     {StatusDraft, StatusReview, StatusPublished, StatusCancelled},
	StatusPublished: {StatusCompleted, StatusRetired, StatusCancelled, StatusDraft},
}

// String returns the string representation of the session status.
// Implements the fmt.Stringer interface for better logging and debugging.
func (s SessionStatus) String() string {
	return string(s)
}

// IsValid checks whether the session status is one of the defined constants.
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusReady, StatusPublished,
		StatusCompleted, StatusRetired, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal checks whether the status represents a final state.
//
// Terminal states are Completed, Retired and Cancelled. A session in a
// terminal state will not transition to another state.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRetired, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether this status can transition to the target
// status according to the allowed-transition table.
//
// Note that the PUBLISHED → DRAFT regression is listed here but carries an
// additional runtime guard (no registrations recorded) enforced by the
// transition engine.
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	for _, t := range allowedTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns the set of states reachable from this status.
// The returned slice is a copy and safe to mutate.
func (s SessionStatus) AllowedTargets() []SessionStatus {
	targets := allowedTransitions[s]
	out := make([]SessionStatus, len(targets))
	copy(out, targets)
	return out
}

// ParseSessionStatus converts a raw string into a SessionStatus.
func ParseSessionStatus(raw string) (SessionStatus, error) {
	s := SessionStatus(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown session status %q", raw)
	}
	return s, nil
}

// MarshalJSON implements json.Marshaler for SessionStatus.
func (s SessionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for SessionStatus.
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSessionStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SPDX-License-Identifier: MIT

package workflow

import (
	"fmt"
	"strings"

	"github.com/trainhub/sessionflow/internal/types"
)

// SessionNotFoundError is returned when the referenced session does not
// exist in the store.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

// InvalidTransitionError is returned when the requested status change is
// not in the allowed-transition table, or when a runtime guard on an
// otherwise-allowed transition fails.
type InvalidTransitionError struct {
	From   types.SessionStatus
	To     types.SessionStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// PublishingBlockedError is returned when a transition to PUBLISHED is
// rejected by the publishing rules. It carries the blocking findings and
// any conflicting sessions for caller display.
type PublishingBlockedError struct {
	Reason    string
	Errors    []ValidationError
	Conflicts []ConflictRef
}

func (e *PublishingBlockedError) Error() string {
	parts := make([]string, 0, len(e.Errors)+1)
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	for _, v := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("conflicts with session %s", c.SessionID))
	}
	if len(parts) == 0 {
		return "publishing requirements not met"
	}
	return "publishing requirements not met: " + strings.Join(parts, "; ")
}

// ConcurrentModificationError is returned after the bounded retry budget
// for a contended session row is exhausted. Callers may retry the whole
// request; the engine will not.
type ConcurrentModificationError struct {
	SessionID string
	Attempts  int
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("session %s was modified concurrently (%d attempts)", e.SessionID, e.Attempts)
}

// SPDX-License-Identifier: MIT

// Package workflow holds the session publishing domain model: the session
// entity, the immutable status log, the value objects exchanged between
// the scorer, validator and orchestrator, and the transition engine that
// owns every status change.
package workflow

import (
	"time"

	"github.com/trainhub/sessionflow/internal/types"
)

// Session is the subject of the publishing workflow.
//
// Only the transition engine may change Status and PublishedAt; every
// other component treats a Session as read-only input.
type Session struct {
	ID     string              `json:"id"`
	Status types.SessionStatus `json:"status"`

	Title       string `json:"title"`
	Objective   string `json:"objective"`
	Description string `json:"description,omitempty"`

	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`

	LocationID string `json:"location_id,omitempty"`
	TrainerID  string `json:"trainer_id,omitempty"`
	TopicID    string `json:"topic_id,omitempty"`

	// Marketing fields are optional; their absence is a warning, their
	// presence a small completeness bonus.
	Headline     string `json:"headline,omitempty"`
	Summary      string `json:"summary,omitempty"`
	KeyBenefits  string `json:"key_benefits,omitempty"`
	CallToAction string `json:"call_to_action,omitempty"`

	// Integration surface.
	LandingPageURL  string `json:"landing_page_url,omitempty"`
	RegistrationURL string `json:"registration_url,omitempty"`

	// AcceptedContentKinds lists the content kinds that have at least one
	// accepted version, loaded alongside the session.
	AcceptedContentKinds []string `json:"accepted_content_kinds,omitempty"`

	// RegistrationCount gates the PUBLISHED → DRAFT regression.
	RegistrationCount int `json:"registration_count"`

	// Readiness is the last computed readiness percentage, persisted for
	// cheap display reads. Decisions always recompute it.
	Readiness int `json:"readiness"`

	// PublishedAt is set exactly once per publish transition and cleared
	// only when the session regresses out of the published state.
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// Validation cache, written best-effort by the validator. Never
	// trusted when a decision is made.
	ValidationValid     bool       `json:"validation_valid"`
	ValidationMessages  []string   `json:"validation_messages,omitempty"`
	ValidationCheckedAt *time.Time `json:"validation_checked_at,omitempty"`

	// Version is the optimistic-concurrency token bumped on every commit.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration returns the scheduled length of the session, or zero when the
// schedule is incomplete.
func (s *Session) Duration() time.Duration {
	if s.StartsAt.IsZero() || s.EndsAt.IsZero() {
		return 0
	}
	return s.EndsAt.Sub(s.StartsAt)
}

// HasContentKind reports whether at least one accepted content version of
// the given kind exists.
func (s *Session) HasContentKind(kind string) bool {
	for _, k := range s.AcceptedContentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// StatusLogEntry is the append-only audit record written alongside every
// status change. Entries are never updated or deleted, and never created
// outside a successful transition.
type StatusLogEntry struct {
	ID        string              `json:"id"`
	SessionID string              `json:"session_id"`
	From      types.SessionStatus `json:"from"`
	To        types.SessionStatus `json:"to"`

	// Actor is empty for automated transitions.
	Actor     string `json:"actor,omitempty"`
	Automated bool   `json:"automated"`
	Remark    string `json:"remark,omitempty"`

	// Readiness and Snapshot capture the readiness state used to decide
	// the transition.
	Readiness int             `json:"readiness"`
	Snapshot  ReadinessResult `json:"snapshot"`

	CreatedAt time.Time `json:"created_at"`
}

// ValidationError is a single validation finding. Severity error blocks
// publication, severity warning does not.
type ValidationError struct {
	Field    string         `json:"field"`
	Message  string         `json:"message"`
	Severity types.Severity `json:"severity"`
}

// CategoryCheck is one entry of the readiness checklist.
type CategoryCheck struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Passed   bool   `json:"passed"`
}

// ReadinessResult is the outcome of a readiness scoring pass.
type ReadinessResult struct {
	Percentage         int             `json:"percentage"`
	Checks             []CategoryCheck `json:"checks"`
	RecommendedActions []string        `json:"recommended_actions,omitempty"`
	CanPublish         bool            `json:"can_publish"`
}

// ConflictRef identifies a published session that overlaps the candidate.
type ConflictRef struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// PublishVerdict is the orchestrator's answer to "may this session be
// published right now".
type PublishVerdict struct {
	CanPublish bool              `json:"can_publish"`
	Reason     string            `json:"reason,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
	Conflicts  []ConflictRef     `json:"conflicts,omitempty"`
}

// Incentive is a time-bounded promotional offer attached to a session.
// The scheduler expires incentives past their end date.
type Incentive struct {
	ID        string                `json:"id"`
	SessionID string                `json:"session_id,omitempty"`
	Name      string                `json:"name"`
	Status    types.IncentiveStatus `json:"status"`
	EndsAt    time.Time             `json:"ends_at"`
}

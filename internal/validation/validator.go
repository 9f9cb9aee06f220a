// SPDX-License-Identifier: MIT

// Package validation checks required fields, scheduling sanity and
// marketing completeness for sessions ahead of publication.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/trainhub/sessionflow/internal/config"
	"github.com/trainhub/sessionflow/internal/log"
	"github.com/trainhub/sessionflow/internal/metrics"
	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/workflow"
)

// Result is the outcome of a validation pass.
type Result struct {
	Errors   []workflow.ValidationError `json:"errors,omitempty"`
	Warnings []workflow.ValidationError `json:"warnings,omitempty"`
	Score    int                        `json:"score"`
}

// Valid reports whether the pass found no blocking errors.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Messages flattens every finding into display strings, errors first.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Errors)+len(r.Warnings))
	for _, e := range r.Errors {
		out = append(out, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	for _, w := range r.Warnings {
		out = append(out, fmt.Sprintf("%s: %s", w.Field, w.Message))
	}
	return out
}

// CacheWriter persists the validation outcome onto the session row. The
// write is a read optimization only; decisions always revalidate.
type CacheWriter interface {
	WriteValidationCache(ctx context.Context, sessionID string, valid bool, messages []string, checkedAt time.Time) error
}

// Validator applies the content and scheduling rules.
type Validator struct {
	cfg    config.Workflow
	cache  CacheWriter
	now    func() time.Time
	logger zerolog.Logger
}

// NewValidator creates a validator. The cache writer may be nil, in which
// case outcomes are not persisted.
func NewValidator(cfg config.Workflow, cache CacheWriter) *Validator {
	return &Validator{
		cfg:    cfg,
		cache:  cache,
		now:    time.Now,
		logger: log.WithComponent("validation"),
	}
}

// WithClock overrides the validator's time source.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate runs the full rule set. The lead-time rule applies only when
// the session is already published; use ValidateForPublish when deciding
// a publish request.
func (v *Validator) Validate(ctx context.Context, s *workflow.Session) Result {
	return v.run(ctx, s, s.Status == types.StatusPublished)
}

// ValidateForPublish runs the full rule set with the lead-time rule
// always applied, as used by the publishing orchestrator.
func (v *Validator) ValidateForPublish(ctx context.Context, s *workflow.Session) Result {
	return v.run(ctx, s, true)
}

func (v *Validator) run(ctx context.Context, s *workflow.Session, forPublish bool) Result {
	var res Result

	addError := func(field, message string) {
		res.Errors = append(res.Errors, workflow.ValidationError{
			Field: field, Message: message, Severity: types.SeverityError,
		})
	}
	addWarning := func(field, message string) {
		res.Warnings = append(res.Warnings, workflow.ValidationError{
			Field: field, Message: message, Severity: types.SeverityWarning,
		})
	}

	// Required fields.
	if s.Title == "" {
		addError("title", "title is required")
	}
	if s.Objective == "" && s.Description == "" {
		addError("objective", "description or objective is required")
	}
	if s.StartsAt.IsZero() {
		addError("starts_at", "start time is required")
	}
	if s.EndsAt.IsZero() {
		addError("ends_at", "end time is required")
	}
	if s.LocationID == "" {
		addError("location_id", "location is required")
	}
	if s.TrainerID == "" {
		addError("trainer_id", "trainer is required")
	}

	now := v.now()

	// Scheduling sanity.
	if !s.StartsAt.IsZero() && !s.EndsAt.IsZero() {
		if !s.EndsAt.After(s.StartsAt) {
			addError("ends_at", "end time must be after start time")
		} else {
			d := s.Duration()
			if d < v.cfg.MinDuration {
				addWarning("duration", fmt.Sprintf("duration %s is under the %s minimum", d, v.cfg.MinDuration))
			} else if d > v.cfg.MaxDuration {
				addWarning("duration", fmt.Sprintf("duration %s exceeds the %s maximum", d, v.cfg.MaxDuration))
			}
		}
	}

	if forPublish && !s.StartsAt.IsZero() {
		if s.StartsAt.Before(now.Add(v.cfg.PublishLeadTime)) {
			addError("starts_at", fmt.Sprintf("start time must be at least %s in the future to publish", v.cfg.PublishLeadTime))
		}
	}

	if !s.StartsAt.IsZero() {
		hour := s.StartsAt.Hour()
		if hour < v.cfg.BusinessHoursStart || hour >= v.cfg.BusinessHoursEnd {
			addWarning("starts_at", fmt.Sprintf("start time is outside business hours (%02d:00-%02d:00)",
				v.cfg.BusinessHoursStart, v.cfg.BusinessHoursEnd))
		}
	}

	// Optional marketing fields: one warning each when absent, a small
	// score bonus when present.
	marketing := []struct {
		field string
		value string
	}{
		{"headline", s.Headline},
		{"summary", s.Summary},
		{"key_benefits", s.KeyBenefits},
		{"call_to_action", s.CallToAction},
	}
	bonus := 0
	for _, m := range marketing {
		if m.value == "" {
			addWarning(m.field, fmt.Sprintf("missing optional marketing field %s", m.field))
		} else {
			bonus += v.cfg.MarketingBonus
		}
	}

	score := 100 - len(res.Errors)*v.cfg.ErrorPenalty - len(res.Warnings)*v.cfg.WarningPenalty
	score = clamp(score)
	score = clamp(score + bonus)
	res.Score = score

	if !res.Valid() {
		metrics.ValidationFailure()
	}

	v.writeCache(ctx, s.ID, res, now)
	return res
}

// writeCache persists the outcome best-effort; a failure is logged and
// never propagated.
func (v *Validator) writeCache(ctx context.Context, sessionID string, res Result, checkedAt time.Time) {
	if v.cache == nil || sessionID == "" {
		return
	}
	if err := v.cache.WriteValidationCache(ctx, sessionID, res.Valid(), res.Messages(), checkedAt); err != nil {
		v.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Msg("failed to persist validation cache")
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

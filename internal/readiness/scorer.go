// SPDX-License-Identifier: MIT

// Package readiness computes the weighted completeness score that gates
// session publication.
package readiness

import (
	"math"

	"github.com/trainhub/sessionflow/internal/config"
	"github.com/trainhub/sessionflow/internal/workflow"
)

// Category identifiers form a closed set; an unknown category is a
// programming error, not a silent no-op.
const (
	CategoryMetadata    = "metadata"
	CategoryContent     = "content"
	CategoryAssignment  = "assignment"
	CategoryIntegration = "integration"
)

// Categories lists the checklist categories in scoring order.
var Categories = []string{CategoryMetadata, CategoryContent, CategoryAssignment, CategoryIntegration}

// RequiredContentKinds are the content kinds that must each have at least
// one accepted version before a session is complete.
var RequiredContentKinds = []string{"outline", "marketing_copy"}

// check pairs a checklist entry with its remediation text.
type check struct {
	name     string
	required bool
	passed   func(*workflow.Session) bool
	action   string
}

var categoryChecks = map[string][]check{
	CategoryMetadata: {
		{
			name:     "title",
			required: true,
			passed:   func(s *workflow.Session) bool { return s.Title != "" },
			action:   "Add a session title.",
		},
		{
			name:     "objective",
			required: true,
			passed:   func(s *workflow.Session) bool { return s.Objective != "" },
			action:   "Describe the learning objective.",
		},
		{
			name:     "schedule",
			required: true,
			passed: func(s *workflow.Session) bool {
				return !s.StartsAt.IsZero() && !s.EndsAt.IsZero() && s.EndsAt.After(s.StartsAt)
			},
			action: "Set a start and end time, with the end after the start.",
		},
	},
	CategoryContent: {
		{
			name:     "outline",
			required: true,
			passed:   func(s *workflow.Session) bool { return s.HasContentKind("outline") },
			action:   "Accept at least one outline content version.",
		},
		{
			name:     "marketing_copy",
			required: true,
			passed:   func(s *workflow.Session) bool { return s.HasContentKind("marketing_copy") },
			action:   "Accept at least one marketing copy version.",
		},
	},
	CategoryAssignment: {
		{
			name:     "trainer",
			required: true,
			passed:   func(s *workflow.Session) bool { return s.TrainerID != "" },
			action:   "Assign a trainer.",
		},
		{
			name:     "location",
			required: true,
			passed:   func(s *workflow.Session) bool { return s.LocationID != "" },
			action:   "Assign a location.",
		},
		{
			name:     "topic",
			required: false,
			passed:   func(s *workflow.Session) bool { return s.TopicID != "" },
			action:   "Assign a topic for better discoverability.",
		},
	},
	CategoryIntegration: {
		{
			name:     "registration_path",
			required: true,
			passed: func(s *workflow.Session) bool {
				return s.LandingPageURL != "" || s.RegistrationURL != ""
			},
			action: "Link a landing page or registration form.",
		},
	},
}

// Scorer computes readiness results against a fixed configuration.
// Scoring is pure: it never mutates the session.
type Scorer struct {
	cfg config.Workflow
}

// NewScorer creates a scorer with the given workflow configuration.
func NewScorer(cfg config.Workflow) *Scorer {
	return &Scorer{cfg: cfg}
}

// Threshold returns the configured minimum percentage for publication.
func (sc *Scorer) Threshold() int {
	return sc.cfg.ReadinessThreshold
}

// Score computes the weighted readiness result for a session.
//
// Each category contributes the fraction of its required checks that pass,
// multiplied by its weight. CanPublish requires the total to reach the
// threshold and every required check to pass, whatever its category's
// weight.
func (sc *Scorer) Score(s *workflow.Session) workflow.ReadinessResult {
	weights := map[string]int{
		CategoryMetadata:    sc.cfg.Weights.Metadata,
		CategoryContent:     sc.cfg.Weights.Content,
		CategoryAssignment:  sc.cfg.Weights.Assignment,
		CategoryIntegration: sc.cfg.Weights.Integration,
	}

	var (
		total   float64
		checks  []workflow.CategoryCheck
		actions []string
		blocked bool
	)

	for _, category := range Categories {
		requiredTotal, requiredPassed := 0, 0
		for _, c := range categoryChecks[category] {
			passed := c.passed(s)
			checks = append(checks, workflow.CategoryCheck{
				Category: category,
				Name:     c.name,
				Required: c.required,
				Passed:   passed,
			})
			if !c.required {
				continue
			}
			requiredTotal++
			if passed {
				requiredPassed++
			} else {
				blocked = true
				actions = append(actions, c.action)
			}
		}
		if requiredTotal > 0 {
			total += float64(requiredPassed) / float64(requiredTotal) * float64(weights[category])
		}
	}

	percentage := int(math.Round(total))
	if percentage > 100 {
		percentage = 100
	}

	return workflow.ReadinessResult{
		Percentage:         percentage,
		Checks:             checks,
		RecommendedActions: actions,
		CanPublish:         percentage >= sc.cfg.ReadinessThreshold && !blocked,
	}
}

// ChecklistForCategory evaluates a single category for UI display without
// running a full scoring pass. It returns nil for an unknown category.
func (sc *Scorer) ChecklistForCategory(s *workflow.Session, category string) []workflow.CategoryCheck {
	defs, ok := categoryChecks[category]
	if !ok {
		return nil
	}
	out := make([]workflow.CategoryCheck, 0, len(defs))
	for _, c := range defs {
		out = append(out, workflow.CategoryCheck{
			Category: category,
			Name:     c.name,
			Required: c.required,
			Passed:   c.passed(s),
		})
	}
	return out
}

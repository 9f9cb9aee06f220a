// SPDX-License-Identifier: MIT

// Package config loads and validates the sessionflow daemon configuration.
//
// All tunables are supplied through environment variables with inline
// defaults; services receive an explicit Workflow value at construction
// time rather than reading ambient state, so tests can inject
// deterministic values.
package config

import (
	"fmt"
	"time"
)

// Weights distributes the readiness score across the four checklist
// categories. The values must sum to 100.
type Weights struct {
	Metadata    int
	Content     int
	Assignment  int
	Integration int
}

// Sum returns the total of all category weights.
func (w Weights) Sum() int {
	return w.Metadata + w.Content + w.Assignment + w.Integration
}

// Workflow carries every tunable of the publishing workflow.
type Workflow struct {
	// ReadinessThreshold is the minimum readiness percentage required for
	// publication (0-100).
	ReadinessThreshold int

	// Weights distributes the readiness score across categories.
	Weights Weights

	// PublishLeadTime is the minimum interval between "now" and a
	// session's start time for it to be publishable.
	PublishLeadTime time.Duration

	// BusinessHoursStart and BusinessHoursEnd bound the start-of-day
	// window (hour of day, display timezone) a session should start in.
	BusinessHoursStart int
	BusinessHoursEnd   int

	// MinDuration and MaxDuration bound the sane session length band.
	// Violations are warnings, not errors.
	MinDuration time.Duration
	MaxDuration time.Duration

	// ErrorPenalty and WarningPenalty are subtracted from the validator's
	// completeness score per finding; MarketingBonus is added per present
	// optional marketing field.
	ErrorPenalty   int
	WarningPenalty int
	MarketingBonus int

	// SchedulerInterval is the cadence of the background workflow sweep.
	SchedulerInterval time.Duration
}

// Server carries the HTTP listener settings.
type Server struct {
	Addr              string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// App is the root configuration of the daemon.
type App struct {
	DBPath   string
	LogLevel string
	Workflow Workflow
	Server   Server
}

// DefaultWorkflow returns the reference workflow tunables.
func DefaultWorkflow() Workflow {
	return Workflow{
		ReadinessThreshold: 70,
		Weights: Weights{
			Metadata:    30,
			Content:     30,
			Assignment:  25,
			Integration: 15,
		},
		PublishLeadTime:    24 * time.Hour,
		BusinessHoursStart: 6,
		BusinessHoursEnd:   22,
		MinDuration:        30 * time.Minute,
		MaxDuration:        8 * time.Hour,
		ErrorPenalty:       20,
		WarningPenalty:     5,
		MarketingBonus:     2,
		SchedulerInterval:  15 * time.Minute,
	}
}

// Load builds the daemon configuration from the environment, applying the
// reference defaults for anything unset.
func Load() App {
	def := DefaultWorkflow()
	return App{
		DBPath:   ParseString("SESSIONFLOW_DB", "sessionflow.db"),
		LogLevel: ParseString("LOG_LEVEL", "info"),
		Workflow: Workflow{
			ReadinessThreshold: ParseInt("SESSIONFLOW_READINESS_THRESHOLD", def.ReadinessThreshold),
			Weights: Weights{
				Metadata:    ParseInt("SESSIONFLOW_WEIGHT_METADATA", def.Weights.Metadata),
				Content:     ParseInt("SESSIONFLOW_WEIGHT_CONTENT", def.Weights.Content),
				Assignment:  ParseInt("SESSIONFLOW_WEIGHT_ASSIGNMENT", def.Weights.Assignment),
				Integration: ParseInt("SESSIONFLOW_WEIGHT_INTEGRATION", def.Weights.Integration),
			},
			PublishLeadTime:    ParseDuration("SESSIONFLOW_PUBLISH_LEAD_TIME", def.PublishLeadTime),
			BusinessHoursStart: ParseInt("SESSIONFLOW_BUSINESS_HOURS_START", def.BusinessHoursStart),
			BusinessHoursEnd:   ParseInt("SESSIONFLOW_BUSINESS_HOURS_END", def.BusinessHoursEnd),
			MinDuration:        ParseDuration("SESSIONFLOW_MIN_DURATION", def.MinDuration),
			MaxDuration:        ParseDuration("SESSIONFLOW_MAX_DURATION", def.MaxDuration),
			ErrorPenalty:       ParseInt("SESSIONFLOW_ERROR_PENALTY", def.ErrorPenalty),
			WarningPenalty:     ParseInt("SESSIONFLOW_WARNING_PENALTY", def.WarningPenalty),
			MarketingBonus:     ParseInt("SESSIONFLOW_MARKETING_BONUS", def.MarketingBonus),
			SchedulerInterval:  ParseDuration("SESSIONFLOW_SCHEDULER_INTERVAL", def.SchedulerInterval),
		},
		Server: Server{
			Addr:              ParseString("SESSIONFLOW_LISTEN", ":8080"),
			RateLimitRequests: ParseInt("SESSIONFLOW_RATE_LIMIT", 100),
			RateLimitWindow:   ParseDuration("SESSIONFLOW_RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

// Validate rejects configurations that would make the workflow
// undecidable or the scheduler spin.
func (w Workflow) Validate() error {
	if w.ReadinessThreshold < 0 || w.ReadinessThreshold > 100 {
		return fmt.Errorf("readiness threshold %d outside [0,100]", w.ReadinessThreshold)
	}
	if sum := w.Weights.Sum(); sum != 100 {
		return fmt.Errorf("category weights sum to %d, want 100", sum)
	}
	if w.PublishLeadTime < 0 {
		return fmt.Errorf("publish lead time %s is negative", w.PublishLeadTime)
	}
	if w.BusinessHoursStart < 0 || w.BusinessHoursEnd > 24 || w.BusinessHoursStart >= w.BusinessHoursEnd {
		return fmt.Errorf("business hours window [%d,%d) is invalid", w.BusinessHoursStart, w.BusinessHoursEnd)
	}
	if w.MinDuration <= 0 || w.MaxDuration <= w.MinDuration {
		return fmt.Errorf("duration band [%s,%s] is invalid", w.MinDuration, w.MaxDuration)
	}
	if w.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler interval %s must be positive", w.SchedulerInterval)
	}
	return nil
}

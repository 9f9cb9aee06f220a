// SPDX-License-Identifier: MIT

// Package audit provides structured audit logging for workflow state
// changes. It follows the WHO/WHAT/WHEN pattern for compliance and
// forensics.
package audit

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/trainhub/sessionflow/internal/log"
	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/workflow"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Transition events
	EventTransition    EventType = "session.transition"
	EventPublish       EventType = "session.publish"
	EventPublishDenied EventType = "session.publish.denied"

	// Automation events
	EventSchedulerSweep  EventType = "scheduler.sweep"
	EventIncentiveExpire EventType = "incentive.expire"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor"`    // WHO: username or "system"
	Action    string            `json:"action"`   // WHAT: human-readable action description
	Resource  string            `json:"resource"` // entity affected (session or incentive id)
	Result    string            `json:"result"`   // success, failure, denied
	Details   map[string]string `json:"details,omitempty"`
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	auditLogger := log.WithComponent("audit").With().
		Str("log_type", "audit").
		Logger()

	return &Logger{logger: auditLogger}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// TransitionCommitted implements workflow.Auditor. It records a durably
// committed status change.
func (l *Logger) TransitionCommitted(entry *workflow.StatusLogEntry) {
	actor := entry.Actor
	if actor == "" {
		actor = "system"
	}
	eventType := EventTransition
	if entry.To == types.StatusPublished {
		eventType = EventPublish
	}

	l.Log(Event{
		Timestamp: entry.CreatedAt,
		Type:      eventType,
		Actor:     actor,
		Action:    "changed session status from " + entry.From.String() + " to " + entry.To.String(),
		Resource:  entry.SessionID,
		Result:    "success",
		Details: map[string]string{
			"automated": boolString(entry.Automated),
			"remark":    entry.Remark,
		},
	})
}

// PublishDenied records a rejected publish request.
func (l *Logger) PublishDenied(sessionID, actor, reason string) {
	if actor == "" {
		actor = "system"
	}
	l.Log(Event{
		Type:     EventPublishDenied,
		Actor:    actor,
		Action:   "attempted to publish session",
		Resource: sessionID,
		Result:   "denied",
		Details:  map[string]string{"reason": reason},
	})
}

// IncentiveExpired records an automated incentive expiry.
func (l *Logger) IncentiveExpired(incentiveID, name string) {
	l.Log(Event{
		Type:     EventIncentiveExpire,
		Actor:    "system",
		Action:   "expired incentive " + name,
		Resource: incentiveID,
		Result:   "success",
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

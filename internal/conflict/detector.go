// SPDX-License-Identifier: MIT

// Package conflict finds published sessions whose time windows overlap a
// candidate session at the same resource.
package conflict

import (
	"context"
	"fmt"

	"github.com/trainhub/sessionflow/internal/workflow"
)

// Querier is the store contract for interval-overlap lookups. The query
// must restrict to PUBLISHED sessions sharing the location or trainer,
// exclude the candidate itself, and apply the half-open intersection
// rule a < d && c < b on [start, end).
type Querier interface {
	FindPublishedOverlapping(ctx context.Context, s *workflow.Session) ([]workflow.Session, error)
}

// Detector checks a candidate session for scheduling conflicts.
type Detector struct {
	store Querier
}

// NewDetector creates a conflict detector over the given store.
func NewDetector(store Querier) *Detector {
	return &Detector{store: store}
}

// FindConflicts returns the published sessions overlapping the candidate
// at the same location or with the same trainer. Sessions without a
// complete schedule or without any resource reference cannot conflict.
func (d *Detector) FindConflicts(ctx context.Context, s *workflow.Session) ([]workflow.Session, error) {
	if s.StartsAt.IsZero() || s.EndsAt.IsZero() {
		return nil, nil
	}
	if s.LocationID == "" && s.TrainerID == "" {
		return nil, nil
	}
	conflicts, err := d.store.FindPublishedOverlapping(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("overlap query: %w", err)
	}
	return conflicts, nil
}

// Refs converts conflicting sessions into display references.
func Refs(sessions []workflow.Session) []workflow.ConflictRef {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]workflow.ConflictRef, 0, len(sessions))
	for _, c := range sessions {
		out = append(out, workflow.ConflictRef{
			SessionID: c.ID,
			Title:     c.Title,
			StartsAt:  c.StartsAt,
			EndsAt:    c.EndsAt,
		})
	}
	return out
}

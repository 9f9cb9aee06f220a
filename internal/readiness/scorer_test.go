// SPDX-License-Identifier: MIT

package readiness_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainhub/sessionflow/internal/config"
	"github.com/trainhub/sessionflow/internal/readiness"
	"github.com/trainhub/sessionflow/internal/workflow"
)

func completeSession() *workflow.Session {
	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	return &workflow.Session{
		ID:                   "s1",
		Title:                "Go Fundamentals",
		Objective:            "Learn the basics of Go",
		StartsAt:             start,
		EndsAt:               start.Add(2 * time.Hour),
		TrainerID:            "t1",
		LocationID:           "l1",
		TopicID:              "topic1",
		LandingPageURL:       "https://example.com/go",
		AcceptedContentKinds: []string{"outline", "marketing_copy"},
	}
}

func TestScorer_CompleteSessionScoresFull(t *testing.T) {
	sc := readiness.NewScorer(config.DefaultWorkflow())

	result := sc.Score(completeSession())
	assert.Equal(t, 100, result.Percentage)
	assert.True(t, result.CanPublish)
	assert.Empty(t, result.RecommendedActions)

	// Every category contributes checks to the result.
	seen := map[string]bool{}
	for _, c := range result.Checks {
		seen[c.Category] = true
	}
	for _, category := range readiness.Categories {
		assert.True(t, seen[category], "category %s missing from checks", category)
	}
}

func TestScorer_EmptySessionScoresZero(t *testing.T) {
	sc := readiness.NewScorer(config.DefaultWorkflow())

	result := sc.Score(&workflow.Session{ID: "s1"})
	assert.Equal(t, 0, result.Percentage)
	assert.False(t, result.CanPublish)
	assert.NotEmpty(t, result.RecommendedActions)
}

func TestScorer_WeightsArePartial(t *testing.T) {
	cfg := config.DefaultWorkflow()
	sc := readiness.NewScorer(cfg)

	// Two of three metadata checks pass, everything else fails.
	s := &workflow.Session{
		ID:        "s1",
		Title:     "Go Fundamentals",
		Objective: "Learn the basics of Go",
	}
	result := sc.Score(s)
	want := int(float64(cfg.Weights.Metadata) * 2 / 3)
	assert.Equal(t, want, result.Percentage)
	assert.False(t, result.CanPublish)
}

func TestScorer_RequiredFailureBlocksAboveThreshold(t *testing.T) {
	cfg := config.DefaultWorkflow()
	sc := readiness.NewScorer(cfg)

	// All categories except integration pass: 30+30+25 = 85 >= 70, but the
	// missing registration path is a required check and must still block.
	s := completeSession()
	s.LandingPageURL = ""
	s.RegistrationURL = ""

	result := sc.Score(s)
	assert.GreaterOrEqual(t, result.Percentage, cfg.ReadinessThreshold)
	assert.False(t, result.CanPublish)
	assert.Contains(t, result.RecommendedActions, "Link a landing page or registration form.")
}

func TestScorer_OptionalCheckDoesNotBlock(t *testing.T) {
	sc := readiness.NewScorer(config.DefaultWorkflow())

	s := completeSession()
	s.TopicID = ""

	result := sc.Score(s)
	assert.Equal(t, 100, result.Percentage, "optional checks carry no weight")
	assert.True(t, result.CanPublish)

	var topic *workflow.CategoryCheck
	for i := range result.Checks {
		if result.Checks[i].Name == "topic" {
			topic = &result.Checks[i]
		}
	}
	require.NotNil(t, topic)
	assert.False(t, topic.Passed)
	assert.False(t, topic.Required)
}

func TestScorer_ScheduleRequiresEndAfterStart(t *testing.T) {
	sc := readiness.NewScorer(config.DefaultWorkflow())

	s := completeSession()
	s.EndsAt = s.StartsAt.Add(-time.Hour)

	result := sc.Score(s)
	assert.False(t, result.CanPublish)
	assert.Contains(t, result.RecommendedActions, "Set a start and end time, with the end after the start.")
}

func TestScorer_RegistrationURLSatisfiesIntegration(t *testing.T) {
	sc := readiness.NewScorer(config.DefaultWorkflow())

	s := completeSession()
	s.LandingPageURL = ""
	s.RegistrationURL = "https://example.com/register"

	result := sc.Score(s)
	assert.True(t, result.CanPublish)
}

func TestScorer_ChecklistForCategory(t *testing.T) {
	sc := readiness.NewScorer(config.DefaultWorkflow())
	s := completeSession()

	checks := sc.ChecklistForCategory(s, readiness.CategoryContent)
	require.Len(t, checks, 2)
	for _, c := range checks {
		assert.Equal(t, readiness.CategoryContent, c.Category)
		assert.True(t, c.Passed)
	}

	assert.Nil(t, sc.ChecklistForCategory(s, "nonsense"))
}

func TestScorer_Threshold(t *testing.T) {
	cfg := config.DefaultWorkflow()
	cfg.ReadinessThreshold = 90
	sc := readiness.NewScorer(cfg)
	assert.Equal(t, 90, sc.Threshold())
}

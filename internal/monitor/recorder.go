// SPDX-License-Identifier: MIT

package monitor

import "sync/atomic"

// Recorder tracks automation outcomes in-process for the trailing-window
// metrics the store cannot answer (attempts that never reached a commit).
// It is safe for concurrent use.
type Recorder struct {
	publishAttempts   atomic.Int64
	publishSuccesses  atomic.Int64
	publishFailures   atomic.Int64
	conflictsDetected atomic.Int64
}

// RecorderSnapshot is a point-in-time copy of the recorder's counters.
type RecorderSnapshot struct {
	PublishAttempts   int64
	PublishSuccesses  int64
	PublishFailures   int64
	ConflictsDetected int64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordPublishAttempt notes one automatic publication attempt and its
// outcome ("published", "not_ready" or "error").
func (r *Recorder) RecordPublishAttempt(outcome string) {
	r.publishAttempts.Add(1)
	switch outcome {
	case "published":
		r.publishSuccesses.Add(1)
	case "error":
		r.publishFailures.Add(1)
	}
}

// RecordConflict notes one detected scheduling conflict.
func (r *Recorder) RecordConflict() {
	r.conflictsDetected.Add(1)
}

// Snapshot returns a consistent copy of the counters.
func (r *Recorder) Snapshot() RecorderSnapshot {
	return RecorderSnapshot{
		PublishAttempts:   r.publishAttempts.Load(),
		PublishSuccesses:  r.publishSuccesses.Load(),
		PublishFailures:   r.publishFailures.Load(),
		ConflictsDetected: r.conflictsDetected.Load(),
	}
}

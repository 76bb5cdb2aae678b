package domain

import "time"

// JobState describes where a remote asynchronous execution is in its
// lifecycle.
type JobState string

const (
	JobStateDispatched JobState = "dispatched"
	JobStatePolling    JobState = "polling"
	JobStateSucceeded  JobState = "succeeded"
	JobStateFailed     JobState = "failed"
	JobStateTimedOut   JobState = "timed_out"
)

// Terminal reports whether no further state transitions are possible.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateTimedOut:
		return true
	}
	return false
}

// JobInput is the opaque payload handed to the execution service.
// The service treats values as free-form workflow inputs.
type JobInput map[string]string

// JobHandle identifies one remote execution. It is owned by the runner
// that created it and is discarded once the artifact is consumed or
// the job reaches a terminal failure state.
type JobHandle struct {
	RunID      string
	Input      JobInput
	State      JobState
	ArtifactID string // set once a completed artifact has been observed

	DispatchedAt time.Time
	artifactRead bool
}

// MarkArtifactConsumed records that the artifact has been fetched.
// A handle allows exactly one successful fetch.
func (h *JobHandle) MarkArtifactConsumed() { h.artifactRead = true }

// ArtifactConsumed reports whether the artifact was already fetched.
func (h *JobHandle) ArtifactConsumed() bool { return h.artifactRead }

// JobResult is the outcome of awaiting a job's completion.
type JobResult struct {
	RunID      string
	State      JobState
	ArtifactID string
}

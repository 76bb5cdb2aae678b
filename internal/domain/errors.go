package domain

import "errors"

// Job layer errors.
var (
	// ErrDispatch is returned when the execution service rejects a
	// dispatch request or is unreachable at dispatch time.
	ErrDispatch = errors.New("dispatch rejected or service unreachable")

	// ErrPoll is returned when the execution service becomes
	// unreachable while a job is being polled.
	ErrPoll = errors.New("execution service unreachable during poll")

	// ErrTimeout is returned when a job does not reach a terminal
	// state within the configured max wait.
	ErrTimeout = errors.New("job did not complete within max wait")

	// ErrArtifactMissing is returned when the execution service reports
	// a successful run but no artifact is attached.
	ErrArtifactMissing = errors.New("job succeeded but artifact is missing")
)

// Batch layer errors.
var (
	// ErrRateLimited marks a recipient whose rate-limit key is already
	// at its ceiling.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrRemoteCall wraps a failed per-recipient remote operation.
	ErrRemoteCall = errors.New("remote call failed")

	// ErrPrecondition marks a batch-level violation (empty recipient
	// list, missing credential) detected before any remote call.
	ErrPrecondition = errors.New("batch precondition violated")
)

// ErrSessionNotFound is returned when an auth session has expired or
// never existed.
var ErrSessionNotFound = errors.New("auth session not found")

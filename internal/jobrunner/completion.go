package jobrunner

import (
	"context"

	"batch-disburser/internal/domain"
)

// CompletionRunner collapses the dispatch, await and cleanup steps
// into a single blocking call for callers that only need the run to
// finish, not its artifact.
type CompletionRunner struct {
	runner *Runner
	policy PollPolicy
}

func NewCompletionRunner(runner *Runner, policy PollPolicy) *CompletionRunner {
	return &CompletionRunner{runner: runner, policy: policy}
}

// RunToCompletion dispatches input and waits for the run to finish.
// The produced artifact is deleted; only the run id is returned.
func (c *CompletionRunner) RunToCompletion(ctx context.Context, input domain.JobInput) (string, error) {
	handle, err := c.runner.Dispatch(ctx, input)
	if err != nil {
		return "", err
	}

	result, err := c.runner.AwaitCompletion(ctx, handle, c.policy)
	if err != nil {
		return handle.RunID, err
	}

	c.runner.Cleanup(ctx, handle)
	return result.RunID, nil
}

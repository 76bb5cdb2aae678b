package domain

import "context"

// LeaderElectionManager elects the single node allowed to fire
// scheduled batches.
type LeaderElectionManager interface {
	// Campaign blocks until leadership is won and returns a channel
	// that closes when leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}

package etcd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"batch-disburser/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	LeaderElectionKey = "/disburse/leader"
)

type leaderElectionManager struct {
	client   *clientv3.Client
	session  *concurrency.Session
	election *concurrency.Election
	isLeader bool
	mutex    sync.RWMutex
	nodeID   string
	ttl      time.Duration
	logger   *slog.Logger
}

// NewLeaderElectionManager creates a manager electing the single node
// allowed to fire scheduled batches.
func NewLeaderElectionManager(client *clientv3.Client, nodeID string, ttl time.Duration, logger *slog.Logger) domain.LeaderElectionManager {
	return &leaderElectionManager{
		client: client,
		nodeID: nodeID,
		ttl:    ttl,
		logger: logger.With("component", "leader-election"),
	}
}

func (m *leaderElectionManager) Campaign(ctx context.Context) (<-chan struct{}, error) {
	var err error
	// The session lease expires if this node dies, surrendering
	// leadership automatically.
	m.session, err = concurrency.NewSession(m.client, concurrency.WithTTL(int(m.ttl.Seconds())))
	if err != nil {
		return nil, err
	}

	m.election = concurrency.NewElection(m.session, LeaderElectionKey)

	// Campaign blocks until this node becomes the leader or the
	// context is canceled.
	if err := m.election.Campaign(ctx, m.nodeID); err != nil {
		return nil, err
	}

	m.logger.Info("became the scheduler leader", "node_id", m.nodeID)
	m.mutex.Lock()
	m.isLeader = true
	m.mutex.Unlock()

	return m.session.Done(), nil
}

func (m *leaderElectionManager) Resign(ctx context.Context) error {
	m.mutex.Lock()
	m.isLeader = false
	m.mutex.Unlock()

	if m.election != nil {
		m.logger.Info("resigning leadership", "node_id", m.nodeID)
		return m.election.Resign(ctx)
	}
	return nil
}

func (m *leaderElectionManager) IsLeader() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.isLeader
}

package domain

import "context"

// ScheduledBatch is a recurring disbursement: a batch request template
// fired on a cron schedule.
type ScheduledBatch struct {
	Name     string
	CronExpr string
	Request  BatchRequest
}

// Scheduler fires scheduled batches on the leader node.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()

	AddBatch(sb *ScheduledBatch) error
	RemoveBatch(name string) error
}

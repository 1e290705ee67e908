// File: internal/domain/ports/repository/job.go
package repository

import (
	"context"

	"telegram-memo-assistant/internal/domain/model"
)

// JobRepository is the authoritative record of job status. The consumer
// loop is the single writer per job; terminal rows are never deleted.
//
// Transition methods return domain.ErrAlreadyTerminal when the job has
// already reached a terminal state, which is how redelivered entries are
// detected and acknowledged without a second notification.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)

	// MarkProcessing transitions to processing and increments the attempt
	// count, returning the new count.
	MarkProcessing(ctx context.Context, id string) (int, error)

	// Requeue returns a job to queued after a retryable failure.
	Requeue(ctx context.Context, id string, lastError string) error

	Complete(ctx context.Context, id string, result string) error

	// Terminate moves the job to failed or expired.
	Terminate(ctx context.Context, id string, status model.JobStatus, lastError string) error
}

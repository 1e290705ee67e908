// File: internal/domain/ports/broker/stream.go
package broker

import (
	"context"
	"time"

	"telegram-memo-assistant/internal/domain/model"
)

// Entry is one delivered-but-unacknowledged broker record.
type Entry struct {
	ID     string
	Values map[string]interface{}
}

// StreamBroker is an ordered-per-partition durable log with consumer-group
// semantics: an entry stays claimable until acknowledged, acknowledgment is
// idempotent, and one partition exists per job kind.
type StreamBroker interface {
	Publish(ctx context.Context, kind model.JobKind, values map[string]interface{}) error

	// ReadNew blocks up to block for entries never delivered to the group.
	ReadNew(ctx context.Context, kind model.JobKind, consumer string, count int64, block time.Duration) ([]Entry, error)

	// ReadPending returns entries already delivered to this consumer but
	// not yet acknowledged (skipped or retried work). Never blocks.
	ReadPending(ctx context.Context, kind model.JobKind, consumer string, count int64) ([]Entry, error)

	// Claim transfers entries idle longer than minIdle from dead consumers.
	Claim(ctx context.Context, kind model.JobKind, consumer string, minIdle time.Duration, count int64) ([]Entry, error)

	Ack(ctx context.Context, kind model.JobKind, entryID string) error
}

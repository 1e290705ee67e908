package redis

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/broker"
)

var _ broker.StreamBroker = (*StreamBroker)(nil)

// StreamBroker implements the broker port on Redis Streams: one stream per
// job kind, one consumer group shared by all workers. Unacknowledged
// entries stay in a consumer's pending list and are either re-read by that
// consumer or auto-claimed by another once idle long enough, which is the
// whole crash-recovery story.
type StreamBroker struct {
	client *Client
	group  string
	prefix string
	log    *zerolog.Logger
}

func NewStreamBroker(client *Client, group, prefix string, logger *zerolog.Logger) *StreamBroker {
	compLog := logger.With().Str("component", "StreamBroker").Logger()
	return &StreamBroker{client: client, group: group, prefix: prefix, log: &compLog}
}

func (b *StreamBroker) stream(kind model.JobKind) string {
	return b.prefix + string(kind)
}

// EnsureGroups creates the consumer group on every kind's stream, creating
// the streams themselves as needed. Safe to call on every startup.
func (b *StreamBroker) EnsureGroups(ctx context.Context, kinds []model.JobKind) error {
	for _, kind := range kinds {
		err := b.client.cli.XGroupCreateMkStream(ctx, b.stream(kind), b.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
	}
	return nil
}

func (b *StreamBroker) Publish(ctx context.Context, kind model.JobKind, values map[string]interface{}) error {
	return b.client.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream(kind),
		Values: values,
	}).Err()
}

func (b *StreamBroker) ReadNew(ctx context.Context, kind model.JobKind, consumer string, count int64, block time.Duration) ([]broker.Entry, error) {
	res, err := b.client.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: consumer,
		Streams:  []string{b.stream(kind), ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flatten(res), nil
}

func (b *StreamBroker) ReadPending(ctx context.Context, kind model.JobKind, consumer string, count int64) ([]broker.Entry, error) {
	// Reading from id 0 returns this consumer's own pending entries
	// (delivered, never acknowledged) without blocking.
	res, err := b.client.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: consumer,
		Streams:  []string{b.stream(kind), "0"},
		Count:    count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flatten(res), nil
}

func (b *StreamBroker) Claim(ctx context.Context, kind model.JobKind, consumer string, minIdle time.Duration, count int64) ([]broker.Entry, error) {
	msgs, _, err := b.client.cli.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.stream(kind),
		Group:    b.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]broker.Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, broker.Entry{ID: m.ID, Values: m.Values})
	}
	return out, nil
}

func (b *StreamBroker) Ack(ctx context.Context, kind model.JobKind, entryID string) error {
	// XACK of an already-acknowledged id is a no-op, which gives the
	// pipeline its idempotent-ack guarantee for free.
	return b.client.cli.XAck(ctx, b.stream(kind), b.group, entryID).Err()
}

func flatten(streams []redis.XStream) []broker.Entry {
	var out []broker.Entry
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, broker.Entry{ID: m.ID, Values: m.Values})
		}
	}
	return out
}

// Package worker runs the consumer loops that drain the job streams and the
// dispatcher that paces outbound notifications.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain"
	"telegram-memo-assistant/internal/domain/gate"
	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/broker"
	"telegram-memo-assistant/internal/domain/ports/repository"
	"telegram-memo-assistant/internal/domain/retry"
	"telegram-memo-assistant/internal/infra/metrics"
	"telegram-memo-assistant/internal/usecase"
)

// ConsumerOptions tunes one kind's consumer loop.
type ConsumerOptions struct {
	Consumer       string
	Batch          int64
	Block          time.Duration
	ClaimMinIdle   time.Duration
	HandlerTimeout time.Duration
}

// Consumer drains one job kind's stream. Entries are acknowledged only once
// the job reaches a terminal state; everything else (gate hold, scheduled
// retry, transient store error) leaves the entry pending so the next cycle
// picks it up again.
type Consumer struct {
	kind    model.JobKind
	opts    ConsumerOptions
	broker  broker.StreamBroker
	jobs    repository.JobRepository
	handler usecase.Handler
	sink    usecase.NotificationSink
	gate    *gate.Gate
	ledger  *retry.Ledger
	policy  retry.Policy
	log     *zerolog.Logger
	now     func() time.Time
}

func NewConsumer(
	kind model.JobKind,
	opts ConsumerOptions,
	b broker.StreamBroker,
	jobs repository.JobRepository,
	handler usecase.Handler,
	sink usecase.NotificationSink,
	g *gate.Gate,
	ledger *retry.Ledger,
	policy retry.Policy,
	logger *zerolog.Logger,
) *Consumer {
	compLog := logger.With().Str("component", "Consumer").Str("kind", string(kind)).Logger()
	if opts.Consumer == "" {
		opts.Consumer = "consumer-" + string(kind)
	}
	if opts.Batch <= 0 {
		opts.Batch = 16
	}
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 60 * time.Second
	}
	return &Consumer{
		kind:    kind,
		opts:    opts,
		broker:  b,
		jobs:    jobs,
		handler: handler,
		sink:    sink,
		gate:    g,
		ledger:  ledger,
		policy:  policy,
		log:     &compLog,
		now:     time.Now,
	}
}

// Run processes the stream until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info().Str("consumer", c.opts.Consumer).Msg("consumer loop started")
	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("consumer loop stopped")
			return
		}
		if err := c.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error().Err(err).Msg("consumer cycle failed")
			c.wait(ctx, time.Second)
		}
	}
}

// Cycle performs one pass: reclaim entries from dead consumers, revisit this
// consumer's own pending entries (held or retrying work), then block briefly
// for new deliveries. Within one pass, once an entry for a user is held, the
// user's later entries are held too so their submission order survives.
func (c *Consumer) Cycle(ctx context.Context) error {
	held := make(map[int64]bool)

	if c.opts.ClaimMinIdle > 0 {
		claimed, err := c.broker.Claim(ctx, c.kind, c.opts.Consumer, c.opts.ClaimMinIdle, c.opts.Batch)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		c.processBatch(ctx, claimed, held)
	}

	pending, err := c.broker.ReadPending(ctx, c.kind, c.opts.Consumer, c.opts.Batch)
	if err != nil {
		return fmt.Errorf("read pending: %w", err)
	}
	c.processBatch(ctx, pending, held)

	fresh, err := c.broker.ReadNew(ctx, c.kind, c.opts.Consumer, c.opts.Batch, c.opts.Block)
	if err != nil {
		return fmt.Errorf("read new: %w", err)
	}
	c.processBatch(ctx, fresh, held)

	// Nothing new arrived and nothing was runnable; the blocking read above
	// already paced the loop unless it returned instantly with held work.
	if len(fresh) == 0 && len(held) > 0 {
		c.wait(ctx, c.opts.Block)
	}
	return nil
}

func (c *Consumer) processBatch(ctx context.Context, entries []broker.Entry, held map[int64]bool) {
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		c.process(ctx, e, held)
	}
}

func (c *Consumer) process(ctx context.Context, entry broker.Entry, held map[int64]bool) {
	job, err := model.JobFromStreamValues(entry.Values)
	if err != nil {
		// Undecodable entries can never make progress; drop them.
		c.log.Warn().Err(err).Str("entry_id", entry.ID).Msg("poison stream entry dropped")
		c.ack(ctx, entry.ID)
		return
	}
	log := c.log.With().Str("job_id", job.ID).Int64("user_id", job.UserID).Logger()

	if held[job.UserID] {
		return
	}

	if !job.Kind.Valid() {
		c.terminate(ctx, log, job, entry.ID, model.JobStatusFailed,
			fmt.Sprintf("unknown job kind %q", job.Kind),
			model.InvalidResponseFailure{JobKind: job.Kind, AnchorMemoID: job.Payload[model.PayloadKeyAnchorID]})
		return
	}

	if c.gate.IsBlocked(job.UserID) {
		metrics.IncGateSkip(string(c.kind))
		held[job.UserID] = true
		return
	}

	if at, ok := c.ledger.NextAttemptAt(job.ID); ok && c.now().Before(at) {
		held[job.UserID] = true
		return
	}

	stored, err := c.jobs.Get(ctx, job.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Warn().Msg("stream entry without stored job, dropping")
		c.ack(ctx, entry.ID)
		return
	case err != nil:
		log.Error().Err(err).Msg("job lookup failed, will retry")
		return
	case stored.Status.Terminal():
		// Redelivery of finished work; the outcome already went out once.
		c.ack(ctx, entry.ID)
		return
	}

	if c.policy.Expired(stored.CreatedAt, c.now()) {
		c.terminate(ctx, log, stored, entry.ID, model.JobStatusExpired, "retry horizon exceeded",
			model.ExpiredNotice{
				JobKind:      stored.Kind,
				AnchorMemoID: stored.Payload[model.PayloadKeyAnchorID],
				OriginalDate: stored.MessageSentAt(),
			})
		return
	}

	attempt, err := c.jobs.MarkProcessing(ctx, stored.ID)
	switch {
	case errors.Is(err, domain.ErrAlreadyTerminal), errors.Is(err, domain.ErrNotFound):
		c.ack(ctx, entry.ID)
		return
	case err != nil:
		log.Error().Err(err).Msg("mark processing failed, will retry")
		return
	}
	stored.AttemptCount = attempt

	hctx, cancel := context.WithTimeout(ctx, c.opts.HandlerTimeout)
	start := c.now()
	result, err := c.handler.Handle(hctx, stored)
	cancel()
	metrics.ObserveHandlerLatency(string(c.kind), int(c.now().Sub(start).Milliseconds()), err == nil)

	if err != nil {
		c.onFailure(ctx, log, stored, entry.ID, err, held)
		return
	}
	c.onSuccess(ctx, log, stored, entry.ID, result)
}

func (c *Consumer) onSuccess(ctx context.Context, log zerolog.Logger, job *model.Job, entryID string, result *usecase.HandlerResult) {
	err := c.jobs.Complete(ctx, job.ID, result.ResultJSON)
	switch {
	case errors.Is(err, domain.ErrAlreadyTerminal), errors.Is(err, domain.ErrNotFound):
		c.ack(ctx, entryID)
		return
	case err != nil:
		log.Error().Err(err).Msg("complete failed, will retry")
		return
	}

	if result.Notification != nil {
		if err := c.sink.Enqueue(ctx, result.Notification); err != nil {
			log.Error().Err(err).Msg("notification enqueue failed")
		}
	}
	if result.Gate != nil {
		c.gate.Open(job.UserID, result.Gate.Mode, result.Gate.AnchorJobID, result.Gate.AnchorMemoID, c.now())
		metrics.SetConversationsOpen(c.gate.OpenCount())
	}

	c.ledger.Clear(job.ID)
	c.ack(ctx, entryID)
	metrics.IncJobProcessed(string(c.kind), string(model.JobStatusCompleted))
	log.Info().Int("attempt", job.AttemptCount).Msg("job completed")
}

func (c *Consumer) onFailure(ctx context.Context, log zerolog.Logger, job *model.Job, entryID string, handleErr error, held map[int64]bool) {
	kind := retry.FailureInvalidResponse
	if errors.Is(handleErr, domain.ErrUnavailable) || errors.Is(handleErr, context.DeadlineExceeded) {
		kind = retry.FailureUnavailable
	}

	now := c.now()
	counts := c.ledger.RecordFailure(job.ID, kind, now)
	decision := c.policy.ShouldRetry(job.CreatedAt, kind, counts, now)
	metrics.IncJobRetry(string(kind))
	log.Warn().Err(handleErr).
		Str("failure_kind", string(kind)).
		Int("invalid_count", counts.InvalidResponse).
		Int("unavailable_count", counts.Unavailable).
		Bool("retry", decision.Retry).
		Msg("job attempt failed")

	if !decision.Retry {
		var content model.NotificationContent
		if decision.Status == model.JobStatusExpired {
			content = model.ExpiredNotice{
				JobKind:      job.Kind,
				AnchorMemoID: job.Payload[model.PayloadKeyAnchorID],
				OriginalDate: job.MessageSentAt(),
			}
		} else {
			content = model.InvalidResponseFailure{
				JobKind:      job.Kind,
				AnchorMemoID: job.Payload[model.PayloadKeyAnchorID],
			}
		}
		c.terminate(ctx, log, job, entryID, decision.Status, handleErr.Error(), content)
		return
	}

	c.ledger.SetNextAttempt(job.ID, now.Add(decision.Delay))
	err := c.jobs.Requeue(ctx, job.ID, handleErr.Error())
	switch {
	case errors.Is(err, domain.ErrAlreadyTerminal), errors.Is(err, domain.ErrNotFound):
		c.ledger.Clear(job.ID)
		c.ack(ctx, entryID)
		return
	case err != nil:
		log.Error().Err(err).Msg("requeue failed, will retry")
	}

	// First unavailable failure earns the user a single delay notice; the
	// 30-minute retries after it stay silent.
	if kind == retry.FailureUnavailable && c.ledger.MarkDelayNoticeSent(job.ID) {
		c.notify(ctx, log, job, model.UnavailableNotice{
			JobKind:      job.Kind,
			AnchorMemoID: job.Payload[model.PayloadKeyAnchorID],
			OriginalDate: job.MessageSentAt(),
		})
	}

	held[job.UserID] = true
}

// terminate moves the job to a terminal status, tells the user once, clears
// retry bookkeeping and acknowledges the entry.
func (c *Consumer) terminate(ctx context.Context, log zerolog.Logger, job *model.Job, entryID string, status model.JobStatus, reason string, content model.NotificationContent) {
	err := c.jobs.Terminate(ctx, job.ID, status, reason)
	switch {
	case errors.Is(err, domain.ErrAlreadyTerminal), errors.Is(err, domain.ErrNotFound):
		c.ack(ctx, entryID)
		return
	case err != nil:
		log.Error().Err(err).Msg("terminate failed, will retry")
		return
	}

	c.notify(ctx, log, job, content)
	c.ledger.Clear(job.ID)
	c.ack(ctx, entryID)
	metrics.IncJobProcessed(string(c.kind), string(status))
	log.Info().Str("status", string(status)).Str("reason", reason).Msg("job terminated")
}

func (c *Consumer) notify(ctx context.Context, log zerolog.Logger, job *model.Job, content model.NotificationContent) {
	n := &model.Notification{
		ID:      uuid.NewString(),
		UserID:  job.UserID,
		Kind:    content.NotificationKind(),
		Content: content,
		Reference: &model.MessageRef{
			JobID:   job.ID,
			Excerpt: excerptOf(job.Payload[model.PayloadKeyText]),
			SentAt:  job.MessageSentAt(),
		},
	}
	if err := c.sink.Enqueue(ctx, n); err != nil {
		log.Error().Err(err).Str("notification_kind", string(n.Kind)).Msg("notification enqueue failed")
	}
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	if err := c.broker.Ack(ctx, c.kind, entryID); err != nil {
		c.log.Error().Err(err).Str("entry_id", entryID).Msg("ack failed")
	}
}

func (c *Consumer) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func excerptOf(s string) string {
	const max = 48
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/broker"
	"telegram-memo-assistant/internal/domain/ports/repository"
)

// SubmitUseCase is the submission collaborator: it records the job in the
// store and pushes it onto the kind's broker partition. A job counts as
// arrived only once both writes have happened, store first.
type SubmitUseCase struct {
	jobs   repository.JobRepository
	broker broker.StreamBroker
	log    *zerolog.Logger
	now    func() time.Time
}

func NewSubmitUseCase(jobs repository.JobRepository, b broker.StreamBroker, logger *zerolog.Logger) *SubmitUseCase {
	compLog := logger.With().Str("component", "SubmitUseCase").Logger()
	return &SubmitUseCase{jobs: jobs, broker: b, log: &compLog, now: time.Now}
}

func (s *SubmitUseCase) Submit(ctx context.Context, kind model.JobKind, userID int64, payload map[string]string) (*model.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("submit: invalid kind %q", kind)
	}
	job := model.NewJob(kind, userID, payload, s.now())
	if _, ok := job.Payload[model.PayloadKeyMessageTS]; !ok {
		job.Payload[model.PayloadKeyMessageTS] = job.CreatedAt.Format(time.RFC3339)
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("submit: create job: %w", err)
	}
	if err := s.broker.Publish(ctx, kind, job.StreamValues()); err != nil {
		return nil, fmt.Errorf("submit: publish job: %w", err)
	}

	s.log.Info().Str("job_id", job.ID).Str("kind", string(kind)).Int64("user_id", userID).Msg("job submitted")
	return job, nil
}

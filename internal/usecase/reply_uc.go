package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain/gate"
	"telegram-memo-assistant/internal/domain/model"
)

// ReplyUseCase feeds a user's free-text answer back into the pipeline as
// re-classification input. The reply is never queued as a new job: it is
// classified inline while the gate stays closed, so the user's next queued
// job cannot overtake the answer's outcome.
type ReplyUseCase struct {
	classify *ClassifyUseCase
	gate     *gate.Gate
	sink     NotificationSink
	log      *zerolog.Logger
	now      func() time.Time
}

func NewReplyUseCase(classify *ClassifyUseCase, g *gate.Gate, sink NotificationSink, logger *zerolog.Logger) *ReplyUseCase {
	compLog := logger.With().Str("component", "ReplyUseCase").Logger()
	return &ReplyUseCase{classify: classify, gate: g, sink: sink, log: &compLog, now: time.Now}
}

// HandleReply consumes text as a follow-up answer when the user's gate is
// awaiting one. Returns false when the gate is idle or awaiting a button,
// in which case the caller submits the text as a brand-new job.
func (r *ReplyUseCase) HandleReply(ctx context.Context, userID int64, text string) (bool, error) {
	st, ok := r.gate.TakeFollowup(userID)
	if !ok {
		return false, nil
	}

	now := r.now()
	job := &model.Job{
		ID:     st.AnchorJobID,
		Kind:   model.JobKindIntentClassify,
		UserID: userID,
		Payload: map[string]string{
			model.PayloadKeyText:      text,
			model.PayloadKeyMessageTS: now.Format(time.RFC3339),
			model.PayloadKeyAnchorID:  st.AnchorMemoID,
		},
		CreatedAt: now,
	}

	res, err := r.classify.Handle(ctx, job)
	if err != nil {
		// Replies are not durable jobs; there is no broker entry to
		// redeliver. Surface the failure and release the queue.
		r.log.Error().Err(err).Int64("user_id", userID).Str("anchor_job_id", st.AnchorJobID).
			Msg("follow-up reply classification failed")
		_ = r.sink.Enqueue(ctx, &model.Notification{
			ID:     uuid.NewString(),
			UserID: userID,
			Kind:   model.NotificationInvalidResponseFailure,
			Content: model.InvalidResponseFailure{
				JobKind:      job.Kind,
				AnchorMemoID: st.AnchorMemoID,
			},
		})
		r.gate.Close(userID)
		return true, err
	}

	if err := r.sink.Enqueue(ctx, res.Notification); err != nil {
		r.gate.Close(userID)
		return true, err
	}

	// A reply that itself re-classifies as ambiguous re-opens the gate on
	// the same anchor with a fresh horizon; everything else concludes it.
	if res.Gate != nil && res.Gate.Mode == model.ConversationAwaitingFollowup {
		r.gate.Open(userID, res.Gate.Mode, st.AnchorJobID, st.AnchorMemoID, now)
	} else if res.Gate != nil {
		r.gate.Open(userID, res.Gate.Mode, res.Gate.AnchorJobID, res.Gate.AnchorMemoID, now)
	} else {
		r.gate.Close(userID)
	}
	return true, nil
}

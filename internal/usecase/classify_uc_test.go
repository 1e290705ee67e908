package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"telegram-memo-assistant/internal/domain"
	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/adapter"
)

func testJob(kind model.JobKind, text string, createdAt time.Time) *model.Job {
	return &model.Job{
		ID:     "01HTESTJOB",
		Kind:   kind,
		UserID: 42,
		Payload: map[string]string{
			model.PayloadKeyText:      text,
			model.PayloadKeyMessageTS: createdAt.Format(time.RFC3339),
		},
		Status:    model.JobStatusQueued,
		CreatedAt: createdAt,
	}
}

func TestClassifyIntentClassify(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should propose a reminder with a button conversation", func(t *testing.T) {
		// --- Arrange ---
		ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			return `{"intent":"reminder","action":"water the plants","time":"2025-03-02T09:00:00Z"}`, nil
		}}
		uc := NewClassifyUseCase(ai, newTestLogger())
		uc.now = func() time.Time { return createdAt }

		// --- Act ---
		res, err := uc.Handle(ctx, testJob(model.JobKindIntentClassify, "remind me to water the plants tomorrow at 9", createdAt))

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		prop, ok := res.Notification.Content.(model.ReminderProposal)
		if !ok {
			t.Fatalf("expected ReminderProposal, got %T", res.Notification.Content)
		}
		if prop.ActionText != "water the plants" {
			t.Errorf("unexpected action %q", prop.ActionText)
		}
		if res.Gate == nil || res.Gate.Mode != model.ConversationAwaitingButton {
			t.Errorf("expected awaiting_button gate, got %+v", res.Gate)
		}
	})

	t.Run("should offer a reschedule when the resolved time already passed", func(t *testing.T) {
		// --- Arrange ---
		ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			return `{"intent":"reminder","action":"call mom","time":"2025-03-01T10:00:00Z"}`, nil
		}}
		uc := NewClassifyUseCase(ai, newTestLogger())
		uc.now = func() time.Time { return createdAt }

		// --- Act ---
		res, err := uc.Handle(ctx, testJob(model.JobKindIntentClassify, "call mom at 10", createdAt))

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		stale, ok := res.Notification.Content.(model.StaleReschedule)
		if !ok {
			t.Fatalf("expected StaleReschedule, got %T", res.Notification.Content)
		}
		if !stale.ResolvedDate.After(stale.OriginalDate) {
			t.Error("proposed date should be after the stale one")
		}
		if res.Gate == nil || res.Gate.Mode != model.ConversationAwaitingButton {
			t.Errorf("expected awaiting_button gate, got %+v", res.Gate)
		}
	})

	t.Run("should resolve relative time against the message timestamp", func(t *testing.T) {
		// --- Arrange ---
		var seenPrompt string
		ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			seenPrompt = msgs[0].Content
			return `{"intent":"note","tags":["a"]}`, nil
		}}
		uc := NewClassifyUseCase(ai, newTestLogger())

		sentAt := createdAt.Add(-2 * time.Hour)
		job := testJob(model.JobKindIntentClassify, "note this", createdAt)
		job.Payload[model.PayloadKeyMessageTS] = sentAt.Format(time.RFC3339)

		// --- Act ---
		if _, err := uc.Handle(ctx, job); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		// --- Assert ---
		if want := sentAt.Format(time.RFC3339); !strings.Contains(seenPrompt, want) {
			t.Errorf("system prompt should carry the message time %s, got %q", want, seenPrompt)
		}
	})

	t.Run("should ask a follow-up question for an ambiguous message", func(t *testing.T) {
		// --- Arrange ---
		ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			return `{"intent":"ambiguous","question":"Task or note?"}`, nil
		}}
		uc := NewClassifyUseCase(ai, newTestLogger())

		// --- Act ---
		res, err := uc.Handle(ctx, testJob(model.JobKindIntentClassify, "the thing", createdAt))

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		q, ok := res.Notification.Content.(model.FollowupQuestion)
		if !ok || q.Question != "Task or note?" {
			t.Fatalf("expected the follow-up question, got %#v", res.Notification.Content)
		}
		if res.Gate == nil || res.Gate.Mode != model.ConversationAwaitingFollowup {
			t.Errorf("expected awaiting_followup gate, got %+v", res.Gate)
		}
	})

	t.Run("should record an anchor id when saving a note", func(t *testing.T) {
		// --- Arrange ---
		ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			return `{"intent":"note","tags":["pasta","food"]}`, nil
		}}
		uc := NewClassifyUseCase(ai, newTestLogger())
		job := testJob(model.JobKindIntentClassify, "great pasta place", createdAt)

		// --- Act ---
		res, err := uc.Handle(ctx, job)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := res.Notification.Content.(model.NoteSaved); !ok {
			t.Fatalf("expected NoteSaved, got %T", res.Notification.Content)
		}
		if job.Payload[model.PayloadKeyAnchorID] == "" {
			t.Error("note should leave an anchor id in the payload")
		}
		if res.Gate != nil {
			t.Error("note saving must not open a conversation")
		}
	})
}

func TestClassifyFailureTaxonomy(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should flag garbage output as invalid response", func(t *testing.T) {
		ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			return "sorry, I can't help with that", nil
		}}
		uc := NewClassifyUseCase(ai, newTestLogger())

		_, err := uc.Handle(ctx, testJob(model.JobKindIntentClassify, "anything", createdAt))
		if !errors.Is(err, domain.ErrInvalidResponse) {
			t.Errorf("expected ErrInvalidResponse, got %v", err)
		}
	})

	t.Run("should flag a missing required field as invalid response", func(t *testing.T) {
		ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			return `{"intent":"reminder","action":"call mom"}`, nil
		}}
		uc := NewClassifyUseCase(ai, newTestLogger())

		_, err := uc.Handle(ctx, testJob(model.JobKindIntentClassify, "anything", createdAt))
		if !errors.Is(err, domain.ErrInvalidResponse) {
			t.Errorf("expected ErrInvalidResponse, got %v", err)
		}
	})

	t.Run("should pass through an unavailable transport error", func(t *testing.T) {
		ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			return "", fmt.Errorf("%w: connection refused", domain.ErrUnavailable)
		}}
		uc := NewClassifyUseCase(ai, newTestLogger())

		_, err := uc.Handle(ctx, testJob(model.JobKindIntentClassify, "anything", createdAt))
		if !errors.Is(err, domain.ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("should reject a kind it has no handler for", func(t *testing.T) {
		uc := NewClassifyUseCase(&mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
			return "", nil
		}}, newTestLogger())

		_, err := uc.Handle(ctx, testJob(model.JobKind("mystery"), "anything", createdAt))
		if !errors.Is(err, domain.ErrUnknownJobKind) {
			t.Errorf("expected ErrUnknownJobKind, got %v", err)
		}
	})
}

func TestClassifyImageTag(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ai := &mockAI{CompleteFunc: func(ctx context.Context, msgs []adapter.Message) (string, error) {
		return "```json\n{\"intent\":\"note\",\"tags\":[\"whiteboard\",\"meeting\"]}\n```", nil
	}}
	uc := NewClassifyUseCase(ai, newTestLogger())

	job := testJob(model.JobKindImageTag, "", createdAt)
	job.Payload[model.PayloadKeyCaption] = "whiteboard from the meeting"

	res, err := uc.Handle(ctx, job)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	saved, ok := res.Notification.Content.(model.NoteSaved)
	if !ok {
		t.Fatalf("expected NoteSaved, got %T", res.Notification.Content)
	}
	if len(saved.SuggestedTags) != 2 {
		t.Errorf("expected 2 tags, got %v", saved.SuggestedTags)
	}
}

package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"telegram-memo-assistant/internal/domain/model"
)

func newTestDispatcher() (*Dispatcher, *mockChat, *[]time.Duration) {
	d := NewDispatcher(DispatcherOptions{
		MinGap:     3 * time.Second,
		StaleAfter: 5 * time.Minute,
		QueueSize:  16,
	}, newTestLogger())

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	slept := &[]time.Duration{}
	d.sleep = func(ctx context.Context, dur time.Duration) {
		*slept = append(*slept, dur)
	}
	chat := &mockChat{}
	return d, chat, slept
}

func notif(userID int64, content model.NotificationContent, sentAt time.Time) *model.Notification {
	return &model.Notification{
		ID:      "n-1",
		UserID:  userID,
		Kind:    content.NotificationKind(),
		Content: content,
		Reference: &model.MessageRef{
			JobID:   "job-1",
			Excerpt: "remind me to water the plants",
			SentAt:  sentAt,
		},
	}
}

func TestDispatcherRendering(t *testing.T) {
	ctx := context.Background()
	fresh := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) // matches the test clock

	t.Run("should send proposals as button choices", func(t *testing.T) {
		d, chat, _ := newTestDispatcher()
		d.deliver(ctx, chat, notif(42, model.ReminderProposal{
			ActionText:   "water the plants",
			ResolvedTime: fresh.Add(time.Hour),
		}, fresh))

		sent := chat.last()
		if sent == nil || sent.Method != "choice" {
			t.Fatalf("expected a choice message, got %+v", sent)
		}
		if len(sent.Options) != 3 {
			t.Errorf("expected confirm/edit/cancel options, got %v", sent.Options)
		}
		if !strings.Contains(sent.Text, "water the plants") {
			t.Errorf("text should carry the action, got %q", sent.Text)
		}
	})

	t.Run("should send follow-up questions as plain reply prompts", func(t *testing.T) {
		d, chat, _ := newTestDispatcher()
		d.deliver(ctx, chat, notif(42, model.FollowupQuestion{Question: "Task or note?"}, fresh))

		sent := chat.last()
		if sent == nil || sent.Method != "prompt" {
			t.Fatalf("expected a plain prompt, got %+v", sent)
		}
		if sent.Text != "Task or note?" {
			t.Errorf("unexpected prompt text %q", sent.Text)
		}
	})

	t.Run("should send informational kinds as plain text", func(t *testing.T) {
		d, chat, _ := newTestDispatcher()
		d.deliver(ctx, chat, notif(42, model.NoteSaved{SuggestedTags: []string{"garden"}}, fresh))

		sent := chat.last()
		if sent == nil || sent.Method != "text" {
			t.Fatalf("expected plain text, got %+v", sent)
		}
		if !strings.Contains(sent.Text, "garden") {
			t.Errorf("text should carry the tags, got %q", sent.Text)
		}
	})

	t.Run("should offer reschedule buttons for a stale date", func(t *testing.T) {
		d, chat, _ := newTestDispatcher()
		d.deliver(ctx, chat, notif(42, model.StaleReschedule{
			OriginalDate: fresh.Add(-24 * time.Hour),
			ResolvedDate: fresh.Add(time.Hour),
		}, fresh))

		sent := chat.last()
		if sent == nil || sent.Method != "choice" {
			t.Fatalf("expected a choice message, got %+v", sent)
		}
		if !strings.Contains(sent.Text, "already passed") {
			t.Errorf("text should explain the staleness, got %q", sent.Text)
		}
	})
}

func TestDispatcherFraming(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should frame a late outcome against its originating message", func(t *testing.T) {
		d, chat, _ := newTestDispatcher()
		sentAt := clock.Add(-time.Hour)
		d.deliver(ctx, chat, notif(42, model.NoteSaved{}, sentAt))

		sent := chat.last()
		if sent == nil {
			t.Fatal("nothing sent")
		}
		if !strings.Contains(sent.Text, "Re: your earlier message") {
			t.Errorf("expected earlier-message framing, got %q", sent.Text)
		}
		if !strings.Contains(sent.Text, "remind me to water the plants") {
			t.Errorf("framing should quote the excerpt, got %q", sent.Text)
		}
	})

	t.Run("should skip framing for a fresh delivery", func(t *testing.T) {
		d, chat, _ := newTestDispatcher()
		d.deliver(ctx, chat, notif(42, model.NoteSaved{}, clock.Add(-time.Minute)))

		sent := chat.last()
		if sent == nil {
			t.Fatal("nothing sent")
		}
		if strings.Contains(sent.Text, "Re: your earlier message") {
			t.Errorf("fresh outcome must not be framed, got %q", sent.Text)
		}
	})
}

func TestDispatcherPacing(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should pause between consecutive messages to one user", func(t *testing.T) {
		d, chat, slept := newTestDispatcher()
		d.deliver(ctx, chat, notif(42, model.NoteSaved{}, clock))
		d.deliver(ctx, chat, notif(42, model.NoteSaved{}, clock))

		if len(*slept) != 1 || (*slept)[0] != 3*time.Second {
			t.Errorf("expected one 3s pacing pause, got %v", *slept)
		}
		if len(chat.Sent) != 2 {
			t.Errorf("both messages should go out, got %d", len(chat.Sent))
		}
	})

	t.Run("should not pace across different users", func(t *testing.T) {
		d, chat, slept := newTestDispatcher()
		d.deliver(ctx, chat, notif(42, model.NoteSaved{}, clock))
		d.deliver(ctx, chat, notif(7, model.NoteSaved{}, clock))

		if len(*slept) != 0 {
			t.Errorf("different users need no pacing pause, got %v", *slept)
		}
	})
}

func TestDispatcherRetries(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	d, chat, _ := newTestDispatcher()
	chat.SendErr = errors.New("telegram 502")

	d.deliver(ctx, chat, notif(42, model.NoteSaved{}, clock))

	if chat.Attempts != 3 {
		t.Errorf("expected 3 transport attempts, got %d", chat.Attempts)
	}
}

package gate

import (
	"testing"
	"time"

	"telegram-memo-assistant/internal/domain/model"
)

func TestGateBlocking(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should block only the user with an open conversation", func(t *testing.T) {
		g := New(7 * 24 * time.Hour)
		g.Open(1, model.ConversationAwaitingButton, "job-1", "", now)

		if !g.IsBlocked(1) {
			t.Error("user 1 should be blocked")
		}
		if g.IsBlocked(2) {
			t.Error("user 2 should not be blocked")
		}
	})

	t.Run("should release the user on close", func(t *testing.T) {
		g := New(7 * 24 * time.Hour)
		g.Open(1, model.ConversationAwaitingFollowup, "job-1", "memo-1", now)

		if !g.Close(1) {
			t.Fatal("close should report an open conversation")
		}
		if g.IsBlocked(1) {
			t.Error("user should be unblocked after close")
		}
	})

	t.Run("should treat a second close as a no-op", func(t *testing.T) {
		g := New(7 * 24 * time.Hour)
		g.Open(1, model.ConversationAwaitingButton, "job-1", "", now)

		g.Close(1)
		if g.Close(1) {
			t.Error("second close should report nothing open")
		}
	})

	t.Run("should replace an existing conversation on open", func(t *testing.T) {
		g := New(7 * 24 * time.Hour)
		g.Open(1, model.ConversationAwaitingButton, "job-1", "", now)
		g.Open(1, model.ConversationAwaitingFollowup, "job-2", "memo-2", now.Add(time.Minute))

		st, ok := g.State(1)
		if !ok {
			t.Fatal("expected an open conversation")
		}
		if st.Mode != model.ConversationAwaitingFollowup || st.AnchorJobID != "job-2" {
			t.Errorf("expected replaced state, got %+v", st)
		}
	})
}

func TestGateResolveButton(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should close an awaiting_button conversation", func(t *testing.T) {
		g := New(7 * 24 * time.Hour)
		g.Open(1, model.ConversationAwaitingButton, "job-1", "", now)

		if !g.ResolveButton(1) {
			t.Fatal("button press should resolve the conversation")
		}
		if g.IsBlocked(1) {
			t.Error("user should be unblocked after the press")
		}
	})

	t.Run("should not close a follow-up conversation", func(t *testing.T) {
		g := New(7 * 24 * time.Hour)
		g.Open(1, model.ConversationAwaitingFollowup, "job-1", "memo-1", now)

		if g.ResolveButton(1) {
			t.Fatal("button press must not resolve a follow-up wait")
		}
		if !g.IsBlocked(1) {
			t.Error("user should stay blocked")
		}
	})
}

func TestGateTakeFollowup(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(7 * 24 * time.Hour)
	g.Open(1, model.ConversationAwaitingFollowup, "job-1", "memo-1", now)

	st, ok := g.TakeFollowup(1)
	if !ok {
		t.Fatal("expected the follow-up state")
	}
	if st.AnchorJobID != "job-1" || st.AnchorMemoID != "memo-1" {
		t.Errorf("unexpected state %+v", st)
	}

	// Taking does not conclude; the caller does that after processing.
	if !g.IsBlocked(1) {
		t.Error("user should stay blocked until the reply outcome lands")
	}

	if _, ok := g.TakeFollowup(2); ok {
		t.Error("idle user should have nothing to take")
	}
}

func TestGateSweepExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	horizon := 7 * 24 * time.Hour
	g := New(horizon)

	g.Open(1, model.ConversationAwaitingButton, "job-1", "", now)
	g.Open(2, model.ConversationAwaitingFollowup, "job-2", "", now.Add(time.Hour))

	// Only user 1 is past the horizon at this point.
	swept := g.SweepExpired(now.Add(horizon))
	if swept != 1 {
		t.Fatalf("expected 1 swept conversation, got %d", swept)
	}
	if g.IsBlocked(1) {
		t.Error("user 1 should be released by the sweep")
	}
	if !g.IsBlocked(2) {
		t.Error("user 2 should still be blocked")
	}
	if g.OpenCount() != 1 {
		t.Errorf("expected 1 open conversation, got %d", g.OpenCount())
	}
}

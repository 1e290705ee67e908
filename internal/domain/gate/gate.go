// Package gate serializes job consumption per user. While a user has an
// open conversation, their next queued job stays on the broker; other users
// are unaffected. State is process-local and non-durable: losing it on
// restart resets the conversation to idle, which is an accepted failure
// mode, not a hidden one.
package gate

import (
	"sync"
	"time"

	"telegram-memo-assistant/internal/domain/model"
)

type Gate struct {
	mu      sync.Mutex
	states  map[int64]*model.ConversationState
	horizon time.Duration
}

func New(horizon time.Duration) *Gate {
	if horizon <= 0 {
		horizon = 7 * 24 * time.Hour
	}
	return &Gate{states: make(map[int64]*model.ConversationState), horizon: horizon}
}

// IsBlocked reports whether the user's next queued job must be held back.
func (g *Gate) IsBlocked(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.states[userID]
	return ok && s.Mode != model.ConversationIdle
}

// Open starts (or replaces) the user's conversation. At most one is active
// per user; opening while one exists adopts the new mode and anchor.
func (g *Gate) Open(userID int64, mode model.ConversationMode, anchorJobID, anchorMemoID string, now time.Time) model.ConversationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := &model.ConversationState{
		UserID:       userID,
		Mode:         mode,
		AnchorJobID:  anchorJobID,
		AnchorMemoID: anchorMemoID,
		OpenedAt:     now,
		ExpiresAt:    now.Add(g.horizon),
	}
	g.states[userID] = s
	return *s
}

// Close concludes the user's conversation. Idempotent: whichever of a
// button press, a processed reply or the expiry sweep arrives first wins and
// the rest are no-ops. Reports whether a conversation was actually open.
func (g *Gate) Close(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.states[userID]
	delete(g.states, userID)
	return ok
}

// State returns a copy of the user's conversation state, if any.
func (g *Gate) State(userID int64) (model.ConversationState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.states[userID]
	if !ok {
		return model.ConversationState{}, false
	}
	return *s, true
}

// ResolveButton closes the conversation only if it is awaiting a button
// press. New unrelated text while awaiting_button is NOT an answer, so a
// text message must never call this.
func (g *Gate) ResolveButton(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.states[userID]
	if !ok || s.Mode != model.ConversationAwaitingButton {
		return false
	}
	delete(g.states, userID)
	return true
}

// TakeFollowup returns the state if the user is awaiting a follow-up reply.
// It does not close the conversation; the caller closes (or re-opens) it
// once the reply has been processed, so the user's next queued job stays
// blocked until the reply's outcome is delivered.
func (g *Gate) TakeFollowup(userID int64) (model.ConversationState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.states[userID]
	if !ok || s.Mode != model.ConversationAwaitingFollowup {
		return model.ConversationState{}, false
	}
	return *s, true
}

// SweepExpired auto-concludes conversations past their horizon and returns
// how many were closed. The anchored record is left exactly as last saved.
func (g *Gate) SweepExpired(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for userID, s := range g.states {
		if s.Expired(now) {
			delete(g.states, userID)
			n++
		}
	}
	return n
}

// OpenCount reports how many conversations are currently active.
func (g *Gate) OpenCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.states)
}

package model

import "time"

type ConversationMode string

const (
	ConversationIdle             ConversationMode = "idle"
	ConversationAwaitingButton   ConversationMode = "awaiting_button"
	ConversationAwaitingFollowup ConversationMode = "awaiting_followup_reply"
)

// ConversationState is the single per-user record governing whether the
// user's next queued job may be consumed. Only awaiting_followup_reply
// treats the user's next text as an answer; awaiting_button does not.
type ConversationState struct {
	UserID       int64
	Mode         ConversationMode
	AnchorJobID  string
	AnchorMemoID string
	OpenedAt     time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the fixed conversation horizon has passed.
func (s *ConversationState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

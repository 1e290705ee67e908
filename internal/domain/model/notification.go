package model

import "time"

type NotificationKind string

const (
	NotificationReminderProposal       NotificationKind = "reminder-proposal"
	NotificationTaskProposal           NotificationKind = "task-proposal"
	NotificationSearchResults          NotificationKind = "search-results"
	NotificationNoteSaved              NotificationKind = "note-saved"
	NotificationFollowupQuestion       NotificationKind = "followup-question"
	NotificationStaleReschedule        NotificationKind = "stale-reschedule"
	NotificationInvalidResponseFailure NotificationKind = "invalid-response-failure"
	NotificationUnavailableNotice      NotificationKind = "unavailable-notice"
	NotificationExpiredNotice          NotificationKind = "expired-notice"
)

// NotificationContent is the closed set of payload shapes. New kinds are
// added by a new struct, never by widening an existing one.
type NotificationContent interface {
	NotificationKind() NotificationKind
}

type ReminderProposal struct {
	ActionText   string
	ResolvedTime time.Time
}

func (ReminderProposal) NotificationKind() NotificationKind { return NotificationReminderProposal }

type TaskProposal struct {
	Description string
	DueTime     time.Time
}

func (TaskProposal) NotificationKind() NotificationKind { return NotificationTaskProposal }

type SearchResult struct {
	Title   string
	Snippet string
}

type SearchResults struct {
	Query   string
	Results []SearchResult
}

func (SearchResults) NotificationKind() NotificationKind { return NotificationSearchResults }

type NoteSaved struct {
	SuggestedTags []string
}

func (NoteSaved) NotificationKind() NotificationKind { return NotificationNoteSaved }

type FollowupQuestion struct {
	Question string
}

func (FollowupQuestion) NotificationKind() NotificationKind { return NotificationFollowupQuestion }

type StaleReschedule struct {
	OriginalDate time.Time
	ResolvedDate time.Time
}

func (StaleReschedule) NotificationKind() NotificationKind { return NotificationStaleReschedule }

type InvalidResponseFailure struct {
	JobKind      JobKind
	AnchorMemoID string
}

func (InvalidResponseFailure) NotificationKind() NotificationKind {
	return NotificationInvalidResponseFailure
}

type UnavailableNotice struct {
	JobKind      JobKind
	AnchorMemoID string
	OriginalDate time.Time
}

func (UnavailableNotice) NotificationKind() NotificationKind { return NotificationUnavailableNotice }

type ExpiredNotice struct {
	JobKind      JobKind
	AnchorMemoID string
	OriginalDate time.Time
}

func (ExpiredNotice) NotificationKind() NotificationKind { return NotificationExpiredNotice }

// MessageRef points back at the originating message so an out-of-order
// delivery can be framed as a reply to it.
type MessageRef struct {
	JobID   string
	Excerpt string
	SentAt  time.Time
}

// Notification is one outbound message derived from a terminal job outcome
// or a gate transition.
type Notification struct {
	ID        string
	UserID    int64
	Kind      NotificationKind
	Content   NotificationContent
	Reference *MessageRef
}

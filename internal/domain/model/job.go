package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

type JobKind string

const (
	JobKindIntentClassify   JobKind = "intent-classify"
	JobKindImageTag         JobKind = "image-tag"
	JobKindTaskMatch        JobKind = "task-match"
	JobKindEmailExtract     JobKind = "email-extract"
	JobKindFollowUpGenerate JobKind = "follow-up-generate"
)

// AllJobKinds lists every kind that gets its own broker partition.
func AllJobKinds() []JobKind {
	return []JobKind{
		JobKindIntentClassify,
		JobKindImageTag,
		JobKindTaskMatch,
		JobKindEmailExtract,
		JobKindFollowUpGenerate,
	}
}

func (k JobKind) Valid() bool {
	switch k {
	case JobKindIntentClassify, JobKindImageTag, JobKindTaskMatch,
		JobKindEmailExtract, JobKindFollowUpGenerate:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusExpired    JobStatus = "expired"
)

// Terminal reports whether no further transitions may occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusExpired:
		return true
	}
	return false
}

// Payload keys every submitter fills in.
const (
	PayloadKeyText      = "text"
	PayloadKeyMessageTS = "message_ts" // RFC3339, original message creation time
	PayloadKeyCaption   = "caption"
	PayloadKeyAnchorID  = "anchor_id" // memo/record the work is about, if any
)

// Job is one unit of classification work. The ID is a ULID so lexical order
// matches submission order.
type Job struct {
	ID           string
	Kind         JobKind
	UserID       int64
	Payload      map[string]string
	Status       JobStatus
	AttemptCount int
	Result       string // JSON of the handler result, set on completion
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewJob(kind JobKind, userID int64, payload map[string]string, now time.Time) *Job {
	if payload == nil {
		payload = map[string]string{}
	}
	return &Job{
		ID:        ulid.Make().String(),
		Kind:      kind,
		UserID:    userID,
		Payload:   payload,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MessageSentAt returns the originating message's creation time. Relative
// time expressions must resolve against this, not against processing time.
func (j *Job) MessageSentAt() time.Time {
	if v := j.Payload[PayloadKeyMessageTS]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return j.CreatedAt
}

// ExpiresAt is the hard wall-clock expiry, measured from creation.
func (j *Job) ExpiresAt(horizon time.Duration) time.Time {
	return j.CreatedAt.Add(horizon)
}

// Stream envelope field names.
const (
	streamFieldJobID     = "job_id"
	streamFieldKind      = "kind"
	streamFieldUserID    = "user_id"
	streamFieldCreatedAt = "created_at"
	streamFieldPayload   = "payload"
)

// StreamValues encodes the job envelope for a broker entry.
func (j *Job) StreamValues() map[string]interface{} {
	payload, _ := json.Marshal(j.Payload)
	return map[string]interface{}{
		streamFieldJobID:     j.ID,
		streamFieldKind:      string(j.Kind),
		streamFieldUserID:    strconv.FormatInt(j.UserID, 10),
		streamFieldCreatedAt: j.CreatedAt.UTC().Format(time.RFC3339Nano),
		streamFieldPayload:   string(payload),
	}
}

// JobFromStreamValues decodes a broker entry back into a job envelope.
func JobFromStreamValues(values map[string]interface{}) (*Job, error) {
	str := func(key string) (string, error) {
		v, ok := values[key]
		if !ok {
			return "", fmt.Errorf("stream entry missing %q", key)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("stream entry field %q is not a string", key)
		}
		return s, nil
	}

	id, err := str(streamFieldJobID)
	if err != nil {
		return nil, err
	}
	kindStr, err := str(streamFieldKind)
	if err != nil {
		return nil, err
	}
	userStr, err := str(streamFieldUserID)
	if err != nil {
		return nil, err
	}
	userID, err := strconv.ParseInt(userStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stream entry user_id: %w", err)
	}
	createdStr, err := str(streamFieldCreatedAt)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return nil, fmt.Errorf("stream entry created_at: %w", err)
	}
	payloadStr, err := str(streamFieldPayload)
	if err != nil {
		return nil, err
	}
	payload := map[string]string{}
	if payloadStr != "" {
		if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
			return nil, fmt.Errorf("stream entry payload: %w", err)
		}
	}

	return &Job{
		ID:        id,
		Kind:      JobKind(kindStr),
		UserID:    userID,
		Payload:   payload,
		Status:    JobStatusQueued,
		CreatedAt: createdAt,
	}, nil
}

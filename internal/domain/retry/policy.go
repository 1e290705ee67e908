// Package retry decides what happens after a failed classification attempt.
// It is pure: callers feed it the failure kind, the per-kind attempt counts
// and the clock, and get back a decision. The two failure kinds never share
// a counter or a backoff curve.
package retry

import (
	"time"

	"telegram-memo-assistant/internal/domain/model"
)

type FailureKind string

const (
	// FailureInvalidResponse: the remote call returned, but the output was
	// malformed or missing required fields.
	FailureInvalidResponse FailureKind = "invalid_response"
	// FailureUnavailable: the remote call could not be completed at all.
	FailureUnavailable FailureKind = "unavailable"
)

// Counts holds the independent per-kind attempt counters for one job.
type Counts struct {
	InvalidResponse int
	Unavailable     int
}

// Decision is the outcome of ShouldRetry.
type Decision struct {
	Retry bool
	Delay time.Duration

	// Status is the terminal status to record when Retry is false.
	Status model.JobStatus
}

type Policy struct {
	// MaxInvalidAttempts failures of the invalid-response kind are granted
	// a backoff retry each; the next failure of that kind terminates.
	MaxInvalidAttempts int
	InvalidBackoffCap  time.Duration

	// Unavailable failures retry at this fixed interval until ExpiryHorizon
	// past job creation.
	UnavailableInterval time.Duration
	ExpiryHorizon       time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxInvalidAttempts:  5,
		InvalidBackoffCap:   16 * time.Second,
		UnavailableInterval: 30 * time.Minute,
		ExpiryHorizon:       14 * 24 * time.Hour,
	}
}

// ShouldRetry decides the fate of a job after a failure of the given kind.
// counts must already include the failure being decided.
func (p Policy) ShouldRetry(createdAt time.Time, kind FailureKind, counts Counts, now time.Time) Decision {
	switch kind {
	case FailureUnavailable:
		if !now.Before(createdAt.Add(p.ExpiryHorizon)) {
			return Decision{Status: model.JobStatusExpired}
		}
		return Decision{Retry: true, Delay: p.UnavailableInterval}
	default:
		if counts.InvalidResponse > p.MaxInvalidAttempts {
			return Decision{Status: model.JobStatusFailed}
		}
		return Decision{Retry: true, Delay: p.invalidBackoff(counts.InvalidResponse)}
	}
}

// Expired reports whether the hard wall-clock horizon has passed. The
// consumer checks this before every attempt so an expired job is never
// handed to a handler again.
func (p Policy) Expired(createdAt, now time.Time) bool {
	return !now.Before(createdAt.Add(p.ExpiryHorizon))
}

func (p Policy) invalidBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Second
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.InvalidBackoffCap {
			return p.InvalidBackoffCap
		}
	}
	if d > p.InvalidBackoffCap {
		return p.InvalidBackoffCap
	}
	return d
}

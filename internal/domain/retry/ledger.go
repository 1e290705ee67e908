package retry

import (
	"sync"
	"time"
)

type ledgerEntry struct {
	counts             Counts
	firstInvalidAt     time.Time
	firstUnavailableAt time.Time
	delayNoticeSent    bool
	nextAttemptAt      time.Time
}

// Ledger is the in-memory retry bookkeeping, keyed by job id. It is
// intentionally non-durable: losing it on restart resets counters, and the
// broker's pending-entry redelivery means that only ever grants a job more
// retry opportunity, never less.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*ledgerEntry)}
}

func (l *Ledger) get(jobID string) *ledgerEntry {
	e, ok := l.entries[jobID]
	if !ok {
		e = &ledgerEntry{}
		l.entries[jobID] = e
	}
	return e
}

// RecordFailure increments the counter for the given failure kind and
// returns the updated counts. The other kind's counter is untouched.
func (l *Ledger) RecordFailure(jobID string, kind FailureKind, now time.Time) Counts {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.get(jobID)
	switch kind {
	case FailureUnavailable:
		e.counts.Unavailable++
		if e.firstUnavailableAt.IsZero() {
			e.firstUnavailableAt = now
		}
	default:
		e.counts.InvalidResponse++
		if e.firstInvalidAt.IsZero() {
			e.firstInvalidAt = now
		}
	}
	return e.counts
}

func (l *Ledger) Counts(jobID string) Counts {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[jobID]; ok {
		return e.counts
	}
	return Counts{}
}

// MarkDelayNoticeSent flips the one-time "processing is delayed" flag and
// reports whether this call was the first.
func (l *Ledger) MarkDelayNoticeSent(jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.get(jobID)
	if e.delayNoticeSent {
		return false
	}
	e.delayNoticeSent = true
	return true
}

func (l *Ledger) SetNextAttempt(jobID string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.get(jobID).nextAttemptAt = at
}

// NextAttemptAt returns the earliest time the job may be retried, if a
// delay has been scheduled.
func (l *Ledger) NextAttemptAt(jobID string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[jobID]
	if !ok || e.nextAttemptAt.IsZero() {
		return time.Time{}, false
	}
	return e.nextAttemptAt, true
}

// Clear drops all bookkeeping for the job. Called on success and on any
// terminal failure or expiry.
func (l *Ledger) Clear(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, jobID)
}

// Len reports how many jobs currently have ledger entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// File: internal/infra/worker/mocks_test.go
package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain"
	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/adapter"
	"telegram-memo-assistant/internal/domain/ports/broker"
	"telegram-memo-assistant/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- in-memory broker ----

type memEntry struct {
	id        string
	values    map[string]interface{}
	delivered bool
	acked     bool
}

// memBroker is a single-consumer in-memory stand-in for the stream broker.
type memBroker struct {
	mu      sync.Mutex
	seq     int
	streams map[model.JobKind][]*memEntry
}

func newMemBroker() *memBroker {
	return &memBroker{streams: make(map[model.JobKind][]*memEntry)}
}

func (b *memBroker) Publish(ctx context.Context, kind model.JobKind, values map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.streams[kind] = append(b.streams[kind], &memEntry{
		id:     fmt.Sprintf("%d-0", b.seq),
		values: values,
	})
	return nil
}

func (b *memBroker) ReadNew(ctx context.Context, kind model.JobKind, consumer string, count int64, block time.Duration) ([]broker.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broker.Entry
	for _, e := range b.streams[kind] {
		if e.delivered || e.acked {
			continue
		}
		e.delivered = true
		out = append(out, broker.Entry{ID: e.id, Values: e.values})
		if int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

func (b *memBroker) ReadPending(ctx context.Context, kind model.JobKind, consumer string, count int64) ([]broker.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broker.Entry
	for _, e := range b.streams[kind] {
		if !e.delivered || e.acked {
			continue
		}
		out = append(out, broker.Entry{ID: e.id, Values: e.values})
		if int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

func (b *memBroker) Claim(ctx context.Context, kind model.JobKind, consumer string, minIdle time.Duration, count int64) ([]broker.Entry, error) {
	return nil, nil
}

func (b *memBroker) Ack(ctx context.Context, kind model.JobKind, entryID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.streams[kind] {
		if e.id == entryID {
			e.acked = true
		}
	}
	return nil
}

func (b *memBroker) pendingCount(kind model.JobKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.streams[kind] {
		if !e.acked {
			n++
		}
	}
	return n
}

func (b *memBroker) acked(kind model.JobKind, entryID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.streams[kind] {
		if e.id == entryID {
			return e.acked
		}
	}
	return false
}

// ---- in-memory job repository ----

type memJobRepo struct {
	mu    sync.Mutex
	store map[string]*model.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func (m *memJobRepo) Create(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) MarkProcessing(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return 0, domain.ErrAlreadyTerminal
	}
	j.Status = model.JobStatusProcessing
	j.AttemptCount++
	return j.AttemptCount, nil
}

func (m *memJobRepo) Requeue(ctx context.Context, id string, lastError string) error {
	return m.transition(id, model.JobStatusQueued, "", lastError)
}

func (m *memJobRepo) Complete(ctx context.Context, id string, result string) error {
	return m.transition(id, model.JobStatusCompleted, result, "")
}

func (m *memJobRepo) Terminate(ctx context.Context, id string, status model.JobStatus, lastError string) error {
	if status != model.JobStatusFailed && status != model.JobStatusExpired {
		return domain.ErrInvalidArgument
	}
	return m.transition(id, status, "", lastError)
}

func (m *memJobRepo) transition(id string, status model.JobStatus, result, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return domain.ErrAlreadyTerminal
	}
	j.Status = status
	if result != "" {
		j.Result = result
	}
	if lastError != "" {
		j.LastError = lastError
	}
	return nil
}

func (m *memJobRepo) status(id string) model.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.store[id]; ok {
		return j.Status
	}
	return ""
}

// ---- handler and sink stubs ----

type stubHandler struct {
	mu         sync.Mutex
	HandleFunc func(ctx context.Context, job *model.Job) (*usecase.HandlerResult, error)
	Calls      int
}

func (s *stubHandler) Handle(ctx context.Context, job *model.Job) (*usecase.HandlerResult, error) {
	s.mu.Lock()
	s.Calls++
	s.mu.Unlock()
	return s.HandleFunc(ctx, job)
}

func (s *stubHandler) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls
}

type memSink struct {
	mu       sync.Mutex
	Enqueued []*model.Notification
}

func (s *memSink) Enqueue(ctx context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Enqueued = append(s.Enqueued, n)
	return nil
}

func (s *memSink) kinds() []model.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NotificationKind, 0, len(s.Enqueued))
	for _, n := range s.Enqueued {
		out = append(out, n.Kind)
	}
	return out
}

// ---- chat gateway stub for dispatcher tests ----

type sentMessage struct {
	Method  string // text | choice | prompt
	UserID  int64
	Text    string
	Options []adapter.ChoiceOption
}

type mockChat struct {
	mu       sync.Mutex
	Sent     []sentMessage
	Attempts int
	SendErr  error
}

func (c *mockChat) record(m sentMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Attempts++
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, m)
	return nil
}

func (c *mockChat) SendText(ctx context.Context, userID int64, text string) error {
	return c.record(sentMessage{Method: "text", UserID: userID, Text: text})
}

func (c *mockChat) SendChoice(ctx context.Context, userID int64, text string, options []adapter.ChoiceOption) error {
	return c.record(sentMessage{Method: "choice", UserID: userID, Text: text, Options: options})
}

func (c *mockChat) SendPlainPrompt(ctx context.Context, userID int64, text string) error {
	return c.record(sentMessage{Method: "prompt", UserID: userID, Text: text})
}

func (c *mockChat) last() *sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Sent) == 0 {
		return nil
	}
	return &c.Sent[len(c.Sent)-1]
}

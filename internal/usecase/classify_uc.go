package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain"
	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/adapter"
)

// GateRequest asks the consumer loop to open a conversation for the user
// after the result notification is dispatched.
type GateRequest struct {
	Mode         model.ConversationMode
	AnchorJobID  string
	AnchorMemoID string
}

// HandlerResult is a successful classification outcome: exactly one
// notification, the JSON persisted to the job store, and optionally a gate
// to open.
type HandlerResult struct {
	Notification *model.Notification
	Gate         *GateRequest
	ResultJSON   string
}

// Handler processes one job kind.
type Handler interface {
	Handle(ctx context.Context, job *model.Job) (*HandlerResult, error)
}

// NotificationSink receives outbound notifications for paced delivery.
type NotificationSink interface {
	Enqueue(ctx context.Context, n *model.Notification) error
}

// Compile-time check
var _ Handler = (*ClassifyUseCase)(nil)

// ClassifyUseCase turns a job payload into a prompt, calls the model and
// parses the reply into a typed result. Every error it returns wraps either
// domain.ErrUnavailable (call never completed) or domain.ErrInvalidResponse
// (call completed, output unusable) so the consumer can pick a retry policy.
type ClassifyUseCase struct {
	ai  adapter.AIServiceAdapter
	log *zerolog.Logger
	now func() time.Time
}

func NewClassifyUseCase(ai adapter.AIServiceAdapter, logger *zerolog.Logger) *ClassifyUseCase {
	compLog := logger.With().Str("component", "ClassifyUseCase").Logger()
	return &ClassifyUseCase{ai: ai, log: &compLog, now: time.Now}
}

// classification is the shape every prompt instructs the model to produce.
type classification struct {
	Intent   string `json:"intent"` // reminder|task|note|search|ambiguous
	Action   string `json:"action,omitempty"`
	Time     string `json:"time,omitempty"` // absolute RFC3339
	Query    string `json:"query,omitempty"`
	Results  []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"results,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Question string   `json:"question,omitempty"`
}

func (c *ClassifyUseCase) Handle(ctx context.Context, job *model.Job) (*HandlerResult, error) {
	switch job.Kind {
	case model.JobKindIntentClassify:
		return c.handleIntentClassify(ctx, job)
	case model.JobKindImageTag:
		return c.handleImageTag(ctx, job)
	case model.JobKindTaskMatch:
		return c.handleTaskMatch(ctx, job)
	case model.JobKindEmailExtract:
		return c.handleEmailExtract(ctx, job)
	case model.JobKindFollowUpGenerate:
		return c.handleFollowUpGenerate(ctx, job)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobKind, job.Kind)
	}
}

func (c *ClassifyUseCase) handleIntentClassify(ctx context.Context, job *model.Job) (*HandlerResult, error) {
	text := job.Payload[model.PayloadKeyText]
	sentAt := job.MessageSentAt()

	cl, raw, err := c.complete(ctx, intentSystemPrompt(sentAt), text)
	if err != nil {
		return nil, err
	}

	switch cl.Intent {
	case "reminder":
		if cl.Action == "" || cl.Time == "" {
			return nil, fmt.Errorf("%w: reminder missing action or time", domain.ErrInvalidResponse)
		}
		resolved, err := time.Parse(time.RFC3339, cl.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: reminder time %q: %v", domain.ErrInvalidResponse, cl.Time, err)
		}
		if resolved.Before(c.now()) {
			// The referenced moment has already passed; propose the next
			// plausible occurrence instead of silently scheduling history.
			return &HandlerResult{
				Notification: newNotification(job, model.StaleReschedule{
					OriginalDate: resolved,
					ResolvedDate: resolved.AddDate(0, 0, 1),
				}),
				Gate:       &GateRequest{Mode: model.ConversationAwaitingButton, AnchorJobID: job.ID},
				ResultJSON: raw,
			}, nil
		}
		return &HandlerResult{
			Notification: newNotification(job, model.ReminderProposal{ActionText: cl.Action, ResolvedTime: resolved}),
			Gate:         &GateRequest{Mode: model.ConversationAwaitingButton, AnchorJobID: job.ID},
			ResultJSON:   raw,
		}, nil

	case "task":
		if cl.Action == "" {
			return nil, fmt.Errorf("%w: task missing action", domain.ErrInvalidResponse)
		}
		due, err := parseOptionalTime(cl.Time)
		if err != nil {
			return nil, err
		}
		return &HandlerResult{
			Notification: newNotification(job, model.TaskProposal{Description: cl.Action, DueTime: due}),
			Gate:         &GateRequest{Mode: model.ConversationAwaitingButton, AnchorJobID: job.ID},
			ResultJSON:   raw,
		}, nil

	case "note":
		// The saved record id rides along in the payload so later
		// follow-up-generate jobs can anchor to it.
		job.Payload[model.PayloadKeyAnchorID] = uuid.NewString()
		return &HandlerResult{
			Notification: newNotification(job, model.NoteSaved{SuggestedTags: cl.Tags}),
			ResultJSON:   raw,
		}, nil

	case "search":
		if cl.Query == "" {
			return nil, fmt.Errorf("%w: search missing query", domain.ErrInvalidResponse)
		}
		results := make([]model.SearchResult, 0, len(cl.Results))
		for _, r := range cl.Results {
			results = append(results, model.SearchResult{Title: r.Title, Snippet: r.Snippet})
		}
		return &HandlerResult{
			Notification: newNotification(job, model.SearchResults{Query: cl.Query, Results: results}),
			ResultJSON:   raw,
		}, nil

	case "ambiguous":
		if cl.Question == "" {
			return nil, fmt.Errorf("%w: ambiguous intent without question", domain.ErrInvalidResponse)
		}
		return &HandlerResult{
			Notification: newNotification(job, model.FollowupQuestion{Question: cl.Question}),
			Gate:         &GateRequest{Mode: model.ConversationAwaitingFollowup, AnchorJobID: job.ID},
			ResultJSON:   raw,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown intent %q", domain.ErrInvalidResponse, cl.Intent)
	}
}

func (c *ClassifyUseCase) handleImageTag(ctx context.Context, job *model.Job) (*HandlerResult, error) {
	caption := job.Payload[model.PayloadKeyCaption]
	cl, raw, err := c.complete(ctx,
		"You tag saved images for a personal memo assistant. Given the image caption, reply with JSON "+
			`{"intent":"note","tags":[...]} listing 2-5 short lowercase tags.`,
		caption)
	if err != nil {
		return nil, err
	}
	if len(cl.Tags) == 0 {
		return nil, fmt.Errorf("%w: image tagging returned no tags", domain.ErrInvalidResponse)
	}
	return &HandlerResult{
		Notification: newNotification(job, model.NoteSaved{SuggestedTags: cl.Tags}),
		ResultJSON:   raw,
	}, nil
}

func (c *ClassifyUseCase) handleTaskMatch(ctx context.Context, job *model.Job) (*HandlerResult, error) {
	text := job.Payload[model.PayloadKeyText]
	candidates := job.Payload["candidates"]
	cl, raw, err := c.complete(ctx,
		"You match a user's message against their existing tasks. Candidates (JSON array): "+candidates+
			`. Reply with JSON {"intent":"task","action":"<matched task description>","time":"<RFC3339 due time>"}.`,
		text)
	if err != nil {
		return nil, err
	}
	if cl.Action == "" {
		return nil, fmt.Errorf("%w: task match missing action", domain.ErrInvalidResponse)
	}
	due, err := parseOptionalTime(cl.Time)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{
		Notification: newNotification(job, model.TaskProposal{Description: cl.Action, DueTime: due}),
		Gate:         &GateRequest{Mode: model.ConversationAwaitingButton, AnchorJobID: job.ID},
		ResultJSON:   raw,
	}, nil
}

func (c *ClassifyUseCase) handleEmailExtract(ctx context.Context, job *model.Job) (*HandlerResult, error) {
	text := job.Payload[model.PayloadKeyText]
	sentAt := job.MessageSentAt()
	cl, raw, err := c.complete(ctx,
		"You extract the single actionable item from a forwarded email. The email was received at "+
			sentAt.Format(time.RFC3339)+"; resolve relative dates against that moment. Reply with JSON "+
			`{"intent":"task","action":"...","time":"<RFC3339>"}.`,
		text)
	if err != nil {
		return nil, err
	}
	if cl.Action == "" {
		return nil, fmt.Errorf("%w: email extract missing action", domain.ErrInvalidResponse)
	}
	due, err := parseOptionalTime(cl.Time)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{
		Notification: newNotification(job, model.TaskProposal{Description: cl.Action, DueTime: due}),
		Gate:         &GateRequest{Mode: model.ConversationAwaitingButton, AnchorJobID: job.ID},
		ResultJSON:   raw,
	}, nil
}

func (c *ClassifyUseCase) handleFollowUpGenerate(ctx context.Context, job *model.Job) (*HandlerResult, error) {
	text := job.Payload[model.PayloadKeyText]
	anchorID := job.Payload[model.PayloadKeyAnchorID]
	cl, raw, err := c.complete(ctx,
		"You write one short follow-up question about a previously saved memo so the user can enrich it. "+
			`Reply with JSON {"intent":"ambiguous","question":"..."}.`,
		text)
	if err != nil {
		return nil, err
	}
	if cl.Question == "" {
		return nil, fmt.Errorf("%w: follow-up generation returned no question", domain.ErrInvalidResponse)
	}
	return &HandlerResult{
		Notification: newNotification(job, model.FollowupQuestion{Question: cl.Question}),
		Gate: &GateRequest{
			Mode:         model.ConversationAwaitingFollowup,
			AnchorJobID:  job.ID,
			AnchorMemoID: anchorID,
		},
		ResultJSON: raw,
	}, nil
}

// complete runs one model call and parses the JSON object out of the reply.
func (c *ClassifyUseCase) complete(ctx context.Context, system, user string) (*classification, string, error) {
	reply, err := c.ai.Complete(ctx, []adapter.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		return nil, "", fmt.Errorf("complete: %w", err)
	}

	raw, ok := extractJSONObject(reply)
	if !ok {
		return nil, "", fmt.Errorf("%w: no JSON object in reply", domain.ErrInvalidResponse)
	}
	var cl classification
	if err := json.Unmarshal([]byte(raw), &cl); err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	return &cl, raw, nil
}

func intentSystemPrompt(sentAt time.Time) string {
	return "You classify a personal assistant user's message into exactly one intent: " +
		"reminder, task, note, search, or ambiguous. The message was written at " +
		sentAt.Format(time.RFC3339) +
		"; resolve every relative time expression against that moment, not the current time. " +
		`Reply with a single JSON object: {"intent":"...","action":"...","time":"<RFC3339>",` +
		`"query":"...","tags":[...],"question":"..."} filling only the fields the intent needs. ` +
		"If the message cannot be classified confidently, use intent ambiguous and ask one clarifying question."
}

// extractJSONObject pulls the outermost {...} from a model reply, tolerating
// code fences and prose around it.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func parseOptionalTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q: %v", domain.ErrInvalidResponse, v, err)
	}
	return t, nil
}

func newNotification(job *model.Job, content model.NotificationContent) *model.Notification {
	return &model.Notification{
		ID:      uuid.NewString(),
		UserID:  job.UserID,
		Kind:    content.NotificationKind(),
		Content: content,
		Reference: &model.MessageRef{
			JobID:   job.ID,
			Excerpt: excerpt(job.Payload[model.PayloadKeyText]),
			SentAt:  job.MessageSentAt(),
		},
	}
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	const max = 48
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

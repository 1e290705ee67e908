package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/adapter"
	"telegram-memo-assistant/internal/infra/metrics"
	"telegram-memo-assistant/internal/usecase"
)

var _ usecase.NotificationSink = (*Dispatcher)(nil)

// DispatcherOptions tunes outbound pacing.
type DispatcherOptions struct {
	// MinGap is the smallest interval between two messages to one user.
	MinGap time.Duration
	// StaleAfter is the message age past which a notification gets the
	// "earlier message" framing so the user knows which memo it answers.
	StaleAfter time.Duration
	QueueSize  int
}

// Dispatcher delivers notifications one at a time, pacing per user so a burst
// of finished jobs does not machine-gun someone's chat. The transport is
// bound at Run time; consumers can enqueue before the gateway exists.
type Dispatcher struct {
	opts DispatcherOptions
	ch   chan *model.Notification

	lastSent map[int64]time.Time

	log   *zerolog.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewDispatcher(opts DispatcherOptions, logger *zerolog.Logger) *Dispatcher {
	compLog := logger.With().Str("component", "Dispatcher").Logger()
	if opts.MinGap <= 0 {
		opts.MinGap = 3 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Dispatcher{
		opts:     opts,
		ch:       make(chan *model.Notification, opts.QueueSize),
		lastSent: make(map[int64]time.Time),
		log:      &compLog,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Enqueue hands a notification to the dispatch loop. Blocks when the queue is
// full; consumers slow down instead of dropping outcomes.
func (d *Dispatcher) Enqueue(ctx context.Context, n *model.Notification) error {
	select {
	case d.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue through the given gateway until the context is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context, chat adapter.ChatGatewayAdapter) {
	d.log.Info().Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Int("undelivered", len(d.ch)).Msg("dispatcher stopped")
			return
		case n := <-d.ch:
			d.deliver(ctx, chat, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, chat adapter.ChatGatewayAdapter, n *model.Notification) {
	if last, ok := d.lastSent[n.UserID]; ok {
		if gap := d.opts.MinGap - d.now().Sub(last); gap > 0 {
			d.sleep(ctx, gap)
		}
	}
	if ctx.Err() != nil {
		return
	}

	text, options, plainPrompt := d.render(n)

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		switch {
		case len(options) > 0:
			err = chat.SendChoice(ctx, n.UserID, text, options)
		case plainPrompt:
			err = chat.SendPlainPrompt(ctx, n.UserID, text)
		default:
			err = chat.SendText(ctx, n.UserID, text)
		}
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		d.sleep(ctx, time.Duration(attempt)*500*time.Millisecond)
	}
	if err != nil {
		metrics.IncNotificationSendFailure()
		d.log.Error().Err(err).
			Int64("user_id", n.UserID).
			Str("notification_kind", string(n.Kind)).
			Msg("notification delivery failed")
		return
	}

	d.lastSent[n.UserID] = d.now()
	metrics.IncNotificationSent(string(n.Kind))
	d.log.Debug().Int64("user_id", n.UserID).Str("notification_kind", string(n.Kind)).Msg("notification sent")
}

// render produces the message text and, for actionable kinds, the buttons.
// plainPrompt marks kinds that expect a free-text reply.
func (d *Dispatcher) render(n *model.Notification) (text string, options []adapter.ChoiceOption, plainPrompt bool) {
	var b strings.Builder

	// Anything delivered long after the originating message needs framing,
	// or the user has no idea which memo the bot is talking about.
	if n.Reference != nil && d.now().Sub(n.Reference.SentAt) >= d.opts.StaleAfter {
		b.WriteString("Re: your earlier message")
		if n.Reference.Excerpt != "" {
			fmt.Fprintf(&b, " \"%s\"", n.Reference.Excerpt)
		}
		b.WriteString("\n\n")
	}

	switch content := n.Content.(type) {
	case model.ReminderProposal:
		fmt.Fprintf(&b, "Set a reminder: %s at %s?",
			content.ActionText, content.ResolvedTime.Format("Mon, 2 Jan 15:04"))
		options = []adapter.ChoiceOption{
			{ID: "confirm", Label: "Confirm"},
			{ID: "edit", Label: "Change time"},
			{ID: "cancel", Label: "Cancel"},
		}
	case model.TaskProposal:
		fmt.Fprintf(&b, "Add to your task list: %s", content.Description)
		if !content.DueTime.IsZero() {
			fmt.Fprintf(&b, " (due %s)", content.DueTime.Format("Mon, 2 Jan 15:04"))
		}
		b.WriteString("?")
		options = []adapter.ChoiceOption{
			{ID: "add", Label: "Add task"},
			{ID: "ignore", Label: "Ignore"},
		}
	case model.StaleReschedule:
		fmt.Fprintf(&b, "The time you mentioned (%s) has already passed. Schedule for %s instead?",
			content.OriginalDate.Format("Mon, 2 Jan 15:04"),
			content.ResolvedDate.Format("Mon, 2 Jan 15:04"))
		options = []adapter.ChoiceOption{
			{ID: "accept", Label: "Yes, reschedule"},
			{ID: "cancel", Label: "Cancel"},
		}
	case model.FollowupQuestion:
		b.WriteString(content.Question)
		plainPrompt = true
	case model.SearchResults:
		fmt.Fprintf(&b, "Found %d result(s) for \"%s\":", len(content.Results), content.Query)
		for i, r := range content.Results {
			fmt.Fprintf(&b, "\n%d. %s", i+1, r.Title)
			if r.Snippet != "" {
				fmt.Fprintf(&b, " — %s", r.Snippet)
			}
		}
		if len(content.Results) == 0 {
			b.Reset()
			fmt.Fprintf(&b, "Nothing found for \"%s\".", content.Query)
		}
	case model.NoteSaved:
		b.WriteString("Saved.")
		if len(content.SuggestedTags) > 0 {
			fmt.Fprintf(&b, " Suggested tags: %s.", strings.Join(content.SuggestedTags, ", "))
		}
	case model.InvalidResponseFailure:
		b.WriteString("I couldn't make sense of that message despite several tries. " +
			"It has been set aside; you can rephrase and send it again.")
	case model.UnavailableNotice:
		b.WriteString("Processing your message is taking longer than usual. " +
			"I'll keep trying and let you know.")
	case model.ExpiredNotice:
		b.WriteString("I couldn't process that message within two weeks, so I've given up on it. " +
			"Please send it again if it still matters.")
	default:
		fmt.Fprintf(&b, "Update on your message: %s", n.Kind)
	}
	return b.String(), options, plainPrompt
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

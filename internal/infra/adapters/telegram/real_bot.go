// Package telegram is the chat gateway: it polls updates, turns incoming
// messages into queued jobs and renders outbound notifications.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/config"
	"telegram-memo-assistant/internal/domain/gate"
	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/adapter"
	"telegram-memo-assistant/internal/usecase"
)

var _ adapter.ChatGatewayAdapter = (*RealBotAdapter)(nil)

// RealBotAdapter polls Telegram and fans updates out to a worker pool. It
// also implements the outbound gateway port the dispatcher sends through.
type RealBotAdapter struct {
	bot     *tgbotapi.BotAPI
	cfg     *config.BotConfig
	gate    *gate.Gate
	submit  *usecase.SubmitUseCase
	reply   *usecase.ReplyUseCase
	workers int

	log           *zerolog.Logger
	cancelPolling context.CancelFunc
}

func NewRealBotAdapter(
	cfg *config.BotConfig,
	g *gate.Gate,
	submit *usecase.SubmitUseCase,
	reply *usecase.ReplyUseCase,
	logger *zerolog.Logger,
) (*RealBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if submit == nil || reply == nil {
		return nil, errors.New("bot use cases are nil")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	compLog := logger.With().Str("component", "TelegramBot").Logger()

	return &RealBotAdapter{
		bot:     bot,
		cfg:     cfg,
		gate:    g,
		submit:  submit,
		reply:   reply,
		workers: workers,
		log:     &compLog,
	}, nil
}

func (r *RealBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := r.handleUpdate(ctx, up); err != nil {
						r.log.Error().Err(err).Int("worker", id).Msg("update handling failed")
					}
				}
			}
		}(i)
	}

	r.log.Info().Int("workers", r.workers).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *RealBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	return r.handleMessage(ctx, update.Message)
}

// handleMessage classifies the envelope into a job kind and submits it. Free
// text is first offered to the reply flow: while a follow-up question is
// outstanding, the next text message is the answer, not new work.
func (r *RealBotAdapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	userID := msg.From.ID
	sentAt := time.Unix(int64(msg.Date), 0)

	if msg.IsCommand() {
		return r.handleCommand(ctx, userID, msg.Command())
	}

	if len(msg.Photo) > 0 {
		_, err := r.submit.Submit(ctx, model.JobKindImageTag, userID, map[string]string{
			model.PayloadKeyCaption:   msg.Caption,
			model.PayloadKeyMessageTS: sentAt.Format(time.RFC3339),
		})
		return err
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	consumed, err := r.reply.HandleReply(ctx, userID, text)
	if consumed {
		return err
	}

	kind := model.JobKindIntentClassify
	if msg.ForwardDate != 0 || looksLikeEmail(text) {
		kind = model.JobKindEmailExtract
	}
	_, err = r.submit.Submit(ctx, kind, userID, map[string]string{
		model.PayloadKeyText:      text,
		model.PayloadKeyMessageTS: sentAt.Format(time.RFC3339),
	})
	return err
}

func (r *RealBotAdapter) handleCommand(ctx context.Context, userID int64, command string) error {
	switch command {
	case "start":
		return r.SendText(ctx, userID,
			"Hi! Send me anything: a reminder, a task, a note, a photo or a forwarded email. "+
				"I'll sort it out and get back to you.")
	case "help":
		return r.SendText(ctx, userID,
			"Just write what's on your mind. Examples:\n"+
				"\"remind me to call mom tomorrow at 6\"\n"+
				"\"find my notes about the trip\"\n"+
				"Forward an email and I'll pull out the action item.")
	default:
		return r.SendText(ctx, userID, "Unknown command. Try /help.")
	}
}

// handleCallback resolves an outstanding button prompt. Whichever option was
// tapped, the conversation concludes and the user's queue moves again.
func (r *RealBotAdapter) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query.From == nil {
		return errors.New("callback query without sender")
	}
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	userID := query.From.ID
	data := strings.TrimSpace(query.Data)

	if !r.gate.ResolveButton(userID) {
		// Stale button from an already concluded conversation.
		return r.SendText(ctx, userID, "That one's already settled.")
	}

	ack := map[string]string{
		"confirm": "Done, reminder set.",
		"add":     "Added to your tasks.",
		"accept":  "Rescheduled.",
		"edit":    "Okay, send me the new time.",
		"ignore":  "Okay, ignored.",
		"cancel":  "Cancelled.",
	}[data]
	if ack == "" {
		ack = "Got it."
	}
	return r.SendText(ctx, userID, ack)
}

// ----- outbound gateway port -----

func (r *RealBotAdapter) SendText(ctx context.Context, userID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := r.bot.Send(tgbotapi.NewMessage(userID, text))
	return err
}

func (r *RealBotAdapter) SendChoice(ctx context.Context, userID int64, text string, options []adapter.ChoiceOption) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		label := strings.TrimSpace(opt.Label)
		if label == "" {
			label = opt.ID
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, opt.ID))
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealBotAdapter) SendPlainPrompt(ctx context.Context, userID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true, Selective: true}
	_, err := r.bot.Send(msg)
	return err
}

// looksLikeEmail spots pasted email bodies that were not forwarded natively.
func looksLikeEmail(text string) bool {
	head := text
	if len(head) > 512 {
		head = head[:512]
	}
	lower := strings.ToLower(head)
	return strings.Contains(lower, "subject:") &&
		(strings.Contains(lower, "from:") || strings.Contains(lower, "to:"))
}

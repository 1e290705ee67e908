// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/config"
	"telegram-memo-assistant/internal/domain/gate"
	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/adapter"
	"telegram-memo-assistant/internal/domain/retry"
	aiAdapters "telegram-memo-assistant/internal/infra/adapters/ai"
	tele "telegram-memo-assistant/internal/infra/adapters/telegram"
	pg "telegram-memo-assistant/internal/infra/db/postgres"
	httpapi "telegram-memo-assistant/internal/infra/http"
	"telegram-memo-assistant/internal/infra/logging"
	"telegram-memo-assistant/internal/infra/metrics"
	red "telegram-memo-assistant/internal/infra/redis"
	"telegram-memo-assistant/internal/infra/sched"
	"telegram-memo-assistant/internal/infra/worker"
	"telegram-memo-assistant/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop gateways when keys are missing)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema setup failed")
	}
	jobRepo := pg.NewJobRepo(pool)

	// ---- Redis / broker ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()

	streamBroker := red.NewStreamBroker(redisClient, cfg.Broker.Group, cfg.Broker.StreamPrefix, logger)
	if err := streamBroker.EnsureGroups(ctx, model.AllJobKinds()); err != nil {
		logger.Fatal().Err(err).Msg("stream group setup failed")
	}

	// ---- Pipeline state ----
	convGate := gate.New(cfg.Pipeline.GateHorizon)
	ledger := retry.NewLedger()
	policy := retry.Policy{
		MaxInvalidAttempts:  cfg.Pipeline.InvalidMaxAttempts,
		InvalidBackoffCap:   cfg.Pipeline.InvalidBackoffCap,
		UnavailableInterval: cfg.Pipeline.UnavailableInterval,
		ExpiryHorizon:       cfg.Pipeline.ExpiryHorizon,
	}

	// ---- AI adapter (OpenAI -> Gemini failover) ----
	ai := buildAIAdapter(ctx, cfg, logger)
	logger.Info().Str("provider", ai.Name()).Msg("ai adapter ready")

	// ---- Use cases ----
	classifyUC := usecase.NewClassifyUseCase(ai, logger)
	submitUC := usecase.NewSubmitUseCase(jobRepo, streamBroker, logger)

	dispatcher := worker.NewDispatcher(worker.DispatcherOptions{
		MinGap:     cfg.Dispatch.MinGap,
		StaleAfter: cfg.Dispatch.StaleAfter,
		QueueSize:  cfg.Dispatch.QueueSize,
	}, logger)

	replyUC := usecase.NewReplyUseCase(classifyUC, convGate, dispatcher, logger)

	// ---- Chat gateway ----
	var chatGateway adapter.ChatGatewayAdapter
	var botAdapter *tele.RealBotAdapter
	if cfg.Bot.Token == "" && cfg.Runtime.Dev {
		chatGateway = tele.NewNoopBotAdapter(logger)
	} else {
		botAdapter, err = tele.NewRealBotAdapter(&cfg.Bot, convGate, submitUC, replyUC, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram bot init failed")
		}
		chatGateway = botAdapter
		if strings.ToLower(cfg.Bot.Mode) != "" && strings.ToLower(cfg.Bot.Mode) != "polling" {
			logger.Warn().Str("mode", cfg.Bot.Mode).Msg("bot mode not implemented, falling back to polling")
		}
	}

	go dispatcher.Run(ctx, chatGateway)

	// ---- Consumers, one per kind ----
	hostname, _ := os.Hostname()
	for _, kind := range model.AllJobKinds() {
		c := worker.NewConsumer(kind, worker.ConsumerOptions{
			Consumer:       hostname + "-" + string(kind),
			Batch:          cfg.Broker.Batch,
			Block:          cfg.Broker.Block,
			ClaimMinIdle:   cfg.Broker.ClaimMinIdle,
			HandlerTimeout: cfg.Pipeline.HandlerTimeout,
		}, streamBroker, jobRepo, classifyUC, dispatcher, convGate, ledger, policy, logger)
		go c.Run(ctx)
	}

	// ---- Gate sweeper ----
	sweeper := sched.NewGateSweeper(convGate, cfg.Pipeline.SweepInterval, logger)
	go sweeper.Run(ctx)

	// ---- Telegram polling ----
	if botAdapter != nil {
		go func() {
			if err := botAdapter.StartPolling(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Admin server ----
	adminSrv := httpapi.NewServer(cfg, jobRepo, convGate, redisClient, pool, logger)
	go func() {
		if err := adminSrv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	_ = adminSrv.Shutdown(context.Background())
	if botAdapter != nil {
		botAdapter.StopPolling()
	}
}

func buildAIAdapter(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) adapter.AIServiceAdapter {
	var providers []adapter.AIServiceAdapter

	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIModel, cfg.AI.PromptBudget)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter init failed")
		}
		providers = append(providers, oa)
	}
	if cfg.AI.GeminiKey != "" {
		ga, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.GeminiModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter init failed")
		}
		providers = append(providers, ga)
	}

	switch {
	case len(providers) == 0 && cfg.Runtime.Dev:
		return aiAdapters.NewNoopAI()
	case len(providers) == 0:
		logger.Fatal().Msg("no AI provider configured: set ai.openai_key or ai.gemini_key")
		return nil
	case len(providers) == 1:
		return providers[0]
	default:
		multi, err := aiAdapters.NewMultiAIAdapter(providers...)
		if err != nil {
			logger.Fatal().Err(err).Msg("multi adapter init failed")
		}
		return multi
	}
}

// Seeds a handful of sample jobs so the pipeline can be exercised without a
// running Telegram bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"telegram-memo-assistant/internal/config"
	"telegram-memo-assistant/internal/domain/model"
	pg "telegram-memo-assistant/internal/infra/db/postgres"
	"telegram-memo-assistant/internal/infra/logging"
	red "telegram-memo-assistant/internal/infra/redis"
	"telegram-memo-assistant/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.Int64("user", 1, "user id to submit jobs for")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	streamBroker := red.NewStreamBroker(redisClient, cfg.Broker.Group, cfg.Broker.StreamPrefix, logger)
	if err := streamBroker.EnsureGroups(ctx, model.AllJobKinds()); err != nil {
		log.Fatalf("ensure groups: %v", err)
	}

	jobRepo := pg.NewJobRepo(pool)
	submitUC := usecase.NewSubmitUseCase(jobRepo, streamBroker, logger)

	now := time.Now()
	seed := []struct {
		kind    model.JobKind
		payload map[string]string
	}{
		{model.JobKindIntentClassify, map[string]string{
			model.PayloadKeyText: "remind me to water the plants tomorrow at 9am",
		}},
		{model.JobKindIntentClassify, map[string]string{
			model.PayloadKeyText: "great pasta place near the station, Trattoria Da Mario",
		}},
		{model.JobKindIntentClassify, map[string]string{
			model.PayloadKeyText: "find my notes about the kyoto trip",
		}},
		{model.JobKindEmailExtract, map[string]string{
			model.PayloadKeyText: "From: landlord@example.com\nSubject: rent\n\nPlease transfer the rent by Friday.",
			model.PayloadKeyMessageTS: now.Add(-10 * time.Minute).Format(time.RFC3339),
		}},
		{model.JobKindImageTag, map[string]string{
			model.PayloadKeyCaption: "whiteboard from the planning meeting",
		}},
	}

	for _, s := range seed {
		job, err := submitUC.Submit(ctx, s.kind, *userID, s.payload)
		if err != nil {
			log.Fatalf("submit %s: %v", s.kind, err)
		}
		fmt.Printf("seeded: %s (id=%s)\n", job.Kind, job.ID)
	}
	fmt.Println("seeding complete")
}

// Package sched holds the periodic housekeeping loops.
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/domain/gate"
	"telegram-memo-assistant/internal/infra/metrics"
)

// GateSweeper auto-concludes conversations that outlived their horizon so a
// user who never answers does not keep their queue blocked forever.
type GateSweeper struct {
	gate     *gate.Gate
	interval time.Duration
	log      *zerolog.Logger
	now      func() time.Time
}

func NewGateSweeper(g *gate.Gate, interval time.Duration, logger *zerolog.Logger) *GateSweeper {
	compLog := logger.With().Str("component", "GateSweeper").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	return &GateSweeper{gate: g, interval: interval, log: &compLog, now: time.Now}
}

func (s *GateSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", s.interval).Msg("gate sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("gate sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one expiry pass.
func (s *GateSweeper) Sweep() {
	n := s.gate.SweepExpired(s.now())
	metrics.AddConversationsExpired(n)
	metrics.SetConversationsOpen(s.gate.OpenCount())
	if n > 0 {
		s.log.Info().Int("expired", n).Msg("conversations auto-concluded")
	}
}

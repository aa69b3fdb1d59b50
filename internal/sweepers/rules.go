package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stayrate/pricing-service/internal/events"
	"github.com/stayrate/pricing-service/internal/pricing/rules"
)

// RuleSweeper periodically pauses rules whose validity window has
// elapsed so the engine stops loading them.
type RuleSweeper struct {
	store     *rules.PGStore
	publisher events.Publisher
	logger    *zerolog.Logger
	interval  time.Duration
	stopChan  chan struct{}
}

// NewRuleSweeper creates a sweeper over the rule store.
func NewRuleSweeper(store *rules.PGStore, publisher events.Publisher, logger *zerolog.Logger, interval time.Duration) *RuleSweeper {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &RuleSweeper{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the periodic rule validity sweep
func (s *RuleSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting rule validity sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Rule sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Rule sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Rule validity sweep failed")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *RuleSweeper) Stop() {
	close(s.stopChan)
}

// Sweep pauses lapsed rules and emits one deactivation event per
// rule.
func (s *RuleSweeper) Sweep(ctx context.Context) error {
	codes, err := s.store.ExpireLapsed(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return nil
	}

	for _, code := range codes {
		s.publisher.Publish(ctx, events.TypeRuleDeactivated, map[string]any{
			"rule_code": code,
			"reason":    "validity_lapsed",
		})
	}

	s.logger.Info().
		Strs("rule_codes", codes).
		Msg("Paused lapsed pricing rules")
	return nil
}

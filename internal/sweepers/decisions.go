// Package sweepers runs the periodic background maintenance loops:
// expiring lapsed price decisions and pausing rules whose validity
// window has elapsed. Expiry is passive on the read path; the sweeps
// only reconcile stored status with what readers already enforce.
package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stayrate/pricing-service/internal/events"
	"github.com/stayrate/pricing-service/internal/ledger"
)

// DecisionSweeper periodically marks lapsed decisions expired.
type DecisionSweeper struct {
	ledger    *ledger.Ledger
	publisher events.Publisher
	logger    *zerolog.Logger
	interval  time.Duration
	stopChan  chan struct{}
}

// NewDecisionSweeper creates a sweeper over the decision ledger.
func NewDecisionSweeper(led *ledger.Ledger, publisher events.Publisher, logger *zerolog.Logger, interval time.Duration) *DecisionSweeper {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &DecisionSweeper{
		ledger:    led,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the periodic expiry sweep
func (s *DecisionSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting decision expiry sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Decision sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Decision sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Decision expiry sweep failed")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *DecisionSweeper) Stop() {
	close(s.stopChan)
}

// Sweep expires every decision whose validity window has lapsed and
// emits one expiry event per decision.
func (s *DecisionSweeper) Sweep(ctx context.Context) error {
	expired, err := s.ledger.ExpireLapsed(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	for i := range expired {
		s.publisher.Publish(ctx, events.TypePriceExpired, map[string]any{
			"reference":   expired[i].Reference,
			"venue_id":    expired[i].VenueID,
			"valid_until": expired[i].ValidUntil,
		})
	}

	s.logger.Info().
		Int("expired", len(expired)).
		Msg("Expired lapsed price decisions")
	return nil
}

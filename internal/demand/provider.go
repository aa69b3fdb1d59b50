// Package demand provides live demand data for venues. Demand is an
// opaque external input: callers must tolerate its absence, and every
// failure here degrades to "no demand data", never to a failed
// pricing request.
package demand

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayrate/pricing-service/internal/pricing"
)

// Provider supplies a demand snapshot for a venue around a target
// time. Implementations may fail or return partial data.
type Provider interface {
	Demand(ctx context.Context, venueID string, venueType pricing.VenueType, at time.Time) (pricing.DemandSnapshot, error)
}

// PGProvider reads the most recent demand snapshot written by the
// (external) demand pipeline.
type PGProvider struct {
	pool *pgxpool.Pool

	// MaxAge bounds how stale a snapshot may be. Older rows are
	// treated as absent.
	MaxAge time.Duration
}

// NewPGProvider creates a Postgres-backed demand provider.
func NewPGProvider(pool *pgxpool.Pool) *PGProvider {
	return &PGProvider{pool: pool, MaxAge: 2 * time.Hour}
}

// ErrNoDemandData is returned when no usable snapshot exists.
var ErrNoDemandData = errors.New("demand: no snapshot available")

// Demand implements Provider.
func (p *PGProvider) Demand(ctx context.Context, venueID string, venueType pricing.VenueType, at time.Time) (pricing.DemandSnapshot, error) {
	var snap pricing.DemandSnapshot
	err := p.pool.QueryRow(ctx, `
		SELECT occupancy_rate, demand_level, COALESCE(historical_average, 0)
		FROM venue_demand_snapshots
		WHERE venue_id = $1
		  AND recorded_at >= $2
		ORDER BY recorded_at DESC
		LIMIT 1
	`, venueID, time.Now().Add(-p.MaxAge)).Scan(
		&snap.OccupancyRate, &snap.DemandLevel, &snap.HistoricalAverage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.DemandSnapshot{}, ErrNoDemandData
	}
	if err != nil {
		return pricing.DemandSnapshot{}, fmt.Errorf("query demand snapshot: %w", err)
	}
	return snap, nil
}

// Record stores a demand snapshot for a venue. The external demand
// pipeline pushes snapshots through the internal API.
func (p *PGProvider) Record(ctx context.Context, venueID string, snap pricing.DemandSnapshot) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO venue_demand_snapshots
			(venue_id, occupancy_rate, demand_level, historical_average, recorded_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, venueID, snap.OccupancyRate, snap.DemandLevel, snap.HistoricalAverage)
	if err != nil {
		return fmt.Errorf("insert demand snapshot: %w", err)
	}
	return nil
}

package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stayrate/pricing-service/internal/pricing"
)

// setupLedgerTestDB starts a PostgreSQL container with the decision
// schema for integration testing.
func setupLedgerTestDB(ctx context.Context, t testing.TB) (*pgxpool.Pool, func(), error) {
	if testing.Short() {
		return nil, func() {}, fmt.Errorf("skipping integration test in short mode")
	}

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("start container: %w", err)
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		testcontainers.TerminateContainer(container)
		return nil, nil, fmt.Errorf("get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		testcontainers.TerminateContainer(container)
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	if err := runLedgerTestMigrations(ctx, pool); err != nil {
		pool.Close()
		testcontainers.TerminateContainer(container)
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	cleanup := func() {
		pool.Close()
		testcontainers.TerminateContainer(container)
	}

	return pool, cleanup, nil
}

func runLedgerTestMigrations(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS price_decisions (
			id TEXT PRIMARY KEY,
			reference TEXT NOT NULL UNIQUE,
			version INTEGER NOT NULL DEFAULT 1,
			parent_decision_id TEXT REFERENCES price_decisions(id),
			venue_id TEXT NOT NULL,
			venue_type TEXT NOT NULL,
			booking_time TIMESTAMPTZ NOT NULL,
			party_size INTEGER NOT NULL,
			guest_tier TEXT,
			base_price NUMERIC(12,2) NOT NULL,
			subtotal NUMERIC(12,2) NOT NULL,
			tax_amount NUMERIC(12,2) NOT NULL,
			discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			total_price NUMERIC(12,2) NOT NULL,
			currency TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'calculated',
			confidence DOUBLE PRECISION,
			model_version TEXT,
			breakdown JSONB,
			valid_from TIMESTAMPTZ NOT NULL,
			valid_until TIMESTAMPTZ NOT NULL,
			calculation_time_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			served_at TIMESTAMPTZ,
			accepted_at TIMESTAMPTZ,
			booking_id TEXT,
			booking_reference TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_price_decisions_venue_time
			ON price_decisions (venue_id, booking_time);

		CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			action TEXT NOT NULL,
			old_value JSONB,
			new_value JSONB,
			actor TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := db.Exec(ctx, schema)
	return err
}

func testRecordInput(validFor time.Duration) RecordInput {
	confidence := 0.91
	model := "price-model-v3"
	return RecordInput{
		Context: pricing.BookingContext{
			VenueID:     "venue-1",
			VenueType:   pricing.VenueRestaurant,
			BookingTime: time.Date(2026, 9, 12, 19, 0, 0, 0, time.UTC),
			PartySize:   4,
			GuestTier:   "gold",
		},
		BasePrice:      decimal.RequireFromString("45.00"),
		Subtotal:       decimal.RequireFromString("198.00"),
		TaxAmount:      decimal.RequireFromString("19.80"),
		DiscountAmount: decimal.Zero,
		TotalPrice:     decimal.RequireFromString("217.80"),
		Currency:       "EUR",
		Source:         pricing.SourceAIModel,
		Confidence:     &confidence,
		ModelVersion:   &model,
		Breakdown: pricing.Breakdown{
			"weekend_peak": decimal.RequireFromString("18.00"),
		},
		ValidFor:        validFor,
		CalculationTime: 42 * time.Millisecond,
		Actor:           "system",
	}
}

func TestLedgerRecordAndLifecycle(t *testing.T) {
	ctx := context.Background()

	pool, cleanup, err := setupLedgerTestDB(ctx, t)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
		return
	}
	defer cleanup()

	ledger := New(pool, nil)

	d, err := ledger.Record(ctx, testRecordInput(15*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Regexp(t, `^PD_[0-9A-Za-z]{18}$`, d.Reference)
	assert.Equal(t, 1, d.Version)
	assert.Equal(t, StatusCalculated, d.Status)
	assert.True(t, d.TotalPrice.Equal(decimal.RequireFromString("217.80")))

	// Round-trip through the database preserves exact amounts.
	fetched, err := ledger.Get(ctx, d.Reference)
	require.NoError(t, err)
	assert.True(t, fetched.Subtotal.Equal(d.Subtotal))
	assert.True(t, fetched.Breakdown["weekend_peak"].Equal(decimal.RequireFromString("18.00")))
	require.NotNil(t, fetched.Confidence)
	assert.InDelta(t, 0.91, *fetched.Confidence, 1e-9)

	served, err := ledger.MarkServed(ctx, d.Reference, "api")
	require.NoError(t, err)
	assert.Equal(t, StatusServed, served.Status)
	require.NotNil(t, served.ServedAt)

	accepted, err := ledger.MarkAccepted(ctx, d.Reference, "bk-100", "BKG-2026-100", "api")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.BookingID)
	assert.Equal(t, "bk-100", *accepted.BookingID)

	// Terminal: no further moves.
	_, err = ledger.MarkRejected(ctx, d.Reference, "api")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLedgerRejectsExpiredAcceptance(t *testing.T) {
	ctx := context.Background()

	pool, cleanup, err := setupLedgerTestDB(ctx, t)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
		return
	}
	defer cleanup()

	ledger := New(pool, nil)

	// Validity window already lapsed at creation time.
	d, err := ledger.Record(ctx, testRecordInput(-time.Minute))
	require.NoError(t, err)

	_, err = ledger.MarkAccepted(ctx, d.Reference, "bk-1", "BKG-1", "api")
	assert.ErrorIs(t, err, ErrDecisionExpired)

	// The failed acceptance must not have mutated the record.
	fetched, err := ledger.Get(ctx, d.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusCalculated, fetched.Status)
	assert.Nil(t, fetched.AcceptedAt)
	assert.Nil(t, fetched.BookingID)
}

func TestLedgerExpireLapsed(t *testing.T) {
	ctx := context.Background()

	pool, cleanup, err := setupLedgerTestDB(ctx, t)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
		return
	}
	defer cleanup()

	ledger := New(pool, nil)

	lapsed, err := ledger.Record(ctx, testRecordInput(-time.Minute))
	require.NoError(t, err)
	live, err := ledger.Record(ctx, testRecordInput(time.Hour))
	require.NoError(t, err)

	expired, err := ledger.ExpireLapsed(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, lapsed.Reference, expired[0].Reference)
	assert.Equal(t, StatusExpired, expired[0].Status)

	fetched, err := ledger.Get(ctx, live.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusCalculated, fetched.Status)
}

func TestLedgerVersionChainAndAuditTrail(t *testing.T) {
	ctx := context.Background()

	pool, cleanup, err := setupLedgerTestDB(ctx, t)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
		return
	}
	defer cleanup()

	ledger := New(pool, nil)

	v1, err := ledger.Record(ctx, testRecordInput(15*time.Minute))
	require.NoError(t, err)
	_, err = ledger.MarkServed(ctx, v1.Reference, "api")
	require.NoError(t, err)

	in := testRecordInput(15 * time.Minute)
	in.ParentReference = v1.Reference
	in.TotalPrice = decimal.RequireFromString("225.50")
	v2, err := ledger.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	require.NotNil(t, v2.ParentDecisionID)
	assert.Equal(t, v1.ID, *v2.ParentDecisionID)

	trail, err := ledger.AuditTrail(ctx, v2.Reference)
	require.NoError(t, err)
	require.Len(t, trail.VersionHistory, 1)
	assert.Equal(t, v1.Reference, trail.VersionHistory[0].Reference)

	// v2 has one creation event; v1's serve transition belongs to
	// v1's own trail.
	require.NotEmpty(t, trail.AuditEvents)
	assert.Equal(t, "decision_created", trail.AuditEvents[0].Action)

	v1Trail, err := ledger.AuditTrail(ctx, v1.Reference)
	require.NoError(t, err)
	actions := make([]string, 0, len(v1Trail.AuditEvents))
	for _, e := range v1Trail.AuditEvents {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"decision_created", "status_change"}, actions)

	// Same venue and booking time makes the versions mutual siblings.
	require.Len(t, trail.RelatedDecisions, 1)
	assert.Equal(t, v1.Reference, trail.RelatedDecisions[0].Reference)
}

func TestLedgerRecentAIPrice(t *testing.T) {
	ctx := context.Background()

	pool, cleanup, err := setupLedgerTestDB(ctx, t)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
		return
	}
	defer cleanup()

	ledger := New(pool, nil)

	d, err := ledger.Record(ctx, testRecordInput(15*time.Minute))
	require.NoError(t, err)

	price, ok, err := ledger.RecentAIPrice(ctx, "venue-1", 4, 19, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(d.TotalPrice))

	// Different hour of day misses the cache.
	_, ok, err = ledger.RecentAIPrice(ctx, "venue-1", 4, 12, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	// A window that starts after the decision misses too.
	_, ok, err = ledger.RecentAIPrice(ctx, "venue-1", 4, 19, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerGetNotFound(t *testing.T) {
	ctx := context.Background()

	pool, cleanup, err := setupLedgerTestDB(ctx, t)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
		return
	}
	defer cleanup()

	ledger := New(pool, nil)

	_, err = ledger.Get(ctx, "PD_does_not_exist")
	assert.ErrorIs(t, err, ErrDecisionNotFound)
}

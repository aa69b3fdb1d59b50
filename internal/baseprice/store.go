package baseprice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/pkg/refid"
)

// PGStore reads and supersedes base prices in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed base price store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ActiveBasePrice returns the single active base price for
// venue+product within its validity window, or nil when none exists.
func (s *PGStore) ActiveBasePrice(ctx context.Context, venueID, productID string) (*BasePrice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, venue_id, product_id,
		       amount::text, currency, tax_rate::text, tax_inclusive,
		       min_price::text, max_price::text,
		       valid_from, valid_until, version, active
		FROM base_prices
		WHERE venue_id = $1
		  AND product_id = $2
		  AND active
		  AND valid_from <= NOW()
		  AND (valid_until IS NULL OR valid_until > NOW())
		ORDER BY version DESC
		LIMIT 1
	`, venueID, productID)

	bp, err := scanBasePrice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active base price: %w", err)
	}
	return bp, nil
}

// Supersede deactivates the current active price for venue+product
// and inserts a new version, atomically. Used by configuration
// imports.
func (s *PGStore) Supersede(ctx context.Context, bp BasePrice) (*BasePrice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin supersede: %w", err)
	}
	defer tx.Rollback(ctx)

	var priorVersion int
	err = tx.QueryRow(ctx, `
		UPDATE base_prices
		SET active = FALSE,
		    valid_until = NOW()
		WHERE venue_id = $1 AND product_id = $2 AND active
		RETURNING version
	`, bp.VenueID, bp.ProductID).Scan(&priorVersion)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("deactivate prior base price: %w", err)
	}

	bp.ID = refid.New("BP")
	bp.Version = priorVersion + 1
	bp.Active = true
	if bp.ValidFrom.IsZero() {
		bp.ValidFrom = time.Now()
	}

	var minPrice, maxPrice *string
	if bp.MinPrice != nil {
		s := bp.MinPrice.String()
		minPrice = &s
	}
	if bp.MaxPrice != nil {
		s := bp.MaxPrice.String()
		maxPrice = &s
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO base_prices (
			id, venue_id, product_id, amount, currency, tax_rate, tax_inclusive,
			min_price, max_price, valid_from, valid_until, version, active, created_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5, $6::numeric, $7,
			$8::numeric, $9::numeric, $10, NULL, $11, TRUE, NOW()
		)
	`, bp.ID, bp.VenueID, bp.ProductID, bp.Amount.String(), bp.Currency,
		bp.TaxRate.String(), bp.TaxInclusive, minPrice, maxPrice, bp.ValidFrom, bp.Version)
	if err != nil {
		return nil, fmt.Errorf("insert base price: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit supersede: %w", err)
	}
	return &bp, nil
}

func scanBasePrice(row pgx.Row) (*BasePrice, error) {
	var (
		bp       BasePrice
		amount   string
		taxRate  string
		minPrice *string
		maxPrice *string
	)
	err := row.Scan(
		&bp.ID, &bp.VenueID, &bp.ProductID,
		&amount, &bp.Currency, &taxRate, &bp.TaxInclusive,
		&minPrice, &maxPrice,
		&bp.ValidFrom, &bp.ValidUntil, &bp.Version, &bp.Active,
	)
	if err != nil {
		return nil, err
	}

	if bp.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse base price amount %q: %w", amount, err)
	}
	if bp.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
		return nil, fmt.Errorf("parse tax rate %q: %w", taxRate, err)
	}
	if minPrice != nil {
		d, err := decimal.NewFromString(*minPrice)
		if err != nil {
			return nil, fmt.Errorf("parse min price %q: %w", *minPrice, err)
		}
		bp.MinPrice = &d
	}
	if maxPrice != nil {
		d, err := decimal.NewFromString(*maxPrice)
		if err != nil {
			return nil, fmt.Errorf("parse max price %q: %w", *maxPrice, err)
		}
		bp.MaxPrice = &d
	}
	return &bp, nil
}

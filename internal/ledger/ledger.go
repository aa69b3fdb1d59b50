package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/database"
	"github.com/stayrate/pricing-service/internal/metrics"
	"github.com/stayrate/pricing-service/internal/pkg/refid"
	"github.com/stayrate/pricing-service/internal/pricing"
)

// Sentinel errors surfaced on invariant violations. These reach the
// caller as rejected operations with no partial mutation.
var (
	ErrDecisionNotFound   = errors.New("ledger: decision not found")
	ErrDecisionExpired    = errors.New("ledger: decision expired")
	ErrInvalidTransition  = errors.New("ledger: invalid status transition")
	ErrMissingBookingLink = errors.New("ledger: booking id and reference required to accept")
)

// Ledger persists price decisions and their audit trail.
type Ledger struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// New creates a ledger over the given pool.
func New(pool *pgxpool.Pool, logger *zerolog.Logger) *Ledger {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &Ledger{pool: pool, logger: logger}
}

// RecordInput carries everything one decision snapshot needs.
type RecordInput struct {
	Context         pricing.BookingContext
	BasePrice       decimal.Decimal
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalPrice      decimal.Decimal
	Currency        string
	Source          pricing.Source
	Confidence      *float64
	ModelVersion    *string
	Breakdown       pricing.Breakdown
	ValidFor        time.Duration
	CalculationTime time.Duration
	Actor           string

	// ParentReference links a superseding recalculation to the
	// decision it replaces. The new record gets the parent's
	// version + 1.
	ParentReference string
}

const decisionColumns = `
	id, reference, version, parent_decision_id,
	venue_id, venue_type, booking_time, party_size, COALESCE(guest_tier, ''),
	base_price::text, subtotal::text, tax_amount::text, discount_amount::text, total_price::text,
	currency, source, status, confidence, model_version, breakdown,
	valid_from, valid_until, calculation_time_ms,
	created_at, served_at, accepted_at, booking_id, booking_reference`

// Record creates a new immutable decision with a fresh reference and
// initial status calculated. The decision row, its audit entry and
// any usage-counter increments share one transaction: a decision is
// either fully recorded or not at all.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (*Decision, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		metrics.RecordLedgerWriteError()
		return nil, fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	d := &Decision{
		ID:                refid.New("pdec"),
		Reference:         refid.NewDecisionReference(),
		Version:           1,
		VenueID:           in.Context.VenueID,
		VenueType:         string(in.Context.VenueType),
		BookingTime:       in.Context.BookingTime,
		PartySize:         in.Context.PartySize,
		GuestTier:         in.Context.GuestTier,
		BasePrice:         in.BasePrice,
		Subtotal:          in.Subtotal,
		TaxAmount:         in.TaxAmount,
		DiscountAmount:    in.DiscountAmount,
		TotalPrice:        in.TotalPrice,
		Currency:          in.Currency,
		Source:            in.Source,
		Status:            StatusCalculated,
		Confidence:        in.Confidence,
		ModelVersion:      in.ModelVersion,
		Breakdown:         in.Breakdown,
		ValidFrom:         now,
		ValidUntil:        now.Add(in.ValidFor),
		CalculationTimeMS: in.CalculationTime.Milliseconds(),
		CreatedAt:         now,
	}

	if in.ParentReference != "" {
		parent, err := getByReference(ctx, tx, in.ParentReference, false)
		if err != nil {
			return nil, fmt.Errorf("resolve parent decision: %w", err)
		}
		d.ParentDecisionID = &parent.ID
		d.Version = parent.Version + 1
	}

	breakdownJSON, err := json.Marshal(d.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("encode breakdown: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO price_decisions (
			id, reference, version, parent_decision_id,
			venue_id, venue_type, booking_time, party_size, guest_tier,
			base_price, subtotal, tax_amount, discount_amount, total_price,
			currency, source, status, confidence, model_version, breakdown,
			valid_from, valid_until, calculation_time_ms, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10::numeric, $11::numeric, $12::numeric, $13::numeric, $14::numeric,
			$15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24
		)
	`, d.ID, d.Reference, d.Version, d.ParentDecisionID,
		d.VenueID, d.VenueType, d.BookingTime, d.PartySize, d.GuestTier,
		d.BasePrice.String(), d.Subtotal.String(), d.TaxAmount.String(),
		d.DiscountAmount.String(), d.TotalPrice.String(),
		d.Currency, string(d.Source), string(d.Status), d.Confidence, d.ModelVersion, breakdownJSON,
		d.ValidFrom, d.ValidUntil, d.CalculationTimeMS, d.CreatedAt)
	if err != nil {
		metrics.RecordLedgerWriteError()
		return nil, fmt.Errorf("insert decision: %w", err)
	}

	if err := AppendAudit(ctx, tx, AuditEntry{
		EntityType: EntityDecision,
		EntityID:   d.ID,
		Action:     "decision_created",
		NewValue: map[string]any{
			"reference":   d.Reference,
			"version":     d.Version,
			"total_price": d.TotalPrice.String(),
			"source":      string(d.Source),
		},
		Actor: in.Actor,
	}); err != nil {
		metrics.RecordLedgerWriteError()
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordLedgerWriteError()
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return d, nil
}

// Get returns the decision for a reference.
func (l *Ledger) Get(ctx context.Context, reference string) (*Decision, error) {
	return getByReference(ctx, l.pool, reference, false)
}

// MarkServed transitions calculated -> served.
func (l *Ledger) MarkServed(ctx context.Context, reference, actor string) (*Decision, error) {
	return l.transition(ctx, reference, StatusServed, actor, func(d *Decision, now time.Time) error {
		d.ServedAt = &now
		return nil
	})
}

// MarkAccepted transitions a still-valid decision to accepted and
// links the booking. An expired or terminal decision is rejected
// without mutation.
func (l *Ledger) MarkAccepted(ctx context.Context, reference, bookingID, bookingReference, actor string) (*Decision, error) {
	if bookingID == "" || bookingReference == "" {
		return nil, ErrMissingBookingLink
	}
	return l.transition(ctx, reference, StatusAccepted, actor, func(d *Decision, now time.Time) error {
		if !d.IsValid(now) {
			return ErrDecisionExpired
		}
		d.AcceptedAt = &now
		d.BookingID = &bookingID
		d.BookingReference = &bookingReference
		return nil
	})
}

// MarkRejected transitions a non-terminal decision to rejected.
func (l *Ledger) MarkRejected(ctx context.Context, reference, actor string) (*Decision, error) {
	return l.transition(ctx, reference, StatusRejected, actor, nil)
}

// transition locks the decision row, validates the move, applies it
// and writes the audit entry, all in one transaction.
func (l *Ledger) transition(ctx context.Context, reference string, to Status, actor string, prepare func(*Decision, time.Time) error) (*Decision, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := getByReference(ctx, tx, reference, true)
	if err != nil {
		return nil, err
	}

	from := d.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := time.Now()
	if prepare != nil {
		if err := prepare(d, now); err != nil {
			return nil, err
		}
	}
	d.Status = to

	_, err = tx.Exec(ctx, `
		UPDATE price_decisions
		SET status = $2,
		    served_at = $3,
		    accepted_at = $4,
		    booking_id = $5,
		    booking_reference = $6
		WHERE reference = $1
	`, reference, string(d.Status), d.ServedAt, d.AcceptedAt, d.BookingID, d.BookingReference)
	if err != nil {
		return nil, fmt.Errorf("update decision status: %w", err)
	}

	if err := auditStatusChange(ctx, tx, d.ID, from, to, actor); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	l.logger.Info().
		Str("reference", reference).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Decision status transition")
	return d, nil
}

// ExpireLapsed moves served/calculated decisions whose validity
// window has elapsed to expired, writing one audit entry per
// decision. Run by the background sweeper; request-path readers rely
// on IsValid, not on this sweep.
func (l *Ledger) ExpireLapsed(ctx context.Context, now time.Time) ([]Decision, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin expire sweep: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE price_decisions
		SET status = 'expired'
		WHERE status IN ('calculated', 'served')
		  AND valid_until <= $1
		RETURNING `+decisionColumns, now)
	if err != nil {
		return nil, fmt.Errorf("expire lapsed decisions: %w", err)
	}

	expired, err := scanDecisions(rows)
	if err != nil {
		return nil, err
	}

	for i := range expired {
		// The RETURNING row already carries status 'expired'; the
		// audit entry records where it came from.
		from := StatusCalculated
		if expired[i].ServedAt != nil {
			from = StatusServed
		}
		if err := auditStatusChange(ctx, tx, expired[i].ID, from, StatusExpired, "sweeper"); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit expire sweep: %w", err)
	}

	metrics.RecordDecisionsExpired(len(expired))
	return expired, nil
}

// Trail is the full audit reconstruction for one decision.
type Trail struct {
	Decision         *Decision    `json:"decision"`
	VersionHistory   []Decision   `json:"version_history"`
	AuditEvents      []AuditEntry `json:"audit_events"`
	RelatedDecisions []Decision   `json:"related_decisions"`
}

// relatedDecisionLimit bounds how many sibling decisions a trail
// reports.
const relatedDecisionLimit = 5

// AuditTrail reconstructs the decision, its version chain (walking
// parent_decision_id), its audit events and recent sibling decisions
// for the same venue and booking time.
func (l *Ledger) AuditTrail(ctx context.Context, reference string) (*Trail, error) {
	d, err := getByReference(ctx, l.pool, reference, false)
	if err != nil {
		return nil, err
	}

	trail := &Trail{Decision: d}

	// Walk the parent chain. The cap guards against a pathological
	// cycle in corrupted data.
	parentID := d.ParentDecisionID
	for depth := 0; parentID != nil && depth < 50; depth++ {
		parent, err := getByID(ctx, l.pool, *parentID)
		if err != nil {
			if errors.Is(err, ErrDecisionNotFound) {
				break
			}
			return nil, err
		}
		trail.VersionHistory = append(trail.VersionHistory, *parent)
		parentID = parent.ParentDecisionID
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, action, old_value, new_value, actor, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`, EntityDecision, d.ID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry   AuditEntry
			oldJSON []byte
			newJSON []byte
		)
		if err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Action,
			&oldJSON, &newJSON, &entry.Actor, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(oldJSON) > 0 {
			_ = json.Unmarshal(oldJSON, &entry.OldValue)
		}
		if len(newJSON) > 0 {
			_ = json.Unmarshal(newJSON, &entry.NewValue)
		}
		trail.AuditEvents = append(trail.AuditEvents, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	relatedRows, err := l.pool.Query(ctx, `
		SELECT `+decisionColumns+`
		FROM price_decisions
		WHERE venue_id = $1
		  AND booking_time = $2
		  AND id <> $3
		ORDER BY created_at DESC
		LIMIT $4
	`, d.VenueID, d.BookingTime, d.ID, relatedDecisionLimit)
	if err != nil {
		return nil, fmt.Errorf("query related decisions: %w", err)
	}
	trail.RelatedDecisions, err = scanDecisions(relatedRows)
	if err != nil {
		return nil, err
	}

	return trail, nil
}

// RecentAIPrice implements the fallback controller's decision cache:
// the most recent AI-priced total for the same venue, party size and
// hour of day within the TTL window.
func (l *Ledger) RecentAIPrice(ctx context.Context, venueID string, partySize, hourOfDay int, since time.Time) (decimal.Decimal, bool, error) {
	var totalStr string
	err := l.pool.QueryRow(ctx, `
		SELECT total_price::text
		FROM price_decisions
		WHERE venue_id = $1
		  AND party_size = $2
		  AND EXTRACT(HOUR FROM booking_time) = $3
		  AND source = 'ai_model'
		  AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT 1
	`, venueID, partySize, hourOfDay, since).Scan(&totalStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("query recent AI price: %w", err)
	}

	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse cached total %q: %w", totalStr, err)
	}
	return total, true, nil
}

func getByReference(ctx context.Context, db database.Executor, reference string, forUpdate bool) (*Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM price_decisions WHERE reference = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	d, err := scanDecision(db.QueryRow(ctx, query, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDecisionNotFound
	}
	return d, err
}

func getByID(ctx context.Context, db database.Executor, id string) (*Decision, error) {
	d, err := scanDecision(db.QueryRow(ctx, `SELECT `+decisionColumns+` FROM price_decisions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDecisionNotFound
	}
	return d, err
}

func scanDecisions(rows pgx.Rows) ([]Decision, error) {
	defer rows.Close()
	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*Decision, error) {
	var (
		d             Decision
		basePrice     string
		subtotal      string
		taxAmount     string
		discount      string
		total         string
		source        string
		status        string
		breakdownJSON []byte
	)

	err := row.Scan(
		&d.ID, &d.Reference, &d.Version, &d.ParentDecisionID,
		&d.VenueID, &d.VenueType, &d.BookingTime, &d.PartySize, &d.GuestTier,
		&basePrice, &subtotal, &taxAmount, &discount, &total,
		&d.Currency, &source, &status, &d.Confidence, &d.ModelVersion, &breakdownJSON,
		&d.ValidFrom, &d.ValidUntil, &d.CalculationTimeMS,
		&d.CreatedAt, &d.ServedAt, &d.AcceptedAt, &d.BookingID, &d.BookingReference,
	)
	if err != nil {
		return nil, err
	}

	d.Source = pricing.Source(source)
	d.Status = Status(status)

	if d.BasePrice, err = decimal.NewFromString(basePrice); err != nil {
		return nil, fmt.Errorf("parse base price: %w", err)
	}
	if d.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, fmt.Errorf("parse subtotal: %w", err)
	}
	if d.TaxAmount, err = decimal.NewFromString(taxAmount); err != nil {
		return nil, fmt.Errorf("parse tax amount: %w", err)
	}
	if d.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("parse discount: %w", err)
	}
	if d.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &d.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
	}

	return &d, nil
}

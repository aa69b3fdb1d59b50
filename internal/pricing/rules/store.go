package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/database"
	"github.com/stayrate/pricing-service/internal/pricing"
)

// PGStore reads pricing rules from Postgres.
type PGStore struct {
	db database.Executor
}

// NewPGStore creates a Postgres-backed rule store.
func NewPGStore(db database.Executor) *PGStore {
	return &PGStore{db: db}
}

const ruleColumns = `
	id, rule_code, name, rule_type, status, priority,
	venue_types, venue_ids, conditions,
	action_type, action_value::text,
	price_floor::text, price_ceiling::text,
	stackable, exclusive_group,
	days_of_week, hour_start, hour_end,
	valid_from, valid_until, version`

// ActiveRules returns active, non-deleted rules within their validity
// window at the given instant, applicable to the venue, ordered by
// (priority, rule_code) so evaluation order never depends on storage
// order.
func (s *PGStore) ActiveRules(ctx context.Context, venueID string, venueType pricing.VenueType, at time.Time) ([]Rule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE status = 'active'
		  AND deleted_at IS NULL
		  AND (valid_from IS NULL OR valid_from <= $3)
		  AND (valid_until IS NULL OR valid_until > $3)
		  AND (venue_types = '{}' OR $2 = ANY(venue_types))
		  AND (venue_ids = '{}' OR $1 = ANY(venue_ids))
		ORDER BY priority ASC, rule_code ASC
	`, venueID, string(venueType), at)
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// List returns all non-deleted rules regardless of status, for
// administration.
func (s *PGStore) List(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE deleted_at IS NULL
		ORDER BY priority ASC, rule_code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// SetStatus transitions a rule to a new status and bumps its version.
// Archived rules stay archived.
func (s *PGStore) SetStatus(ctx context.Context, ruleCode string, status Status) (*Rule, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE pricing_rules
		SET status = $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE rule_code = $1
		  AND deleted_at IS NULL
		  AND status <> 'archived'
		RETURNING `+ruleColumns, ruleCode, string(status))

	rule, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("set rule status: %w", err)
	}
	return rule, nil
}

// ExpireLapsed pauses active rules whose validity window has elapsed
// and returns their codes. Run by the background sweeper.
func (s *PGStore) ExpireLapsed(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE pricing_rules
		SET status = 'paused',
		    version = version + 1,
		    updated_at = NOW()
		WHERE status = 'active'
		  AND deleted_at IS NULL
		  AND valid_until IS NOT NULL
		  AND valid_until <= $1
		RETURNING rule_code
	`, now)
	if err != nil {
		return nil, fmt.Errorf("expire lapsed rules: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRules(rows rowsScanner) ([]Rule, error) {
	var ruleSet []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		ruleSet = append(ruleSet, *rule)
	}
	return ruleSet, rows.Err()
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		rule          Rule
		conditionsRaw []byte
		actionValue   string
		floorStr      *string
		ceilingStr    *string
		daysOfWeek    []int32
		exclusive     *string
	)

	err := row.Scan(
		&rule.ID, &rule.Code, &rule.Name, &rule.Type, &rule.Status, &rule.Priority,
		&rule.VenueTypes, &rule.VenueIDs, &conditionsRaw,
		&rule.Action, &actionValue,
		&floorStr, &ceilingStr,
		&rule.Stackable, &exclusive,
		&daysOfWeek, &rule.HourStart, &rule.HourEnd,
		&rule.ValidFrom, &rule.ValidUntil, &rule.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	if rule.ActionValue, err = decimal.NewFromString(actionValue); err != nil {
		return nil, fmt.Errorf("parse action value %q: %w", actionValue, err)
	}
	if floorStr != nil {
		floor, err := decimal.NewFromString(*floorStr)
		if err != nil {
			return nil, fmt.Errorf("parse price floor %q: %w", *floorStr, err)
		}
		rule.PriceFloor = &floor
	}
	if ceilingStr != nil {
		ceiling, err := decimal.NewFromString(*ceilingStr)
		if err != nil {
			return nil, fmt.Errorf("parse price ceiling %q: %w", *ceilingStr, err)
		}
		rule.PriceCeiling = &ceiling
	}
	if exclusive != nil {
		rule.ExclusiveGroup = *exclusive
	}
	for _, d := range daysOfWeek {
		rule.DaysOfWeek = append(rule.DaysOfWeek, time.Weekday(d))
	}
	if len(conditionsRaw) > 0 {
		if err := json.Unmarshal(conditionsRaw, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("decode rule conditions: %w", err)
		}
	}

	return &rule, nil
}

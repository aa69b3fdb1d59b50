package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stayrate/pricing-service/internal/database"
)

// Audited entity kinds.
const (
	EntityDecision = "price_decision"
	EntityRule     = "pricing_rule"
)

// AuditEntry is one append-only event tied to a decision or rule.
// Entries are never updated or deleted.
type AuditEntry struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	OldValue   map[string]any `json:"old_value,omitempty"`
	NewValue   map[string]any `json:"new_value,omitempty"`
	Actor      string         `json:"actor"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AppendAudit writes one audit entry. It accepts an Executor so it
// can participate in the same transaction as the state change it
// records.
func AppendAudit(ctx context.Context, db database.Executor, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	oldJSON, err := json.Marshal(entry.OldValue)
	if err != nil {
		return fmt.Errorf("encode audit old value: %w", err)
	}
	newJSON, err := json.Marshal(entry.NewValue)
	if err != nil {
		return fmt.Errorf("encode audit new value: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO audit_log (id, entity_type, entity_id, action, old_value, new_value, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, entry.ID, entry.EntityType, entry.EntityID, entry.Action, oldJSON, newJSON, entry.Actor)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// auditStatusChange writes the old/new status snapshot every decision
// transition produces.
func auditStatusChange(ctx context.Context, db database.Executor, decisionID string, from, to Status, actor string) error {
	return AppendAudit(ctx, db, AuditEntry{
		EntityType: EntityDecision,
		EntityID:   decisionID,
		Action:     "status_change",
		OldValue:   map[string]any{"status": string(from)},
		NewValue:   map[string]any{"status": string(to)},
		Actor:      actor,
	})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/stayrate/pricing-service/internal/events"
	"github.com/stayrate/pricing-service/internal/ledger"
	"github.com/stayrate/pricing-service/internal/pricing/rules"
)

// RuleHandler handles pricing rule administration endpoints
type RuleHandler struct {
	store     *rules.PGStore
	pool      *pgxpool.Pool
	publisher events.Publisher
	logger    *zerolog.Logger
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(store *rules.PGStore, pool *pgxpool.Pool, publisher events.Publisher, logger *zerolog.Logger) *RuleHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &RuleHandler{store: store, pool: pool, publisher: publisher, logger: logger}
}

// RuleView is the API representation of a rule
type RuleView struct {
	ID             string            `json:"id"`
	Code           string            `json:"code"`
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	Status         string            `json:"status"`
	Priority       int               `json:"priority"`
	VenueTypes     []string          `json:"venueTypes,omitempty"`
	VenueIDs       []string          `json:"venueIds,omitempty"`
	Conditions     []rules.Condition `json:"conditions,omitempty"`
	Action         string            `json:"action"`
	ActionValue    string            `json:"actionValue"`
	Stackable      bool              `json:"stackable"`
	ExclusiveGroup string            `json:"exclusiveGroup,omitempty"`
	Version        int               `json:"version"`
}

func toRuleView(r rules.Rule) RuleView {
	return RuleView{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		Type:           r.Type,
		Status:         string(r.Status),
		Priority:       r.Priority,
		VenueTypes:     r.VenueTypes,
		VenueIDs:       r.VenueIDs,
		Conditions:     r.Conditions,
		Action:         string(r.Action),
		ActionValue:    r.ActionValue.String(),
		Stackable:      r.Stackable,
		ExclusiveGroup: r.ExclusiveGroup,
		Version:        r.Version,
	}
}

// ListRules returns all non-deleted rules
// GET /api/v1/pricing/rules
func (h *RuleHandler) ListRules(c *gin.Context) {
	ruleSet, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Rule listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}

	views := make([]RuleView, 0, len(ruleSet))
	for _, r := range ruleSet {
		views = append(views, toRuleView(r))
	}
	c.JSON(http.StatusOK, gin.H{"rules": views, "total": len(views)})
}

// UpdateRuleStatusRequest represents a rule status change
type UpdateRuleStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active paused archived"`
	Actor  string `json:"actor"`
}

// UpdateRuleStatus transitions a rule's lifecycle status
// PATCH /api/v1/pricing/rules/:code/status
func (h *RuleHandler) UpdateRuleStatus(c *gin.Context) {
	code := c.Param("code")

	var req UpdateRuleStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	ctx := c.Request.Context()

	rule, err := h.store.SetStatus(ctx, code, rules.Status(req.Status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found or archived"})
			return
		}
		h.logger.Error().Err(err).Str("rule_code", code).Msg("Rule status change failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
		return
	}

	if err := ledger.AppendAudit(ctx, h.pool, ledger.AuditEntry{
		EntityType: ledger.EntityRule,
		EntityID:   rule.ID,
		Action:     "status_change",
		NewValue:   map[string]any{"status": string(rule.Status), "version": rule.Version},
		Actor:      req.Actor,
	}); err != nil {
		h.logger.Error().Err(err).Str("rule_code", code).Msg("Rule audit write failed")
	}

	eventType := events.TypeRuleDeactivated
	if rule.Status == rules.StatusActive {
		eventType = events.TypeRuleActivated
	}
	h.publisher.Publish(ctx, eventType, map[string]any{
		"rule_code": rule.Code,
		"status":    string(rule.Status),
		"version":   rule.Version,
	})

	c.JSON(http.StatusOK, toRuleView(*rule))
}

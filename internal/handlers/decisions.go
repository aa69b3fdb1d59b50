package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stayrate/pricing-service/internal/events"
	"github.com/stayrate/pricing-service/internal/ledger"
)

// DecisionHandler handles decision lifecycle HTTP endpoints
type DecisionHandler struct {
	ledger    *ledger.Ledger
	publisher events.Publisher
	logger    *zerolog.Logger
}

// NewDecisionHandler creates a new decision handler
func NewDecisionHandler(led *ledger.Ledger, publisher events.Publisher, logger *zerolog.Logger) *DecisionHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &DecisionHandler{ledger: led, publisher: publisher, logger: logger}
}

// GetDecision returns one decision by reference
// GET /api/v1/pricing/decisions/:reference
func (h *DecisionHandler) GetDecision(c *gin.Context) {
	decision, err := h.ledger.Get(c.Request.Context(), c.Param("reference"))
	if err != nil {
		if errors.Is(err, ledger.ErrDecisionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Decision not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch decision"})
		return
	}
	c.JSON(http.StatusOK, decision)
}

// UpdateStatusRequest represents a decision status transition
type UpdateStatusRequest struct {
	Status           string `json:"status" binding:"required,oneof=served accepted rejected"`
	BookingID        string `json:"bookingId"`
	BookingReference string `json:"bookingReference"`
	Actor            string `json:"actor"`
}

// UpdateStatus transitions a decision forward through its lifecycle
// PATCH /api/v1/pricing/decisions/:reference/status
func (h *DecisionHandler) UpdateStatus(c *gin.Context) {
	reference := c.Param("reference")

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	ctx := c.Request.Context()

	var (
		decision *ledger.Decision
		err      error
	)
	switch ledger.Status(req.Status) {
	case ledger.StatusServed:
		decision, err = h.ledger.MarkServed(ctx, reference, req.Actor)
	case ledger.StatusAccepted:
		decision, err = h.ledger.MarkAccepted(ctx, reference, req.BookingID, req.BookingReference, req.Actor)
	case ledger.StatusRejected:
		decision, err = h.ledger.MarkRejected(ctx, reference, req.Actor)
	}

	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDecisionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Decision not found"})
		case errors.Is(err, ledger.ErrDecisionExpired):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Decision has expired, request a recalculation",
			})
		case errors.Is(err, ledger.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, ledger.ErrMissingBookingLink):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "bookingId and bookingReference are required to accept",
			})
		default:
			h.logger.Error().Err(err).Str("reference", reference).Msg("Decision transition failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update decision"})
		}
		return
	}

	if decision.Status == ledger.StatusAccepted {
		h.publisher.Publish(ctx, events.TypePriceAccepted, map[string]any{
			"reference":         decision.Reference,
			"venue_id":          decision.VenueID,
			"total_price":       decision.TotalPrice.String(),
			"booking_reference": decision.BookingReference,
		})
	}

	c.JSON(http.StatusOK, decision)
}

// GetAuditTrail reconstructs the full audit view of a decision
// GET /api/v1/pricing/decisions/:reference/audit
func (h *DecisionHandler) GetAuditTrail(c *gin.Context) {
	trail, err := h.ledger.AuditTrail(c.Request.Context(), c.Param("reference"))
	if err != nil {
		if errors.Is(err, ledger.ErrDecisionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Decision not found"})
			return
		}
		h.logger.Error().Err(err).Msg("Audit trail reconstruction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit trail"})
		return
	}
	c.JSON(http.StatusOK, trail)
}

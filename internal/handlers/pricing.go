package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stayrate/pricing-service/internal/orchestrator"
	"github.com/stayrate/pricing-service/internal/pricing"
)

// PricingHandler handles price calculation HTTP endpoints
type PricingHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zerolog.Logger
}

// NewPricingHandler creates a new pricing handler
func NewPricingHandler(orch *orchestrator.Orchestrator, logger *zerolog.Logger) *PricingHandler {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &PricingHandler{orch: orch, logger: logger}
}

// CalculatePriceRequest represents a price calculation request
type CalculatePriceRequest struct {
	VenueID         string    `json:"venueId" binding:"required"`
	VenueType       string    `json:"venueType" binding:"required,oneof=hotel restaurant cafe bar venue"`
	ProductID       string    `json:"productId"`
	BookingTime     time.Time `json:"bookingTime" binding:"required"`
	DurationMinutes int       `json:"durationMinutes" binding:"omitempty,min=1,max=1440"`
	PartySize       int       `json:"partySize" binding:"required,min=1,max=500"`
	GuestID         string    `json:"guestId"`
	GuestTier       string    `json:"guestTier" binding:"omitempty,oneof=standard silver gold platinum"`

	// PreviousReference links a recalculation to the decision it
	// supersedes.
	PreviousReference string `json:"previousReference"`
}

func (r CalculatePriceRequest) toRequest() orchestrator.Request {
	return orchestrator.Request{
		VenueID:           r.VenueID,
		VenueType:         pricing.VenueType(r.VenueType),
		ProductID:         r.ProductID,
		BookingTime:       r.BookingTime,
		DurationMinutes:   r.DurationMinutes,
		PartySize:         r.PartySize,
		GuestID:           r.GuestID,
		GuestTier:         r.GuestTier,
		PreviousReference: r.PreviousReference,
	}
}

// CalculatePrice computes and persists a binding price decision
// POST /api/v1/pricing/calculate
func (h *PricingHandler) CalculatePrice(c *gin.Context) {
	var req CalculatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.BookingTime.Before(time.Now().Add(-24 * time.Hour)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bookingTime is in the past"})
		return
	}

	quote, err := h.orch.CalculatePrice(c.Request.Context(), req.toRequest())
	if err != nil {
		h.logger.Error().Err(err).Str("venue_id", req.VenueID).Msg("Price calculation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate price"})
		return
	}

	c.JSON(http.StatusOK, quote)
}

// EstimatePriceRequest represents a non-binding estimate request
type EstimatePriceRequest struct {
	VenueID     string    `json:"venueId" binding:"required"`
	VenueType   string    `json:"venueType" binding:"required,oneof=hotel restaurant cafe bar venue"`
	ProductID   string    `json:"productId"`
	BookingTime time.Time `json:"bookingTime" binding:"required"`
	PartySize   int       `json:"partySize" binding:"required,min=1,max=500"`
	GuestTier   string    `json:"guestTier" binding:"omitempty,oneof=standard silver gold platinum"`
}

// EstimatePrice returns a non-binding price range without recording
// a decision
// POST /api/v1/pricing/estimate
func (h *PricingHandler) EstimatePrice(c *gin.Context) {
	var req EstimatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	estimate, err := h.orch.EstimatePrice(c.Request.Context(), orchestrator.Request{
		VenueID:     req.VenueID,
		VenueType:   pricing.VenueType(req.VenueType),
		ProductID:   req.ProductID,
		BookingTime: req.BookingTime,
		PartySize:   req.PartySize,
		GuestTier:   req.GuestTier,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("venue_id", req.VenueID).Msg("Price estimate failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to estimate price"})
		return
	}

	c.JSON(http.StatusOK, estimate)
}

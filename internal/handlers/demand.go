package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stayrate/pricing-service/internal/demand"
	"github.com/stayrate/pricing-service/internal/events"
	"github.com/stayrate/pricing-service/internal/pricing"
)

// DemandHandler receives demand snapshots pushed by the external
// demand pipeline.
type DemandHandler struct {
	provider  *demand.PGProvider
	publisher events.Publisher
	logger    *zerolog.Logger
}

// NewDemandHandler creates a new demand handler
func NewDemandHandler(provider *demand.PGProvider, publisher events.Publisher, logger *zerolog.Logger) *DemandHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &DemandHandler{provider: provider, publisher: publisher, logger: logger}
}

// UpdateDemandRequest is one pushed demand snapshot
type UpdateDemandRequest struct {
	VenueID           string  `json:"venueId" binding:"required"`
	OccupancyRate     float64 `json:"occupancyRate" binding:"min=0,max=1"`
	DemandLevel       string  `json:"demandLevel" binding:"required,oneof=low normal high peak"`
	HistoricalAverage float64 `json:"historicalAverage" binding:"omitempty,min=0"`
}

// UpdateDemand records a venue demand snapshot
// POST /internal/demand
func (h *DemandHandler) UpdateDemand(c *gin.Context) {
	var req UpdateDemandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	snap := pricing.DemandSnapshot{
		OccupancyRate:     req.OccupancyRate,
		DemandLevel:       req.DemandLevel,
		HistoricalAverage: req.HistoricalAverage,
	}

	if err := h.provider.Record(ctx, req.VenueID, snap); err != nil {
		h.logger.Error().Err(err).Str("venue_id", req.VenueID).Msg("Demand snapshot write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record demand snapshot"})
		return
	}

	h.publisher.Publish(ctx, events.TypeDemandUpdated, map[string]any{
		"venue_id":       req.VenueID,
		"occupancy_rate": req.OccupancyRate,
		"demand_level":   req.DemandLevel,
	})

	c.JSON(http.StatusAccepted, gin.H{
		"venueId":     req.VenueID,
		"demandLevel": req.DemandLevel,
		"recorded":    true,
	})
}

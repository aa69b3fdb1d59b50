package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSuggesterConfig configures the HTTP model endpoint.
type HTTPSuggesterConfig struct {
	Endpoint     string
	APIKey       string
	ModelVersion string
}

// HTTPSuggester calls a remote pricing-model endpoint over HTTP. It
// is the production Suggester implementation; the caller's context
// (bounded by the gate's timeout) governs the request lifetime.
type HTTPSuggester struct {
	cfg    HTTPSuggesterConfig
	client *http.Client
}

// NewHTTPSuggester creates a suggester for the configured endpoint.
func NewHTTPSuggester(cfg HTTPSuggesterConfig) *HTTPSuggester {
	return &HTTPSuggester{
		cfg: cfg,
		// No client-level timeout: the gate's per-call context is
		// the single source of truth for deadlines.
		client: &http.Client{},
	}
}

type suggestRequest struct {
	BasePrice     decimal.Decimal `json:"base_price"`
	VenueID       string          `json:"venue_id"`
	VenueType     string          `json:"venue_type"`
	BookingTime   time.Time       `json:"booking_time"`
	PartySize     int             `json:"party_size"`
	GuestTier     string          `json:"guest_tier,omitempty"`
	OccupancyRate float64         `json:"occupancy_rate"`
	DemandLevel   string          `json:"demand_level,omitempty"`
}

type suggestResponse struct {
	SuggestedPrice decimal.Decimal            `json:"suggested_price"`
	Confidence     float64                    `json:"confidence"`
	Adjustments    map[string]decimal.Decimal `json:"adjustments"`
	Rationale      string                     `json:"rationale"`
	ModelVersion   string                     `json:"model_version"`
}

// Suggest implements Suggester.
func (s *HTTPSuggester) Suggest(ctx context.Context, req Request) (Suggestion, error) {
	payload := suggestRequest{
		BasePrice:     req.BasePrice,
		VenueID:       req.Context.VenueID,
		VenueType:     string(req.Context.VenueType),
		BookingTime:   req.Context.BookingTime,
		PartySize:     req.Context.PartySize,
		GuestTier:     req.Context.GuestTier,
		OccupancyRate: req.Context.OccupancyRate(),
	}
	if req.Context.Demand != nil {
		payload.DemandLevel = req.Context.Demand.DemandLevel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Suggestion{}, fmt.Errorf("encode suggestion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Suggestion{}, fmt.Errorf("build suggestion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Suggestion{}, fmt.Errorf("call pricing model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Suggestion{}, fmt.Errorf("pricing model returned status %d", resp.StatusCode)
	}

	var decoded suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Suggestion{}, fmt.Errorf("decode suggestion response: %w", err)
	}

	modelVersion := decoded.ModelVersion
	if modelVersion == "" {
		modelVersion = s.cfg.ModelVersion
	}

	return Suggestion{
		Price:        decoded.SuggestedPrice,
		Confidence:   decoded.Confidence,
		Adjustments:  decoded.Adjustments,
		Rationale:    decoded.Rationale,
		ModelVersion: modelVersion,
	}, nil
}

// ModelVersion implements Suggester.
func (s *HTTPSuggester) ModelVersion() string {
	return s.cfg.ModelVersion
}

// Package orchestrator coordinates one price calculation end to end:
// resolve the base price and demand in parallel, try the AI gate,
// degrade through the fallback cascade when the gate declines, apply
// tax, persist the decision and emit the domain event.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stayrate/pricing-service/internal/baseprice"
	"github.com/stayrate/pricing-service/internal/demand"
	"github.com/stayrate/pricing-service/internal/events"
	"github.com/stayrate/pricing-service/internal/ledger"
	"github.com/stayrate/pricing-service/internal/metrics"
	"github.com/stayrate/pricing-service/internal/money"
	"github.com/stayrate/pricing-service/internal/pricing"
	"github.com/stayrate/pricing-service/internal/pricing/ai"
	"github.com/stayrate/pricing-service/internal/pricing/fallback"
	"github.com/stayrate/pricing-service/internal/pricing/rules"
)

// BasePriceResolver resolves the venue base price, falling back to
// defaults.
type BasePriceResolver interface {
	Resolve(ctx context.Context, venueID, productID string, venueType pricing.VenueType) (baseprice.BasePrice, bool)
}

// SuggestionGate is the validated AI pricing boundary.
type SuggestionGate interface {
	Suggest(ctx context.Context, basePrice decimal.Decimal, bctx pricing.BookingContext) (ai.Suggestion, ai.Decline)
}

// PriceFallback is the guaranteed-result degradation cascade.
type PriceFallback interface {
	GetPrice(ctx context.Context, basePrice decimal.Decimal, bctx pricing.BookingContext, reason string) fallback.Result
}

// DecisionLedger persists decisions and serves lookups.
type DecisionLedger interface {
	Record(ctx context.Context, in ledger.RecordInput) (*ledger.Decision, error)
}

// RuleEvaluator runs the pricing rules for estimates.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, in rules.EvalInput) (rules.EvaluationResult, error)
}

// Config tunes the orchestrator.
type Config struct {
	// AIEnabled gates the AI suggestion path entirely.
	AIEnabled bool

	// ValidFor is the validity window stamped on each decision.
	ValidFor time.Duration

	// EstimateSpread is the relative width of the estimate range
	// around the point estimate.
	EstimateSpread decimal.Decimal

	// PeakHourStart/PeakHourEnd bound the evening peak window
	// (inclusive) used for the estimate peak flag.
	PeakHourStart int
	PeakHourEnd   int

	// PeakOccupancy is the weekend occupancy at or above which an
	// estimate is flagged as peak.
	PeakOccupancy float64
}

// DefaultConfig returns the default orchestrator tuning.
func DefaultConfig() Config {
	return Config{
		AIEnabled:      true,
		ValidFor:       15 * time.Minute,
		EstimateSpread: decimal.NewFromFloat(0.10),
		PeakHourStart:  18,
		PeakHourEnd:    21,
		PeakOccupancy:  0.85,
	}
}

// Request is one price calculation request.
type Request struct {
	VenueID         string
	VenueType       pricing.VenueType
	ProductID       string
	BookingTime     time.Time
	DurationMinutes int
	PartySize       int
	GuestID         string
	GuestTier       string

	// PreviousReference links a recalculation to the decision it
	// supersedes.
	PreviousReference string
}

// Quote is the result of a calculation: the persisted decision plus
// presentation fields the decision does not carry.
type Quote struct {
	Decision    *ledger.Decision  `json:"decision"`
	Message     string            `json:"message,omitempty"`
	FromDefault bool              `json:"from_default_base_price"`
	Adjustments pricing.Breakdown `json:"adjustments"`
}

// Estimate is a non-binding price preview. Nothing is persisted.
// DemandLevel is empty when the demand provider had no snapshot.
type Estimate struct {
	EstimatedPrice decimal.Decimal `json:"estimated_price"`
	MinPrice       decimal.Decimal `json:"min_price"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	Currency       string          `json:"currency"`
	DemandLevel    string          `json:"demand_level,omitempty"`
	IsPeak         bool            `json:"is_peak"`
	MatchedRules   int             `json:"matched_rules"`
}

// Orchestrator wires the pricing pipeline together.
type Orchestrator struct {
	baseResolver BasePriceResolver
	demand       demand.Provider
	gate         SuggestionGate
	fallback     PriceFallback
	ledger       DecisionLedger
	ruleEval     RuleEvaluator
	publisher    events.Publisher
	cfg          Config
	logger       *zerolog.Logger
	tracer       trace.Tracer
}

// New creates an orchestrator. gate may be nil when AI pricing is not
// configured; publisher may be nil to disable eventing.
func New(
	baseResolver BasePriceResolver,
	demandProvider demand.Provider,
	gate SuggestionGate,
	priceFallback PriceFallback,
	decisionLedger DecisionLedger,
	ruleEval RuleEvaluator,
	publisher events.Publisher,
	cfg Config,
	logger *zerolog.Logger,
) *Orchestrator {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Orchestrator{
		baseResolver: baseResolver,
		demand:       demandProvider,
		gate:         gate,
		fallback:     priceFallback,
		ledger:       decisionLedger,
		ruleEval:     ruleEval,
		publisher:    publisher,
		cfg:          cfg,
		logger:       logger,
		tracer:       otel.Tracer("orchestrator"),
	}
}

// CalculatePrice computes, persists and returns a binding price
// decision. It fails only when the decision cannot be persisted; the
// price computation itself always produces a result.
func (o *Orchestrator) CalculatePrice(ctx context.Context, req Request) (*Quote, error) {
	ctx, span := o.tracer.Start(ctx, "pricing.calculate",
		trace.WithAttributes(
			attribute.String("venue.id", req.VenueID),
			attribute.String("venue.type", string(req.VenueType)),
			attribute.Int("party.size", req.PartySize),
		))
	defer span.End()

	start := time.Now()

	base, snapshot, fromDefault := o.gatherInputs(ctx, req)

	bctx := pricing.BookingContext{
		VenueID:         req.VenueID,
		VenueType:       req.VenueType,
		BookingTime:     req.BookingTime,
		DurationMinutes: req.DurationMinutes,
		PartySize:       req.PartySize,
		GuestID:         req.GuestID,
		GuestTier:       req.GuestTier,
		Demand:          snapshot,
	}

	// Venue types priced per head scale the base before any
	// adjustment runs, so rule and AI effects apply to the whole
	// party, not to one cover.
	scaledBase := base.Amount
	if req.VenueType.PerPerson() && req.PartySize > 1 {
		scaledBase = base.Amount.Mul(decimal.NewFromInt(int64(req.PartySize)))
	}

	price, source, confidence, breakdown, modelVersion, message := o.computePrice(ctx, scaledBase, bctx)

	// Base-price level bounds apply to the final subtotal whatever
	// tier produced it.
	if base.MinPrice != nil && price.LessThan(*base.MinPrice) {
		price = *base.MinPrice
	}
	if base.MaxPrice != nil && price.GreaterThan(*base.MaxPrice) {
		price = *base.MaxPrice
	}

	// Tax-inclusive base prices already carry the tax inside the
	// adjusted amount; back it out for reporting instead of adding
	// it on top.
	subtotal := money.Round2(price)
	var taxAmount decimal.Decimal
	total := subtotal
	if base.TaxInclusive {
		net := subtotal.Div(decimal.NewFromInt(1).Add(base.TaxRate))
		taxAmount = money.Round2(subtotal.Sub(net))
	} else {
		taxAmount = money.Round2(subtotal.Mul(base.TaxRate))
		total = subtotal.Add(taxAmount)
	}

	elapsed := time.Since(start)

	decision, err := o.ledger.Record(ctx, ledger.RecordInput{
		Context:         bctx,
		BasePrice:       money.Round2(scaledBase),
		Subtotal:        subtotal,
		TaxAmount:       taxAmount,
		DiscountAmount:  decimal.Zero,
		TotalPrice:      total,
		Currency:        base.Currency,
		Source:          source,
		Confidence:      confidence,
		ModelVersion:    modelVersion,
		Breakdown:       breakdown,
		ValidFor:        o.cfg.ValidFor,
		CalculationTime: elapsed,
		Actor:           "system",
		ParentReference: req.PreviousReference,
	})
	if err != nil {
		return nil, fmt.Errorf("persist price decision: %w", err)
	}

	metrics.ObserveCalculation(string(source), elapsed)
	span.SetAttributes(
		attribute.String("pricing.source", string(source)),
		attribute.String("pricing.reference", decision.Reference),
	)

	o.publisher.Publish(ctx, events.TypePriceCalculated, map[string]any{
		"reference":   decision.Reference,
		"venue_id":    decision.VenueID,
		"total_price": decision.TotalPrice.String(),
		"currency":    decision.Currency,
		"source":      string(decision.Source),
		"valid_until": decision.ValidUntil,
	})

	o.logger.Info().
		Str("reference", decision.Reference).
		Str("source", string(source)).
		Str("total", total.String()).
		Dur("elapsed", elapsed).
		Msg("Price calculated")

	return &Quote{
		Decision:    decision,
		Message:     message,
		FromDefault: fromDefault,
		Adjustments: breakdown,
	}, nil
}

// gatherInputs fetches the base price and demand snapshot in
// parallel. Neither collaborator can fail the calculation: the base
// resolver degrades to defaults internally, and a demand failure
// leaves the snapshot nil.
func (o *Orchestrator) gatherInputs(ctx context.Context, req Request) (baseprice.BasePrice, *pricing.DemandSnapshot, bool) {
	var (
		base        baseprice.BasePrice
		fromDefault bool
		snapshot    *pricing.DemandSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		base, fromDefault = o.baseResolver.Resolve(gctx, req.VenueID, req.ProductID, req.VenueType)
		return nil
	})
	g.Go(func() error {
		if o.demand == nil {
			return nil
		}
		snap, err := o.demand.Demand(gctx, req.VenueID, req.VenueType, req.BookingTime)
		if err != nil {
			o.logger.Debug().Err(err).Str("venue_id", req.VenueID).Msg("Demand data unavailable")
			return nil
		}
		snapshot = &snap
		return nil
	})
	_ = g.Wait()

	return base, snapshot, fromDefault
}

// computePrice runs the AI gate and, when it declines, the fallback
// cascade. The returned price excludes tax.
func (o *Orchestrator) computePrice(ctx context.Context, basePrice decimal.Decimal, bctx pricing.BookingContext) (decimal.Decimal, pricing.Source, *float64, pricing.Breakdown, *string, string) {
	fallbackReason := fallback.ReasonAIDisabled
	if o.cfg.AIEnabled && o.gate != nil {
		suggestion, decline := o.gate.Suggest(ctx, basePrice, bctx)
		if decline == ai.DeclineNone {
			breakdown := pricing.Breakdown{}
			breakdown.Add(pricing.AdjustAI, suggestion.Price.Sub(basePrice))
			confidence := suggestion.Confidence
			modelVersion := suggestion.ModelVersion
			return suggestion.Price, pricing.SourceAIModel, &confidence, breakdown, &modelVersion, suggestion.Rationale
		}
		if decline == ai.DeclineLowConfidence {
			fallbackReason = fallback.ReasonAILowConfidence
		} else {
			fallbackReason = fallback.ReasonAIUnavailable
		}
	}

	result := o.fallback.GetPrice(ctx, basePrice, bctx, fallbackReason)
	confidence := result.Confidence
	return result.Price, result.Source, &confidence, result.Breakdown, nil, result.Message
}

// EstimatePrice returns a non-binding price range from the rule
// engine alone. No AI call, no persisted decision.
func (o *Orchestrator) EstimatePrice(ctx context.Context, req Request) (*Estimate, error) {
	ctx, span := o.tracer.Start(ctx, "pricing.estimate",
		trace.WithAttributes(attribute.String("venue.id", req.VenueID)))
	defer span.End()

	base, snapshot, _ := o.gatherInputs(ctx, req)

	scaledBase := base.Amount
	if req.VenueType.PerPerson() && req.PartySize > 1 {
		scaledBase = base.Amount.Mul(decimal.NewFromInt(int64(req.PartySize)))
	}

	eval, err := o.ruleEval.Evaluate(ctx, rules.EvalInput{
		BasePrice:   scaledBase,
		VenueID:     req.VenueID,
		VenueType:   req.VenueType,
		BookingTime: req.BookingTime,
		PartySize:   req.PartySize,
		GuestTier:   req.GuestTier,
		Demand:      snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate rule evaluation: %w", err)
	}

	point := eval.AdjustedPrice
	spread := point.Mul(o.cfg.EstimateSpread)

	demandLevel := ""
	if snapshot != nil {
		demandLevel = snapshot.DemandLevel
	}

	return &Estimate{
		EstimatedPrice: point,
		MinPrice:       money.Round2(point.Sub(spread)),
		MaxPrice:       money.Round2(point.Add(spread)),
		Currency:       base.Currency,
		DemandLevel:    demandLevel,
		IsPeak:         o.isPeak(req.BookingTime, snapshot),
		MatchedRules:   len(eval.Matched),
	}, nil
}

// isPeak flags evening hours, and weekends under high occupancy, as
// peak demand for estimate presentation.
func (o *Orchestrator) isPeak(at time.Time, snapshot *pricing.DemandSnapshot) bool {
	hour := at.Hour()
	if hour >= o.cfg.PeakHourStart && hour <= o.cfg.PeakHourEnd {
		return true
	}
	day := at.Weekday()
	weekend := day == time.Saturday || day == time.Sunday
	return weekend && snapshot != nil && snapshot.OccupancyRate >= o.cfg.PeakOccupancy
}

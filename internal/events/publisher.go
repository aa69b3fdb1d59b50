// Package events publishes domain events to interested consumers.
// Publishing is fire-and-forget: a broker outage never fails the
// pricing operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event types emitted by the pricing service.
const (
	TypePriceCalculated = "pricing.price_calculated"
	TypePriceAccepted   = "pricing.price_accepted"
	TypePriceExpired    = "pricing.price_expired"
	TypeRuleActivated   = "pricing.rule_activated"
	TypeRuleDeactivated = "pricing.rule_deactivated"
	TypeDemandUpdated   = "pricing.demand_updated"
)

// Envelope is the wire format every published event shares.
type Envelope struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      any       `json:"data"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any)
}

// RedisPublisher publishes events to a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zerolog.Logger
}

// NewRedisPublisher wraps an existing Redis client.
func NewRedisPublisher(client *redis.Client, channel string, logger *zerolog.Logger) *RedisPublisher {
	if channel == "" {
		channel = "pricing.events"
	}
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Publish sends one event. Failures are logged, never returned: the
// caller's operation already succeeded by the time the event fires.
func (p *RedisPublisher) Publish(ctx context.Context, eventType string, data any) {
	env := Envelope{
		ID:        uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "pricing-service",
		Data:      data,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to encode event")
		return
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("channel", p.channel).
			Msg("Failed to publish event")
		return
	}

	p.logger.Debug().Str("event_type", eventType).Str("event_id", env.ID).Msg("Event published")
}

// NopPublisher drops all events. Used when eventing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) {}

package messaging

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/blackstrype/trainline/internal/domain"
)

// Metadata keys set on every published message.
const (
	MetadataCorrelationID = "correlation_id"
	MetadataEventType     = "event_type"
)

// Event type names carried in MetadataEventType.
const (
	EventEnrichmentRequest = "EnrichmentRequest"
	EventEnrichmentResult  = "EnrichmentResult"
)

// RequestPublisher sends EnrichmentRequests to the requests topic.
type RequestPublisher struct {
	pub   message.Publisher
	topic string
}

// NewRequestPublisher returns a publisher for topic.
func NewRequestPublisher(pub message.Publisher, topic string) *RequestPublisher {
	return &RequestPublisher{pub: pub, topic: topic}
}

// PublishRequest sends req. The stop id is the correlation id.
func (p *RequestPublisher) PublishRequest(ctx context.Context, req domain.EnrichmentRequest) error {
	if err := publish(ctx, p.pub, p.topic, EventEnrichmentRequest, req.StopID.String(), req); err != nil {
		return fmt.Errorf("messaging.RequestPublisher.PublishRequest: %w", err)
	}
	return nil
}

// ResultPublisher sends EnrichmentResults to the response topic.
type ResultPublisher struct {
	pub   message.Publisher
	topic string
}

// NewResultPublisher returns a publisher for topic.
func NewResultPublisher(pub message.Publisher, topic string) *ResultPublisher {
	return &ResultPublisher{pub: pub, topic: topic}
}

// PublishResult sends res. The stop id is the correlation id.
func (p *ResultPublisher) PublishResult(ctx context.Context, res domain.EnrichmentResult) error {
	if err := publish(ctx, p.pub, p.topic, EventEnrichmentResult, res.StopID.String(), res); err != nil {
		return fmt.Errorf("messaging.ResultPublisher.PublishResult: %w", err)
	}
	return nil
}

func publish(ctx context.Context, pub message.Publisher, topic, eventType, correlationID string, payload any) error {
	body, err := Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	msg := message.NewMessage(NewMessageID(), body)
	msg.Metadata.Set(MetadataCorrelationID, correlationID)
	msg.Metadata.Set(MetadataEventType, eventType)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	msg.SetContext(ctx)

	if err := pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

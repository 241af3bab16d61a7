package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/blackstrype/trainline/internal/domain"
)

// RequestHandler is satisfied by *service.EnrichmentConsumer.
type RequestHandler interface {
	Handle(ctx context.Context, req domain.EnrichmentRequest) error
}

// ResultHandler is satisfied by *service.ResultObserver.
type ResultHandler interface {
	Handle(ctx context.Context, res domain.EnrichmentResult) error
}

// RouterConfig configures the consuming side.
type RouterConfig struct {
	RequestTopic  string
	ResponseTopic string
	PoisonTopic   string

	// MaxRetries is how often a failing handler is re-run before the message
	// is moved to PoisonTopic.
	MaxRetries       int
	RetryInterval    time.Duration
	RetryMaxInterval time.Duration

	// Registerer receives the router's prometheus metrics. Nil disables them.
	Registerer       prometheus.Registerer
	MetricsNamespace string
	MetricsSubsystem string
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 10 * time.Second
	}
	return c
}

// NewRouter wires the enrichment consumer, and the result observer when
// results is non-nil, onto t. The caller runs the router with Run(ctx).
//
// Middleware order, outermost first: correlation id, tracing, poison queue,
// retry, panic recovery. A handler error is therefore retried before the
// message is poisoned, and ErrUnprocessable is poisoned without retry.
func NewRouter(cfg RouterConfig, t Transport, logger watermill.LoggerAdapter, requests RequestHandler, results ResultHandler) (*message.Router, error) {
	cfg = cfg.withDefaults()

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("messaging.NewRouter: %w", err)
	}

	poison, err := middleware.PoisonQueue(t.Publisher, cfg.PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("messaging.NewRouter: poison queue: %w", err)
	}

	router.AddMiddleware(
		correlationID,
		traced,
		poison,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.RetryInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			Multiplier:      2,
			Logger:          logger,
			ShouldRetry: func(params middleware.RetryParams) bool {
				return !errors.Is(params.Err, ErrUnprocessable)
			},
		}.Middleware,
		middleware.Recoverer,
	)

	if cfg.Registerer != nil {
		metrics.NewPrometheusMetricsBuilder(cfg.Registerer, cfg.MetricsNamespace, cfg.MetricsSubsystem).
			AddPrometheusRouterMetrics(router)
	}

	router.AddNoPublisherHandler("enrichment-consumer", cfg.RequestTopic, t.Subscriber, handleRequests(requests, logger))
	if results != nil {
		router.AddNoPublisherHandler("result-observer", cfg.ResponseTopic, t.Subscriber, handleResults(results))
	}
	return router, nil
}

func handleRequests(h RequestHandler, logger watermill.LoggerAdapter) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var req domain.EnrichmentRequest
		if err := Unmarshal(msg.Payload, &req); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrUnprocessable, EventEnrichmentRequest, err)
		}
		if req.StopID == uuid.Nil || req.StationID == "" {
			return fmt.Errorf("%w: %s without stopId or stationId", ErrUnprocessable, EventEnrichmentRequest)
		}

		logger.Debug("handling enrichment request", watermill.LogFields{
			"message_uuid":   msg.UUID,
			"correlation_id": msg.Metadata.Get(MetadataCorrelationID),
			"stop_id":        req.StopID.String(),
		})
		return h.Handle(msg.Context(), req)
	}
}

func handleResults(h ResultHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var res domain.EnrichmentResult
		if err := Unmarshal(msg.Payload, &res); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrUnprocessable, EventEnrichmentResult, err)
		}
		return h.Handle(msg.Context(), res)
	}
}

// correlationID fills in a correlation id for messages from foreign producers.
func correlationID(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(MetadataCorrelationID) == "" {
			msg.Metadata.Set(MetadataCorrelationID, NewMessageID())
		}
		return h(msg)
	}
}

// traced wraps message handling in an OpenTelemetry span parented on the
// producer's span when the metadata carries one.
func traced(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		parent := otel.GetTextMapPropagator().Extract(msg.Context(), propagation.MapCarrier(msg.Metadata))
		ctx, span := otel.Tracer("github.com/blackstrype/trainline/internal/messaging").Start(parent, "messaging.Handle")
		defer span.End()
		msg.SetContext(ctx)

		span.SetAttributes(
			attribute.String("message.uuid", msg.UUID),
			attribute.String("message.correlation_id", msg.Metadata.Get(MetadataCorrelationID)),
			attribute.String("message.event_type", msg.Metadata.Get(MetadataEventType)),
		)

		out, err := h(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
		}
		return out, err
	}
}

package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Supported values of TransportConfig.System.
const (
	SystemChannel = "channel"
	SystemKafka   = "kafka"
	SystemNATS    = "nats"
	SystemAMQP    = "amqp"
)

// TransportConfig selects and configures the pub/sub backend.
type TransportConfig struct {
	System             string
	KafkaBrokers       []string
	KafkaConsumerGroup string
	NATSURL            string
	AMQPURL            string
}

// Transport is a connected publisher/subscriber pair.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the publisher and subscriber. A shared gochannel is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		if err := t.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("messaging.Transport.Close: %w", err)
	}
	return nil
}

// BuildTransport connects to the backend named by cfg.System.
func BuildTransport(ctx context.Context, cfg TransportConfig, logger watermill.LoggerAdapter) (Transport, error) {
	switch cfg.System {
	case SystemChannel, "":
		return buildChannel(logger), nil
	case SystemKafka:
		return buildKafka(cfg, logger)
	case SystemNATS:
		return buildNATS(cfg, logger)
	case SystemAMQP:
		return buildAMQP(cfg, logger)
	default:
		return Transport{}, fmt.Errorf("messaging.BuildTransport: unknown pub/sub system %q", cfg.System)
	}
}

// buildChannel returns an in-process transport for local runs and tests.
func buildChannel(logger watermill.LoggerAdapter) Transport {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	return Transport{Publisher: pubSub, Subscriber: pubSub}
}

func buildKafka(cfg TransportConfig, logger watermill.LoggerAdapter) (Transport, error) {
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("messaging.BuildTransport: kafka publisher: %w", err)
	}

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:       cfg.KafkaBrokers,
		Unmarshaler:   kafka.DefaultMarshaler{},
		ConsumerGroup: cfg.KafkaConsumerGroup,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return Transport{}, fmt.Errorf("messaging.BuildTransport: kafka subscriber: %w", err)
	}
	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func buildNATS(cfg TransportConfig, logger watermill.LoggerAdapter) (Transport, error) {
	marshaler := &nats.NATSMarshaler{}

	publisher, err := nats.NewPublisher(nats.PublisherConfig{
		URL:       cfg.NATSURL,
		Marshaler: marshaler,
	}, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("messaging.BuildTransport: nats publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:         cfg.NATSURL,
		Unmarshaler: marshaler,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return Transport{}, fmt.Errorf("messaging.BuildTransport: nats subscriber: %w", err)
	}
	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func buildAMQP(cfg TransportConfig, logger watermill.LoggerAdapter) (Transport, error) {
	amqpConfig := amqp.NewDurablePubSubConfig(cfg.AMQPURL, amqp.GenerateQueueNameTopicName)

	conn, err := amqp.NewConnection(amqp.ConnectionConfig{
		AmqpURI:   cfg.AMQPURL,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("messaging.BuildTransport: amqp connect: %w", err)
	}

	publisher, err := amqp.NewPublisherWithConnection(amqpConfig, logger, conn)
	if err != nil {
		_ = conn.Close()
		return Transport{}, fmt.Errorf("messaging.BuildTransport: amqp publisher: %w", err)
	}

	subscriber, err := amqp.NewSubscriberWithConnection(amqpConfig, logger, conn)
	if err != nil {
		_ = publisher.Close()
		return Transport{}, fmt.Errorf("messaging.BuildTransport: amqp subscriber: %w", err)
	}
	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// Package kafka provides the Apache Kafka transport. Commands and responses
// are partitioned by the correlation id carried in the partition_key metadata
// so one call's traffic stays key-ordered.
package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	wkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/connmesh/connmesh/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wkafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wkafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg wkafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wkafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a new Kafka transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	marshaler := wkafka.NewWithPartitioningMarshaler(partitionKey)

	publisher, err := PublisherFactory(
		wkafka.PublisherConfig{
			Brokers:   cfg.GetKafkaBrokers(),
			Marshaler: marshaler,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		wkafka.SubscriberConfig{
			Brokers:       cfg.GetKafkaBrokers(),
			Unmarshaler:   marshaler,
			ConsumerGroup: cfg.GetKafkaConsumerGroup(),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func partitionKey(topic string, msg *message.Message) (string, error) {
	// Messages without an explicit key fall back to the message UUID so they
	// still spread across partitions.
	if key := msg.Metadata.Get(transport.PartitionKeyMetadata); key != "" {
		return key, nil
	}
	return msg.UUID, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

// Package transport defines the pluggable bus backends for connmesh. Each
// backend (channel, kafka, nats, rabbitmq) lives in its own sub-package and
// registers itself with the registry; services select one via configuration.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// PartitionKeyMetadata is the message metadata key carrying the ordering key.
// The RPC layer sets it to the correlation id so a command and its response
// stay key-ordered on partitioned backends.
const PartitionKeyMetadata = "partition_key"

// Transport combines the publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder creates a transport from configuration. Each transport package
// provides one and registers it under its name.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config is the narrow configuration view transports depend on, so transport
// packages never import the full service config.
type Config interface {
	// GetPubSubSystem returns the selected transport name.
	GetPubSubSystem() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string
}

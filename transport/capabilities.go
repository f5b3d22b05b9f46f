package transport

// Capabilities describes what a bus backend can guarantee. The RPC layer uses
// it to decide whether correlation-keyed ordering is native or best-effort.
type Capabilities struct {
	// SupportsOrdering indicates messages within a partition/stream are
	// delivered in publish order.
	SupportsOrdering bool

	// SupportsPartitioning indicates the backend routes messages by key.
	SupportsPartitioning bool

	// SupportsAck indicates explicit acknowledgment is available.
	SupportsAck bool

	// SupportsNack indicates negative acknowledgment (redelivery) is available.
	SupportsNack bool

	// SupportsConsumerGroups indicates competing consumers share a topic,
	// which rules out shared reply topics across instances.
	SupportsConsumerGroups bool

	// Name is the transport name.
	Name string
}

// SupportsReliableDelivery reports whether at-least-once semantics hold.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:                   "kafka",
		SupportsOrdering:       true,
		SupportsPartitioning:   true,
		SupportsAck:            true,
		SupportsConsumerGroups: true,
	}

	NATSCapabilities = Capabilities{
		Name:                   "nats",
		SupportsAck:            true,
		SupportsNack:           true,
		SupportsConsumerGroups: true,
	}

	RabbitMQCapabilities = Capabilities{
		Name:                   "rabbitmq",
		SupportsOrdering:       true,
		SupportsAck:            true,
		SupportsNack:           true,
		SupportsConsumerGroups: true,
	}
)

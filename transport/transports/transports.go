// Package transports imports all built-in transports for side-effect
// registration with the default registry.
package transports

import (
	_ "github.com/connmesh/connmesh/transport/channel"
	_ "github.com/connmesh/connmesh/transport/kafka"
	_ "github.com/connmesh/connmesh/transport/nats"
	_ "github.com/connmesh/connmesh/transport/rabbitmq"
)

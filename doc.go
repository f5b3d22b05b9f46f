// Package connmesh is a bus-connected messaging mesh for device fleets. A
// fleet of cooperating domains (auth, device, device-auth, buffer,
// connection-scheme, message) never call each other directly: every
// cross-domain interaction is a Command published on a shared Watermill bus
// and answered asynchronously on a reply topic, correlated by an opaque id.
//
// Two pieces sit at the core. The rpc substrate provides typed per-domain
// clients with a correlation registry, per-instance reply addressing, a call
// deadline, and response-kind validation, plus the always-answer command
// dispatcher on the serving side. On top of it, the message domain routes
// payloads through per-device buffers: ingestion is gated by token-based
// authorization resolved over the bus, and OUTGOING messages are duplicated
// one transition hop along the owning connection schemes as INCOMING copies.
//
// # Transports
//
// The bus runs on a pluggable transport selected by Config: in-memory Go
// channels for tests and single-process mode, Kafka with correlation-keyed
// partitioning, NATS JetStream, or RabbitMQ durable queues. Transports
// register themselves; import the ones you need or pull in all of them via
// the transport/transports package.
//
// # Middleware
//
// Every Node applies correlation id injection, structured message logging,
// OpenTelemetry tracing, Prometheus metrics, retry with exponential backoff,
// poison queue forwarding, and panic recovery. Custom registrations can be
// appended through NodeOptions.
package connmesh

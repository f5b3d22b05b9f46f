package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/logging"
)

// MiddlewareBuilder constructs a handler middleware using the node it is
// registered on.
type MiddlewareBuilder func(*Node) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware is registered on a Node
// router. Either Middleware or Builder must be set.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware behaviour.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryIf         func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	return cfg
}

// DefaultMiddlewares returns the standard chain applied by NewNode.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RetryMiddleware(RetryMiddlewareConfig{}),
		PoisonQueueMiddleware(nil),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds Prometheus metrics to the handler and mounts the
// /metrics endpoint when a metrics port is configured.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(n *Node) (message.HandlerMiddleware, error) {
			if !n.Conf.MetricsEnabled {
				return nil, nil
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(
				prometheus.DefaultRegisterer,
				"connmesh",
				n.Conf.PubSubSystem,
			)

			metricsBuilder.AddPrometheusRouterMetrics(n.router)

			if n.Conf.MetricsPort > 0 {
				n.RegisterHTTPHandler(n.Conf.MetricsPort, "/metrics", promhttp.Handler())
			}

			return metricsBuilder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// CorrelationIDMiddleware ensures each processed message carries a
// correlation identifier in its metadata.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				if _, ok := msg.Metadata["correlation_id"]; !ok {
					msg.Metadata["correlation_id"] = ids.NewCorrelationID()
				}
				return h(msg)
			}
		},
	}
}

// LogMessagesMiddleware logs the full payload and metadata of handled
// messages at debug level.
func LogMessagesMiddleware(logger logging.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(n *Node) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = n.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return func(h message.HandlerFunc) message.HandlerFunc {
				return func(msg *message.Message) ([]*message.Message, error) {
					l.Debug("Processing message", logging.Fields{
						"message_uuid": msg.UUID,
						"payload":      string(msg.Payload),
						"metadata":     msg.Metadata,
					})
					return h(msg)
				}
			}, nil
		},
	}
}

// TracerMiddleware wraps handler execution in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				tracer := otel.Tracer("connmesh-bus-tracer")
				ctx, span := tracer.Start(
					msg.Context(),
					"ProcessMessage",
				)
				defer span.End()
				msg.SetContext(ctx)

				span.SetAttributes(
					attribute.String("message.uuid", msg.UUID),
					attribute.String("message.metadata", fmt.Sprintf("%v", msg.Metadata)),
				)
				return h(msg)
			}
		},
	}
}

// RetryMiddleware retries handler execution with exponential backoff
// (defaults applied to zero values).
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	normalized := cfg.withDefaults()
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(n *Node) (message.HandlerMiddleware, error) {
			retryCfg := normalized
			if n.Conf.RetryMaxRetries > 0 {
				retryCfg.MaxRetries = n.Conf.RetryMaxRetries
			}
			if n.Conf.RetryInitialInterval > 0 {
				retryCfg.InitialInterval = n.Conf.RetryInitialInterval
			}
			if n.Conf.RetryMaxInterval > 0 {
				retryCfg.MaxInterval = n.Conf.RetryMaxInterval
			}
			return middleware.Retry{
				MaxRetries:      retryCfg.MaxRetries,
				InitialInterval: retryCfg.InitialInterval,
				MaxInterval:     retryCfg.MaxInterval,
				ShouldRetry: func(params middleware.RetryParams) bool {
					if retryCfg.RetryIf != nil {
						return retryCfg.RetryIf(params.Err)
					}
					return true
				},
			}.Middleware, nil
		},
	}
}

// PoisonQueueMiddleware publishes messages matching the filter to the
// configured poison queue. With a nil filter every failed message after
// retries is poisoned. Disabled when no poison queue is configured.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(n *Node) (message.HandlerMiddleware, error) {
			if n.Conf.PoisonQueue == "" {
				return nil, nil
			}
			if n.publisher == nil {
				return nil, errors.New("publisher is required for poison queue middleware")
			}

			f := filter
			if f == nil {
				f = func(error) bool { return true }
			}

			return middleware.PoisonQueueWithFilter(n.publisher, n.Conf.PoisonQueue, f)
		},
	}
}

// RecovererMiddleware converts panics into handler errors so they can be
// retried or sent to the poison queue.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (n *Node) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if n.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(n)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	n.router.AddMiddleware(mw)
	return nil
}

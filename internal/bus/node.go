// Package bus wires a watermill router, a transport from the registry, and
// the standard middleware chain into a Node, the per-process runtime every
// mesh service runs on.
package bus

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	"github.com/connmesh/connmesh/internal/platform/config"
	"github.com/connmesh/connmesh/internal/platform/errs"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/transport"
)

// Options holds the optional collaborators a Node can be built with.
type Options struct {
	// Transport overrides the registry lookup, letting tests inject an
	// in-memory pub/sub pair directly.
	Transport *transport.Transport

	// Middlewares are appended after the default chain.
	Middlewares []MiddlewareRegistration

	// DisableDefaultMiddlewares skips the default chain entirely.
	DisableDefaultMiddlewares bool
}

// Node is the bus runtime for one service process.
type Node struct {
	Conf   *config.Config
	Logger logging.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewNode constructs a Node for the supplied configuration. Register
// handlers on the returned Node before calling Run.
func NewNode(ctx context.Context, conf *config.Config, logger logging.ServiceLogger, opts Options) (*Node, error) {
	if conf == nil {
		return nil, errs.ErrConfigRequired
	}
	if logger == nil {
		return nil, errs.ErrLoggerRequired
	}

	wmLogger := logging.ToWatermillAdapter(logger)
	logger.Info("Creating bus node", logging.Fields{
		"service":       conf.ServiceName,
		"pubsub_system": conf.PubSubSystem,
	})

	n := &Node{
		Conf:   conf,
		Logger: logger,
	}

	tr := opts.Transport
	if tr == nil {
		built, err := transport.Build(ctx, conf, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
		}
		tr = &built
	}
	n.publisher = tr.Publisher
	n.subscriber = tr.Subscriber

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	n.router = router
	n.router.AddPlugin(plugin.SignalsHandler)

	if err := n.registerConfiguredMiddlewares(opts); err != nil {
		return nil, err
	}

	return n, nil
}

func (n *Node) registerConfiguredMiddlewares(opts Options) error {
	var registrations []MiddlewareRegistration
	if !opts.DisableDefaultMiddlewares {
		registrations = DefaultMiddlewares()
	}
	registrations = append(registrations, opts.Middlewares...)

	for _, reg := range registrations {
		if err := n.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

// Publisher exposes the transport publisher for RPC clients and dispatchers.
func (n *Node) Publisher() message.Publisher {
	return n.publisher
}

// Subscriber exposes the transport subscriber.
func (n *Node) Subscriber() message.Subscriber {
	return n.subscriber
}

// AddHandler subscribes fn to consumeTopic. All mesh handlers are
// no-publisher handlers: anything they emit goes out through the publisher
// explicitly (responses carry per-command reply topics the router cannot
// know statically).
func (n *Node) AddHandler(name, consumeTopic string, fn func(*message.Message) error) error {
	if fn == nil {
		return errs.ErrHandlerRequired
	}
	if consumeTopic == "" {
		return errs.ErrTopicRequired
	}
	if name == "" {
		return errs.ErrHandlerNameNeeded
	}

	stats := newHandlerStats()
	info := &HandlerInfo{Name: name, ConsumeTopic: consumeTopic, Stats: stats}

	n.handlersMu.Lock()
	n.handlers = append(n.handlers, info)
	n.handlersMu.Unlock()

	n.router.AddNoPublisherHandler(name, consumeTopic, n.subscriber, wrapWithStats(fn, stats))
	return nil
}

// Handlers returns a snapshot of the registered handlers and their stats.
func (n *Node) Handlers() []*HandlerInfo {
	n.handlersMu.RLock()
	defer n.handlersMu.RUnlock()
	out := make([]*HandlerInfo, len(n.handlers))
	copy(out, n.handlers)
	return out
}

// Run starts the HTTP endpoints and the router, blocking until ctx is
// cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.startHTTPServers()
	return n.router.Run(ctx)
}

// Running closes once the router is up and all handlers are subscribed.
// Tests use it to avoid publishing before subscriptions exist.
func (n *Node) Running() <-chan struct{} {
	return n.router.Running()
}

// Close shuts the router down.
func (n *Node) Close() error {
	return n.router.Close()
}

// RegisterHTTPHandler mounts handler on the mux for the given port; servers
// start when Run is called.
func (n *Node) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	n.httpServersMu.Lock()
	defer n.httpServersMu.Unlock()

	if n.httpServers == nil {
		n.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := n.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		n.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (n *Node) startHTTPServers() {
	n.httpServersMu.Lock()
	defer n.httpServersMu.Unlock()

	for port, mux := range n.httpServers {
		addr := fmt.Sprintf(":%d", port)
		n.Logger.Info("Starting HTTP server", logging.Fields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				n.Logger.Error("HTTP server stopped", err, logging.Fields{"address": addr})
			}
		}(addr, mux)
	}
}

package connmesh

import (
	"context"

	buspkg "github.com/connmesh/connmesh/internal/bus"
	domainpkg "github.com/connmesh/connmesh/internal/domain"
	configpkg "github.com/connmesh/connmesh/internal/platform/config"
	errspkg "github.com/connmesh/connmesh/internal/platform/errs"
	idspkg "github.com/connmesh/connmesh/internal/platform/ids"
	jsoncodec "github.com/connmesh/connmesh/internal/platform/jsoncodec"
	loggingpkg "github.com/connmesh/connmesh/internal/platform/logging"
	rpcpkg "github.com/connmesh/connmesh/internal/rpc"
	transportpkg "github.com/connmesh/connmesh/transport"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = configpkg.ValidationError

	Node        = buspkg.Node
	NodeOptions = buspkg.Options

	MiddlewareBuilder      = buspkg.MiddlewareBuilder
	MiddlewareRegistration = buspkg.MiddlewareRegistration
	RetryMiddlewareConfig  = buspkg.RetryMiddlewareConfig

	HandlerInfo   = buspkg.HandlerInfo
	HandlerStats  = buspkg.HandlerStats
	StatsSnapshot = buspkg.Snapshot

	Domain     = rpcpkg.Domain
	Command    = rpcpkg.Command
	Response   = rpcpkg.Response
	Client     = rpcpkg.Client
	ClientOpt  = rpcpkg.ClientOption
	Dispatcher = rpcpkg.Dispatcher
	Handler    = rpcpkg.HandlerFunc

	DomainError = domainpkg.Error
	ErrorKind   = domainpkg.ErrorKind
	Principal   = domainpkg.Principal

	Fields        = loggingpkg.Fields
	ServiceLogger = loggingpkg.ServiceLogger

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

const (
	DomainAuth       = rpcpkg.DomainAuth
	DomainDevice     = rpcpkg.DomainDevice
	DomainDeviceAuth = rpcpkg.DomainDeviceAuth
	DomainBuffer     = rpcpkg.DomainBuffer
	DomainScheme     = rpcpkg.DomainScheme
	DomainMessage    = rpcpkg.DomainMessage

	DefaultRPCTimeout = configpkg.DefaultRPCTimeout
)

var (
	NewNode = buspkg.NewNode

	NewRPCClient         = rpcpkg.NewClient
	NewDispatcher        = rpcpkg.NewDispatcher
	WithTimeout          = rpcpkg.WithTimeout
	WithSharedReplyTopic = rpcpkg.WithSharedReplyTopic
	ResponseKind         = rpcpkg.ResponseKind

	DefaultMiddlewares      = buspkg.DefaultMiddlewares
	CorrelationIDMiddleware = buspkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = buspkg.LogMessagesMiddleware
	TracerMiddleware        = buspkg.TracerMiddleware
	MetricsMiddleware       = buspkg.MetricsMiddleware
	RetryMiddleware         = buspkg.RetryMiddleware
	PoisonQueueMiddleware   = buspkg.PoisonQueueMiddleware
	RecovererMiddleware     = buspkg.RecovererMiddleware

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrNodeRequired       = errspkg.ErrNodeRequired
	ErrHandlerRequired    = errspkg.ErrHandlerRequired
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrHandlerNameNeeded  = errspkg.ErrHandlerNameNeeded
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrClientClosed       = errspkg.ErrClientClosed

	NewSlogLogger      = loggingpkg.NewSlogLogger
	NewWatermillLogger = loggingpkg.NewWatermillLogger
	NopLogger          = loggingpkg.Nop

	NewCorrelationID = idspkg.NewCorrelationID
	NewInstanceID    = idspkg.NewInstanceID
	NewMessageUID    = idspkg.NewMessageUID
	NewEntityUID     = idspkg.NewEntityUID

	// Transport registry. Import individual transports via
	// _ "github.com/connmesh/connmesh/transport/kafka" or pull in all of them
	// with the transport/transports package.
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities
)

// Call issues a typed command to the client's target domain and decodes the
// response payload into T. Generic functions cannot be aliased, so this
// wraps the internal implementation.
func Call[T any](ctx context.Context, c *Client, kind string, payload any) (T, error) {
	return rpcpkg.Call[T](ctx, c, kind, payload)
}

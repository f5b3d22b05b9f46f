// Package errs holds the sentinel errors shared by the platform packages.
package errs

import "errors"

var (
	ErrNodeRequired       = errors.New("connmesh: node is required")
	ErrHandlerRequired    = errors.New("connmesh: handler function is required")
	ErrTopicRequired      = errors.New("connmesh: topic is required")
	ErrHandlerNameNeeded  = errors.New("connmesh: handler name is required")
	ErrPublisherRequired  = errors.New("connmesh: publisher is required")
	ErrSubscriberRequired = errors.New("connmesh: subscriber is required")
	ErrConfigRequired     = errors.New("connmesh: config is required")
	ErrLoggerRequired     = errors.New("connmesh: logger is required")
	ErrClientClosed       = errors.New("connmesh: rpc client is closed")
)

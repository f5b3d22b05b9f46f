package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/jsoncodec"
	"github.com/connmesh/connmesh/internal/platform/logging"
)

// HandlerFunc executes one command kind and returns the response payload.
// A returned error becomes a failed response; it is never propagated to the
// bus subscription.
type HandlerFunc func(ctx context.Context, cmd Command) (any, error)

// Dispatcher is the server side of a domain: it consumes the domain's
// command topic, routes by command kind, and always publishes exactly one
// response per recognised command, success or failure. That contract is
// what makes the client's timeout a worst case instead of the common case.
type Dispatcher struct {
	domain   Domain
	service  string
	pub      message.Publisher
	logger   logging.ServiceLogger
	handlers map[string]HandlerFunc
}

// NewDispatcher builds a dispatcher for the domain. serviceName is reported
// in health check responses.
func NewDispatcher(d Domain, serviceName string, pub message.Publisher, logger logging.ServiceLogger) *Dispatcher {
	disp := &Dispatcher{
		domain:   d,
		service:  serviceName,
		pub:      pub,
		logger:   logger.With(logging.Fields{"dispatcher": string(d)}),
		handlers: make(map[string]HandlerFunc),
	}
	disp.Handle(domain.KindHealthCheck, disp.handleHealthCheck)
	return disp
}

// Handle registers fn for the given command kind, replacing any previous
// registration.
func (d *Dispatcher) Handle(kind string, fn HandlerFunc) {
	d.handlers[kind] = fn
}

// Domain returns the domain this dispatcher serves.
func (d *Dispatcher) Domain() Domain {
	return d.domain
}

// Dispatch is the watermill handler bound to the domain's command topic.
// Undecodable messages and unknown kinds are logged and dropped: no valid
// command was recognised, so no response is owed. Recognised commands are
// always answered, even when the handler fails.
func (d *Dispatcher) Dispatch(msg *message.Message) error {
	cmd, err := decodeCommand(msg)
	if err != nil {
		d.logger.Error("Dropping undecodable command", err, logging.Fields{
			"message_uuid": msg.UUID,
		})
		return nil
	}

	handler, ok := d.handlers[cmd.Kind]
	if !ok {
		d.logger.Info("Ignoring unknown command kind", logging.Fields{
			"kind":           cmd.Kind,
			"correlation_id": cmd.CorrelationID,
			"source_service": cmd.SourceService,
		})
		return nil
	}

	payload, handlerErr := d.run(msg.Context(), handler, cmd)

	resp := Response{
		Kind:          ResponseKind(cmd.Kind),
		CorrelationID: cmd.CorrelationID,
	}
	if handlerErr != nil {
		resp.ErrorKind = string(domain.KindOf(handlerErr))
		resp.ErrorMessage = handlerErr.Error()
	} else {
		resp.Success = true
		if payload != nil {
			raw, err := jsoncodec.Marshal(payload)
			if err != nil {
				resp.Success = false
				resp.ErrorKind = string(domain.ErrInternal)
				resp.ErrorMessage = fmt.Sprintf("encode %s response: %v", cmd.Kind, err)
			} else {
				resp.Payload = raw
			}
		}
	}

	return d.reply(cmd, resp)
}

// run executes the handler, converting panics into failed responses so a
// broken handler cannot take the subscription down without answering.
func (d *Dispatcher) run(ctx context.Context, handler HandlerFunc, cmd Command) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, cmd)
}

func (d *Dispatcher) reply(cmd Command, resp Response) error {
	if cmd.ReplyTopic == "" {
		d.logger.Error("Command has no reply topic, response dropped", nil, logging.Fields{
			"kind":           cmd.Kind,
			"correlation_id": cmd.CorrelationID,
		})
		return nil
	}

	msg, err := resp.toMessage()
	if err != nil {
		d.logger.Error("Failed to encode response", err, logging.Fields{
			"kind":           resp.Kind,
			"correlation_id": resp.CorrelationID,
		})
		return nil
	}

	// A failed publish is returned so the middleware chain can redeliver the
	// command; the dispatch is idempotent because handlers answer reads and
	// uid-keyed writes.
	if err := d.pub.Publish(cmd.ReplyTopic, msg); err != nil {
		return fmt.Errorf("publish response to %s: %w", cmd.ReplyTopic, err)
	}
	return nil
}

func (d *Dispatcher) handleHealthCheck(ctx context.Context, cmd Command) (any, error) {
	return domain.HealthStatus{
		Status:    domain.HealthOK,
		Service:   d.service,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/config"
	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/jsoncodec"
	"github.com/connmesh/connmesh/internal/platform/logging"
)

// Client issues commands to one remote domain and matches responses back to
// their callers by correlation id. One Client is created per (calling
// service, target domain) pair; its reply topic is unique to this process
// instance unless the shared-topic strategy is selected.
type Client struct {
	target  Domain
	source  string
	pub     message.Publisher
	logger  logging.ServiceLogger
	timeout time.Duration

	replyTopic string

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// ClientOption customises Client construction.
type ClientOption func(*Client)

// WithTimeout overrides the default per-call deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSharedReplyTopic switches reply addressing to the domain's shared
// response topic. Only safe when a single instance of the calling service
// consumes that topic; the per-instance topic is the default.
func WithSharedReplyTopic() ClientOption {
	return func(c *Client) {
		c.replyTopic = c.target.ResponseTopic()
	}
}

// NewClient builds a typed client for the target domain. sourceService names
// this process in outgoing commands.
func NewClient(target Domain, sourceService string, pub message.Publisher, logger logging.ServiceLogger, opts ...ClientOption) *Client {
	c := &Client{
		target:     target,
		source:     sourceService,
		pub:        pub,
		logger:     logger.With(logging.Fields{"rpc_target": string(target)}),
		timeout:    config.DefaultRPCTimeout,
		replyTopic: target.InstanceResponseTopic(ids.NewInstanceID()),
		pending:    make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReplyTopic is the topic responses to this client must be published on. The
// reply router handler must be subscribed to it before calls are issued.
func (c *Client) ReplyTopic() string {
	return c.replyTopic
}

// Target returns the remote domain this client talks to.
func (c *Client) Target() Domain {
	return c.target
}

// PendingCalls reports how many calls are currently awaiting a response.
func (c *Client) PendingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// register adds a pending call; take removes and returns it. A call removed
// by one path is invisible to every other, which is what guarantees
// at-most-one resolution.
func (c *Client) register(pc *pendingCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[pc.correlationID] = pc
}

func (c *Client) take(correlationID string) (*pendingCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	return pc, ok
}

// deliver hands a decoded response to whichever call is waiting on its
// correlation id. Responses with no pending call (late after timeout, or
// foreign) are logged and dropped.
func (c *Client) deliver(resp Response) {
	pc, ok := c.take(resp.CorrelationID)
	if !ok {
		c.logger.Debug("Dropping response with no pending call", logging.Fields{
			"correlation_id": resp.CorrelationID,
			"kind":           resp.Kind,
		})
		return
	}

	if resp.Kind != pc.expectKind {
		c.logger.Error("Response kind mismatch", nil, logging.Fields{
			"correlation_id": resp.CorrelationID,
			"expected":       pc.expectKind,
			"got":            resp.Kind,
		})
		pc.complete(callResult{err: domain.TypeMismatchf(
			"expected %s, got %s for correlation id %s", pc.expectKind, resp.Kind, resp.CorrelationID)})
		return
	}

	pc.complete(callResult{resp: resp})
}

// HandleReply is the watermill handler for this client's reply topic.
// Undecodable messages are acked and dropped so a malformed response cannot
// wedge the subscription.
func (c *Client) HandleReply(msg *message.Message) error {
	resp, err := decodeResponse(msg)
	if err != nil {
		c.logger.Error("Dropping undecodable response", err, logging.Fields{
			"message_uuid": msg.UUID,
		})
		return nil
	}
	c.deliver(resp)
	return nil
}

// Call publishes a command of the given kind to the client's target domain
// and blocks until the matching response arrives, the deadline passes, or
// ctx is cancelled. The response payload is decoded into T.
//
// Publish failures reject immediately. Failed responses are rebuilt into the
// domain error the remote side raised. Transport failures and timeouts
// surface as domain.ErrTransport so callers can apply their own policy
// (the message router fails closed on them).
func Call[T any](ctx context.Context, c *Client, kind string, payload any) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := Command{
		Kind:          kind,
		CorrelationID: ids.NewCorrelationID(),
		SourceService: c.source,
		ReplyTopic:    c.replyTopic,
	}
	if payload != nil {
		raw, err := jsoncodec.Marshal(payload)
		if err != nil {
			return zero, domain.Validationf("encode %s payload: %v", kind, err)
		}
		cmd.Payload = raw
	}

	msg, err := cmd.toMessage()
	if err != nil {
		return zero, domain.Validationf("%v", err)
	}
	msg.SetContext(ctx)

	pc := newPendingCall(cmd.CorrelationID, ResponseKind(kind))
	c.register(pc)

	if err := c.pub.Publish(c.target.CommandTopic(), msg); err != nil {
		c.take(cmd.CorrelationID)
		return zero, domain.Transportf("publish %s to %s: %v", kind, c.target.CommandTopic(), err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-pc.done:
		if res.err != nil {
			return zero, res.err
		}
		return decodeTypedResponse[T](res.resp)

	case <-timer.C:
		c.take(cmd.CorrelationID)
		return zero, domain.Transportf("call %s timed out after %s", kind, c.timeout)

	case <-ctx.Done():
		c.take(cmd.CorrelationID)
		return zero, domain.Transportf("call %s cancelled: %v", kind, ctx.Err())
	}
}

func decodeTypedResponse[T any](resp Response) (T, error) {
	var out T
	if !resp.Success {
		return out, domain.FromWire(resp.ErrorKind, resp.ErrorMessage)
	}
	if len(resp.Payload) > 0 {
		if err := jsoncodec.Unmarshal(resp.Payload, &out); err != nil {
			return out, domain.TypeMismatchf("decode %s payload: %v", resp.Kind, err)
		}
	}
	return out, nil
}

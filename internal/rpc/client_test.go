package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/jsoncodec"
	"github.com/connmesh/connmesh/internal/platform/logging"
)

// capturePublisher records published messages and optionally fails.
type capturePublisher struct {
	mu        sync.Mutex
	topics    []string
	published []*message.Message
	err       error
}

func (p *capturePublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range msgs {
		p.topics = append(p.topics, topic)
		p.published = append(p.published, msg)
	}
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) awaitCommand(t *testing.T) Command {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		if len(p.published) > 0 {
			msg := p.published[len(p.published)-1]
			p.mu.Unlock()
			cmd, err := decodeCommand(msg)
			require.NoError(t, err)
			return cmd
		}
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no command was published")
	return Command{}
}

func responseMessage(t *testing.T, resp Response) *message.Message {
	t.Helper()
	msg, err := resp.toMessage()
	require.NoError(t, err)
	return msg
}

type callOutcome struct {
	resp domain.GetDeviceByUIDResponse
	err  error
}

func startCall(c *Client, ctx context.Context) <-chan callOutcome {
	out := make(chan callOutcome, 1)
	go func() {
		resp, err := Call[domain.GetDeviceByUIDResponse](ctx, c, domain.KindDeviceGetByUID,
			domain.GetDeviceByUIDRequest{DeviceUID: "dev-1"})
		out <- callOutcome{resp: resp, err: err}
	}()
	return out
}

func TestCallResolvesMatchingResponse(t *testing.T) {
	pub := &capturePublisher{}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithTimeout(2*time.Second))

	done := startCall(c, context.Background())
	cmd := pub.awaitCommand(t)

	assert.Equal(t, domain.KindDeviceGetByUID, cmd.Kind)
	assert.Equal(t, "test-service", cmd.SourceService)
	assert.Equal(t, c.ReplyTopic(), cmd.ReplyTopic)
	assert.NotEmpty(t, cmd.CorrelationID)
	assert.Equal(t, DomainDevice.CommandTopic(), pub.topics[0])

	payload, err := jsoncodec.Marshal(domain.GetDeviceByUIDResponse{
		Device: domain.Device{UID: "dev-1", ClientUID: "client-1"},
	})
	require.NoError(t, err)

	require.NoError(t, c.HandleReply(responseMessage(t, Response{
		Kind:          ResponseKind(domain.KindDeviceGetByUID),
		CorrelationID: cmd.CorrelationID,
		Success:       true,
		Payload:       payload,
	})))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "dev-1", res.resp.Device.UID)
	assert.Equal(t, "client-1", res.resp.Device.ClientUID)
	assert.Equal(t, 0, c.PendingCalls())
}

func TestCallRebuildsRemoteError(t *testing.T) {
	pub := &capturePublisher{}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithTimeout(2*time.Second))

	done := startCall(c, context.Background())
	cmd := pub.awaitCommand(t)

	require.NoError(t, c.HandleReply(responseMessage(t, Response{
		Kind:          ResponseKind(domain.KindDeviceGetByUID),
		CorrelationID: cmd.CorrelationID,
		Success:       false,
		ErrorKind:     string(domain.ErrNotFound),
		ErrorMessage:  "device dev-1 not found",
	})))

	res := <-done
	require.Error(t, res.err)
	assert.True(t, domain.IsKind(res.err, domain.ErrNotFound))
}

func TestCallRejectsKindMismatch(t *testing.T) {
	pub := &capturePublisher{}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithTimeout(2*time.Second))

	done := startCall(c, context.Background())
	cmd := pub.awaitCommand(t)

	require.NoError(t, c.HandleReply(responseMessage(t, Response{
		Kind:          ResponseKind(domain.KindDeviceGetByClient),
		CorrelationID: cmd.CorrelationID,
		Success:       true,
	})))

	res := <-done
	require.Error(t, res.err)
	assert.True(t, domain.IsKind(res.err, domain.ErrTypeMismatch))
	assert.Equal(t, 0, c.PendingCalls())
}

func TestCallPublishFailureRejectsImmediately(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker unreachable")}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithTimeout(time.Minute))

	res := <-startCall(c, context.Background())
	require.Error(t, res.err)
	assert.True(t, domain.IsKind(res.err, domain.ErrTransport))
	assert.Equal(t, 0, c.PendingCalls())
}

func TestCallTimesOut(t *testing.T) {
	pub := &capturePublisher{}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithTimeout(30*time.Millisecond))

	res := <-startCall(c, context.Background())
	require.Error(t, res.err)
	assert.True(t, domain.IsKind(res.err, domain.ErrTransport))
	assert.Equal(t, 0, c.PendingCalls())
}

func TestCallContextCancellation(t *testing.T) {
	pub := &capturePublisher{}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := startCall(c, ctx)
	pub.awaitCommand(t)
	cancel()

	res := <-done
	require.Error(t, res.err)
	assert.True(t, domain.IsKind(res.err, domain.ErrTransport))
	assert.Equal(t, 0, c.PendingCalls())
}

func TestLateResponseHasNoEffect(t *testing.T) {
	pub := &capturePublisher{}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithTimeout(20*time.Millisecond))

	done := startCall(c, context.Background())
	cmd := pub.awaitCommand(t)

	res := <-done
	require.Error(t, res.err)

	// The pending call is gone; a late response must be dropped silently.
	require.NoError(t, c.HandleReply(responseMessage(t, Response{
		Kind:          ResponseKind(domain.KindDeviceGetByUID),
		CorrelationID: cmd.CorrelationID,
		Success:       true,
	})))
	assert.Equal(t, 0, c.PendingCalls())
}

func TestResponseResolvesAtMostOnce(t *testing.T) {
	pub := &capturePublisher{}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithTimeout(2*time.Second))

	done := startCall(c, context.Background())
	cmd := pub.awaitCommand(t)

	resp := Response{
		Kind:          ResponseKind(domain.KindDeviceGetByUID),
		CorrelationID: cmd.CorrelationID,
		Success:       true,
	}
	require.NoError(t, c.HandleReply(responseMessage(t, resp)))
	require.NoError(t, c.HandleReply(responseMessage(t, resp)))

	res := <-done
	require.NoError(t, res.err)

	select {
	case extra := <-done:
		t.Fatalf("call resolved twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCorrelationIDsAreUnique(t *testing.T) {
	// A failing publisher makes every call return immediately while still
	// recording the command it would have sent.
	pub := &capturePublisher{err: errors.New("down")}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop())

	const calls = 200
	for i := 0; i < calls; i++ {
		<-startCall(c, context.Background())
	}

	seen := make(map[string]struct{}, calls)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.published, calls)
	for _, msg := range pub.published {
		cmd, err := decodeCommand(msg)
		require.NoError(t, err)
		if _, dup := seen[cmd.CorrelationID]; dup {
			t.Fatalf("duplicate correlation id %s", cmd.CorrelationID)
		}
		seen[cmd.CorrelationID] = struct{}{}
	}
}

func TestHandleReplyDropsUndecodable(t *testing.T) {
	pub := &capturePublisher{}
	c := NewClient(DomainDevice, "test-service", pub, logging.Nop())

	msg := message.NewMessage("bad", []byte("{not json"))
	assert.NoError(t, c.HandleReply(msg))
}

func TestInstanceReplyTopicsDiffer(t *testing.T) {
	pub := &capturePublisher{}
	a := NewClient(DomainDevice, "test-service", pub, logging.Nop())
	b := NewClient(DomainDevice, "test-service", pub, logging.Nop())
	assert.NotEqual(t, a.ReplyTopic(), b.ReplyTopic())

	shared := NewClient(DomainDevice, "test-service", pub, logging.Nop(), WithSharedReplyTopic())
	assert.Equal(t, DomainDevice.ResponseTopic(), shared.ReplyTopic())
}

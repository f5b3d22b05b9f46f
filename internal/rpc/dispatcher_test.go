package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/jsoncodec"
	"github.com/connmesh/connmesh/internal/platform/logging"
)

func commandMessage(t *testing.T, cmd Command) *message.Message {
	t.Helper()
	msg, err := cmd.toMessage()
	require.NoError(t, err)
	return msg
}

func lastResponse(t *testing.T, pub *capturePublisher) (string, Response) {
	t.Helper()
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.NotEmpty(t, pub.published, "expected a response to be published")
	msg := pub.published[len(pub.published)-1]
	resp, err := decodeResponse(msg)
	require.NoError(t, err)
	return pub.topics[len(pub.topics)-1], resp
}

func TestDispatchAnswersSuccess(t *testing.T) {
	pub := &capturePublisher{}
	disp := NewDispatcher(DomainDevice, "device-service", pub, logging.Nop())
	disp.Handle(domain.KindDeviceGetByUID, func(ctx context.Context, cmd Command) (any, error) {
		var req domain.GetDeviceByUIDRequest
		require.NoError(t, cmd.DecodePayload(&req))
		return domain.GetDeviceByUIDResponse{
			Device: domain.Device{UID: req.DeviceUID, ClientUID: "client-1"},
		}, nil
	})

	payload, err := jsoncodec.Marshal(domain.GetDeviceByUIDRequest{DeviceUID: "dev-1"})
	require.NoError(t, err)

	cmd := Command{
		Kind:          domain.KindDeviceGetByUID,
		CorrelationID: "corr-1",
		SourceService: "buffer-service",
		ReplyTopic:    "buffer.responses.instance-1",
		Payload:       payload,
	}
	require.NoError(t, disp.Dispatch(commandMessage(t, cmd)))

	topic, resp := lastResponse(t, pub)
	assert.Equal(t, "buffer.responses.instance-1", topic)
	assert.Equal(t, ResponseKind(domain.KindDeviceGetByUID), resp.Kind)
	assert.Equal(t, "corr-1", resp.CorrelationID)
	assert.True(t, resp.Success)

	var out domain.GetDeviceByUIDResponse
	require.NoError(t, jsoncodec.Unmarshal(resp.Payload, &out))
	assert.Equal(t, "dev-1", out.Device.UID)
}

func TestDispatchAnswersHandlerError(t *testing.T) {
	pub := &capturePublisher{}
	disp := NewDispatcher(DomainDevice, "device-service", pub, logging.Nop())
	disp.Handle(domain.KindDeviceGetByUID, func(ctx context.Context, cmd Command) (any, error) {
		return nil, domain.NotFoundf("device dev-9 not found")
	})

	payload, _ := jsoncodec.Marshal(domain.GetDeviceByUIDRequest{DeviceUID: "dev-9"})
	cmd := Command{
		Kind:          domain.KindDeviceGetByUID,
		CorrelationID: "corr-2",
		ReplyTopic:    "reply.topic",
		Payload:       payload,
	}
	require.NoError(t, disp.Dispatch(commandMessage(t, cmd)))

	_, resp := lastResponse(t, pub)
	assert.False(t, resp.Success)
	assert.Equal(t, string(domain.ErrNotFound), resp.ErrorKind)
	assert.Contains(t, resp.ErrorMessage, "dev-9")
}

func TestDispatchAnswersOnPanic(t *testing.T) {
	pub := &capturePublisher{}
	disp := NewDispatcher(DomainDevice, "device-service", pub, logging.Nop())
	disp.Handle("device.explode", func(ctx context.Context, cmd Command) (any, error) {
		panic("boom")
	})

	cmd := Command{Kind: "device.explode", CorrelationID: "corr-3", ReplyTopic: "reply.topic"}
	require.NoError(t, disp.Dispatch(commandMessage(t, cmd)))

	_, resp := lastResponse(t, pub)
	assert.False(t, resp.Success)
	assert.Equal(t, string(domain.ErrInternal), resp.ErrorKind)
	assert.Contains(t, resp.ErrorMessage, "boom")
}

func TestDispatchIgnoresUnknownKind(t *testing.T) {
	pub := &capturePublisher{}
	disp := NewDispatcher(DomainDevice, "device-service", pub, logging.Nop())

	cmd := Command{Kind: "device.unknown_op", CorrelationID: "corr-4", ReplyTopic: "reply.topic"}
	require.NoError(t, disp.Dispatch(commandMessage(t, cmd)))
	assert.Empty(t, pub.published)
}

func TestDispatchDropsUndecodable(t *testing.T) {
	pub := &capturePublisher{}
	disp := NewDispatcher(DomainDevice, "device-service", pub, logging.Nop())

	msg := message.NewMessage("bad", []byte("{not json"))
	require.NoError(t, disp.Dispatch(msg))
	assert.Empty(t, pub.published)
}

func TestDispatchDropsResponseWithoutReplyTopic(t *testing.T) {
	pub := &capturePublisher{}
	disp := NewDispatcher(DomainDevice, "device-service", pub, logging.Nop())
	disp.Handle("device.noop", func(ctx context.Context, cmd Command) (any, error) {
		return nil, nil
	})

	cmd := Command{Kind: "device.noop", CorrelationID: "corr-5"}
	require.NoError(t, disp.Dispatch(commandMessage(t, cmd)))
	assert.Empty(t, pub.published)
}

func TestDispatchReturnsPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker unreachable")}
	disp := NewDispatcher(DomainDevice, "device-service", pub, logging.Nop())
	disp.Handle("device.noop", func(ctx context.Context, cmd Command) (any, error) {
		return nil, nil
	})

	cmd := Command{Kind: "device.noop", CorrelationID: "corr-6", ReplyTopic: "reply.topic"}
	err := disp.Dispatch(commandMessage(t, cmd))
	require.Error(t, err)
}

func TestDispatchAnswersHealthCheck(t *testing.T) {
	pub := &capturePublisher{}
	disp := NewDispatcher(DomainDevice, "device-service", pub, logging.Nop())

	cmd := Command{Kind: domain.KindHealthCheck, CorrelationID: "corr-7", ReplyTopic: "reply.topic"}
	require.NoError(t, disp.Dispatch(commandMessage(t, cmd)))

	_, resp := lastResponse(t, pub)
	require.True(t, resp.Success)
	assert.Equal(t, ResponseKind(domain.KindHealthCheck), resp.Kind)

	var status domain.HealthStatus
	require.NoError(t, jsoncodec.Unmarshal(resp.Payload, &status))
	assert.Equal(t, domain.HealthOK, status.Status)
	assert.Equal(t, "device-service", status.Service)
}

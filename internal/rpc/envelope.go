// Package rpc implements the correlation-based request/reply substrate the
// mesh runs on: command and response envelopes, typed clients with pending
// call registries, per-instance reply routing, and the always-answer command
// dispatcher.
package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/jsoncodec"
	"github.com/connmesh/connmesh/transport"
)

// Domain names a service on the bus and derives its topic family.
type Domain string

const (
	DomainAuth       Domain = "auth"
	DomainDevice     Domain = "device"
	DomainDeviceAuth Domain = "device-auth"
	DomainBuffer     Domain = "buffer"
	DomainScheme     Domain = "connection-scheme"
	DomainMessage    Domain = "message"
)

// CommandTopic is the well-known topic the domain's dispatcher consumes.
func (d Domain) CommandTopic() string {
	return string(d) + ".commands"
}

// ResponseTopic is the domain's shared reply topic.
func (d Domain) ResponseTopic() string {
	return string(d) + ".responses"
}

// InstanceResponseTopic is a reply topic owned by a single process instance,
// so sibling instances of the same service never steal each other's
// responses.
func (d Domain) InstanceResponseTopic(instanceID string) string {
	return fmt.Sprintf("%s.responses.%s", d, instanceID)
}

// ResponseKind derives the response kind owed for a command kind.
func ResponseKind(commandKind string) string {
	return commandKind + ".response"
}

// Command is the request envelope published to a domain's command topic.
// Immutable once published.
type Command struct {
	Kind          string          `json:"kind"`
	CorrelationID string          `json:"correlation_id"`
	SourceService string          `json:"source_service"`
	ReplyTopic    string          `json:"reply_topic"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Response is the reply envelope published to the command's stated reply
// topic, keyed by the command's correlation id.
type Response struct {
	Kind          string          `json:"kind"`
	CorrelationID string          `json:"correlation_id"`
	Success       bool            `json:"success"`
	ErrorKind     string          `json:"error_kind,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the command payload into v.
func (c Command) DecodePayload(v any) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("command %s has no payload", c.Kind)
	}
	if err := jsoncodec.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Kind, err)
	}
	return nil
}

func encodeEnvelope(v any) (*message.Message, string, error) {
	raw, err := jsoncodec.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	msg := message.NewMessage(ids.NewCorrelationID(), raw)
	return msg, msg.UUID, nil
}

// toMessage wraps the command in a watermill message keyed by its
// correlation id.
func (c Command) toMessage() (*message.Message, error) {
	msg, _, err := encodeEnvelope(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.Kind, err)
	}
	msg.Metadata.Set(transport.PartitionKeyMetadata, c.CorrelationID)
	return msg, nil
}

// toMessage wraps the response in a watermill message keyed by the
// originating correlation id.
func (r Response) toMessage() (*message.Message, error) {
	msg, _, err := encodeEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s response: %w", r.Kind, err)
	}
	msg.Metadata.Set(transport.PartitionKeyMetadata, r.CorrelationID)
	return msg, nil
}

// decodeCommand parses a raw bus message into a Command.
func decodeCommand(msg *message.Message) (Command, error) {
	var cmd Command
	if err := jsoncodec.Unmarshal(msg.Payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command envelope: %w", err)
	}
	return cmd, nil
}

// decodeResponse parses a raw bus message into a Response.
func decodeResponse(msg *message.Message) (Response, error) {
	var resp Response
	if err := jsoncodec.Unmarshal(msg.Payload, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response envelope: %w", err)
	}
	return resp, nil
}

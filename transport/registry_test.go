package transport

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

type stubConfig struct {
	system string
}

func (c stubConfig) GetPubSubSystem() string       { return c.system }
func (c stubConfig) GetKafkaBrokers() []string     { return nil }
func (c stubConfig) GetKafkaConsumerGroup() string { return "" }
func (c stubConfig) GetRabbitMQURL() string        { return "" }
func (c stubConfig) GetNATSURL() string            { return "" }

func TestRegistryBuildDispatchesByName(t *testing.T) {
	reg := NewRegistry()
	built := false
	reg.Register("fake", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		built = true
		return Transport{}, nil
	}, Capabilities{Name: "fake"})

	_, err := reg.Build(context.Background(), stubConfig{system: "fake"}, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !built {
		t.Fatal("builder was not invoked")
	}
}

func TestRegistryBuildUnknownTransport(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(context.Background(), stubConfig{system: "missing"}, watermill.NopLogger{})
	if err == nil {
		t.Fatal("expected an error for an unregistered transport")
	}
}

func TestRegistryBuildRequiresConfig(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Build(context.Background(), nil, watermill.NopLogger{}); err == nil {
		t.Fatal("expected an error for nil config")
	}
}

func TestRegistryBuilderErrorsPropagate(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("broker unreachable")
	reg.Register("failing", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	}, Capabilities{Name: "failing"})

	_, err := reg.Build(context.Background(), stubConfig{system: "failing"}, watermill.NopLogger{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected builder error, got %v", err)
	}
}

func TestRegistryCapabilitiesFallBackToName(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fake", nil, Capabilities{Name: "fake", SupportsOrdering: true})

	if caps := reg.Capabilities("fake"); !caps.SupportsOrdering {
		t.Fatal("registered capabilities lost")
	}
	if caps := reg.Capabilities("unknown"); caps.Name != "unknown" || caps.SupportsOrdering {
		t.Fatalf("expected zero capabilities carrying the name, got %+v", caps)
	}
}

func TestRegistryNamesAreSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg.Register(name, nil, Capabilities{Name: name})
	}
	want := []string{"alpha", "mid", "zeta"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReliableDelivery(t *testing.T) {
	if !ChannelCapabilities.SupportsReliableDelivery() {
		t.Fatal("channel transport should report reliable delivery")
	}
	if KafkaCapabilities.SupportsReliableDelivery() {
		t.Fatal("kafka has no nack, delivery should not report as reliable")
	}
}

package jsoncodec

import (
	"bytes"
	"testing"
)

type sample struct {
	Kind    string         `json:"kind"`
	Count   int            `json:"count"`
	Tags    []string       `json:"tags,omitempty"`
	Nested  map[string]int `json:"nested,omitempty"`
	Skipped string         `json:"-"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := sample{
		Kind:    "device.get_by_uid",
		Count:   3,
		Tags:    []string{"a", "b"},
		Nested:  map[string]int{"x": 1},
		Skipped: "never on the wire",
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if bytes.Contains(data, []byte("never on the wire")) {
		t.Fatal("skipped field leaked into the payload")
	}

	var out sample
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	in.Skipped = ""
	if out.Kind != in.Kind || out.Count != in.Count || len(out.Tags) != 2 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	var out sample
	if err := Unmarshal([]byte("{not json"), &out); err == nil {
		t.Fatal("expected an error for malformed input")
	}
}

func TestEncodeDecodeStream(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sample{Kind: "health.check"}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var out sample
	if err := Decode(&buf, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Kind != "health.check" {
		t.Fatalf("got kind %q", out.Kind)
	}
}

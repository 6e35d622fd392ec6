package rpc

import (
	"context"
	"testing"

	"github.com/hermeshpc/hstore/meta"
)

func TestEnvelopeMarshalUnmarshalRoundTrip(t *testing.T) {
	tag := meta.TagID{Node: 1, UID: 7}
	blob := meta.BlobID{Node: 1, UID: 42}
	env := NewEnvelope(OpBlobForward, tag, blob, []byte("payload bytes"))

	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CorrelationID != env.CorrelationID {
		t.Fatalf("correlation id mismatch: got %q want %q", got.CorrelationID, env.CorrelationID)
	}
	if got.Op != OpBlobForward || got.Tag != tag || got.Blob != blob {
		t.Fatalf("envelope fields mismatch: %+v", got)
	}
	if string(got.Payload) != "payload bytes" {
		t.Fatalf("payload mismatch: got %q", got.Payload)
	}
}

func TestNewEnvelopeStampsNonEmptyCorrelationID(t *testing.T) {
	env := NewEnvelope(OpBlobRead, meta.TagID{}, meta.BlobID{}, nil)
	if env.CorrelationID == "" {
		t.Fatalf("expected a non-empty correlation id")
	}
}

func TestUnmarshalMalformedPayload(t *testing.T) {
	if _, err := Unmarshal([]byte("not json")); err == nil {
		t.Fatalf("expected an error unmarshaling malformed input")
	}
}

func TestLocalOnlyForwarderAlwaysFails(t *testing.T) {
	var f Forwarder = LocalOnly{}
	if _, err := f.Forward(context.Background(), meta.NodeID(1), NewEnvelope(OpBlobRead, meta.TagID{}, meta.BlobID{}, nil)); err == nil {
		t.Fatalf("expected LocalOnly.Forward to always report an error")
	}
}

package core

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/rpc"
	"github.com/hermeshpc/hstore/target"
)

func envelopeFor(t *testing.T, method, tagName string, fr forwardReq) *rpc.Envelope {
	t.Helper()
	fr.Method = method
	fr.TagName = tagName
	body, err := json.Marshal(fr)
	if err != nil {
		t.Fatalf("marshal forwardReq: %v", err)
	}
	return rpc.NewEnvelope(rpc.OpBlobForward, meta.TagID{}, meta.BlobID{}, body)
}

func TestHandleEnvelopeForwardPutGetDestroy(t *testing.T) {
	s := newTestState(t)
	payload := []byte("forwarded bytes")

	putResp := s.HandleEnvelope(context.Background(), envelopeFor(t, "put", "fwdbucket", forwardReq{BlobName: "o1", Data: payload, Score: 0.5}))
	if putResp.Err != "" {
		t.Fatalf("forward put failed: %s", putResp.Err)
	}
	if putResp.Blob == (meta.BlobID{}) {
		t.Fatalf("expected a non-zero blob id in the forward-put response")
	}

	getResp := s.HandleEnvelope(context.Background(), envelopeFor(t, "get", "fwdbucket", forwardReq{BlobName: "o1", Length: int64(len(payload))}))
	if getResp.Err != "" {
		t.Fatalf("forward get failed: %s", getResp.Err)
	}
	if !bytes.Equal(getResp.Payload, payload) {
		t.Fatalf("forward get mismatch: got %q want %q", getResp.Payload, payload)
	}

	destroyResp := s.HandleEnvelope(context.Background(), envelopeFor(t, "destroy", "fwdbucket", forwardReq{BlobName: "o1"}))
	if destroyResp.Err != "" {
		t.Fatalf("forward destroy failed: %s", destroyResp.Err)
	}

	againResp := s.HandleEnvelope(context.Background(), envelopeFor(t, "get", "fwdbucket", forwardReq{BlobName: "o1", Length: 1}))
	if againResp.Err == "" {
		t.Fatalf("expected forward get of a destroyed blob to report an error")
	}
}

func TestHandleEnvelopeUnknownOp(t *testing.T) {
	s := newTestState(t)
	req := &rpc.Envelope{CorrelationID: "abc", Op: rpc.Op("bogus")}
	resp := s.HandleEnvelope(context.Background(), req)
	if resp.Err == "" {
		t.Fatalf("expected an error response for an unknown op")
	}
	if resp.CorrelationID != "abc" {
		t.Fatalf("expected the correlation id to be echoed back")
	}
}

func TestHandleEnvelopeForwardUnknownMethod(t *testing.T) {
	s := newTestState(t)
	resp := s.HandleEnvelope(context.Background(), envelopeFor(t, "frobnicate", "fwdbucket", forwardReq{}))
	if resp.Err == "" {
		t.Fatalf("expected an error response for an unknown forward method")
	}
}

// fakeForwarder wires two State instances together by routing Forward
// calls straight into the peer's HandleEnvelope, without any real
// transport in between.
type fakeForwarder struct {
	peers map[meta.NodeID]*State
}

func (f *fakeForwarder) Forward(ctx context.Context, node meta.NodeID, req *rpc.Envelope) (*rpc.Envelope, error) {
	peer, ok := f.peers[node]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return peer.HandleEnvelope(ctx, req), nil
}

// TestForwardReachesPeerHandleEnvelope exercises the real forward()
// path end to end: node1's forward() marshals a forwardReq, routes it
// through a Forwarder to node2, and node2's HandleEnvelope runs the
// put/get against its own local engines, returning the blob bytes back
// across the same hop.
func TestForwardReachesPeerHandleEnvelope(t *testing.T) {
	fwd := &fakeForwarder{peers: map[meta.NodeID]*State{}}

	node1 := newTestStateWithNode(t, 1, fwd)
	node2 := newTestStateWithNode(t, 2, fwd)
	fwd.peers[1] = node1
	fwd.peers[2] = node2

	payload := []byte("cross node payload")
	tag := node1.Buckets.GetOrCreateTag("sharedbucket", true, 0, 0)

	putResp, err := node1.forward(tag, "sharedbucket", forwardReq{Method: "put", BlobName: "sharedobj", Data: payload, Score: 0.5}, 2)
	if err != nil {
		t.Fatalf("forward put to node2: %v", err)
	}
	if putResp.Blob.Node != 2 {
		t.Fatalf("expected the blob created on node2 to carry Node==2, got %d", putResp.Blob.Node)
	}

	getResp, err := node1.forward(tag, "sharedbucket", forwardReq{Method: "get", BlobName: "sharedobj", Length: int64(len(payload))}, 2)
	if err != nil {
		t.Fatalf("forward get from node2: %v", err)
	}
	if !bytes.Equal(getResp.Payload, payload) {
		t.Fatalf("forwarded get mismatch: got %q want %q", getResp.Payload, payload)
	}

	// node1 never actually stored the blob locally.
	if _, err := node1.Blobs.Resolve(tag, "sharedobj"); err == nil {
		t.Fatalf("expected node1 to have no local record of a blob that only exists on node2")
	}
}

func TestFacadeSchemaLocal(t *testing.T) {
	s := newTestState(t)
	if _, err := s.Put("b", "o", []byte("twelve bytes"), 0.5); err != nil {
		t.Fatalf("put: %v", err)
	}
	schema, err := s.Schema("b", "o")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if schema.TotalSize() != 12 {
		t.Fatalf("expected schema total size 12, got %d", schema.TotalSize())
	}
}

func TestFacadeSchemaForwarded(t *testing.T) {
	fwd := &fakeForwarder{peers: map[meta.NodeID]*State{}}
	node1 := newTestStateWithNode(t, 1, fwd)
	node2 := newTestStateWithNode(t, 2, fwd)
	fwd.peers[1] = node1
	fwd.peers[2] = node2

	if _, err := node2.Put("b", "o", []byte("remote payload"), 0.5); err != nil {
		t.Fatalf("put on node2: %v", err)
	}
	tag := node1.Buckets.GetOrCreateTag("b", true, 0, 0)
	resp, err := node1.forward(tag, "b", forwardReq{Method: "schema", BlobName: "o"}, 2)
	if err != nil {
		t.Fatalf("forward schema: %v", err)
	}
	var schema meta.Schema
	if _, err := schema.UnmarshalMsg(resp.Payload); err != nil {
		t.Fatalf("unmarshal schema wire payload: %v", err)
	}
	if schema.TotalSize() != int64(len("remote payload")) {
		t.Fatalf("expected total size %d, got %d", len("remote payload"), schema.TotalSize())
	}
}

func newTestStateWithNode(t *testing.T, node meta.NodeID, fwd rpc.Forwarder) *State {
	t.Helper()
	s := New(node, fwd, prometheus.NewRegistry())
	id := meta.TargetID{Node: node, DeviceIdx: 0}
	if err := s.Targets.Add(meta.KindRAM, id, target.DeviceInfo{Capacity: 1 << 20}, 64, 100, 10); err != nil {
		t.Fatalf("add target: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

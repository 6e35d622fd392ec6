package core

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/rpc"
)

// json matches rpc.Envelope's own wire encoding (rpc/envelope.go) so a
// forwardReq marshaled here and unmarshaled in handleForward agree on
// every edge case jsoniter and encoding/json diverge on.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const forwardTimeout = 30 * time.Second

// forwardReq is the payload carried inside an rpc.Envelope with
// Op==OpBlobForward: a generic (method, args) tuple for whichever C5
// operation needs to run on the blob's actual home node. TagName rides
// along because tag identity is per-node (spec has no cross-node
// bucket replication in scope) — the remote side resolves or creates a
// same-named tag rather than trusting the caller's TagID.Node.
type forwardReq struct {
	Method   string      `json:"m"`
	TagName  string      `json:"tn"`
	BlobName string      `json:"bn,omitempty"`
	Offset   int64       `json:"o,omitempty"`
	Length   int64       `json:"l,omitempty"`
	Data     []byte      `json:"d,omitempty"`
	Score    float64     `json:"s,omitempty"`
	Flags    uint32      `json:"f,omitempty"`
	NewName  string      `json:"nn,omitempty"`
	NewSize  int64       `json:"ns,omitempty"`
	DestNode meta.NodeID `json:"dn,omitempty"`
}

// Put implements spec §2's write path: resolve-or-create the bucket
// and the blob id, then either write locally or forward to the id's
// home node, finally folding the written bytes into the bucket's
// internal_size accounting.
func (s *State) Put(bucketName, blobName string, data []byte, score float64) (meta.BlobID, error) {
	tag := s.Buckets.GetOrCreateTag(bucketName, true, 0, 0)
	id, err := s.Blobs.GetOrCreateBlobId(tag, blobName)
	if err != nil {
		return id, err
	}

	if id.Node != s.LocalNode {
		return s.forwardPut(tag, bucketName, blobName, id, data, score)
	}

	newID, err := s.Blobs.PutBlob(tag, id, 0, data, score, 0)
	if err != nil {
		return newID, err
	}
	s.Buckets.TagUpdateInternalSize(tag, int64(len(data)), meta.SizeAdd)
	s.Metrics.puts.Inc()
	s.Metrics.putBytes.Add(float64(len(data)))
	return newID, nil
}

// Get implements spec §2's read path, forwarding to the blob's home
// node when it differs from the local one.
func (s *State) Get(bucketName, blobName string, offset, length int64) ([]byte, error) {
	tag, err := s.Buckets.GetTagID(bucketName)
	if err != nil {
		return nil, err
	}
	id, err := s.Blobs.Resolve(tag, blobName)
	if err != nil {
		return nil, err
	}
	if id.Node != s.LocalNode {
		return s.forwardGet(tag, blobName, id, offset, length)
	}
	data, err := s.Blobs.GetBlob(tag, id, offset, length, blobName)
	if err == nil {
		s.Metrics.gets.Inc()
		s.Metrics.getBytes.Add(float64(len(data)))
	}
	return data, err
}

// Destroy implements spec §2/§4.5's blob teardown, cascading the
// tag-membership removal the bucket engine leaves to its caller.
func (s *State) Destroy(bucketName, blobName string) error {
	tag, err := s.Buckets.GetTagID(bucketName)
	if err != nil {
		return err
	}
	id, err := s.Blobs.Resolve(tag, blobName)
	if err != nil {
		return err
	}
	if id.Node != s.LocalNode {
		_, err := s.forward(tag, bucketName, forwardReq{Method: "destroy", BlobName: blobName}, id.Node)
		return err
	}
	if err := s.Blobs.DestroyBlob(tag, id, 0); err != nil {
		return err
	}
	s.Metrics.destroys.Inc()
	return nil
}

func (s *State) forwardPut(tag meta.TagID, bucketName, blobName string, id meta.BlobID, data []byte, score float64) (meta.BlobID, error) {
	req := forwardReq{Method: "put", BlobName: blobName, Data: data, Score: score}
	resp, err := s.forward(tag, bucketName, req, id.Node)
	if err != nil {
		return id, err
	}
	return resp.Blob, nil
}

func (s *State) forwardGet(tag meta.TagID, blobName string, id meta.BlobID, offset, length int64) ([]byte, error) {
	name, _ := s.Buckets.GetTagName(tag)
	req := forwardReq{Method: "get", BlobName: blobName, Offset: offset, Length: length}
	resp, err := s.forward(tag, name, req, id.Node)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (s *State) forward(tag meta.TagID, bucketName string, req forwardReq, dest meta.NodeID) (*rpc.Envelope, error) {
	req.TagName = bucketName
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	env := rpc.NewEnvelope(rpc.OpBlobForward, tag, meta.BlobID{}, body)

	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()
	resp, err := s.Forwarder.Forward(ctx, dest, env)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrTierFault, err, "forward %s to node %d", req.Method, dest)
	}
	if resp.Err != "" {
		return nil, cmn.NewErr(cmn.ErrTierFault, nil, "remote %s failed: %s", req.Method, resp.Err)
	}
	return resp, nil
}

// Reorganize implements spec §4.5/§4.8's externally-triggered rescore:
// it forwards to the blob's home node like any other write path before
// handing off to the reorganizer.
func (s *State) Reorganize(bucketName, blobName string, score float64, destNode meta.NodeID) (meta.BlobID, error) {
	tag, err := s.Buckets.GetTagID(bucketName)
	if err != nil {
		return meta.BlobID{}, err
	}
	id, err := s.Blobs.Resolve(tag, blobName)
	if err != nil {
		return id, err
	}
	if id.Node != s.LocalNode {
		resp, err := s.forward(tag, bucketName, forwardReq{Method: "reorganize", BlobName: blobName, Score: score, DestNode: destNode}, id.Node)
		if err != nil {
			return id, err
		}
		return resp.Blob, nil
	}
	newID, err := s.Blobs.ReorganizeBlob(tag, id, score, destNode)
	if err == nil {
		s.Metrics.reorgRuns.Inc()
	}
	return newID, err
}

// Schema returns a blob's current buffer placement (SPEC_FULL §3
// introspection surface), msgp-decoded back into meta.Schema whether
// it was served locally or forwarded to the blob's home node.
func (s *State) Schema(bucketName, blobName string) (meta.Schema, error) {
	tag, err := s.Buckets.GetTagID(bucketName)
	if err != nil {
		return nil, err
	}
	id, err := s.Blobs.Resolve(tag, blobName)
	if err != nil {
		return nil, err
	}
	if id.Node != s.LocalNode {
		resp, err := s.forward(tag, bucketName, forwardReq{Method: "schema", BlobName: blobName}, id.Node)
		if err != nil {
			return nil, err
		}
		var out meta.Schema
		if _, err := out.UnmarshalMsg(resp.Payload); err != nil {
			return nil, cmn.NewErr(cmn.ErrInvalidArgument, err, "schema: unmarshal wire payload")
		}
		return out, nil
	}
	wire, err := s.Blobs.SchemaWire(id)
	if err != nil {
		return nil, err
	}
	var out meta.Schema
	if _, err := out.UnmarshalMsg(wire); err != nil {
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, err, "schema: unmarshal wire payload")
	}
	return out, nil
}

// MoveToNode implements blob.Mover: it reads the blob's current bytes
// locally and re-Puts them under the same bucket name on dest, per
// spec §4.5's cross-node home-node-change path.
func (s *State) MoveToNode(tag meta.TagID, id meta.BlobID, dest meta.NodeID) (meta.BlobID, error) {
	if id.Node != s.LocalNode {
		return id, cmn.NewErr(cmn.ErrInvalidArgument, nil, "MoveToNode: %s is not owned by local node %d", id, s.LocalNode)
	}
	if dest == s.LocalNode {
		return id, nil
	}
	info, ok := s.Blobs.Info(id)
	if !ok {
		return id, cmn.NewErr(cmn.ErrNotFound, nil, "MoveToNode: unknown blob %s", id)
	}
	info.RLock()
	size := info.Size()
	score := info.Score()
	name := info.Name()
	info.RUnlock()

	data, err := s.Blobs.GetBlob(tag, id, 0, size, name)
	if err != nil {
		return id, err
	}
	bucketName, _ := s.Buckets.GetTagName(tag)
	resp, err := s.forward(tag, bucketName, forwardReq{Method: "put", BlobName: name, Data: data, Score: score}, dest)
	if err != nil {
		return id, err
	}
	return resp.Blob, nil
}

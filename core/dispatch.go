package core

import (
	"context"

	"github.com/hermeshpc/hstore/cmn/nlog"
	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/rpc"
	"github.com/hermeshpc/hstore/target"
)

// targetIO mirrors target's unexported remoteReq wire shape (same JSON
// field names) so this package can decode it without an export just
// for cross-package testing convenience.
type targetIO struct {
	Offset int64  `json:"offset"`
	Len    int64  `json:"len,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// RemoteExposedTarget is the local target this node serves to other
// nodes' RemoteFileDriver (spec §4.1's remote-file tier: one physical
// target, addressed by node id alone since a deployment exposes at
// most one remotely-reachable tier per node).
func (s *State) SetRemoteExposedTarget(id meta.TargetID) { s.remoteExposed = id }

// HandleEnvelope is the single entry point a transport (rpcfast.Server,
// or any other rpc.Forwarder's peer) calls on receipt of a request
// envelope: target-tier I/O forwards (OpBlobRead/Write/Flush) and
// generic C5 method forwards (OpBlobForward) both land here.
func (s *State) HandleEnvelope(ctx context.Context, req *rpc.Envelope) *rpc.Envelope {
	switch req.Op {
	case rpc.OpBlobRead:
		return s.handleTargetRead(req)
	case rpc.OpBlobWrite:
		return s.handleTargetWrite(req)
	case rpc.OpBlobFlush:
		return s.handleTargetFlush(req)
	case rpc.OpBlobForward:
		return s.handleForward(ctx, req)
	default:
		return errEnvelope(req, "unknown op "+string(req.Op))
	}
}

func (s *State) remoteDriver() (target.Driver, bool) {
	return s.Targets.Driver(s.remoteExposed)
}

func (s *State) handleTargetRead(req *rpc.Envelope) *rpc.Envelope {
	var io targetIO
	if err := json.Unmarshal(req.Payload, &io); err != nil {
		return errEnvelope(req, err.Error())
	}
	drv, ok := s.remoteDriver()
	if !ok {
		return errEnvelope(req, "no remote-exposed target configured")
	}
	data, err := drv.Read(io.Offset, io.Len)
	if err != nil {
		return errEnvelope(req, err.Error())
	}
	compressed, err := target.Lz4Compress(data)
	if err != nil {
		return errEnvelope(req, err.Error())
	}
	return &rpc.Envelope{CorrelationID: req.CorrelationID, Payload: compressed}
}

func (s *State) handleTargetWrite(req *rpc.Envelope) *rpc.Envelope {
	var io targetIO
	if err := json.Unmarshal(req.Payload, &io); err != nil {
		return errEnvelope(req, err.Error())
	}
	data, err := target.Lz4Decompress(io.Data)
	if err != nil {
		return errEnvelope(req, err.Error())
	}
	drv, ok := s.remoteDriver()
	if !ok {
		return errEnvelope(req, "no remote-exposed target configured")
	}
	if err := drv.Write(io.Offset, data); err != nil {
		return errEnvelope(req, err.Error())
	}
	return &rpc.Envelope{CorrelationID: req.CorrelationID}
}

func (s *State) handleTargetFlush(req *rpc.Envelope) *rpc.Envelope {
	drv, ok := s.remoteDriver()
	if !ok {
		return errEnvelope(req, "no remote-exposed target configured")
	}
	if err := drv.Flush(); err != nil {
		return errEnvelope(req, err.Error())
	}
	return &rpc.Envelope{CorrelationID: req.CorrelationID}
}

// handleForward runs a generic C5 method on the local blob/bucket
// engines on behalf of a caller that resolved this node as the blob's
// home (forwardReq.Method chooses put/get/destroy/truncate/rename).
func (s *State) handleForward(_ context.Context, req *rpc.Envelope) *rpc.Envelope {
	var fr forwardReq
	if err := json.Unmarshal(req.Payload, &fr); err != nil {
		return errEnvelope(req, err.Error())
	}

	tag := s.Buckets.GetOrCreateTag(fr.TagName, true, 0, 0)
	switch fr.Method {
	case "put":
		id, err := s.Blobs.GetOrCreateBlobId(tag, fr.BlobName)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		newID, err := s.Blobs.PutBlob(tag, id, 0, fr.Data, fr.Score, meta.BlobFlags(fr.Flags))
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		s.Buckets.TagUpdateInternalSize(tag, int64(len(fr.Data)), meta.SizeAdd)
		return &rpc.Envelope{CorrelationID: req.CorrelationID, Blob: newID}

	case "get":
		id, err := s.Blobs.Resolve(tag, fr.BlobName)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		data, err := s.Blobs.GetBlob(tag, id, fr.Offset, fr.Length, fr.BlobName)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		return &rpc.Envelope{CorrelationID: req.CorrelationID, Payload: data}

	case "destroy":
		id, err := s.Blobs.Resolve(tag, fr.BlobName)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		if err := s.Blobs.DestroyBlob(tag, id, meta.BlobFlags(fr.Flags)); err != nil {
			return errEnvelope(req, err.Error())
		}
		return &rpc.Envelope{CorrelationID: req.CorrelationID}

	case "truncate":
		id, err := s.Blobs.Resolve(tag, fr.BlobName)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		if err := s.Blobs.TruncateBlob(id, fr.NewSize); err != nil {
			return errEnvelope(req, err.Error())
		}
		return &rpc.Envelope{CorrelationID: req.CorrelationID}

	case "reorganize":
		id, err := s.Blobs.Resolve(tag, fr.BlobName)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		newID, err := s.Blobs.ReorganizeBlob(tag, id, fr.Score, fr.DestNode)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		s.Metrics.reorgRuns.Inc()
		return &rpc.Envelope{CorrelationID: req.CorrelationID, Blob: newID}

	case "rename":
		id, err := s.Blobs.Resolve(tag, fr.BlobName)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		if err := s.Blobs.RenameBlob(tag, id, fr.NewName); err != nil {
			return errEnvelope(req, err.Error())
		}
		return &rpc.Envelope{CorrelationID: req.CorrelationID}

	case "schema":
		id, err := s.Blobs.Resolve(tag, fr.BlobName)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		wire, err := s.Blobs.SchemaWire(id)
		if err != nil {
			return errEnvelope(req, err.Error())
		}
		return &rpc.Envelope{CorrelationID: req.CorrelationID, Payload: wire}

	default:
		nlog.Warningf("core: dispatch: unknown forward method %q", fr.Method)
		return errEnvelope(req, "unknown forward method "+fr.Method)
	}
}

func errEnvelope(req *rpc.Envelope, msg string) *rpc.Envelope {
	return &rpc.Envelope{CorrelationID: req.CorrelationID, Err: msg}
}

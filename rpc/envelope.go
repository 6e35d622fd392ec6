// Package rpc defines the single message form the core consumes to
// forward an operation to a remote node (spec §6): the RPC transport
// itself is an external collaborator (spec §1) — this package only
// describes the envelope and the interface hstore calls through.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package rpc

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/teris-io/shortid"

	"github.com/hermeshpc/hstore/meta"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Op names the remote operation an Envelope carries.
type Op string

const (
	OpBlobRead   Op = "blob.read"
	OpBlobWrite  Op = "blob.write"
	OpBlobFlush  Op = "blob.flush"
	OpBlobForward Op = "blob.forward" // generic C5 method forward
)

// Envelope is the tagged struct of spec §6: (tag_id, [blob_id,] payload)
// with a response form carrying either Payload or Err. CorrelationID is
// stamped with shortid (SPEC_FULL §3) purely for log correlation across
// a forwarded hop; the core never branches on it.
type Envelope struct {
	CorrelationID string `json:"cid"`
	Op            Op     `json:"op"`
	Tag           meta.TagID  `json:"tag"`
	Blob          meta.BlobID `json:"blob,omitempty"`
	Payload       []byte `json:"payload,omitempty"`
	Err           string `json:"err,omitempty"`
}

func NewEnvelope(op Op, tag meta.TagID, blob meta.BlobID, payload []byte) *Envelope {
	id, _ := shortid.Generate()
	return &Envelope{CorrelationID: id, Op: op, Tag: tag, Blob: blob, Payload: payload}
}

func (e *Envelope) Marshal() ([]byte, error)     { return json.Marshal(e) }
func Unmarshal(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Forwarder is the node-to-node RPC collaborator the core consumes
// (spec §1, §6). A concrete implementation (e.g. rpcfast, built on
// fasthttp) lives outside the core and is injected at startup.
type Forwarder interface {
	Forward(ctx context.Context, node meta.NodeID, req *Envelope) (*Envelope, error)
}

// LocalOnly is a Forwarder that always reports the target offline; it
// is the default when a deployment has no remote nodes configured.
type LocalOnly struct{}

func (LocalOnly) Forward(context.Context, meta.NodeID, *Envelope) (*Envelope, error) {
	return nil, context.DeadlineExceeded
}

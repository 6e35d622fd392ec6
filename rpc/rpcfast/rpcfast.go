// Package rpcfast is a reference implementation of the rpc.Forwarder
// interface the core consumes, built on fasthttp the way aistore's own
// intra-cluster transport is. It is deliberately kept outside the
// core: spec §1 treats the RPC transport as an external collaborator,
// the core only imports the rpc.Forwarder interface.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package rpcfast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/cmn/nlog"
	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/rpc"
)

// Client forwards rpc.Envelope requests over HTTP/1.1 via a pooled
// fasthttp.Client, one endpoint per node id.
type Client struct {
	hc *fasthttp.Client

	mu        sync.RWMutex
	endpoints map[meta.NodeID]string // e.g. "10.0.0.12:9090"
}

func NewClient() *Client {
	return &Client{
		hc:        &fasthttp.Client{Name: "hstore-rpcfast"},
		endpoints: make(map[meta.NodeID]string),
	}
}

func (c *Client) SetEndpoint(node meta.NodeID, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[node] = addr
}

func (c *Client) Forward(ctx context.Context, node meta.NodeID, req *rpc.Envelope) (*rpc.Envelope, error) {
	c.mu.RLock()
	addr, ok := c.endpoints[node]
	c.mu.RUnlock()
	if !ok {
		return nil, cmn.NewErr(cmn.ErrTierFault, nil, "rpcfast: no endpoint registered for node %d", node)
	}

	body, err := req.Marshal()
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, err, "rpcfast: marshal envelope")
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(fmt.Sprintf("http://%s/v1/hstore/rpc", addr))
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.SetBody(body)

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			timeout = d
		}
	}
	if err := c.hc.DoTimeout(httpReq, httpResp, timeout); err != nil {
		return nil, cmn.NewErr(cmn.ErrTierFault, err, "rpcfast: forward to node %d (%s)", node, addr)
	}
	if httpResp.StatusCode() != fasthttp.StatusOK {
		return nil, cmn.NewErr(cmn.ErrTierFault, nil, "rpcfast: node %d (%s) returned status %d", node, addr, httpResp.StatusCode())
	}
	resp, err := rpc.Unmarshal(httpResp.Body())
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, err, "rpcfast: unmarshal response from node %d", node)
	}
	return resp, nil
}

// Server exposes a fasthttp handler that decodes an Envelope and
// dispatches it to Handle. Handle is supplied by the process wiring
// the core together (cmd/hstored), never by the core itself.
type Server struct {
	Handle func(ctx context.Context, req *rpc.Envelope) *rpc.Envelope
}

func (s *Server) RequestHandler(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != "/v1/hstore/rpc" || !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	req, err := rpc.Unmarshal(ctx.PostBody())
	if err != nil {
		nlog.Warningf("rpcfast: bad envelope: %v", err)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	resp := s.Handle(ctx, req)
	body, err := resp.Marshal()
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) ListenAndServe(addr string) error {
	return fasthttp.ListenAndServe(addr, s.RequestHandler)
}

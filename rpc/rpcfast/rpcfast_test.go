package rpcfast

import (
	"context"
	"net"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/rpc"
)

func TestClientServerRoundTrip(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	t.Cleanup(func() { ln.Close() })

	srv := &fasthttp.Server{
		Handler: (&Server{
			Handle: func(_ context.Context, req *rpc.Envelope) *rpc.Envelope {
				return &rpc.Envelope{CorrelationID: req.CorrelationID, Payload: []byte("pong")}
			},
		}).RequestHandler,
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown() })

	c := NewClient()
	c.hc.Dial = func(addr string) (net.Conn, error) { return ln.Dial() }
	c.SetEndpoint(meta.NodeID(2), "peer")

	resp, err := c.Forward(context.Background(), meta.NodeID(2), rpc.NewEnvelope(rpc.OpBlobRead, meta.TagID{}, meta.BlobID{}, []byte("ping")))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if string(resp.Payload) != "pong" {
		t.Fatalf("unexpected payload: %q", resp.Payload)
	}
}

func TestClientForwardUnknownEndpoint(t *testing.T) {
	c := NewClient()
	if _, err := c.Forward(context.Background(), meta.NodeID(99), rpc.NewEnvelope(rpc.OpBlobRead, meta.TagID{}, meta.BlobID{}, nil)); err == nil {
		t.Fatalf("expected an error for a node with no registered endpoint")
	}
}

func TestServerRejectsWrongPath(t *testing.T) {
	srv := &Server{Handle: func(_ context.Context, req *rpc.Envelope) *rpc.Envelope { return req }}
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/wrong/path")
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	srv.RequestHandler(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 for an unrecognized path, got %d", ctx.Response.StatusCode())
	}
}

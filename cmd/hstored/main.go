// Command hstored runs one node of the tiering cluster: it loads a
// node config, brings up its targets, starts the background
// reorganizer, and serves the RPC/metrics HTTP endpoint.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/hermeshpc/hstore/cmn/config"
	"github.com/hermeshpc/hstore/cmn/nlog"
	"github.com/hermeshpc/hstore/core"
	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/rpc/rpcfast"
	"github.com/hermeshpc/hstore/stage"
	"github.com/hermeshpc/hstore/target"
)

func main() {
	configPath := flag.String("config", "", "path to the node config file")
	flag.Parse()
	if *configPath == "" {
		nlog.Errorln("hstored: -config is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		nlog.Errorf("hstored: %v", err)
		os.Exit(1)
	}

	client := rpcfast.NewClient()
	for _, p := range cfg.Peers {
		client.SetEndpoint(meta.NodeID(p.NodeID), p.Addr)
	}

	localNode := meta.NodeID(cfg.NodeID)
	state := core.New(localNode, client, prometheus.DefaultRegisterer)

	for _, tc := range cfg.Targets {
		id := meta.TargetID{Node: localNode, DeviceIdx: tc.DeviceIdx, SlabIdx: tc.SlabIdx}
		dev := target.DeviceInfo{Capacity: tc.Capacity, Path: tc.Path, RemoteNode: meta.NodeID(tc.RemoteNode)}
		kind, err := parseKind(tc.Kind)
		if err != nil {
			nlog.Errorf("hstored: target %v: %v", id, err)
			os.Exit(1)
		}
		if err := state.Targets.Add(kind, id, dev, tc.Granularity, tc.BandwidthMBs, tc.LatencyUs); err != nil {
			nlog.Errorf("hstored: add target %v: %v", id, err)
			os.Exit(1)
		}
		if tc.HeadroomPct != 0 {
			if info, ok := state.Targets.Get(id); ok {
				info.SetHeadroomPct(tc.HeadroomPct)
			}
		}
		nlog.Infof("hstored: target %v (%s) capacity=%d online", id, kind, tc.Capacity)
	}
	state.SetRemoteExposedTarget(meta.TargetID{
		Node: localNode, DeviceIdx: cfg.RemoteExposedDeviceIdx, SlabIdx: cfg.RemoteExposedSlabIdx,
	})

	for _, bc := range cfg.Buckets {
		if err := wireBucket(state, bc); err != nil {
			nlog.Errorf("hstored: bucket %q: %v", bc.Name, err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	state.Run(ctx)

	server := &rpcfast.Server{Handle: state.HandleEnvelope}
	promHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	mux := func(c *fasthttp.RequestCtx) {
		if string(c.Path()) == "/metrics" {
			promHandler(c)
			return
		}
		server.RequestHandler(c)
	}

	go func() {
		nlog.Infof("hstored: node %d listening on %s", localNode, cfg.Listen)
		if err := fasthttp.ListenAndServe(cfg.Listen, mux); err != nil {
			nlog.Errorf("hstored: listen %s: %v", cfg.Listen, err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	nlog.Infoln("hstored: shutting down")
	cancel()
	state.Close()
}

func parseKind(s string) (meta.TargetKind, error) {
	switch s {
	case "ram":
		return meta.KindRAM, nil
	case "local-file":
		return meta.KindLocalFile, nil
	case "remote-file":
		return meta.KindRemoteFile, nil
	default:
		return 0, fmt.Errorf("unknown target kind %q", s)
	}
}

func wireBucket(state *core.State, bc config.BucketConfig) error {
	tag := state.Buckets.GetOrCreateTag(bc.Name, true, 0, 0)
	pack := stage.ParamsPack{Protocol: bc.Protocol, Flags: stage.Flags(bc.Flags), PageSize: bc.PageSize, Path: bc.Path}
	backend, err := stage.NewBackend(context.Background(), pack, stage.CloudCreds{})
	if err != nil {
		return err
	}
	stager := stage.New(pack, backend, state.Blobs, state.Buckets)
	state.Stagers.Register(tag.UID, stager)
	nlog.Infof("hstored: bucket %q backed by %s at %s", bc.Name, pack.Protocol, pack.Path)
	return nil
}

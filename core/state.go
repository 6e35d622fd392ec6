// Package core wires the per-component engines (C1-C8) into the single
// entry point a server process drives: bucket/blob operations, cross-
// node forwarding, and the background reorganizer, composed the way
// spec §9's "CoreState" ties the node's state together.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hermeshpc/hstore/blob"
	"github.com/hermeshpc/hstore/borg"
	"github.com/hermeshpc/hstore/bucket"
	"github.com/hermeshpc/hstore/lanes"
	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/rpc"
	"github.com/hermeshpc/hstore/stage"
	"github.com/hermeshpc/hstore/target"
)

const defaultNumLanes = 32

// State is one node's complete wiring: the shared metadata store, the
// target registry, the lane pool, the five engines, and whatever
// Forwarder reaches the rest of the cluster.
type State struct {
	LocalNode meta.NodeID
	Store     *meta.Store
	Targets   *target.Registry
	Pool      *lanes.Pool
	Blobs     *blob.Engine
	Buckets   *bucket.Engine
	Stagers   *stage.Registry
	Reorg     *borg.Reorganizer
	Forwarder rpc.Forwarder
	Metrics   *metrics

	// remoteExposed is the local target this node serves to other
	// nodes' remote-file tier (set via SetRemoteExposedTarget).
	remoteExposed meta.TargetID
}

// New assembles a node's State, registering its metrics against reg
// (pass prometheus.DefaultRegisterer in production, a fresh
// prometheus.NewRegistry() in tests to avoid cross-test collisions).
// fwd may be nil for a single-node deployment, in which case
// cross-node forwarding always fails fast (rpc.LocalOnly).
func New(localNode meta.NodeID, fwd rpc.Forwarder, reg prometheus.Registerer) *State {
	store := meta.NewStore()
	targets := target.NewRegistry()
	pool := lanes.New(defaultNumLanes)
	blobs := blob.NewEngine(localNode, store, targets, pool)
	buckets := bucket.NewEngine(localNode, store, pool)
	stagers := stage.NewRegistry()
	reorg := borg.New(blobs, targets)

	if fwd == nil {
		fwd = rpc.LocalOnly{}
	}

	s := &State{
		LocalNode: localNode,
		Store:     store,
		Targets:   targets,
		Pool:      pool,
		Blobs:     blobs,
		Buckets:   buckets,
		Stagers:   stagers,
		Reorg:     reorg,
		Forwarder: fwd,
		Metrics:   newMetrics(reg),
	}

	blobs.SetReorgQueue(reorg)
	blobs.SetMover(s)
	blobs.SetStagerLookup(func(tag meta.TagID) (blob.Stager, bool) {
		return stagers.Lookup(tag.UID)
	})
	return s
}

// Run starts the background reorganizer; it returns immediately and
// stops when ctx is cancelled or Close is called.
func (s *State) Run(ctx context.Context) { s.Reorg.Run(ctx) }

func (s *State) Close() {
	s.Reorg.Stop()
	s.Pool.Close()
}

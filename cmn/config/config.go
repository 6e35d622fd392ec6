// Package config loads the node-local deployment config: node id,
// listen address, peer endpoints, and the target set. No retrieved
// teacher file covers this concern directly, so the shape follows the
// ambient pattern used throughout this module: a plain struct decoded
// with jsoniter (already the module's wire-format library, package rpc)
// rather than reaching for a new serialization dependency.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/hermeshpc/hstore/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type TargetConfig struct {
	Kind        string `json:"kind"` // "ram" | "local-file" | "remote-file"
	DeviceIdx   uint32 `json:"device_idx"`
	SlabIdx     uint32 `json:"slab_idx"`
	Capacity    int64  `json:"capacity"`
	Granularity int64  `json:"granularity"`
	Path        string `json:"path,omitempty"`        // local-file
	RemoteNode  uint32 `json:"remote_node,omitempty"`  // remote-file
	BandwidthMBs float64 `json:"bandwidth_mbs"`
	LatencyUs    float64 `json:"latency_us"`

	// HeadroomPct reserves a fraction of this target's capacity the
	// placement policy will not fill (spec §4.3, MAY); omitted or zero
	// means the full advertised capacity is usable.
	HeadroomPct float64 `json:"headroom_pct,omitempty"`
}

type PeerConfig struct {
	NodeID uint32 `json:"node_id"`
	Addr   string `json:"addr"`
}

// BucketConfig pre-creates a named bucket backed by an external store
// at startup (spec §4.7); Protocol selects the stager (file/s3/azblob/gcs).
type BucketConfig struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol,omitempty"`
	Path     string `json:"path,omitempty"`
	PageSize uint64 `json:"page_size,omitempty"`
	Flags    uint32 `json:"flags,omitempty"`
}

// Config is the top-level deployment descriptor for one hstored
// process.
type Config struct {
	NodeID  uint32         `json:"node_id"`
	Listen  string         `json:"listen"`
	Peers   []PeerConfig   `json:"peers"`
	Targets []TargetConfig `json:"targets"`
	Buckets []BucketConfig `json:"buckets,omitempty"`

	// RemoteExposedDeviceIdx/SlabIdx pick which local target this node
	// serves to other nodes' remote-file tier; zero value (0,0) is
	// valid only if a target with that (device,slab) actually exists.
	RemoteExposedDeviceIdx uint32 `json:"remote_exposed_device_idx"`
	RemoteExposedSlabIdx   uint32 `json:"remote_exposed_slab_idx"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, err, "config: read %s", path)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, err, "config: parse %s", path)
	}
	if c.Listen == "" {
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, nil, "config: %s: listen address required", path)
	}
	if len(c.Targets) == 0 {
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, nil, "config: %s: at least one target required", path)
	}
	return &c, nil
}

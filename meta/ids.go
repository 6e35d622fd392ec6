// Package meta holds the cluster-level metadata types of the tiering
// engine: identifiers, tags (buckets), blobs, and targets.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package meta

import (
	"fmt"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
)

// NodeID identifies a node in the (external) cluster membership. The
// core never resolves it to an address; that belongs to the RPC
// collaborator (spec §1).
type NodeID uint32

// TagID and BlobID are (node, unique64) pairs. The node component
// routes ownership: an id's home node is the node that allocated it.
type (
	TagID struct {
		Node NodeID
		UID  uint64
	}
	BlobID struct {
		Node NodeID
		UID  uint64
	}
)

func (t TagID) String() string  { return fmt.Sprintf("t[%d/%x]", t.Node, t.UID) }
func (b BlobID) String() string { return fmt.Sprintf("b[%d/%x]", b.Node, b.UID) }

func (t TagID) IsZero() bool  { return t.Node == 0 && t.UID == 0 }
func (b BlobID) IsZero() bool { return b.Node == 0 && b.UID == 0 }

// TargetID identifies one (node, device, slab) triple.
type TargetID struct {
	Node       NodeID
	DeviceIdx  uint32
	SlabIdx    uint32
}

func (t TargetID) String() string {
	return fmt.Sprintf("tgt[%d/%d/%d]", t.Node, t.DeviceIdx, t.SlabIdx)
}

// BufferInfo is one fragment of a blob's byte stream: [Offset, Offset+Size)
// on TargetID's address space. The concatenation of a blob's buffers,
// in order, is the blob's contents.
type BufferInfo struct {
	Target TargetID
	Offset int64
	Size   int64
}

// Schema is an ordered placement decision: Σ Size == requested write size.
type Schema []BufferInfo

func (s Schema) TotalSize() int64 {
	var n int64
	for _, b := range s {
		n += b.Size
	}
	return n
}

// Gen is a per-node monotonic id generator. The node component of
// every id it mints is the node Gen was constructed for; the unique64
// component folds an xxhash of the caller's locality hint into a
// strictly increasing counter so ids stay unique while still being
// sensitive to the hint (used by the lane scheduler to keep
// logically-related blobs from colliding on the same lane by
// coincidence). Ids minted with the same hint increase with creation
// order; ids minted with different hints are ordered by their hint
// hashes, not by creation order.
type Gen struct {
	node    NodeID
	counter uint64
}

func NewGen(node NodeID) *Gen { return &Gen{node: node} }

func (g *Gen) next(hint string) uint64 {
	n := atomic.AddUint64(&g.counter, 1)
	if hint == "" {
		return n
	}
	h := xxhash.ChecksumString64(hint)
	// fold the hint into the high bits, keep the counter in the low
	// bits so ids minted from the same Gen never repeat.
	return (h << 40) ^ n
}

func (g *Gen) NextTagID(localityHint string) TagID {
	return TagID{Node: g.node, UID: g.next(localityHint)}
}

func (g *Gen) NextBlobID(localityHint string) BlobID {
	return BlobID{Node: g.node, UID: g.next(localityHint)}
}

// LaneOf hashes an id's unique component to a lane number in [0, numLanes).
// Two operations addressed to the same id always resolve to the same
// lane and therefore serialize (spec §5).
func LaneOf(uid uint64, numLanes int) int {
	if numLanes <= 0 {
		return 0
	}
	h := xxhash.ChecksumString64(fmt.Sprintf("%x", uid))
	return int(h % uint64(numLanes))
}

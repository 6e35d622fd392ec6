// Package placement implements the placement policy (C3): given a
// write size and a set of targets, produce an ordered schema summing
// to that size, greedily filling the highest-scored tiers first.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package placement

import (
	"sort"

	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/meta"
)

// Policy carries no parameters of its own; the headroom each target
// reserves is that target's TargetInfo.HeadroomPct.
type Policy struct{}

func New() *Policy { return &Policy{} }

// Schema computes an ordered list of (target, size) that sums to
// writeSize, filling from the highest-scored target down, bounded by
// each target's usable remaining capacity (spec §4.3 steps 1-3). Ties
// in score are broken by ascending TargetID for determinism; TargetID
// has no natural total order as a struct, so targets are sorted by
// their string form — stable and deterministic across runs for a
// fixed target set.
func (p *Policy) Schema(targets []*meta.TargetInfo, writeSize int64) (meta.Schema, error) {
	if writeSize <= 0 {
		return nil, cmn.NewErr(cmn.ErrInvalidArgument, nil, "schema: non-positive write size %d", writeSize)
	}

	ordered := make([]*meta.TargetInfo, len(targets))
	copy(ordered, targets)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := ordered[i].Score(), ordered[j].Score()
		if si != sj {
			return si > sj
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	remaining := writeSize
	var schema meta.Schema
	for _, t := range ordered {
		if remaining <= 0 {
			break
		}
		usable := t.UsableRemaining()
		if usable <= 0 {
			continue
		}
		take := remaining
		if take > usable {
			take = usable
		}
		offset, err := t.Allocator.Allocate(take)
		if err != nil {
			// another writer raced us for this target's headroom;
			// treat as "nothing usable here" and move to the next tier.
			continue
		}
		schema = append(schema, meta.BufferInfo{Target: t.ID, Offset: offset, Size: take})
		remaining -= take
	}

	if remaining > 0 {
		// undo whatever we did reserve — the caller gets nothing on failure.
		for _, b := range schema {
			releaseOn(ordered, b)
		}
		return nil, cmn.NewErr(cmn.ErrInsufficientCapacity, nil,
			"no schema covers %d bytes (%d unplaced)", writeSize, remaining)
	}
	return schema, nil
}

func releaseOn(targets []*meta.TargetInfo, b meta.BufferInfo) {
	for _, t := range targets {
		if t.ID == b.Target {
			_ = t.Allocator.Free(b.Offset, b.Size)
			return
		}
	}
}

// Free releases every buffer in s against the matching target in targets.
func Free(targets []*meta.TargetInfo, s meta.Schema) {
	for _, b := range s {
		releaseOn(targets, b)
	}
}

// Package borg implements the background reorganizer (C8): the
// periodic tier-pressure sweep and the ad-hoc rescoring/migration
// requests the blob engine enqueues (spec §4.8).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package borg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/buntdb"
	"golang.org/x/sync/semaphore"

	"github.com/hermeshpc/hstore/blob"
	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/cmn/nlog"
	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/placement"
)

const (
	defaultInterval       = time.Second
	defaultEvictThreshold = 0.90
	defaultPromoteScore   = 0.75
	defaultMaxInFlight    = 4
	maxVictimsPerScan     = 32
	queueDepth            = 256
)

type reorgReq struct {
	tag meta.TagID
	id  meta.BlobID
}

// Reorganizer is the C8 background worker: it holds no metadata of its
// own, operating entirely through the blob engine's exported surface
// and the shared target set.
type Reorganizer struct {
	engine *blob.Engine
	targets blob.Targets
	policy  *placement.Policy

	interval       time.Duration
	evictThreshold float64
	promoteScore   float64
	sem            *semaphore.Weighted

	queue chan reorgReq
	stop  chan struct{}
	wg    sync.WaitGroup
}

func New(engine *blob.Engine, targets blob.Targets) *Reorganizer {
	return &Reorganizer{
		engine:         engine,
		targets:        targets,
		policy:         placement.New(),
		interval:       defaultInterval,
		evictThreshold: defaultEvictThreshold,
		promoteScore:   defaultPromoteScore,
		sem:            semaphore.NewWeighted(defaultMaxInFlight),
		queue:          make(chan reorgReq, queueDepth),
		stop:           make(chan struct{}),
	}
}

// Enqueue implements blob.ReorgQueue: a fire-and-forget hand-off (spec
// §5's "not cancellable ... log and drop" applies equally to an
// overfull queue as to a missing entity).
func (r *Reorganizer) Enqueue(tag meta.TagID, id meta.BlobID) {
	select {
	case r.queue <- reorgReq{tag: tag, id: id}:
	default:
		nlog.Warningf("borg: queue full, dropping reorganize request for %s", id)
	}
}

// Run starts the periodic sweep and the enqueued-request drain; it
// returns immediately, both loops stop on ctx.Done or Stop.
func (r *Reorganizer) Run(ctx context.Context) {
	r.wg.Add(2)
	go r.tickLoop(ctx)
	go r.drainQueue(ctx)
}

func (r *Reorganizer) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Reorganizer) tickLoop(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-t.C:
			r.scan(ctx)
		}
	}
}

func (r *Reorganizer) drainQueue(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case req := <-r.queue:
			r.handleEnqueued(ctx, req)
		}
	}
}

// handleEnqueued services a single rescore/migrate request: if the
// new score clears the promotion threshold and the blob isn't already
// on its best-scoring target, it is moved there; otherwise the request
// just updates state (ReorganizeBlob already applied the score).
func (r *Reorganizer) handleEnqueued(ctx context.Context, req reorgReq) {
	info, ok := r.engine.Info(req.id)
	if !ok {
		return
	}
	info.RLock()
	score := info.Score()
	bufs := info.Buffers()
	info.RUnlock()
	if score < r.promoteScore || len(bufs) == 0 {
		r.settle(info)
		return
	}

	best := bestTarget(r.targets.List())
	if best == nil || onTarget(bufs, best.ID) {
		r.settle(info)
		return
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer r.sem.Release(1)
	if err := r.migrate(info, meta.TargetID{}); err != nil {
		nlog.Warningf("borg: promote %s: %v", req.id, err)
	}
}

// settle drops a blob still marked Reorganizing back to Resident when
// no migration is actually needed (e.g. a rescore with no tier change).
func (r *Reorganizer) settle(info *meta.BlobInfo) {
	info.Lock()
	if info.State() == meta.StateReorganizing {
		info.SetState(meta.StateResident)
	}
	info.Unlock()
}

// scan implements spec §4.8's periodic sweep: targets at or above the
// eviction threshold have their resident blobs ranked low-score first
// (ties broken by stalest access) via a buntdb score index, and the
// lowest-ranked are migrated off.
func (r *Reorganizer) scan(ctx context.Context) {
	targets := r.targets.List()
	pressured := make(map[meta.TargetID]bool)
	for _, t := range targets {
		if t.Allocator == nil || t.Allocator.Capacity() == 0 {
			continue
		}
		occ := float64(t.Allocator.Allocated()) / float64(t.Allocator.Capacity())
		if occ >= r.evictThreshold {
			pressured[t.ID] = true
		}
	}
	if len(pressured) == 0 {
		return
	}

	victims, err := r.rankVictims(pressured)
	if err != nil {
		nlog.Warningf("borg: rank victims: %v", err)
		return
	}

	for _, v := range victims {
		info, ok := r.engine.Info(v.id)
		if !ok {
			continue
		}
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		if err := r.migrate(info, v.target); err != nil {
			nlog.Warningf("borg: evict %s off %s: %v", v.id, v.target, err)
		}
		r.sem.Release(1)
	}
}

type candidate struct {
	id     meta.BlobID
	target meta.TargetID
}

// rankVictims builds a fresh in-memory buntdb indexed by score on
// every tick (spec §4.8's scan is a snapshot, not incremental state):
// ascending the "score" index yields lowest-score-first eviction order
// cheaply, without hand-rolling a heap.
func (r *Reorganizer) rankVictims(pressured map[meta.TargetID]bool) ([]candidate, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, cmn.NewErr(cmn.ErrTierFault, err, "borg: open score index")
	}
	defer db.Close()
	if err := db.CreateIndex("score", "cand:*", buntdb.IndexJSON("score"), buntdb.IndexJSON("access")); err != nil {
		return nil, err
	}

	byKey := make(map[string]candidate)
	resident := r.engine.SnapshotResident()

	err = db.Update(func(tx *buntdb.Tx) error {
		for _, info := range resident {
			info.RLock()
			state := info.State()
			bufs := info.Buffers()
			score := info.Score()
			access := info.LastAccessNs()
			id := info.ID()
			info.RUnlock()
			if state != meta.StateResident {
				continue
			}
			target, hit := firstPressured(bufs, pressured)
			if !hit {
				continue
			}
			key := "cand:" + id.String()
			val := fmt.Sprintf(`{"score":%.6f,"access":%d}`, score, access)
			if _, _, err := tx.Set(key, val, nil); err != nil {
				return err
			}
			byKey[key] = candidate{id: id, target: target}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var victims []candidate
	err = db.View(func(tx *buntdb.Tx) error {
		n := 0
		return tx.Ascend("score", func(key, _ string) bool {
			if n >= maxVictimsPerScan {
				return false
			}
			victims = append(victims, byKey[key])
			n++
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return victims, nil
}

func firstPressured(bufs meta.Schema, pressured map[meta.TargetID]bool) (meta.TargetID, bool) {
	for _, b := range bufs {
		if pressured[b.Target] {
			return b.Target, true
		}
	}
	return meta.TargetID{}, false
}

func onTarget(bufs meta.Schema, id meta.TargetID) bool {
	for _, b := range bufs {
		if b.Target == id {
			return true
		}
	}
	return false
}

func bestTarget(targets []*meta.TargetInfo) *meta.TargetInfo {
	var best *meta.TargetInfo
	for _, t := range targets {
		if best == nil || t.Score() > best.Score() {
			best = t
		}
	}
	return best
}

// migrate moves info's bytes onto a fresh schema that avoids the
// given target (the zero TargetID avoids nothing, used by the
// promotion path), preserving the blob under its own lock across the
// whole read-allocate-write-swap (P8: reorganization preserves bytes).
// Any failure before the swap leaves the old buffers untouched.
func (r *Reorganizer) migrate(info *meta.BlobInfo, avoid meta.TargetID) error {
	info.Lock()
	defer info.Unlock()

	if info.State() != meta.StateResident && info.State() != meta.StateReorganizing {
		return nil
	}
	old := info.Buffers()
	size := info.Size()
	if size == 0 || len(old) == 0 {
		info.SetState(meta.StateResident)
		return nil
	}

	data, err := r.readSchema(old, size)
	if err != nil {
		info.SetState(meta.StateResident)
		return err
	}

	all := r.targets.List()
	eligible := all
	if (avoid != meta.TargetID{}) {
		eligible = make([]*meta.TargetInfo, 0, len(all))
		for _, t := range all {
			if t.ID != avoid {
				eligible = append(eligible, t)
			}
		}
		if len(eligible) == 0 {
			eligible = all
		}
	}

	schema, err := r.policy.Schema(eligible, size)
	if err != nil {
		info.SetState(meta.StateResident)
		return err
	}
	if err := r.writeSchema(schema, data); err != nil {
		placement.Free(all, schema)
		info.SetState(meta.StateResident)
		return err
	}

	placement.Free(all, old)
	info.SetBuffers(schema)
	info.SetState(meta.StateResident)
	info.BumpModCount()
	return nil
}

func (r *Reorganizer) readSchema(s meta.Schema, n int64) ([]byte, error) {
	out := make([]byte, 0, n)
	for _, buf := range s {
		drv, ok := r.targets.Driver(buf.Target)
		if !ok {
			return nil, cmn.NewErr(cmn.ErrTierFault, nil, "borg: no driver for target %s", buf.Target)
		}
		chunk, err := drv.Read(buf.Offset, buf.Size)
		if err != nil {
			return nil, cmn.NewErr(cmn.ErrTierFault, err, "borg: read %s", buf.Target)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (r *Reorganizer) writeSchema(s meta.Schema, data []byte) error {
	var written int64
	for _, buf := range s {
		drv, ok := r.targets.Driver(buf.Target)
		if !ok {
			return cmn.NewErr(cmn.ErrTierFault, nil, "borg: no driver for target %s", buf.Target)
		}
		chunk := data[written : written+buf.Size]
		if err := drv.Write(buf.Offset, chunk); err != nil {
			return err
		}
		written += buf.Size
	}
	return nil
}

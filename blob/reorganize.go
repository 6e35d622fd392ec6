package blob

import (
	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/meta"
)

// ReorgQueue is the background dispatcher ReorganizeBlob hands
// requests to (spec §4.5: "enqueues a reorganization request"); the
// actual tier migration work happens in the reorganizer (C8, package
// borg), which registers itself here so blob and borg have no direct
// compile-time dependency on each other.
type ReorgQueue interface {
	Enqueue(tag meta.TagID, id meta.BlobID)
}

// Mover copies a blob's bytes to a different node's home, returning
// the id it was assigned there (spec §4.5 home-node change). It is
// injected by the process wiring the cluster together (cmd/hstored);
// a single-node deployment never needs one.
type Mover interface {
	MoveToNode(tag meta.TagID, id meta.BlobID, dest meta.NodeID) (meta.BlobID, error)
}

func (e *Engine) SetReorgQueue(q ReorgQueue) { e.reorgQ = q }
func (e *Engine) SetMover(m Mover)           { e.mover = m }

// ReorganizeBlob implements spec §4.5: a rescore (unless the blob is
// pinned user_score_stationary — open question (b): stationary blobs
// remain migration-eligible, just not rescorable), an enqueue of the
// tier-migration work, and, if node_id differs from the blob's current
// home, a cross-node move via the injected Mover. The old id becomes a
// tombstone pointing at the new one (spec: "for one epoch").
func (e *Engine) ReorganizeBlob(tag meta.TagID, id meta.BlobID, score float64, nodeID meta.NodeID) (meta.BlobID, error) {
	info, err := e.lookupBlob(id)
	if err != nil {
		return id, err
	}

	e.pool.Run(id.UID, func() {
		info.Lock()
		info.SetScore(score)
		if info.State() == meta.StateResident {
			info.SetState(meta.StateReorganizing)
		}
		info.Unlock()
	})

	if e.reorgQ != nil {
		e.reorgQ.Enqueue(tag, id)
	}

	if nodeID == id.Node || nodeID == 0 {
		return id, nil
	}
	if e.mover == nil {
		return id, cmn.NewErr(cmn.ErrInvalidArgument, nil, "ReorganizeBlob: home-node change requested but no Mover configured")
	}
	newID, err := e.mover.MoveToNode(tag, id, nodeID)
	if err != nil {
		return id, err
	}

	info.Lock()
	info.SetState(meta.StateDestroyed) // old entry becomes a tombstone
	info.Unlock()
	e.tombstone(id, newID)
	return newID, nil
}

func (e *Engine) tombstone(old, new meta.BlobID) {
	e.tombMu.Lock()
	if e.tombstones == nil {
		e.tombstones = make(map[meta.BlobID]meta.BlobID)
	}
	e.tombstones[old] = new
	e.tombMu.Unlock()
}

// ResolveTombstone follows a forwarding pointer left by a cross-node
// ReorganizeBlob, valid "for one epoch" per spec §4.5 (hstore does not
// implement epoch expiry; the pointer lives for the process lifetime).
func (e *Engine) ResolveTombstone(id meta.BlobID) (meta.BlobID, bool) {
	e.tombMu.RLock()
	defer e.tombMu.RUnlock()
	newID, ok := e.tombstones[id]
	return newID, ok
}

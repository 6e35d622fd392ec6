// Package bucket implements the bucket engine (C6): tag lifecycle and
// blob membership/size accounting over the shared metadata store (C4).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package bucket

import (
	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/lanes"
	"github.com/hermeshpc/hstore/meta"
)

// Engine is one node's bucket engine (C6).
type Engine struct {
	localNode meta.NodeID
	store     *meta.Store
	gen       *meta.Gen
	pool      *lanes.Pool
}

func NewEngine(localNode meta.NodeID, store *meta.Store, pool *lanes.Pool) *Engine {
	return &Engine{localNode: localNode, store: store, gen: meta.NewGen(localNode), pool: pool}
}

// GetOrCreateTag returns the id for name, creating it on first
// reference. A name collision with an existing tag returns the
// existing id regardless of the ownsBlobs/backendSize/flags the caller
// passed (spec §4.6: "Tag name collisions return the existing id").
func (e *Engine) GetOrCreateTag(name string, ownsBlobs bool, backendSize int64, flags meta.TagFlags) meta.TagID {
	if id, ok := e.store.TagNames.Find(name); ok {
		return id
	}
	newID := e.gen.NextTagID(name)
	storedID, inserted := e.store.TagNames.TryEmplace(name, newID)
	if inserted {
		info := meta.NewTagInfo(storedID, name, ownsBlobs, backendSize, flags)
		e.store.Tags.TryEmplace(storedID, info)
	}
	return storedID
}

func (e *Engine) GetTagID(name string) (meta.TagID, error) {
	id, ok := e.store.TagNames.Find(name)
	if !ok {
		return meta.TagID{}, cmn.NewErr(cmn.ErrNotFound, nil, "unknown bucket %q", name)
	}
	return id, nil
}

func (e *Engine) GetTagName(id meta.TagID) (string, error) {
	t, ok := e.store.Tags.Find(id)
	if !ok {
		return "", cmn.NewErr(cmn.ErrNotFound, nil, "unknown tag %s", id)
	}
	return t.Name(), nil
}

func (e *Engine) lookup(id meta.TagID) (*meta.TagInfo, error) {
	t, ok := e.store.Tags.Find(id)
	if !ok {
		return nil, cmn.NewErr(cmn.ErrNotFound, nil, "unknown tag %s", id)
	}
	return t, nil
}

// DestroyTag removes the tag record, its name mapping and its blob-name
// filter. It does not destroy the tag's member blobs or release their
// buffers.
func (e *Engine) DestroyTag(id meta.TagID) error {
	t, err := e.lookup(id)
	if err != nil {
		return err
	}
	e.store.Tags.Erase(id)
	e.store.TagNames.Erase(t.Name())
	e.store.DropFilter(id)
	return nil
}

func (e *Engine) TagAddBlob(id meta.TagID, blob meta.BlobID) {
	t, err := e.lookup(id)
	if err != nil {
		return // fire-and-forget (spec §5)
	}
	t.Lock()
	t.AddBlob(blob)
	t.Unlock()
}

func (e *Engine) TagRemoveBlob(id meta.TagID, blob meta.BlobID) {
	t, err := e.lookup(id)
	if err != nil {
		return
	}
	t.Lock()
	t.RemoveBlob(blob)
	t.Unlock()
}

func (e *Engine) TagClearBlobs(id meta.TagID) {
	t, err := e.lookup(id)
	if err != nil {
		return
	}
	t.Lock()
	t.ClearBlobs()
	t.Unlock()
}

func (e *Engine) TagGetSize(id meta.TagID) (internal, backend int64, err error) {
	t, err := e.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	t.RLock()
	defer t.RUnlock()
	internal, backend = t.Size()
	return internal, backend, nil
}

// TagUpdateSize applies delta to the backend_size under mode ∈ {Add,
// Cap} (spec §4.6); internal_size tracks owned-blob sizes separately
// and is maintained by the facade as blobs are put/truncated/destroyed.
func (e *Engine) TagUpdateSize(id meta.TagID, delta int64, mode meta.SizeMode) {
	t, err := e.lookup(id)
	if err != nil {
		return
	}
	t.Lock()
	t.UpdateBackendSize(delta, mode)
	t.Unlock()
}

func (e *Engine) TagUpdateInternalSize(id meta.TagID, delta int64, mode meta.SizeMode) {
	t, err := e.lookup(id)
	if err != nil {
		return
	}
	t.Lock()
	t.UpdateInternalSize(delta, mode)
	t.Unlock()
}

func (e *Engine) TagGetContainedBlobIds(id meta.TagID) ([]meta.BlobID, error) {
	t, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	t.RLock()
	defer t.RUnlock()
	return t.ContainedBlobIDs(), nil
}

// RenameTag swaps the name→id mapping; name collisions with an
// existing tag are rejected (unlike GetOrCreateTag, this is a
// non-idempotent operation — spec §7 AlreadyExists: "only where
// creation is non-idempotent").
func (e *Engine) RenameTag(id meta.TagID, newName string) error {
	t, err := e.lookup(id)
	if err != nil {
		return err
	}
	if _, exists := e.store.TagNames.Find(newName); exists {
		return cmn.NewErr(cmn.ErrAlreadyExists, nil, "bucket %q already exists", newName)
	}
	t.Lock()
	oldName := t.Name()
	t.Rename(newName)
	t.Unlock()

	e.store.TagNames.Erase(oldName)
	e.store.TagNames.Set(newName, id)
	return nil
}

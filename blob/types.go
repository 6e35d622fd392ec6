// Package blob implements the blob engine (C5): Put/Get/Truncate/
// Destroy/Rename/Reorganize, composing the metadata store (C4), the
// placement policy (C3), and the target drivers (C1), enforcing the
// blob invariants of spec §3.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package blob

import (
	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/target"
)

// Targets is the view of C1+C2 the blob engine needs: the live set of
// targets for placement decisions, and a driver per target for I/O.
type Targets interface {
	List() []*meta.TargetInfo
	Driver(id meta.TargetID) (target.Driver, bool)
}

// Stager is the narrow interface GetBlob needs on a read miss (spec
// §4.5): stage the page covering [offset, offset+len) into the blob,
// then the caller retries the read. Declared here (not imported from
// package stage) so blob and stage have no compile-time dependency on
// each other; package stage's *Stager type satisfies this structurally.
type Stager interface {
	StageIn(tag meta.TagID, blobName string, score float64) error
}

// StagerLookup resolves the stager attached to a tag, if any (spec
// §4.7: "registered at tag creation when the bucket is backed by a file").
type StagerLookup func(tag meta.TagID) (Stager, bool)

// PutFlags control PutBlob's replace-vs-overlay behavior (spec §4.5).
type PutFlags = meta.BlobFlags

const (
	FlagReplace   = meta.BlobFlagReplace
	FlagTruncate  = meta.BlobFlagTruncate
	FlagKeepInTag = meta.BlobFlagKeepInTag
)

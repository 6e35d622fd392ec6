package bucket

import (
	"testing"

	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/lanes"
	"github.com/hermeshpc/hstore/meta"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	pool := lanes.New(4)
	t.Cleanup(pool.Close)
	return NewEngine(meta.NodeID(1), meta.NewStore(), pool)
}

func TestGetOrCreateTagCollisionReturnsExisting(t *testing.T) {
	e := newTestEngine(t)
	id1 := e.GetOrCreateTag("bucket-a", true, 0, 0)
	id2 := e.GetOrCreateTag("bucket-a", false, 999, meta.TagFlagIsFile)
	if id1 != id2 {
		t.Fatalf("expected name collision to return the original id, got %v and %v", id1, id2)
	}
}

func TestGetTagNameRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	id := e.GetOrCreateTag("bucket-b", true, 0, 0)
	name, err := e.GetTagName(id)
	if err != nil {
		t.Fatalf("get tag name: %v", err)
	}
	if name != "bucket-b" {
		t.Fatalf("expected 'bucket-b', got %q", name)
	}
}

// P7: a blob added to a tag is a member until explicitly removed.
func TestTagMembership(t *testing.T) {
	e := newTestEngine(t)
	id := e.GetOrCreateTag("bucket-c", true, 0, 0)
	blob := meta.BlobID{Node: 1, UID: 42}

	e.TagAddBlob(id, blob)
	members, err := e.TagGetContainedBlobIds(id)
	if err != nil {
		t.Fatalf("get members: %v", err)
	}
	if len(members) != 1 || members[0] != blob {
		t.Fatalf("expected blob to be a member, got %v", members)
	}

	e.TagRemoveBlob(id, blob)
	members, err = e.TagGetContainedBlobIds(id)
	if err != nil {
		t.Fatalf("get members: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty membership after removal, got %v", members)
	}
}

func TestRenameTagRejectsCollision(t *testing.T) {
	e := newTestEngine(t)
	idA := e.GetOrCreateTag("bucket-d", true, 0, 0)
	e.GetOrCreateTag("bucket-e", true, 0, 0)

	if err := e.RenameTag(idA, "bucket-e"); !cmn.IsKind(err, cmn.ErrAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestTagUpdateSizeAddAndCap(t *testing.T) {
	e := newTestEngine(t)
	id := e.GetOrCreateTag("bucket-f", true, 0, 0)

	e.TagUpdateSize(id, 100, meta.SizeAdd)
	e.TagUpdateSize(id, 50, meta.SizeAdd)
	_, backend, err := e.TagGetSize(id)
	if err != nil {
		t.Fatalf("get size: %v", err)
	}
	if backend != 150 {
		t.Fatalf("expected backend size 150, got %d", backend)
	}

	e.TagUpdateSize(id, 80, meta.SizeCap)
	_, backend, _ = e.TagGetSize(id)
	if backend != 150 {
		t.Fatalf("expected SizeCap below the current size to leave backend size at 150, got %d", backend)
	}
}

func TestDestroyTagRemovesNameIndex(t *testing.T) {
	e := newTestEngine(t)
	id := e.GetOrCreateTag("bucket-g", true, 0, 0)
	if err := e.DestroyTag(id); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := e.GetTagID("bucket-g"); !cmn.IsKind(err, cmn.ErrNotFound) {
		t.Fatalf("expected NotFound after destroy, got %v", err)
	}
}

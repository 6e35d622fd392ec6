package stage

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/hermeshpc/hstore/blob"
	"github.com/hermeshpc/hstore/bucket"
	"github.com/hermeshpc/hstore/lanes"
	"github.com/hermeshpc/hstore/meta"
	"github.com/hermeshpc/hstore/target"
)

// memBackend is a trivial in-memory Backend for exercising Stager
// without touching any real protocol implementation. It mimics
// FileBackend's positional, single-backing-buffer semantics: the
// blobName/page argument is ignored and every offset addresses the
// same underlying buffer, as a real backing file would.
type memBackend struct {
	mu   sync.Mutex
	data []byte
}

func newMemBackend() *memBackend { return &memBackend{} }

func (b *memBackend) ReadRange(_ context.Context, _ string, offset, length int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	full := b.data
	if offset >= int64(len(full)) {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(full)) {
		end = int64(len(full))
	}
	out := make([]byte, end-offset)
	copy(out, full[offset:end])
	return out, nil
}

func (b *memBackend) WriteRange(_ context.Context, _ string, offset int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	need := offset + int64(len(data))
	if need > int64(len(b.data)) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[offset:], data)
	return nil
}

func newTestRig(t *testing.T) (*blob.Engine, *bucket.Engine, meta.TagID) {
	t.Helper()
	reg := target.NewRegistry()
	id := meta.TargetID{Node: 1, DeviceIdx: 0}
	if err := reg.Add(meta.KindRAM, id, target.DeviceInfo{Capacity: 1 << 20}, 64, 100, 10); err != nil {
		t.Fatalf("add target: %v", err)
	}
	store := meta.NewStore()
	pool := lanes.New(4)
	t.Cleanup(pool.Close)
	blobs := blob.NewEngine(1, store, reg, pool)
	buckets := bucket.NewEngine(1, store, pool)
	tag := buckets.GetOrCreateTag("filebacked", true, 0, meta.TagFlagIsFile)
	return blobs, buckets, tag
}

func TestStageInPopulatesBlobFromBackend(t *testing.T) {
	blobs, buckets, tag := newTestRig(t)
	backend := newMemBackend()
	pack := ParamsPack{Protocol: ProtocolFile, PageSize: 16, Path: "bucket.bin"}
	_ = backend.WriteRange(context.Background(), "bucket.bin", 0, bytes.Repeat([]byte("Z"), 16))

	s := New(pack, backend, blobs, buckets)
	pageName := EncodePageName(0)
	if err := s.StageIn(tag, pageName, 0.5); err != nil {
		t.Fatalf("stage-in: %v", err)
	}

	id, err := blobs.Resolve(tag, pageName)
	if err != nil {
		t.Fatalf("resolve staged blob: %v", err)
	}
	got, err := blobs.GetBlob(tag, id, 0, 16, pageName)
	if err != nil {
		t.Fatalf("get staged blob: %v", err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte("Z"), 16)) {
		t.Fatalf("unexpected staged content: %q", got)
	}
}

func TestStageInNoOpUnderNoReadFlag(t *testing.T) {
	blobs, buckets, tag := newTestRig(t)
	backend := newMemBackend()
	_ = backend.WriteRange(context.Background(), "bucket.bin", 0, []byte("should-not-be-read"))

	pack := ParamsPack{Protocol: ProtocolFile, PageSize: 16, Path: "bucket.bin", Flags: FlagNoRead}
	s := New(pack, backend, blobs, buckets)
	pageName := EncodePageName(0)
	if err := s.StageIn(tag, pageName, 0.5); err != nil {
		t.Fatalf("stage-in: %v", err)
	}
	if _, err := blobs.Resolve(tag, pageName); err == nil {
		t.Fatalf("expected no blob to be created under FlagNoRead")
	}
}

func TestStageOutCapsBackendSize(t *testing.T) {
	blobs, buckets, tag := newTestRig(t)
	backend := newMemBackend()
	pack := ParamsPack{Protocol: ProtocolFile, PageSize: 16, Path: "bucket.bin"}
	s := New(pack, backend, blobs, buckets)

	pageName := EncodePageName(2) // bucket offset 32
	data := bytes.Repeat([]byte("A"), 16)
	if err := s.StageOut(tag, pageName, data, int64(len(data))); err != nil {
		t.Fatalf("stage-out: %v", err)
	}
	internal, backendSize, err := buckets.TagGetSize(tag)
	_ = internal
	if err != nil {
		t.Fatalf("get size: %v", err)
	}
	if backendSize != 48 {
		t.Fatalf("expected backend size capped to 48, got %d", backendSize)
	}
}

func TestFlushPendingAppliesInOffsetOrder(t *testing.T) {
	blobs, buckets, tag := newTestRig(t)
	backend := newMemBackend()
	pack := ParamsPack{Protocol: ProtocolFile, PageSize: 16, Path: "bucket.bin"}
	s := New(pack, backend, blobs, buckets)

	id := meta.BlobID{Node: 1, UID: 99}
	s.QueuePartialPut(id, 8, []byte("22222222"))
	s.QueuePartialPut(id, 0, []byte("11111111"))

	pageName := EncodePageName(0)
	if err := s.FlushPending(tag, pageName, id); err != nil {
		t.Fatalf("flush pending: %v", err)
	}
	got, err := backend.ReadRange(context.Background(), "bucket.bin", 0, 16)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := "1111111122222222"
	if string(got) != want {
		t.Fatalf("expected offset-ordered apply %q, got %q", want, got)
	}
}

package stage

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/meta"
)

// Backend is the protocol-specific half of a stager: a ranged read and
// a positional write against whatever external store backs the
// bucket. protofile.go, protos3.go, protoazblob.go, and protogcs.go
// each implement one. The first argument is the page's blob name
// (e.g. "00000000000000000002"): FileBackend ignores it and addresses
// ParamsPack.Path positionally by offset, while the object-store
// backends have no single backing path to seek within — they key one
// object/blob per page off this name instead.
type Backend interface {
	ReadRange(ctx context.Context, blobName string, offset, length int64) ([]byte, error)
	WriteRange(ctx context.Context, blobName string, offset int64, data []byte) error
}

// BlobWriter is the narrow slice of the blob engine a Stager needs to
// complete a stage-in (spec §4.5's retry path calls back through this
// after StageIn returns). Declared here, not imported from package
// blob, so the two packages have no compile-time dependency on each
// other; blob.Engine satisfies this structurally.
type BlobWriter interface {
	PutBlob(tag meta.TagID, id meta.BlobID, offset int64, data []byte, score float64, flags meta.BlobFlags) (meta.BlobID, error)
	GetOrCreateBlobId(tag meta.TagID, name string) (meta.BlobID, error)
	Info(id meta.BlobID) (*meta.BlobInfo, bool)
}

// TagSizer is the slice of the bucket engine UpdateSize needs.
type TagSizer interface {
	TagUpdateSize(tag meta.TagID, delta int64, mode meta.SizeMode)
}

// Stager is the per-bucket binary-file(-like) stager of spec §4.7.
type Stager struct {
	Pack    ParamsPack
	Backend Backend
	Blobs   BlobWriter
	Tags    TagSizer

	// pending batches partial-put offsets for the same blob so
	// FlushPending can apply them ordered by offset (spec §9 open question
	// (a): MPI shared-mode writes on file-backed buckets are ordered
	// by offset, not arrival order).
	mu      sync.Mutex
	pending map[meta.BlobID][]pendingWrite
}

type pendingWrite struct {
	offset int64
	data   []byte
}

func New(pack ParamsPack, backend Backend, blobs BlobWriter, tags TagSizer) *Stager {
	return &Stager{Pack: pack, Backend: backend, Blobs: blobs, Tags: tags, pending: make(map[meta.BlobID][]pendingWrite)}
}

// StageIn implements spec §4.7: a no-op under NO_READ; otherwise reads
// page_size bytes at the page's bucket_offset and Puts it into the
// blob. A short read yields a shorter blob; a zero-byte read creates
// nothing (spec: "the read returns empty").
func (s *Stager) StageIn(tag meta.TagID, blobName string, score float64) error {
	if s.Pack.Flags&FlagNoRead != 0 {
		return nil
	}
	_, bucketOffset, err := DecodePageName(blobName, int64(s.Pack.PageSize))
	if err != nil {
		return err
	}

	data, err := s.Backend.ReadRange(context.Background(), blobName, bucketOffset, int64(s.Pack.PageSize))
	if err != nil {
		return cmn.NewErr(cmn.ErrStagerUnavailable, err, "stage-in: read %s at %d", blobName, bucketOffset)
	}
	if len(data) == 0 {
		return nil
	}

	id, err := s.Blobs.GetOrCreateBlobId(tag, blobName)
	if err != nil {
		return err
	}
	if _, err := s.Blobs.PutBlob(tag, id, 0, data, score, 0); err != nil {
		return err
	}

	sum := blake2b.Sum256(data)
	if info, ok := s.Blobs.Info(id); ok {
		info.Lock()
		info.SetPageChecksum(sum)
		info.Unlock()
	}
	return nil
}

// StageOut implements spec §4.7: a no-op under NO_WRITE; otherwise
// writes size bytes at the page's bucket_offset.
func (s *Stager) StageOut(tag meta.TagID, blobName string, data []byte, size int64) error {
	if s.Pack.Flags&FlagNoWrite != 0 {
		return nil
	}
	_, bucketOffset, err := DecodePageName(blobName, int64(s.Pack.PageSize))
	if err != nil {
		return err
	}
	if err := s.Backend.WriteRange(context.Background(), blobName, bucketOffset, data[:size]); err != nil {
		return cmn.NewErr(cmn.ErrStagerUnavailable, err, "stage-out: write %s at %d", blobName, bucketOffset)
	}
	s.UpdateSize(tag, blobName, 0, size)
	return nil
}

// UpdateSize implements spec §4.7: caps the bucket's backend_size to
// the highest byte ever written.
func (s *Stager) UpdateSize(tag meta.TagID, blobName string, blobOff, dataSize int64) {
	_, bucketOffset, err := DecodePageName(blobName, int64(s.Pack.PageSize))
	if err != nil {
		return
	}
	s.Tags.TagUpdateSize(tag, bucketOffset+blobOff+dataSize, meta.SizeCap)
}

// QueuePartialPut batches an offset-ordered write for blobName so a
// later FlushPending applies all pending writes to the backend sorted
// by offset (spec §9 open question (a)).
func (s *Stager) QueuePartialPut(id meta.BlobID, offset int64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.pending[id] = append(s.pending[id], pendingWrite{offset: offset, data: cp})
}

// FlushPending applies every queued write for id to the backend, in
// ascending offset order, then clears the queue.
func (s *Stager) FlushPending(tag meta.TagID, blobName string, id meta.BlobID) error {
	s.mu.Lock()
	writes := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	sort.Slice(writes, func(i, j int) bool { return writes[i].offset < writes[j].offset })
	if s.Pack.Flags&FlagNoWrite != 0 {
		return nil
	}
	_, bucketOffset, err := DecodePageName(blobName, int64(s.Pack.PageSize))
	if err != nil {
		return err
	}
	for _, w := range writes {
		at := bucketOffset + w.offset
		if err := s.Backend.WriteRange(context.Background(), blobName, at, w.data); err != nil {
			return cmn.NewErr(cmn.ErrStagerUnavailable, err, "stage-out: write %s at %d", blobName, at)
		}
		s.UpdateSize(tag, blobName, w.offset, int64(len(w.data)))
	}
	return nil
}

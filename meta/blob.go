package meta

import "sync"

type BlobFlags uint32

const (
	BlobFlagStagedIn BlobFlags = 1 << iota
	BlobFlagDerived
	BlobFlagReplace  // PutBlob: discard-and-replace instead of partial overlay
	BlobFlagTruncate // PutBlob: do not grow blob_size past offset+len
	BlobFlagKeepInTag
)

// BlobState is the blob lifecycle state machine of spec §4.5.
type BlobState int32

const (
	StateAbsent BlobState = iota
	StateCreating
	StateResident
	StateReorganizing
	StateDestroyed
)

// BlobInfo is a blob as owned by its home node (spec §3).
type BlobInfo struct {
	mu sync.RWMutex

	name  string
	id    BlobID
	tagID TagID

	buffers Schema
	size    int64

	score            float64
	scoreStationary  bool
	modCount         uint64
	lastAccessNs     int64

	flags BlobFlags
	state BlobState

	// PageChecksum is the blake2b-256 checksum of the page this blob
	// was last staged in from (SPEC_FULL §4, grounded on the original
	// Hermes binary_stager.h). Zero value means "no stage-in yet".
	PageChecksum [32]byte
}

func NewBlobInfo(id BlobID, tagID TagID, name string) *BlobInfo {
	return &BlobInfo{id: id, tagID: tagID, name: name, state: StateCreating, score: 0.5}
}

func (b *BlobInfo) ID() BlobID    { return b.id }
func (b *BlobInfo) TagID() TagID  { return b.tagID }
func (b *BlobInfo) Name() string  { return b.name }
func (b *BlobInfo) Lock()         { b.mu.Lock() }
func (b *BlobInfo) Unlock()       { b.mu.Unlock() }
func (b *BlobInfo) RLock()        { b.mu.RLock() }
func (b *BlobInfo) RUnlock()      { b.mu.RUnlock() }

func (b *BlobInfo) State() BlobState      { return b.state }
func (b *BlobInfo) SetState(s BlobState)  { b.state = s }

func (b *BlobInfo) Size() int64    { return b.size }
func (b *BlobInfo) SetSize(n int64) { b.size = n }

func (b *BlobInfo) Buffers() Schema { return b.buffers }
func (b *BlobInfo) SetBuffers(s Schema) { b.buffers = s }

func (b *BlobInfo) Score() float64          { return b.score }
func (b *BlobInfo) ScoreStationary() bool   { return b.scoreStationary }
func (b *BlobInfo) SetScoreStationary(v bool) { b.scoreStationary = v }

// SetScore overwrites the score unless the blob was pinned stationary
// by the caller (spec §4.5 ReorganizeBlob; open question (b): stationary
// blobs remain migration-eligible but not rescorable).
func (b *BlobInfo) SetScore(s float64) bool {
	if b.scoreStationary {
		return false
	}
	b.score = s
	return true
}

func (b *BlobInfo) ModCount() uint64 { return b.modCount }
func (b *BlobInfo) BumpModCount()    { b.modCount++ }

func (b *BlobInfo) LastAccessNs() int64     { return b.lastAccessNs }
func (b *BlobInfo) Touch(nowNs int64)       { b.lastAccessNs = nowNs }

func (b *BlobInfo) HasFlag(f BlobFlags) bool { return b.flags&f != 0 }
func (b *BlobInfo) SetFlag(f BlobFlags)      { b.flags |= f }
func (b *BlobInfo) ClearFlag(f BlobFlags)    { b.flags &^= f }

func (b *BlobInfo) Rename(newName string) { b.name = newName }

func (b *BlobInfo) SetPageChecksum(sum [32]byte) { b.PageChecksum = sum }

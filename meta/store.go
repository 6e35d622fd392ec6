package meta

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// Store is one node's metadata store (C4): the four concurrent keyed
// maps of spec §4.4, plus an advisory per-tag cuckoo filter over blob
// names (SPEC_FULL §3), filled by RecordBlobName and queried with
// MaybeHasBlobName. GetOrCreateBlobId does not consult the filter; it
// always looks the name up in BlobIDs.
type Store struct {
	TagNames *RWMap[string, TagID]
	Tags     *RWMap[TagID, *TagInfo]
	BlobIDs  *RWMap[TagBlobKey, BlobID]
	Blobs    *RWMap[BlobID, *BlobInfo]

	filterMu sync.Mutex
	filters  map[TagID]*cuckoo.Filter
}

func NewStore() *Store {
	return &Store{
		TagNames: NewRWMap[string, TagID](),
		Tags:     NewRWMap[TagID, *TagInfo](),
		BlobIDs:  NewRWMap[TagBlobKey, BlobID](),
		Blobs:    NewRWMap[BlobID, *BlobInfo](),
		filters:  make(map[TagID]*cuckoo.Filter),
	}
}

const cuckooCapacity = 1 << 16

func (s *Store) filterFor(tag TagID) *cuckoo.Filter {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	f, ok := s.filters[tag]
	if !ok {
		f = cuckoo.NewFilter(cuckooCapacity)
		s.filters[tag] = f
	}
	return f
}

// MaybeHasBlobName reports false only when name is definitely absent
// from tag (a cuckoo-filter miss); true is advisory and still requires
// a BlobIDs.Find to confirm.
func (s *Store) MaybeHasBlobName(tag TagID, name string) bool {
	return s.filterFor(tag).Lookup([]byte(name))
}

func (s *Store) RecordBlobName(tag TagID, name string) {
	s.filterFor(tag).Insert([]byte(name))
}

func (s *Store) DropFilter(tag TagID) {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	delete(s.filters, tag)
}

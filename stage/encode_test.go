package stage

import (
	"testing"

	"github.com/hermeshpc/hstore/cmn"
)

// P9: decode(encode(i), page_size).bucket_offset == i * page_size.
func TestPageNameRoundTrip(t *testing.T) {
	const pageSize = int64(4096)
	for _, idx := range []uint64{0, 1, 42, 1 << 20, 99999999999} {
		name := EncodePageName(idx)
		if len(name) != 20 {
			t.Fatalf("expected 20-char name, got %q (%d)", name, len(name))
		}
		gotIdx, gotOffset, err := DecodePageName(name, pageSize)
		if err != nil {
			t.Fatalf("decode %q: %v", name, err)
		}
		if gotIdx != idx {
			t.Fatalf("page index round-trip: want %d got %d", idx, gotIdx)
		}
		if gotOffset != int64(idx)*pageSize {
			t.Fatalf("bucket offset: want %d got %d", int64(idx)*pageSize, gotOffset)
		}
	}
}

func TestPageNameLexicographicOrder(t *testing.T) {
	a := EncodePageName(5)
	b := EncodePageName(10)
	if !(a < b) {
		t.Fatalf("expected lexicographic order to match numeric order: %q should sort before %q", a, b)
	}
}

func TestDecodePageNameMalformed(t *testing.T) {
	if _, _, err := DecodePageName("not-a-page", 4096); !cmn.IsKind(err, cmn.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

package placement

import (
	"testing"

	"github.com/hermeshpc/hstore/cmn"
	"github.com/hermeshpc/hstore/meta"
)

func newTarget(idx uint32, capacity int64, bw, latency float64) *meta.TargetInfo {
	id := meta.TargetID{DeviceIdx: idx}
	return meta.NewTargetInfo(id, meta.KindRAM, capacity, 64, bw, latency)
}

func TestSchemaFillsHighestScoredFirst(t *testing.T) {
	fast := newTarget(1, 1<<20, 500, 10)
	slow := newTarget(2, 1<<20, 10, 5000)

	p := New()
	schema, err := p.Schema([]*meta.TargetInfo{slow, fast}, 1024)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if len(schema) != 1 {
		t.Fatalf("expected single-fragment schema on roomy targets, got %d fragments", len(schema))
	}
	if schema[0].Target != fast.ID {
		t.Fatalf("expected write to land on the higher-scored target %v, got %v", fast.ID, schema[0].Target)
	}
}

// P3: capacity conservation — allocated bytes across all targets equals
// the sum of schema fragment sizes after a successful Schema call. The
// sizes are multiples of newTarget's 64-byte granularity, because the
// allocator rounds every reservation up to it.
func TestSchemaCapacityConservation(t *testing.T) {
	targets := []*meta.TargetInfo{
		newTarget(1, 640, 100, 100),
		newTarget(2, 640, 100, 100),
	}
	p := New()
	schema, err := p.Schema(targets, 1024)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if schema.TotalSize() != 1024 {
		t.Fatalf("expected schema to sum to 1024, got %d", schema.TotalSize())
	}
	var allocated int64
	for _, tgt := range targets {
		allocated += tgt.Allocator.Allocated()
	}
	if allocated != schema.TotalSize() {
		t.Fatalf("allocator bookkeeping (%d) disagrees with schema total (%d)", allocated, schema.TotalSize())
	}
}

func TestSchemaInsufficientCapacityRollsBack(t *testing.T) {
	targets := []*meta.TargetInfo{
		newTarget(1, 100, 100, 100),
		newTarget(2, 100, 100, 100),
	}
	p := New()
	_, err := p.Schema(targets, 1_000_000)
	if !cmn.IsKind(err, cmn.ErrInsufficientCapacity) {
		t.Fatalf("expected InsufficientCapacity, got %v", err)
	}
	for _, tgt := range targets {
		if tgt.Allocator.Allocated() != 0 {
			t.Fatalf("expected rollback to leave target unallocated, got %d", tgt.Allocator.Allocated())
		}
	}
}

func TestFreeReleasesSchema(t *testing.T) {
	targets := []*meta.TargetInfo{newTarget(1, 1000, 100, 100)}
	p := New()
	schema, err := p.Schema(targets, 500)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	Free(targets, schema)
	if targets[0].Allocator.Allocated() != 0 {
		t.Fatalf("expected Free to release all reserved bytes, got %d", targets[0].Allocator.Allocated())
	}
}

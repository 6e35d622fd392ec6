package lanes

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hermeshpc/hstore/meta"
)

func TestRunSerializesSameLaneKey(t *testing.T) {
	p := New(4)
	defer p.Close()

	var mu sync.Mutex
	var order []int
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Run(7, func() {
				n := atomic.AddInt32(&active, 1)
				mu.Lock()
				order = append(order, i)
				if n > maxActive {
					maxActive = n
				}
				mu.Unlock()
				atomic.AddInt32(&active, -1)
			})
		}(i)
	}
	wg.Wait()

	if len(order) != 20 {
		t.Fatalf("expected all 20 jobs to run, got %d", len(order))
	}
	if maxActive != 1 {
		t.Fatalf("expected jobs on one lane key to run one at a time, saw %d at once", maxActive)
	}
}

func TestLaneForBlobIsStable(t *testing.T) {
	p := New(16)
	defer p.Close()

	id := meta.BlobID{Node: 1, UID: 123456}
	first := p.LaneForBlob(id)
	for i := 0; i < 10; i++ {
		if p.LaneForBlob(id) != first {
			t.Fatalf("expected stable lane assignment for the same blob id")
		}
	}
	if first < 0 || first >= p.NumLanes() {
		t.Fatalf("lane index %d out of range [0,%d)", first, p.NumLanes())
	}
}

func TestNewClampsNonPositiveLaneCount(t *testing.T) {
	p := New(0)
	defer p.Close()
	if p.NumLanes() != 1 {
		t.Fatalf("expected at least one lane, got %d", p.NumLanes())
	}
}

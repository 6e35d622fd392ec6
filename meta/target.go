package meta

import "github.com/hermeshpc/hstore/memsys"

// TargetKind discriminates the three I/O driver variants of spec §4.1
// without vtable polymorphism, per spec §9 ("model as a capability set").
type TargetKind int

const (
	KindRAM TargetKind = iota
	KindLocalFile
	KindRemoteFile
)

func (k TargetKind) String() string {
	switch k {
	case KindRAM:
		return "ram"
	case KindLocalFile:
		return "local-file"
	case KindRemoteFile:
		return "remote-file"
	default:
		return "unknown"
	}
}

// TargetInfo is the per-(node,device) descriptor of spec §3: capacity
// bookkeeping is delegated to its Allocator (C2); Bandwidth/Latency
// feed the placement score (C3).
type TargetInfo struct {
	ID        TargetID
	Kind      TargetKind
	Allocator *memsys.Allocator

	// BandwidthMBs and LatencyUs are refreshed by the driver (for
	// local-file targets, from lufia/iostat samples; static otherwise).
	BandwidthMBs float64
	LatencyUs    float64

	// HeadroomPct reserves a fraction of capacity the placement policy
	// will not fill (spec §4.3, MAY). Zero by default: spec §8's worked
	// placement scenarios assume the full advertised capacity is
	// usable, so a node only reserves headroom when its config sets
	// HeadroomPct explicitly via SetHeadroomPct.
	HeadroomPct float64
}

func NewTargetInfo(id TargetID, kind TargetKind, capacity, granularity int64, bw, latency float64) *TargetInfo {
	return &TargetInfo{
		ID:           id,
		Kind:         kind,
		Allocator:    memsys.NewAllocator(capacity, granularity),
		BandwidthMBs: bw,
		LatencyUs:    latency,
	}
}

// SetHeadroomPct overrides the reserved-capacity fraction (spec §4.3);
// deployments that want it carry it in cmn/config.TargetConfig.
func (t *TargetInfo) SetHeadroomPct(pct float64) { t.HeadroomPct = pct }

// UsableRemaining is Remaining() minus the reserved headroom, floored at 0.
func (t *TargetInfo) UsableRemaining() int64 {
	cap := t.Allocator.Capacity()
	rem := t.Allocator.Remaining()
	headroom := int64(float64(cap) * t.HeadroomPct)
	usable := rem - headroom
	if usable < 0 {
		return 0
	}
	return usable
}

// Score combines bandwidth, latency, and current pressure into the
// single float the placement policy sorts on. The original Hermes
// metadata_manager.cc weights inverted latency more heavily as
// remaining capacity drops (SPEC_FULL §4); spec §3 only says the score
// "is derived from bandwidth/latency and pressure" without a formula,
// so this reproduces the original's behavior rather than inventing one.
func (t *TargetInfo) Score() float64 {
	cap := t.Allocator.Capacity()
	if cap == 0 {
		return 0
	}
	pressure := float64(t.Allocator.Remaining()) / float64(cap) // 1.0 = empty, 0.0 = full
	invLatency := 1.0
	if t.LatencyUs > 0 {
		invLatency = 1.0 / t.LatencyUs
	}
	bwTerm := t.BandwidthMBs
	latTerm := invLatency * 1000.0 // scale into a comparable range

	// as pressure falls below 25%, weight latency (i.e. avoid thrashing
	// a nearly-full tier) more than raw bandwidth.
	latWeight := 0.5
	if pressure < 0.25 {
		latWeight = 0.85
	}
	bwWeight := 1 - latWeight
	return bwWeight*bwTerm + latWeight*latTerm
}

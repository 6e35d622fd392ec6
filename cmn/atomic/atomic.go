// Package atomic wraps sync/atomic with value-typed counters, in the
// shape of aistore's cmn/atomic.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package atomic

import "sync/atomic"

type Int64 struct{ v int64 }

func (a *Int64) Load() int64         { return atomic.LoadInt64(&a.v) }
func (a *Int64) Store(val int64)     { atomic.StoreInt64(&a.v, val) }
func (a *Int64) Add(delta int64) int64 { return atomic.AddInt64(&a.v, delta) }
func (a *Int64) Inc() int64          { return a.Add(1) }
func (a *Int64) CAS(old, new int64) bool {
	return atomic.CompareAndSwapInt64(&a.v, old, new)
}

type Int32 struct{ v int32 }

func (a *Int32) Load() int32         { return atomic.LoadInt32(&a.v) }
func (a *Int32) Store(val int32)     { atomic.StoreInt32(&a.v, val) }
func (a *Int32) Add(delta int32) int32 { return atomic.AddInt32(&a.v, delta) }
func (a *Int32) Inc() int32          { return a.Add(1) }
func (a *Int32) Dec() int32          { return a.Add(-1) }

type Uint64 struct{ v uint64 }

func (a *Uint64) Load() uint64           { return atomic.LoadUint64(&a.v) }
func (a *Uint64) Store(val uint64)       { atomic.StoreUint64(&a.v, val) }
func (a *Uint64) Add(delta uint64) uint64 { return atomic.AddUint64(&a.v, delta) }
func (a *Uint64) Inc() uint64            { return a.Add(1) }

type Bool struct{ v int32 }

func (a *Bool) Load() bool { return atomic.LoadInt32(&a.v) != 0 }
func (a *Bool) Store(val bool) {
	if val {
		atomic.StoreInt32(&a.v, 1)
	} else {
		atomic.StoreInt32(&a.v, 0)
	}
}

// Package mono gives out monotonic nanosecond timestamps, matching
// aistore's cmn/mono: callers use it for recency weighting and
// last-access bookkeeping, never for wall-clock display.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since process start.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the nanosecond delta between now and an earlier NanoTime() value.
func Since(t int64) int64 { return NanoTime() - t }

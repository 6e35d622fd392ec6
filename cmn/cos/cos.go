// Package cos ("common OS"-flavored helpers) collects small utilities
// used across the tiering engine, in the shape of aistore's cmn/cos.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// AlignUp rounds size up to the next multiple of granularity.
// granularity must be a power of two.
func AlignUp(size, granularity int64) int64 {
	if granularity <= 0 {
		return size
	}
	return (size + granularity - 1) &^ (granularity - 1)
}

// DivCeil is integer ceiling division for positive operands.
func DivCeil(a, b int64) int64 { return (a + b - 1) / b }

// Package stage implements the per-bucket stager (C7): stage-in on
// read-miss, stage-out on flush, and the blob-name placement encoding
// of spec §6.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stage

import (
	"fmt"
	"strconv"

	"github.com/hermeshpc/hstore/cmn"
)

// EncodePageName renders a page index as the fixed-width blob name of
// spec §6: zero-padded decimal so that lexicographic and numeric order
// agree (the spec's "sorts lexicographically by page_index").
func EncodePageName(pageIndex uint64) string {
	return fmt.Sprintf("%020d", pageIndex)
}

// DecodePageName is the inverse of EncodePageName and, combined with
// pageSize, yields the bucket offset spec §6 requires
// (decode(encode(i), page_size).bucket_offset == i × page_size — P9).
func DecodePageName(name string, pageSize int64) (pageIndex uint64, bucketOffset int64, err error) {
	if len(name) != 20 {
		return 0, 0, cmn.NewErr(cmn.ErrInvalidArgument, nil, "stage: malformed page name %q", name)
	}
	idx, perr := strconv.ParseUint(name, 10, 64)
	if perr != nil {
		return 0, 0, cmn.NewErr(cmn.ErrInvalidArgument, perr, "stage: malformed page name %q", name)
	}
	return idx, int64(idx) * pageSize, nil
}

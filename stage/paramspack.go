package stage

import (
	"encoding/binary"

	"github.com/hermeshpc/hstore/cmn"
)

type Flags uint32

const (
	FlagNoRead Flags = 1 << iota
	FlagNoWrite
)

// ParamsPack is the decoded form of the length-prefixed stager
// parameter pack of spec §6: protocol tag, flags, page_size, in order.
// The protocol tag discriminates future protocols (object store, HDFS
// — SPEC_FULL §3 implements s3/azblob/gcs under this same tag).
type ParamsPack struct {
	Protocol string
	Flags    Flags
	PageSize uint64
	// Path is protocol-specific addressing (file path, bucket/key
	// prefix, container name) and is not part of the wire pack's fixed
	// fields; it comes from the bucket creation option alongside the pack.
	Path string
}

// EncodeParamsPack produces the length-prefixed wire form: a
// uint32-length-prefixed protocol string, a u32 flags field, and a u64
// page_size field, all little-endian.
func EncodeParamsPack(p ParamsPack) []byte {
	proto := []byte(p.Protocol)
	out := make([]byte, 0, 4+len(proto)+4+8)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(proto)))
	out = append(out, lenBuf[:]...)
	out = append(out, proto...)
	var flagsBuf [4]byte
	binary.LittleEndian.PutUint32(flagsBuf[:], uint32(p.Flags))
	out = append(out, flagsBuf[:]...)
	var pageBuf [8]byte
	binary.LittleEndian.PutUint64(pageBuf[:], p.PageSize)
	out = append(out, pageBuf[:]...)
	return out
}

func DecodeParamsPack(b []byte) (ParamsPack, error) {
	if len(b) < 4 {
		return ParamsPack{}, cmn.NewErr(cmn.ErrInvalidArgument, nil, "stager params pack: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n+4+8 {
		return ParamsPack{}, cmn.NewErr(cmn.ErrInvalidArgument, nil, "stager params pack: truncated body")
	}
	proto := string(b[:n])
	b = b[n:]
	flags := Flags(binary.LittleEndian.Uint32(b[:4]))
	b = b[4:]
	pageSize := binary.LittleEndian.Uint64(b[:8])
	if pageSize == 0 {
		return ParamsPack{}, cmn.NewErr(cmn.ErrInvalidArgument, nil, "stager params pack: zero page_size")
	}
	return ParamsPack{Protocol: proto, Flags: flags, PageSize: pageSize}, nil
}

package meta

import "github.com/tinylib/msgp/msgp"

// MarshalMsg/UnmarshalMsg are hand-written in the shape of msgp's
// generated code (SPEC_FULL §3): blob.Engine.SchemaWire uses them to
// give a blob's placement schema a compact binary form, separate from
// the JSON RPC envelope used for the rest of the wire surface.

func (b BufferInfo) MarshalMsg(o []byte) ([]byte, error) {
	o = msgp.AppendArrayHeader(o, 5)
	o = msgp.AppendUint32(o, uint32(b.Target.Node))
	o = msgp.AppendUint32(o, b.Target.DeviceIdx)
	o = msgp.AppendUint32(o, b.Target.SlabIdx)
	o = msgp.AppendInt64(o, b.Offset)
	o = msgp.AppendInt64(o, b.Size)
	return o, nil
}

func (b *BufferInfo) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	if sz != 5 {
		return bts, msgp.ArrayError{Wanted: 5, Got: sz}
	}
	var node, dev, slab uint32
	if node, bts, err = msgp.ReadUint32Bytes(bts); err != nil {
		return bts, err
	}
	if dev, bts, err = msgp.ReadUint32Bytes(bts); err != nil {
		return bts, err
	}
	if slab, bts, err = msgp.ReadUint32Bytes(bts); err != nil {
		return bts, err
	}
	if b.Offset, bts, err = msgp.ReadInt64Bytes(bts); err != nil {
		return bts, err
	}
	if b.Size, bts, err = msgp.ReadInt64Bytes(bts); err != nil {
		return bts, err
	}
	b.Target = TargetID{Node: NodeID(node), DeviceIdx: dev, SlabIdx: slab}
	return bts, nil
}

func (s Schema) MarshalMsg(o []byte) ([]byte, error) {
	o = msgp.AppendArrayHeader(o, uint32(len(s)))
	var err error
	for _, b := range s {
		if o, err = b.MarshalMsg(o); err != nil {
			return o, err
		}
	}
	return o, nil
}

func (s *Schema) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	out := make(Schema, sz)
	for i := range out {
		if bts, err = out[i].UnmarshalMsg(bts); err != nil {
			return bts, err
		}
	}
	*s = out
	return bts, nil
}

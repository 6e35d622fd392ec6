package meta

import "testing"

func TestSchemaMsgpRoundTrip(t *testing.T) {
	schema := Schema{
		{Target: TargetID{Node: 1, DeviceIdx: 2, SlabIdx: 3}, Offset: 10, Size: 20},
		{Target: TargetID{Node: 4, DeviceIdx: 5, SlabIdx: 6}, Offset: 30, Size: 40},
	}
	wire, err := schema.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Schema
	if _, err := got.UnmarshalMsg(wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != len(schema) {
		t.Fatalf("expected %d buffers, got %d", len(schema), len(got))
	}
	for i := range schema {
		if got[i] != schema[i] {
			t.Fatalf("buffer %d mismatch: got %+v want %+v", i, got[i], schema[i])
		}
	}
}

func TestEmptySchemaMsgpRoundTrip(t *testing.T) {
	var schema Schema
	wire, err := schema.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Schema
	if _, err := got.UnmarshalMsg(wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected an empty schema to round-trip empty, got %d entries", len(got))
	}
}

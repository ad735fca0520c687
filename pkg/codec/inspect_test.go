package codec

import "testing"

func TestIntegerWidthSelection(t *testing.T) {
	r := NewRegistry(ProtocolBase)
	cases := []struct {
		v    int64
		want OID
	}{
		{0, OIDInt2},
		{32767, OIDInt2},
		{-32767, OIDInt2},
		{32768, OIDInt4},
		{-32768, OIDInt4},
		{2147483647, OIDInt4},
		{-2147483647, OIDInt4},
		{2147483648, OIDInt8},
		{-2147483648, OIDInt8},
	}
	for _, c := range cases {
		oid, _, _ := r.EncodeInteger(c.v)
		if oid != c.want {
			t.Fatalf("EncodeInteger(%d): got OID %d, want %d", c.v, oid, c.want)
		}
	}
}

func TestInspectNarrowIntArray(t *testing.T) {
	r := NewRegistry(ProtocolBinary)
	p, err := r.Inspect([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if p.OID != OIDInt2Array {
		t.Fatalf("got OID %d, want %d", p.OID, OIDInt2Array)
	}
}

func TestInspectEmptyArrayDefaultsToTextArray(t *testing.T) {
	r := NewRegistry(ProtocolBinary)
	p, err := r.Inspect([]interface{}{})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if p.OID != OIDTextArray {
		t.Fatalf("got OID %d, want %d", p.OID, OIDTextArray)
	}
}

func TestInspectNestedIntArray(t *testing.T) {
	r := NewRegistry(ProtocolBinary)
	p, err := r.Inspect([][]int{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if p.OID != OIDInt2Array {
		t.Fatalf("got OID %d, want %d", p.OID, OIDInt2Array)
	}
	header, elements, err := DecodeArrayBinary(p.Bytes)
	if err != nil {
		t.Fatalf("DecodeArrayBinary: %v", err)
	}
	if header.NDim != 2 {
		t.Fatalf("got NDim %d, want 2", header.NDim)
	}
	if len(header.Dims) != 2 || header.Dims[0].Length != 2 || header.Dims[1].Length != 2 {
		t.Fatalf("got dims %+v, want [2 2]", header.Dims)
	}
	if len(elements) != 4 {
		t.Fatalf("got %d elements, want 4", len(elements))
	}
}

func TestInspectRaggedArrayFails(t *testing.T) {
	r := NewRegistry(ProtocolBinary)
	if _, err := r.Inspect([][]int{{1, 2}, {3}}); err == nil {
		t.Fatalf("expected error for ragged array")
	}
}

func TestInspectHeterogeneousArrayFails(t *testing.T) {
	r := NewRegistry(ProtocolBinary)
	if _, err := r.Inspect([]interface{}{"a", 1}); err == nil {
		t.Fatalf("expected error for heterogeneous array")
	}
}

func TestInspectUnsupportedTypeFails(t *testing.T) {
	r := NewRegistry(ProtocolBase)
	if _, err := r.Inspect(struct{}{}); err == nil {
		t.Fatalf("expected error for unsupported host type")
	}
}

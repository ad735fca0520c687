package codec

import (
	"fmt"
	"strings"
)

// ArrayHeader describes a decoded array's binary envelope: dimension
// count, whether any element is NULL, and the element type OID.
type ArrayHeader struct {
	NDim       int32
	HasNull    bool
	ElementOID OID
	Dims       []ArrayDim
}

// ArrayDim is one dimension's length and lower bound.
type ArrayDim struct {
	Length     int32
	LowerBound int32
}

// DecodeArrayBinary parses the array binary envelope and returns the
// header plus the flattened row-major element byte slices (nil entry
// for SQL NULL).
func DecodeArrayBinary(buf []byte) (ArrayHeader, [][]byte, error) {
	if len(buf) < 12 {
		return ArrayHeader{}, nil, fmt.Errorf("codec: array binary payload too short")
	}
	ndim := int32(beUint32(buf[0:4]))
	hasNull := beUint32(buf[4:8]) != 0
	elemOID := OID(beUint32(buf[8:12]))
	off := 12

	dims := make([]ArrayDim, ndim)
	total := int32(1)
	if ndim == 0 {
		total = 0
	}
	for i := int32(0); i < ndim; i++ {
		if len(buf) < off+8 {
			return ArrayHeader{}, nil, fmt.Errorf("codec: array binary payload truncated in dimension header")
		}
		length := int32(beUint32(buf[off : off+4]))
		lower := int32(beUint32(buf[off+4 : off+8]))
		dims[i] = ArrayDim{Length: length, LowerBound: lower}
		total *= length
		off += 8
	}

	elements := make([][]byte, 0, total)
	for i := int32(0); i < total; i++ {
		if len(buf) < off+4 {
			return ArrayHeader{}, nil, fmt.Errorf("codec: array binary payload truncated reading element length")
		}
		length := int32(beUint32(buf[off : off+4]))
		off += 4
		if length < 0 {
			elements = append(elements, nil)
			continue
		}
		if len(buf) < off+int(length) {
			return ArrayHeader{}, nil, fmt.Errorf("codec: array binary payload truncated reading element bytes")
		}
		elements = append(elements, buf[off:off+int(length)])
		off += int(length)
	}

	return ArrayHeader{NDim: ndim, HasNull: hasNull, ElementOID: elemOID, Dims: dims}, elements, nil
}

// EncodeArrayBinary assembles an array binary envelope from explicit
// dimensions, element OID, and row-major element bytes (nil for NULL).
// It refuses heterogeneous or ragged input by requiring the caller to
// have already checked every element against the same encoder; callers
// should reject mismatched element Go types before calling this.
func EncodeArrayBinary(dims []ArrayDim, elemOID OID, elements [][]byte) ([]byte, error) {
	expected := int32(1)
	if len(dims) == 0 {
		expected = 0
	}
	for _, d := range dims {
		expected *= d.Length
	}
	if int32(len(elements)) != expected {
		return nil, fmt.Errorf("codec: array elements not homogeneous: expected %d elements, got %d", expected, len(elements))
	}

	hasNull := uint32(0)
	for _, e := range elements {
		if e == nil {
			hasNull = 1
			break
		}
	}

	out := make([]byte, 0, 12+8*len(dims)+4*len(elements))
	head := make([]byte, 12)
	putBeUint32(head[0:4], uint32(len(dims)))
	putBeUint32(head[4:8], hasNull)
	putBeUint32(head[8:12], uint32(elemOID))
	out = append(out, head...)

	for _, d := range dims {
		dimBuf := make([]byte, 8)
		putBeUint32(dimBuf[0:4], uint32(d.Length))
		putBeUint32(dimBuf[4:8], uint32(d.LowerBound))
		out = append(out, dimBuf...)
	}

	for _, e := range elements {
		if e == nil {
			lenBuf := make([]byte, 4)
			putBeUint32(lenBuf, uint32(int32(-1)))
			out = append(out, lenBuf...)
			continue
		}
		lenBuf := make([]byte, 4)
		putBeUint32(lenBuf, uint32(int32(len(e))))
		out = append(out, lenBuf...)
		out = append(out, e...)
	}

	return out, nil
}

// EncodeArrayText renders a flat slice of already-stringified elements
// (nil meaning NULL) as the `{...}` text array literal, quoting any
// element that needs it.
func EncodeArrayText(elements []*string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elements {
		if i > 0 {
			b.WriteByte(',')
		}
		if e == nil {
			b.WriteString("NULL")
			continue
		}
		b.WriteString(quoteArrayElement(*e))
	}
	b.WriteByte('}')
	return b.String()
}

func quoteArrayElement(s string) string {
	needsQuote := s == "" || strings.ContainsAny(s, " {},\"\\")
	if !needsQuote {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

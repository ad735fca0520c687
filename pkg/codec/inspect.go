package codec

import (
	"reflect"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"

	"github.com/cumulusdb/cumulus-go/pkg/errors"
)

// Param is the result of inspecting one host value: the wire OID,
// transfer format, and the already-encoded bytes (nil for NULL).
type Param struct {
	OID    OID
	Format FormatCode
	Bytes  []byte
}

// Inspect chooses (oid, format_code, encoder) for v and returns the
// encoded Param, following the dispatch order of §4.4: direct host-type
// lookup, then the datetime/integer/sequence special inspectors, then
// failure.
func (r *Registry) Inspect(v interface{}) (Param, error) {
	if v == nil {
		return Param{OID: OIDUnknown, Format: FormatText, Bytes: nil}, nil
	}

	switch x := v.(type) {
	case bool:
		oid, fc, b, err := r.EncodeByKind("bool", x)
		return Param{oid, fc, b}, err
	case string:
		oid, fc, b, err := r.EncodeByKind("string", x)
		return Param{oid, fc, b}, err
	case []byte:
		oid, fc, b, err := r.EncodeByKind("[]byte", x)
		return Param{oid, fc, b}, err
	case float32:
		oid, fc, b, err := r.EncodeByKind("float32", x)
		return Param{oid, fc, b}, err
	case float64:
		oid, fc, b, err := r.EncodeByKind("float64", x)
		return Param{oid, fc, b}, err
	case decimal.Decimal:
		oid, fc, b, err := r.EncodeByKind("decimal", x)
		return Param{oid, fc, b}, err
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		oid, fc, b := r.EncodeInteger(toInt64(x))
		return Param{oid, fc, b}, nil
	case civil.Date:
		oid, fc, b, err := r.EncodeByKind("civil.Date", x)
		return Param{oid, fc, b}, err
	case civil.DateTime:
		oid, fc, b, err := r.EncodeByKind("civil.DateTime", x)
		return Param{oid, fc, b}, err
	case time.Time:
		oid, fc, b, err := r.EncodeByKind("time.Time", x)
		return Param{oid, fc, b}, err
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return r.inspectArray(rv)
	}

	return Param{}, errors.NotSupportedf("unsupported host type %T", v).WithField("value", v).Err()
}

func toInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	}
	return 0
}

// inspectArray implements the array inspector: empty arrays default to
// TEXT[] binary, integer arrays pick the narrowest containing OID,
// other element types infer from the first non-null element, nested
// slices (e.g. [][]int) are flattened into a single multi-dimensional
// binary envelope, and mismatched element encodings or raggedness
// fail before any wire bytes are written (§4.4, §7).
func (r *Registry) inspectArray(rv reflect.Value) (Param, error) {
	if rv.Len() == 0 {
		empty, err := EncodeArrayBinary(nil, OIDText, nil)
		if err != nil {
			return Param{}, err
		}
		return Param{OID: OIDTextArray, Format: FormatBinary, Bytes: empty}, nil
	}

	dims, elemOID, flat, err := r.flattenArray(rv)
	if err != nil {
		return Param{}, err
	}
	arrOID, ok := ArrayOIDFor(elemOID)
	if !ok {
		return Param{}, errors.NotSupportedf("no array OID for element OID %d", elemOID).Err()
	}
	body, err := EncodeArrayBinary(dims, elemOID, flat)
	if err != nil {
		return Param{}, err
	}
	return Param{OID: arrOID, Format: FormatBinary, Bytes: body}, nil
}

// flattenArray walks rv depth-first, accumulating one ArrayDim per
// nesting level and the row-major encoded leaf bytes. Every sub-slice
// at a given level must share the same length (no ragged arrays) and
// the leaf element OID must be uniform across the whole tree; []byte
// is always treated as a scalar bytea leaf, never as a nesting level.
func (r *Registry) flattenArray(rv reflect.Value) ([]ArrayDim, OID, [][]byte, error) {
	n := rv.Len()
	dim := ArrayDim{Length: int32(n), LowerBound: 1}

	if isNestedArrayElem(rv) {
		var dims []ArrayDim
		var elemOID OID
		var flat [][]byte
		for i := 0; i < n; i++ {
			subDims, subOID, subFlat, err := r.flattenArray(rv.Index(i))
			if err != nil {
				return nil, 0, nil, err
			}
			switch {
			case i == 0:
				dims, elemOID = subDims, subOID
			case !sameDims(dims, subDims):
				return nil, 0, nil, errors.Programmingf("cumulus: ragged array at dimension %d", i).Err()
			case subOID != elemOID:
				return nil, 0, nil, errors.Programmingf("cumulus: array elements not homogeneous: sub-array %d has element OID %d, expected %d", i, subOID, elemOID).Err()
			}
			flat = append(flat, subFlat...)
		}
		return append([]ArrayDim{dim}, dims...), elemOID, flat, nil
	}

	elemOID, encoded, err := r.encodeLeafElements(rv, n)
	if err != nil {
		return nil, 0, nil, err
	}
	return []ArrayDim{dim}, elemOID, encoded, nil
}

// isNestedArrayElem reports whether rv's elements are themselves
// slices or arrays that should be flattened into another dimension,
// rather than encoded as scalar leaves.
func isNestedArrayElem(rv reflect.Value) bool {
	elemType := rv.Type().Elem()
	if elemType == reflect.TypeOf([]byte(nil)) {
		return false
	}
	return elemType.Kind() == reflect.Slice || elemType.Kind() == reflect.Array
}

func sameDims(a, b []ArrayDim) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// encodeLeafElements inspects the n scalar elements at an array's
// innermost level, picking the narrowest integer OID or inferring from
// the first non-nil element, and returns their encoded bytes.
func (r *Registry) encodeLeafElements(rv reflect.Value, n int) (OID, [][]byte, error) {
	if n == 0 {
		return OIDText, nil, nil
	}

	elems := make([]interface{}, n)
	for i := 0; i < n; i++ {
		elems[i] = rv.Index(i).Interface()
	}

	elemOID, isInt := r.integerArrayOID(elems)
	if !isInt {
		var firstNonNil interface{}
		for _, e := range elems {
			if e != nil {
				firstNonNil = e
				break
			}
		}
		if firstNonNil == nil {
			return OIDText, make([][]byte, n), nil
		}
		sample, err := r.Inspect(firstNonNil)
		if err != nil {
			return 0, nil, err
		}
		if _, ok := ArrayOIDFor(sample.OID); !ok {
			return 0, nil, errors.NotSupportedf("no array OID for element OID %d", sample.OID).Err()
		}
		elemOID = sample.OID
	}

	encoded := make([][]byte, n)
	for i, e := range elems {
		if e == nil {
			continue
		}
		if isInt {
			_, _, encoded[i] = r.EncodeInteger(toInt64(e))
			continue
		}
		p, err := r.Inspect(e)
		if err != nil {
			return 0, nil, err
		}
		if p.OID != elemOID {
			return 0, nil, errors.Programmingf("array elements not homogeneous: element %d has OID %d, expected %d", i, p.OID, elemOID).Err()
		}
		encoded[i] = p.Bytes
	}
	return elemOID, encoded, nil
}

// integerArrayOID reports whether every non-nil element is an integer
// type and, if so, the narrowest OID (INT2/INT4/INT8) containing all of
// them.
func (r *Registry) integerArrayOID(elems []interface{}) (OID, bool) {
	widest := OIDInt2
	any := false
	for _, e := range elems {
		if e == nil {
			continue
		}
		rv := reflect.ValueOf(e)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			any = true
			v := toInt64(e)
			oid, _, _ := r.EncodeInteger(v)
			if oidWidth(oid) > oidWidth(widest) {
				widest = oid
			}
		default:
			return 0, false
		}
	}
	if !any {
		return 0, false
	}
	return widest, true
}

func oidWidth(oid OID) int {
	switch oid {
	case OIDInt2:
		return 2
	case OIDInt4:
		return 4
	case OIDInt8:
		return 8
	}
	return 0
}


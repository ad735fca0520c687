// Package codec implements the decoder and encoder registries that
// translate between wire-format column values and Go host values, keyed
// by type OID (decoding) and by host Go type (encoding).
package codec

import "github.com/jackc/pgx/v5/pgtype"

// OID is a PostgreSQL-derived type object identifier, carried in
// RowDescription and ParameterDescription messages.
type OID uint32

// Built-in type OIDs the driver recognizes, sourced from pgtype's own
// constants rather than re-declared magic numbers: these are the same
// well-known OIDs every wire-compatible server assigns to its base
// types, and pgtype is the corpus's canonical source for them.
const (
	OIDBool        OID = pgtype.BoolOID
	OIDBytea       OID = pgtype.ByteaOID
	OIDChar        OID = pgtype.QCharOID
	OIDName        OID = pgtype.NameOID
	OIDInt8        OID = pgtype.Int8OID
	OIDInt2        OID = pgtype.Int2OID
	OIDInt2Vector  OID = pgtype.Int2vectorOID
	OIDInt4        OID = pgtype.Int4OID
	OIDRegproc     OID = pgtype.RegprocOID
	OIDText        OID = pgtype.TextOID
	OIDOid         OID = pgtype.OIDOID
	OIDXML         OID = pgtype.XMLOID
	OIDJSON        OID = pgtype.JSONOID
	OIDXid         OID = pgtype.XIDOID
	OIDFloat4      OID = pgtype.Float4OID
	OIDFloat8      OID = pgtype.Float8OID
	OIDUnknown     OID = pgtype.UnknownOID
	OIDBpchar      OID = pgtype.BPCharOID
	OIDVarchar     OID = pgtype.VarcharOID
	OIDDate        OID = pgtype.DateOID
	OIDTime        OID = pgtype.TimeOID
	OIDTimestamp   OID = pgtype.TimestampOID
	OIDTimestampTz OID = pgtype.TimestamptzOID
	OIDInterval    OID = pgtype.IntervalOID
	OIDTimeTz      OID = pgtype.TimetzOID
	OIDNumeric     OID = pgtype.NumericOID
	OIDUUID        OID = pgtype.UUIDOID
	OIDJSONB       OID = pgtype.JSONBOID

	// Array OIDs, derived from the element type's OID per convention
	// (not computable by formula; pgtype lists them explicitly as the
	// wire protocol assigns them).
	OIDBoolArray      OID = pgtype.BoolArrayOID
	OIDInt2Array      OID = pgtype.Int2ArrayOID
	OIDInt4Array      OID = pgtype.Int4ArrayOID
	OIDTextArray      OID = pgtype.TextArrayOID
	OIDVarcharArray   OID = pgtype.VarcharArrayOID
	OIDInt8Array      OID = pgtype.Int8ArrayOID
	OIDFloat4Array    OID = pgtype.Float4ArrayOID
	OIDFloat8Array    OID = pgtype.Float8ArrayOID
	OIDDateArray      OID = pgtype.DateArrayOID
	OIDTimestampArray OID = pgtype.TimestampArrayOID
	OIDNumericArray   OID = pgtype.NumericArrayOID
)

// FormatCode selects whether a value is transferred as text or binary.
type FormatCode int16

const (
	FormatText   FormatCode = 0
	FormatBinary FormatCode = 1
)

// arrayElementOID maps an array type OID to its element type OID, used
// when decoding ArrayHeader.ElementOID is insufficient (e.g. choosing an
// encoder for a Go slice before a wire OID is known).
var arrayElementOID = map[OID]OID{
	OIDBoolArray:      OIDBool,
	OIDInt2Array:      OIDInt2,
	OIDInt4Array:      OIDInt4,
	OIDInt8Array:      OIDInt8,
	OIDTextArray:      OIDText,
	OIDVarcharArray:   OIDVarchar,
	OIDFloat4Array:    OIDFloat4,
	OIDFloat8Array:    OIDFloat8,
	OIDDateArray:      OIDDate,
	OIDTimestampArray: OIDTimestamp,
	OIDNumericArray:   OIDNumeric,
}

// elementArrayOID is the inverse of arrayElementOID, used when encoding
// a homogeneous Go slice: the element OID selects the array's own OID.
var elementArrayOID = map[OID]OID{
	OIDBool:      OIDBoolArray,
	OIDInt2:      OIDInt2Array,
	OIDInt4:      OIDInt4Array,
	OIDInt8:      OIDInt8Array,
	OIDText:      OIDTextArray,
	OIDVarchar:   OIDVarcharArray,
	OIDFloat4:    OIDFloat4Array,
	OIDFloat8:    OIDFloat8Array,
	OIDDate:      OIDDateArray,
	OIDTimestamp: OIDTimestampArray,
	OIDNumeric:   OIDNumericArray,
}

// ArrayOIDFor returns the array type OID for a scalar element OID, and
// false if no array variant is known.
func ArrayOIDFor(elem OID) (OID, bool) {
	oid, ok := elementArrayOID[elem]
	return oid, ok
}

// ElementOIDFor returns the scalar element OID for an array type OID,
// and false if oid is not a recognized array type.
func ElementOIDFor(oid OID) (OID, bool) {
	elem, ok := arrayElementOID[oid]
	return elem, ok
}

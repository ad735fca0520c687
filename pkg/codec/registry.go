package codec

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// ProtocolLevel selects which wire protocol extensions are in effect,
// mirroring client_protocol_version negotiation (§4.6).
type ProtocolLevel int

const (
	ProtocolBase ProtocolLevel = iota
	ProtocolExtendedResultMetadata
	ProtocolBinary
)

// Decoder turns wire bytes for a column value into a Go value. buf is
// nil for SQL NULL. typeMod carries the type modifier, meaningful only
// for NUMERIC.
type Decoder func(buf []byte, typeMod int32) (interface{}, error)

// Encoder turns a host value into wire bytes, or nil for SQL NULL.
type Encoder func(value interface{}) ([]byte, error)

// decoderEntry pairs a decoder with the format code it expects.
type decoderEntry struct {
	format  FormatCode
	decoder Decoder
}

// encoderEntry pairs an OID, format code, and encoder for one host type.
type encoderEntry struct {
	oid     OID
	format  FormatCode
	encoder Encoder
}

// Registry is the connection's pair of codec tables: decoders keyed by
// result column OID, encoders keyed by host Go type. It is rebuilt
// wholesale whenever protocol negotiation changes (§9: "a single
// function that rebuilds an immutable registry").
type Registry struct {
	protocol ProtocolLevel
	decoders map[OID]decoderEntry
	byKind   map[string]encoderEntry
}

// NewRegistry builds a Registry bound to the given protocol level.
func NewRegistry(level ProtocolLevel) *Registry {
	r := &Registry{protocol: level}
	r.build()
	return r
}

// Protocol reports the level this registry was built for.
func (r *Registry) Protocol() ProtocolLevel {
	return r.protocol
}

// Rebind replaces the registry's tables for a new protocol level, used
// when ParameterStatus reports a negotiated server_protocol_version
// different from what was requested (§4.6).
func (r *Registry) Rebind(level ProtocolLevel) {
	r.protocol = level
	r.build()
}

func (r *Registry) binary() bool {
	return r.protocol == ProtocolBinary
}

func (r *Registry) build() {
	r.decoders = make(map[OID]decoderEntry)
	r.byKind = make(map[string]encoderEntry)

	textDecoder := func(parse func(string) (interface{}, error)) Decoder {
		return func(buf []byte, _ int32) (interface{}, error) {
			if buf == nil {
				return nil, nil
			}
			return parse(string(buf))
		}
	}

	r.decoders[OIDBool] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
		return s == "t", nil
	})}
	r.decoders[OIDInt2] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
		v, err := strconv.ParseInt(s, 10, 16)
		return int16(v), err
	})}
	r.decoders[OIDInt4] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
		v, err := strconv.ParseInt(s, 10, 32)
		return int32(v), err
	})}
	r.decoders[OIDInt8] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
		return strconv.ParseInt(s, 10, 64)
	})}
	r.decoders[OIDFloat4] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
		v, err := strconv.ParseFloat(s, 32)
		return float32(v), err
	})}
	r.decoders[OIDFloat8] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
		return strconv.ParseFloat(s, 64)
	})}
	r.decoders[OIDText] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) { return s, nil })}
	r.decoders[OIDVarchar] = r.decoders[OIDText]
	r.decoders[OIDBpchar] = r.decoders[OIDText]
	r.decoders[OIDName] = r.decoders[OIDText]
	r.decoders[OIDJSON] = r.decoders[OIDText]
	r.decoders[OIDJSONB] = r.decoders[OIDText]
	r.decoders[OIDUUID] = r.decoders[OIDText]
	r.decoders[OIDXML] = r.decoders[OIDText]

	// VARBYTE: text under the text protocol, hex-decoded text under
	// binary (§4.2).
	r.decoders[OIDBytea] = decoderEntry{FormatText, func(buf []byte, _ int32) (interface{}, error) {
		if buf == nil {
			return nil, nil
		}
		s := string(buf)
		if len(s) >= 2 && s[0:2] == `\x` {
			return hex.DecodeString(s[2:])
		}
		return []byte(s), nil
	}}

	r.decoders[OIDNumeric] = decoderEntry{FormatText, func(buf []byte, _ int32) (interface{}, error) {
		if buf == nil {
			return nil, nil
		}
		return DecodeNumericText(string(buf))
	}}

	if r.binary() {
		r.decoders[OIDNumeric] = decoderEntry{FormatBinary, func(buf []byte, _ int32) (interface{}, error) {
			if buf == nil {
				return nil, nil
			}
			return DecodeNumericBinary(buf)
		}}
		r.decoders[OIDDate] = decoderEntry{FormatBinary, func(buf []byte, _ int32) (interface{}, error) {
			if buf == nil {
				return nil, nil
			}
			return DecodeDateBinary(buf)
		}}
		r.decoders[OIDTime] = decoderEntry{FormatBinary, func(buf []byte, _ int32) (interface{}, error) {
			if buf == nil {
				return nil, nil
			}
			return DecodeTimeBinary(buf)
		}}
		r.decoders[OIDTimeTz] = decoderEntry{FormatBinary, func(buf []byte, _ int32) (interface{}, error) {
			if buf == nil {
				return nil, nil
			}
			return DecodeTimeTzBinary(buf)
		}}
		r.decoders[OIDTimestamp] = decoderEntry{FormatBinary, func(buf []byte, _ int32) (interface{}, error) {
			if buf == nil {
				return nil, nil
			}
			return DecodeTimestampBinary(buf)
		}}
		r.decoders[OIDTimestampTz] = decoderEntry{FormatBinary, func(buf []byte, _ int32) (interface{}, error) {
			if buf == nil {
				return nil, nil
			}
			return DecodeTimestampTzBinary(buf)
		}}
		for _, arrOID := range []OID{OIDBoolArray, OIDInt2Array, OIDInt4Array, OIDInt8Array,
			OIDTextArray, OIDVarcharArray, OIDFloat4Array, OIDFloat8Array, OIDDateArray,
			OIDTimestampArray, OIDNumericArray} {
			r.decoders[arrOID] = decoderEntry{FormatBinary, r.arrayDecoder()}
		}
	} else {
		r.decoders[OIDDate] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
			return civil.ParseDate(s)
		})}
		r.decoders[OIDTime] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
			return civil.ParseTime(s)
		})}
		r.decoders[OIDTimestamp] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
			t, err := time.Parse("2006-01-02 15:04:05.999999", s)
			if err != nil {
				return nil, err
			}
			return civil.DateTimeOf(t), nil
		})}
		r.decoders[OIDTimestampTz] = decoderEntry{FormatText, textDecoder(func(s string) (interface{}, error) {
			return time.Parse("2006-01-02 15:04:05.999999-07", s)
		})}
	}

	// Encoders by host Go type discriminant (§4.4 step 1).
	r.byKind["bool"] = encoderEntry{OIDBool, FormatText, func(v interface{}) ([]byte, error) {
		if v.(bool) {
			return []byte("t"), nil
		}
		return []byte("f"), nil
	}}
	r.byKind["string"] = encoderEntry{OIDText, FormatText, func(v interface{}) ([]byte, error) {
		return []byte(v.(string)), nil
	}}
	r.byKind["[]byte"] = encoderEntry{OIDBytea, FormatText, func(v interface{}) ([]byte, error) {
		return []byte(`\x` + hex.EncodeToString(v.([]byte))), nil
	}}
	r.byKind["float32"] = encoderEntry{OIDFloat4, FormatText, func(v interface{}) ([]byte, error) {
		return []byte(strconv.FormatFloat(float64(v.(float32)), 'g', -1, 32)), nil
	}}
	r.byKind["float64"] = encoderEntry{OIDFloat8, FormatText, func(v interface{}) ([]byte, error) {
		return []byte(strconv.FormatFloat(v.(float64), 'g', -1, 64)), nil
	}}
	r.byKind["decimal"] = encoderEntry{OIDNumeric, FormatText, func(v interface{}) ([]byte, error) {
		return []byte(EncodeNumericText(v.(decimal.Decimal))), nil
	}}

	if r.binary() {
		r.byKind["decimal"] = encoderEntry{OIDNumeric, FormatBinary, func(v interface{}) ([]byte, error) {
			return EncodeNumericBinary(v.(decimal.Decimal)), nil
		}}
		r.byKind["civil.Date"] = encoderEntry{OIDDate, FormatBinary, func(v interface{}) ([]byte, error) {
			return EncodeDateBinary(v.(civil.Date)), nil
		}}
		r.byKind["civil.DateTime"] = encoderEntry{OIDTimestamp, FormatBinary, func(v interface{}) ([]byte, error) {
			return EncodeTimestampBinary(v.(civil.DateTime)), nil
		}}
		r.byKind["time.Time"] = encoderEntry{OIDTimestampTz, FormatBinary, func(v interface{}) ([]byte, error) {
			return EncodeTimestampTzBinary(v.(time.Time)), nil
		}}
	} else {
		r.byKind["civil.Date"] = encoderEntry{OIDDate, FormatText, func(v interface{}) ([]byte, error) {
			return []byte(v.(civil.Date).String()), nil
		}}
		r.byKind["time.Time"] = encoderEntry{OIDTimestampTz, FormatText, func(v interface{}) ([]byte, error) {
			return []byte(v.(time.Time).Format("2006-01-02 15:04:05.999999-07")), nil
		}}
	}
}

// arrayDecoder builds a Decoder that unpacks the binary array envelope
// into a []interface{} using the element OID's own decoder.
func (r *Registry) arrayDecoder() Decoder {
	return func(buf []byte, _ int32) (interface{}, error) {
		if buf == nil {
			return nil, nil
		}
		header, elements, err := DecodeArrayBinary(buf)
		if err != nil {
			return nil, err
		}
		elemEntry, ok := r.decoders[header.ElementOID]
		if !ok {
			return nil, fmt.Errorf("codec: no decoder registered for array element OID %d", header.ElementOID)
		}
		out := make([]interface{}, len(elements))
		for i, raw := range elements {
			v, err := elemEntry.decoder(raw, -1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

// Decode looks up the decoder for oid and applies it to buf.
func (r *Registry) Decode(oid OID, buf []byte, typeMod int32) (interface{}, error) {
	entry, ok := r.decoders[oid]
	if !ok {
		return nil, fmt.Errorf("codec: no decoder registered for OID %d", oid)
	}
	return entry.decoder(buf, typeMod)
}

// FormatFor reports the format code the registry expects for oid.
func (r *Registry) FormatFor(oid OID) FormatCode {
	if entry, ok := r.decoders[oid]; ok {
		return entry.format
	}
	return FormatText
}

// integer magnitude bounds for width selection (§8: strictly exclusive,
// so SMALLINT holds -32767..32767 and INTEGER -2147483647..2147483647).
const (
	minInt16 = math.MinInt16
	maxInt16 = math.MaxInt16 + 1
	minInt32 = math.MinInt32
	maxInt32 = math.MaxInt32 + 1
)

// EncodeInteger selects SMALLINT/INTEGER/BIGINT by magnitude and
// returns the OID, format code, and wire bytes for v. v is an int64, so
// NUMERIC is never selected here.
func (r *Registry) EncodeInteger(v int64) (OID, FormatCode, []byte) {
	switch {
	case v > minInt16 && v < maxInt16:
		return OIDInt2, FormatText, []byte(strconv.FormatInt(v, 10))
	case v > minInt32 && v < maxInt32:
		return OIDInt4, FormatText, []byte(strconv.FormatInt(v, 10))
	default:
		return OIDInt8, FormatText, []byte(strconv.FormatInt(v, 10))
	}
}

// EncodeByKind looks up the encoder registered for kind (a discriminant
// string such as "bool", "string", "decimal") and applies it.
func (r *Registry) EncodeByKind(kind string, v interface{}) (OID, FormatCode, []byte, error) {
	entry, ok := r.byKind[kind]
	if !ok {
		return 0, 0, nil, fmt.Errorf("codec: no encoder registered for host type %q", kind)
	}
	b, err := entry.encoder(v)
	if err != nil {
		return 0, 0, nil, err
	}
	return entry.oid, entry.format, b, nil
}

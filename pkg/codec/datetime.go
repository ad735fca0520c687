package codec

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"
)

// epoch is the wire protocol's zero point for DATE/TIMESTAMP binary
// values: midnight, 2000-01-01 UTC.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// DecodeDateBinary parses DATE's binary format: a 4-byte signed day
// count relative to epoch.
func DecodeDateBinary(buf []byte) (civil.Date, error) {
	if len(buf) != 4 {
		return civil.Date{}, fmt.Errorf("codec: date binary payload must be 4 bytes, got %d", len(buf))
	}
	days := int32(beUint32(buf))
	t := epoch.AddDate(0, 0, int(days))
	return civil.DateOf(t), nil
}

// EncodeDateBinary renders d as DATE's binary format.
func EncodeDateBinary(d civil.Date) []byte {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	days := int32(t.Sub(epoch).Hours() / 24)
	out := make([]byte, 4)
	putBeUint32(out, uint32(days))
	return out
}

// DecodeTimeBinary parses TIME's binary format: an 8-byte signed count
// of microseconds since midnight.
func DecodeTimeBinary(buf []byte) (civil.Time, error) {
	if len(buf) != 8 {
		return civil.Time{}, fmt.Errorf("codec: time binary payload must be 8 bytes, got %d", len(buf))
	}
	micros := int64(beUint64(buf))
	return microsToCivilTime(micros), nil
}

// EncodeTimeBinary renders t as TIME's binary format.
func EncodeTimeBinary(t civil.Time) []byte {
	micros := civilTimeToMicros(t)
	out := make([]byte, 8)
	putBeUint64(out, uint64(micros))
	return out
}

// TimeTz pairs a time-of-day with a UTC zone offset in seconds, as
// carried by TIMETZ.
type TimeTz struct {
	Time       civil.Time
	ZoneOffset int32 // seconds east of UTC
}

// DecodeTimeTzBinary parses TIMETZ's binary format: an 8-byte
// microseconds-since-midnight value followed by a 4-byte zone offset
// in seconds (the wire convention stores seconds *west* of UTC,
// negated here to the more common seconds-east convention).
func DecodeTimeTzBinary(buf []byte) (TimeTz, error) {
	if len(buf) != 12 {
		return TimeTz{}, fmt.Errorf("codec: timetz binary payload must be 12 bytes, got %d", len(buf))
	}
	micros := int64(beUint64(buf[0:8]))
	zoneWest := int32(beUint32(buf[8:12]))
	return TimeTz{Time: microsToCivilTime(micros), ZoneOffset: -zoneWest}, nil
}

// EncodeTimeTzBinary renders tz as TIMETZ's binary format.
func EncodeTimeTzBinary(tz TimeTz) []byte {
	out := make([]byte, 12)
	putBeUint64(out[0:8], uint64(civilTimeToMicros(tz.Time)))
	putBeUint32(out[8:12], uint32(-tz.ZoneOffset))
	return out
}

// DecodeTimestampBinary parses TIMESTAMP's binary format: an 8-byte
// signed count of microseconds since epoch, with no zone.
func DecodeTimestampBinary(buf []byte) (civil.DateTime, error) {
	if len(buf) != 8 {
		return civil.DateTime{}, fmt.Errorf("codec: timestamp binary payload must be 8 bytes, got %d", len(buf))
	}
	micros := int64(beUint64(buf))
	t := epoch.Add(time.Duration(micros) * time.Microsecond)
	return civil.DateTimeOf(t), nil
}

// EncodeTimestampBinary renders dt as TIMESTAMP's binary format.
func EncodeTimestampBinary(dt civil.DateTime) []byte {
	t := time.Date(dt.Date.Year, dt.Date.Month, dt.Date.Day,
		dt.Time.Hour, dt.Time.Minute, dt.Time.Second, dt.Time.Nanosecond, time.UTC)
	micros := t.Sub(epoch).Microseconds()
	out := make([]byte, 8)
	putBeUint64(out, uint64(micros))
	return out
}

// DecodeTimestampTzBinary parses TIMESTAMPTZ's binary format: identical
// wire shape to TIMESTAMP, interpreted in UTC.
func DecodeTimestampTzBinary(buf []byte) (time.Time, error) {
	if len(buf) != 8 {
		return time.Time{}, fmt.Errorf("codec: timestamptz binary payload must be 8 bytes, got %d", len(buf))
	}
	micros := int64(beUint64(buf))
	return epoch.Add(time.Duration(micros) * time.Microsecond), nil
}

// EncodeTimestampTzBinary renders t (converted to UTC) as TIMESTAMPTZ's
// binary format.
func EncodeTimestampTzBinary(t time.Time) []byte {
	micros := t.UTC().Sub(epoch).Microseconds()
	out := make([]byte, 8)
	putBeUint64(out, uint64(micros))
	return out
}

func microsToCivilTime(micros int64) civil.Time {
	d := time.Duration(micros) * time.Microsecond
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return civil.Time{Hour: int(h), Minute: int(m), Second: int(s), Nanosecond: int(d)}
}

func civilTimeToMicros(t civil.Time) int64 {
	d := time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)*time.Nanosecond
	return d.Microseconds()
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putBeUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

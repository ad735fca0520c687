package codec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NUMERIC binary sign values, per the PostgreSQL wire format.
const (
	numericPositive = 0x0000
	numericNegative = 0x4000
	numericNaN      = 0xC000
)

const numericBase = 10000

// DecodeNumericBinary parses the base-10000 digit sequence used by
// NUMERIC's binary transfer format: ndigits, weight, sign, dscale, then
// ndigits big-endian uint16 digits.
func DecodeNumericBinary(buf []byte) (decimal.Decimal, error) {
	if len(buf) < 8 {
		return decimal.Decimal{}, fmt.Errorf("codec: numeric binary payload too short: %d bytes", len(buf))
	}
	ndigits := int(beUint16(buf[0:2]))
	weight := int(int16(beUint16(buf[2:4])))
	sign := beUint16(buf[4:6])
	dscale := int(beUint16(buf[6:8]))

	if sign == numericNaN {
		return decimal.Decimal{}, fmt.Errorf("codec: NaN numeric not representable")
	}
	if len(buf) < 8+2*ndigits {
		return decimal.Decimal{}, fmt.Errorf("codec: numeric binary payload truncated")
	}

	digits := make([]int64, ndigits)
	for i := 0; i < ndigits; i++ {
		digits[i] = int64(beUint16(buf[8+2*i : 10+2*i]))
	}

	// Each digit represents a base-10000 group positioned at
	// 10000^(weight-i) relative to the decimal point.
	value := new(big.Int)
	base := big.NewInt(numericBase)
	for _, d := range digits {
		value.Mul(value, base)
		value.Add(value, big.NewInt(d))
	}

	// value currently represents the digits read as an integer; its
	// implied exponent is (weight - (ndigits-1)) groups of 4 decimal
	// digits, i.e. a power-of-10 shift of 4*(weight-(ndigits-1)).
	exp := 4 * (weight - (ndigits - 1))
	result := decimal.NewFromBigInt(value, int32(exp))
	if sign == numericNegative {
		result = result.Neg()
	}
	// Apply the declared display scale without changing the value.
	return result.Truncate(int32(dscale)).Round(int32(dscale)), nil
}

// EncodeNumericBinary renders d in NUMERIC's binary transfer format.
func EncodeNumericBinary(d decimal.Decimal) []byte {
	sign := uint16(numericPositive)
	if d.Sign() < 0 {
		sign = numericNegative
		d = d.Neg()
	}

	dscale := uint16(0)
	if d.Exponent() < 0 {
		dscale = uint16(-d.Exponent())
	}

	// Render the unscaled digit string and split into base-10000 groups
	// aligned on the decimal point, padding to a multiple of 4 digits
	// on both sides.
	coeff := d.Coefficient().String()
	fracDigits := int(dscale)
	intDigits := len(coeff) - fracDigits
	if intDigits < 0 {
		coeff = strings.Repeat("0", -intDigits) + coeff
		intDigits = 0
	}

	leadPad := (4 - intDigits%4) % 4
	trailPad := (4 - fracDigits%4) % 4
	padded := strings.Repeat("0", leadPad) + coeff + strings.Repeat("0", trailPad)

	ngroups := len(padded) / 4
	weight := (leadPad+intDigits)/4 - 1

	digits := make([]uint16, 0, ngroups)
	allZero := true
	for i := 0; i < ngroups; i++ {
		group := padded[i*4 : i*4+4]
		var v int
		fmt.Sscanf(group, "%d", &v)
		if v != 0 {
			allZero = false
		}
		digits = append(digits, uint16(v))
	}

	// Trim leading/trailing zero groups; a fully-zero value has no
	// digits and weight 0.
	start, end := 0, len(digits)
	for start < end && digits[start] == 0 {
		start++
		weight--
	}
	for end > start && digits[end-1] == 0 {
		end--
	}
	digits = digits[start:end]
	if allZero {
		weight = 0
		sign = numericPositive
	}

	out := make([]byte, 8+2*len(digits))
	putBeUint16(out[0:2], uint16(len(digits)))
	putBeUint16(out[2:4], uint16(int16(weight)))
	putBeUint16(out[4:6], sign)
	putBeUint16(out[6:8], dscale)
	for i, dig := range digits {
		putBeUint16(out[8+2*i:10+2*i], dig)
	}
	return out
}

// DecodeNumericText parses NUMERIC's text transfer format, a plain
// decimal literal.
func DecodeNumericText(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// EncodeNumericText renders d as NUMERIC's text transfer format.
func EncodeNumericText(d decimal.Decimal) string {
	return d.String()
}

func beUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func putBeUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

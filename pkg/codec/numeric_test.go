package codec

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNumericBinaryRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "-1", "123.456", "-123.456", "1000000", "0.0001", "99999.99999"}
	for _, s := range cases {
		d, err := decimal.NewFromString(s)
		if err != nil {
			t.Fatalf("NewFromString(%q): %v", s, err)
		}
		encoded := EncodeNumericBinary(d)
		decoded, err := DecodeNumericBinary(encoded)
		if err != nil {
			t.Fatalf("DecodeNumericBinary(%q): %v", s, err)
		}
		if !decoded.Equal(d) {
			t.Fatalf("round trip mismatch for %q: got %s", s, decoded.String())
		}
	}
}

func TestNumericTextRoundTrip(t *testing.T) {
	d := decimal.RequireFromString("42.50")
	s := EncodeNumericText(d)
	decoded, err := DecodeNumericText(s)
	if err != nil {
		t.Fatalf("DecodeNumericText: %v", err)
	}
	if !decoded.Equal(d) {
		t.Fatalf("got %s, want %s", decoded, d)
	}
}

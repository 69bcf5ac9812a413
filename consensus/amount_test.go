package consensus

import (
	"errors"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   Amount
		want string
	}{
		{0, "0.00000000"},
		{1, "0.00000001"},
		{100, "0.00000100"},
		{COIN, "1.00000000"},
		{10 * COIN, "10.00000000"},
		{1000 * COIN, "1,000.00000000"},
		{1234567 * COIN, "1,234,567.00000000"},
		{MAX_MONEY, "100,000,000,000.00000000"},
	}
	for _, c := range cases {
		if got := c.in.String(); got != c.want {
			t.Errorf("Amount(%d).String() = %q, want %q", uint64(c.in), got, c.want)
		}
	}
}

func TestParseAmountRoundTrip(t *testing.T) {
	for _, a := range []Amount{0, 1, 99, COIN, COIN + 1, 1000*COIN + 12345678, BLOCK_REWARD, MAX_MONEY} {
		got, err := ParseAmount(a.String())
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", a.String(), err)
		}
		if got != a {
			t.Fatalf("round trip of %d gave %d", uint64(a), uint64(got))
		}
	}
}

func TestParseAmountRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "1", "1.", "1.0", "1.000000000", ".00000000", "x.00000000"} {
		if _, err := ParseAmount(s); err == nil {
			t.Errorf("ParseAmount(%q) unexpectedly succeeded", s)
		}
	}
}

func TestNewAmountBounds(t *testing.T) {
	if _, err := NewAmount(uint64(MAX_MONEY)); err != nil {
		t.Fatalf("MAX_MONEY should be representable: %v", err)
	}
	_, err := NewAmount(uint64(MAX_MONEY) + 1)
	var tooLarge *MonetaryAmountTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("want MonetaryAmountTooLargeError, got %v", err)
	}
	if tooLarge.Value != uint64(MAX_MONEY)+1 {
		t.Fatalf("error value = %d", tooLarge.Value)
	}
}

package consensus

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a non-negative count of minimal monetary units. A single
// stored or transmitted amount never exceeds MAX_MONEY; sums of amounts
// (wallet balances) may, and are carried as plain uint64 instead.
type Amount uint64

const (
	COIN         Amount = 1_0000_0000
	BLOCK_REWARD Amount = 10 * COIN
	MAX_MONEY    Amount = 100_000_000_000 * COIN
)

// NewAmount validates u against MAX_MONEY.
func NewAmount(u uint64) (Amount, error) {
	if u > uint64(MAX_MONEY) {
		return 0, &MonetaryAmountTooLargeError{Value: u}
	}
	return Amount(u), nil
}

// String renders the amount as a decimal coin value: the integral part
// grouped with commas every three digits, a dot, and exactly eight
// fractional digits, e.g. "1,234,567.00000000".
func (a Amount) String() string {
	integral := strconv.FormatUint(uint64(a)/uint64(COIN), 10)
	fractional := uint64(a) % uint64(COIN)

	var b strings.Builder
	for i := 0; i < len(integral); i++ {
		if i > 0 && (len(integral)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(integral[i])
	}
	fmt.Fprintf(&b, ".%08d", fractional)
	return b.String()
}

// ParseAmount reverses String. It accepts the grouped form with or
// without separators; the fractional part must be exactly eight digits.
func ParseAmount(s string) (Amount, error) {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0, fmt.Errorf("amount %q: missing fractional part", s)
	}
	integral := strings.ReplaceAll(s[:dot], ",", "")
	fractional := s[dot+1:]
	if integral == "" || len(fractional) != 8 {
		return 0, fmt.Errorf("amount %q: want <integral>.<8 digits>", s)
	}
	whole, err := strconv.ParseUint(integral, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	frac, err := strconv.ParseUint(fractional, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	if whole > uint64(MAX_MONEY)/uint64(COIN) {
		// Above MAX_MONEY, and the unit count may not fit in 64 bits;
		// report the saturated value.
		return 0, &MonetaryAmountTooLargeError{Value: ^uint64(0)}
	}
	return NewAmount(whole*uint64(COIN) + frac)
}

package consensus

import "fmt"

// MonetaryAmountTooLargeError reports an attempt to construct an Amount
// exceeding MAX_MONEY.
type MonetaryAmountTooLargeError struct {
	Value uint64
}

func (e *MonetaryAmountTooLargeError) Error() string {
	return fmt.Sprintf("the monetary amount is too large: amount %d exceeds maximum representable amount %d",
		e.Value, uint64(MAX_MONEY))
}

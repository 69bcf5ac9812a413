package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"simplecoin.dev/node/consensus"
)

// InvalidTxnError is a schema-level transaction insertion failure. It
// is internal to the store: callers observe it re-wrapped as either
// InvalidReceivedBlockError or InvalidTentativeTxnError.
type InvalidTxnError struct {
	Reason string
}

func (e *InvalidTxnError) Error() string {
	return "transaction is invalid: " + e.Reason
}

// InvalidReceivedBlockError rejects a whole received block.
type InvalidReceivedBlockError struct {
	Reason string
}

func (e *InvalidReceivedBlockError) Error() string {
	return "received block is invalid: " + e.Reason
}

// InvalidTentativeTxnError carries one rejection reason per transaction
// hash so a caller can correlate which of the submitted or de-orphaned
// transactions failed adoption.
type InvalidTentativeTxnError struct {
	Rejected map[consensus.Hash]string
}

func (e *InvalidTentativeTxnError) Error() string {
	parts := make([]string, 0, len(e.Rejected))
	for h, reason := range e.Rejected {
		parts = append(parts, fmt.Sprintf("%s: %s", h.Hex(), reason))
	}
	sort.Strings(parts)
	return "the tentative transaction is invalid: {" + strings.Join(parts, "; ") + "}"
}

// InsufficientBalanceError reports that the spendable UTXO of a wallet
// could not cover a requested transfer.
type InsufficientBalanceError struct {
	Requested consensus.Amount
	Available consensus.Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s has %s", e.Requested, e.Available)
}

func singleRejection(h consensus.Hash, reason string) *InvalidTentativeTxnError {
	return &InvalidTentativeTxnError{Rejected: map[consensus.Hash]string{h: reason}}
}

// reportIntegrity translates an engine constraint violation into
// InvalidTxnError named after the extended result code; every other
// error passes through unchanged.
func reportIntegrity(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return &InvalidTxnError{Reason: se.ExtendedCode.Error()}
	}
	return err
}

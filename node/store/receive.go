package store

import (
	"database/sql"
	"errors"

	"simplecoin.dev/node/consensus"
)

// insertTransactionRaw inserts the transactions row and, when the row
// was actually inserted rather than ignored as a duplicate, its
// outputs and inputs in order. Integrity violations surface as
// InvalidTxnError. It never commits; it always runs inside a caller's
// atomic unit or savepoint.
func (s *Storage) insertTransactionRaw(tx *sql.Tx, txn *consensus.Transaction) error {
	rows, err := s.exec(tx,
		"INSERT INTO transactions (transaction_hash, payer, payer_hash, signature) VALUES (?,?,?,?)",
		txn.TransactionHash[:], []byte(txn.Payer), txn.Payer.Hash().Bytes(), []byte(txn.Signature))
	if err != nil {
		return reportIntegrity(err)
	}
	if rows == 0 {
		return nil // already known; idempotent
	}
	for index, out := range txn.Outputs {
		if _, err := s.exec(tx, "INSERT INTO transaction_outputs VALUES (?,?,?,?)",
			txn.TransactionHash[:], int64(index), int64(out.Amount), out.RecipientHash[:]); err != nil {
			return reportIntegrity(err)
		}
	}
	for index, in := range txn.Inputs {
		if _, err := s.exec(tx, "INSERT INTO transaction_inputs VALUES (?,?,?,?)",
			txn.TransactionHash[:], int64(index), in.TransactionHash[:], int64(in.OutputIndex)); err != nil {
			return reportIntegrity(err)
		}
	}
	return nil
}

// ReceiveBlock validates and commits a block and its transactions
// atomically; on any failure the store is left unchanged and an
// InvalidReceivedBlockError describes the first violated rule.
func (s *Storage) ReceiveBlock(b *consensus.Block) error {
	reject := func(reason string) error {
		return &InvalidReceivedBlockError{Reason: reason}
	}

	if len(b.Transactions) > consensus.MAX_BLOCK_TRANSACTIONS {
		return reject("A block may have at most 2000 transactions")
	}
	if b.Nonce >= consensus.MAX_NONCE {
		return reject("Block nonce must be within 63 bits")
	}
	if len(b.Transactions) == 0 ||
		len(b.Transactions[0].Inputs) != 0 ||
		len(b.Transactions[0].Outputs) != 1 ||
		b.Transactions[0].Outputs[0].Amount != consensus.BLOCK_REWARD {
		return reject("The first transaction must be a reward transaction: have no inputs, and only one output of exactly the reward amount")
	}
	for i := range b.Transactions {
		if n := len(b.Transactions[i].Outputs); n < 1 || n > consensus.MAX_TX_OUTPUTS {
			return reject("Every transaction must have at least one output and at most 256")
		}
	}
	for i := 1; i < len(b.Transactions); i++ {
		if n := len(b.Transactions[i].Inputs); n < 1 || n > consensus.MAX_TX_INPUTS {
			return reject("Every transaction except for the first must have at least one input and at most 256")
		}
	}
	for i := range b.Transactions {
		for _, out := range b.Transactions[i].Outputs {
			if out.Amount > consensus.MAX_MONEY {
				return reject("Every output of every transaction must have a value of no more than 100 billion")
			}
		}
	}
	for i := range b.Transactions {
		if !distinctRecipients(b.Transactions[i].Outputs) {
			return reject("Every transaction must have distinct output recipients")
		}
	}
	if !b.VerifyHashChallenge(consensus.MINIMUM_DIFFICULTY_LEVEL) {
		return reject("Block has incorrect or insufficiently hard hash")
	}
	for i := range b.Transactions {
		if !b.Transactions[i].VerifySignature() {
			return reject("Every transaction must be correctly signed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Receiving a block the ledger already holds is a no-op, not an
	// error; the duplicate would otherwise trip the in-block link
	// constraints below.
	if known, err := s.countPositive(tx, "SELECT count(*) FROM blocks WHERE block_hash = ?", b.BlockHash[:]); err != nil {
		return err
	} else if known {
		return nil
	}

	var parent any
	if b.ParentHash != nil {
		parent = b.ParentHash[:]
	}
	// The block_height trigger fires here; an unknown parent fails the
	// foreign key and rejects the block.
	if _, err := s.exec(tx, "INSERT INTO blocks (block_hash, parent_hash, nonce) VALUES (?,?,?)",
		b.BlockHash[:], parent, int64(b.Nonce)); err != nil {
		return asBlockRejection(reportIntegrity(err))
	}
	for i := range b.Transactions {
		if err := s.insertTransactionRaw(tx, &b.Transactions[i]); err != nil {
			return asBlockRejection(err)
		}
	}
	for index := range b.Transactions {
		if _, err := s.exec(tx, "INSERT INTO transaction_in_block VALUES (?,?,?)",
			b.Transactions[index].TransactionHash[:], b.BlockHash[:], int64(index)); err != nil {
			return asBlockRejection(reportIntegrity(err))
		}
	}

	if violated, err := s.countPositive(tx,
		"SELECT count(*) FROM unauthorized_spending JOIN transaction_in_block USING (transaction_hash) WHERE block_hash = ?",
		b.BlockHash[:]); err != nil {
		return err
	} else if violated {
		return reject("Transaction(s) in block contain unauthorized spending")
	}
	if violated, err := s.countPositive(tx,
		"SELECT count(*) FROM transaction_credit_debit JOIN transaction_in_block USING (transaction_hash) WHERE block_hash = ? AND debited_amount > credited_amount",
		b.BlockHash[:]); err != nil {
		return err
	} else if violated {
		return reject("Transaction(s) in block have an input that spends more than the amount in the referenced output")
	}
	if violated, err := s.countPositive(tx,
		"SELECT total_violations_count FROM block_consistency WHERE perspective_block = ?",
		b.BlockHash[:]); err != nil {
		return err
	} else if violated {
		return reject("Transaction(s) in block are not consistent with ancestor blocks; one or more transactions either refer to a nonexistent parent or double spend a previously spent parent")
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("block committed",
		"block_hash", b.BlockHash.Hex(), "transactions", len(b.Transactions))
	return nil
}

// countPositive runs a single-integer query and reports whether the
// result is positive.
func (s *Storage) countPositive(tx *sql.Tx, query string, args ...any) (bool, error) {
	row, err := s.queryRow(tx, query, args...)
	if err != nil {
		return false, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// asBlockRejection re-labels a schema-level insertion failure as a
// block rejection; other errors pass through.
func asBlockRejection(err error) error {
	var invalid *InvalidTxnError
	if errors.As(err, &invalid) {
		return &InvalidReceivedBlockError{Reason: invalid.Reason}
	}
	return err
}

func distinctRecipients(outputs []consensus.TransactionOutput) bool {
	seen := make(map[consensus.Hash]struct{}, len(outputs))
	for _, out := range outputs {
		if _, dup := seen[out.RecipientHash]; dup {
			return false
		}
		seen[out.RecipientHash] = struct{}{}
	}
	return true
}

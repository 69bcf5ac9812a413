package store

import (
	"database/sql"
	"errors"

	"simplecoin.dev/node/consensus"
)

// receiveTentativeTransactionInternal adopts one transaction inside
// the caller's atomic unit: raw insertion followed by the
// unauthorized-spending and overdraft checks scoped to this hash.
func (s *Storage) receiveTentativeTransactionInternal(tx *sql.Tx, txn *consensus.Transaction) error {
	th := txn.TransactionHash

	if err := s.insertTransactionRaw(tx, txn); err != nil {
		var invalid *InvalidTxnError
		if errors.As(err, &invalid) {
			return singleRejection(th, invalid.Reason)
		}
		return err
	}

	if violated, err := s.countPositive(tx,
		"SELECT count(*) FROM unauthorized_spending WHERE transaction_hash = ?", th[:]); err != nil {
		return err
	} else if violated {
		return singleRejection(th, "The tentative transaction contain unauthorized spending")
	}
	if violated, err := s.countPositive(tx,
		"SELECT count(*) FROM transaction_credit_debit WHERE transaction_hash = ? AND debited_amount > credited_amount", th[:]); err != nil {
		return err
	} else if violated {
		return singleRejection(th, "The tentative transaction has an input that spends more than the amount in the referenced output")
	}
	return nil
}

// ReceiveTentativeTransaction stores a loose transaction, stashing it
// as an orphan first and then attempting adoption of everything whose
// dependencies have arrived. The whole call commits or leaves the
// store unchanged; rejections come back keyed by transaction hash.
func (s *Storage) ReceiveTentativeTransaction(txn *consensus.Transaction) error {
	th := txn.TransactionHash

	if n := len(txn.Inputs); n < 1 || n > consensus.MAX_TX_INPUTS {
		return singleRejection(th, "The tentative transaction must have at least one input and one output, and at most 256")
	}
	if n := len(txn.Outputs); n < 1 || n > consensus.MAX_TX_OUTPUTS {
		return singleRejection(th, "The tentative transaction must have at least one input and one output, and at most 256")
	}
	for _, out := range txn.Outputs {
		if out.Amount > consensus.MAX_MONEY {
			return singleRejection(th, "Every output of the tentative transaction must have a value of no more than 100 billion")
		}
	}
	if !distinctRecipients(txn.Outputs) {
		return singleRejection(th, "The tentative transaction must have distinct output recipients")
	}
	if !txn.VerifySignature() {
		return singleRejection(th, "The tentative transaction must be correctly signed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Pessimistically buffer the transaction as an orphan; the
	// adoption loop below decides whether it can be stored for real.
	rows, err := s.exec(tx, "INSERT INTO orphaned_transactions VALUES (?,?)",
		th[:], consensus.EncodeTransaction(txn))
	if err != nil {
		return err
	}
	if rows > 0 {
		for _, in := range txn.Inputs {
			if _, err := s.exec(tx, "INSERT INTO orphaned_transactions_missing_deps VALUES (?,?)",
				th[:], in.TransactionHash[:]); err != nil {
				return err
			}
		}
	}

	if err := s.collectOrphanedTransactions(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const adoptSavepoint = "adopt_orphan"

// collectOrphanedTransactions repeatedly clears satisfied dependencies
// and adopts every orphan with none remaining, each inside its own
// savepoint, until a pass makes no progress. Rejected adoptions are
// accumulated and surfaced together as one InvalidTentativeTxnError.
func (s *Storage) collectOrphanedTransactions(tx *sql.Tx) error {
	rejected := make(map[consensus.Hash]string)

	for {
		progress := false

		deleted, err := s.exec(tx,
			"DELETE FROM orphaned_transactions_missing_deps WHERE dependency IN (SELECT transaction_hash FROM transactions)")
		if err != nil {
			return err
		}
		if deleted == 0 {
			break
		}

		adopted, err := s.selectAdoptableOrphans(tx)
		if err != nil {
			return err
		}
		for _, txn := range adopted {
			if _, err := s.exec(tx,
				"DELETE FROM orphaned_transactions WHERE transaction_hash = ?", txn.TransactionHash[:]); err != nil {
				return err
			}
			if err := savepoint(tx, adoptSavepoint); err != nil {
				return err
			}
			err := s.receiveTentativeTransactionInternal(tx, txn)
			switch {
			case err == nil:
				if err := releaseSavepoint(tx, adoptSavepoint); err != nil {
					return err
				}
				progress = true
			default:
				var invalid *InvalidTentativeTxnError
				if !errors.As(err, &invalid) {
					return err
				}
				if err := rollbackSavepoint(tx, adoptSavepoint); err != nil {
					return err
				}
				for h, reason := range invalid.Rejected {
					rejected[h] = reason
				}
			}
		}

		if !progress {
			break
		}
	}

	if len(rejected) > 0 {
		return &InvalidTentativeTxnError{Rejected: rejected}
	}
	return nil
}

// selectAdoptableOrphans decodes every buffered transaction whose
// missing-dependency set is now empty.
func (s *Storage) selectAdoptableOrphans(tx *sql.Tx) ([]*consensus.Transaction, error) {
	rows, err := s.query(tx,
		"SELECT transaction_hash, transaction_blob FROM orphaned_transactions WHERE transaction_hash NOT IN (SELECT transaction_hash FROM orphaned_transactions_missing_deps)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*consensus.Transaction
	for rows.Next() {
		var th, blob []byte
		if err := rows.Scan(&th, &blob); err != nil {
			return nil, err
		}
		txn, err := consensus.DecodeTransaction(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

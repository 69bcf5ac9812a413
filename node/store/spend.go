package store

import (
	"database/sql"

	"simplecoin.dev/node/consensus"
)

// FindWalletBalance sums the visible unspent outputs owned by the
// given wallet hash at the given confirmation requirement.
//
// Even at zero required confirmations, the utxo view guarantees every
// contributing output comes from a confirmed block or a trusted payer;
// unconfirmed outputs of untrusted wallets never count. The sum is
// returned as a plain uint64 because, while a single amount is bounded
// by MAX_MONEY, a balance may exceed it.
func (s *Storage) FindWalletBalance(walletHash consensus.Hash, requiredConfirmations uint32) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.queryRow(nil,
		"SELECT sum(amount) FROM utxo WHERE recipient_hash = ? AND confirmations >= ?",
		walletHash[:], int64(requiredConfirmations))
	if err != nil {
		return 0, err
	}
	var sum sql.NullInt64
	if err := row.Scan(&sum); err != nil {
		return 0, err
	}
	if !sum.Valid {
		return 0, nil
	}
	return uint64(sum.Int64), nil
}

// findAvailableSpend lists the wallet's visible unspent outputs in a
// deterministic order (by referenced transaction hash, then output
// index) so identical ledgers select identical input sets.
func (s *Storage) findAvailableSpend(tx *sql.Tx, walletHash consensus.Hash) ([]consensus.TransactionInput, []consensus.Amount, error) {
	rows, err := s.query(tx,
		"SELECT out_transaction_hash, out_transaction_index, amount FROM utxo WHERE recipient_hash = ? ORDER BY out_transaction_hash, out_transaction_index",
		walletHash[:])
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var inputs []consensus.TransactionInput
	var amounts []consensus.Amount
	for rows.Next() {
		var th []byte
		var index int64
		var amount int64
		if err := rows.Scan(&th, &index, &amount); err != nil {
			return nil, nil, err
		}
		var h consensus.Hash
		copy(h[:], th)
		inputs = append(inputs, consensus.TransactionInput{TransactionHash: h, OutputIndex: uint16(index)})
		amounts = append(amounts, consensus.Amount(amount))
	}
	return inputs, amounts, rows.Err()
}

// CreateSimpleTransaction builds, signs and tentatively commits one
// transaction paying requestedAmount to recipientHash, with change
// back to the sender. A nil wallet means the store's default wallet.
// The sender is marked trustworthy first so its own unconfirmed change
// remains spendable.
func (s *Storage) CreateSimpleTransaction(wallet *consensus.Wallet, requestedAmount consensus.Amount, recipientHash consensus.Hash) (*consensus.Transaction, error) {
	if wallet == nil {
		wallet = s.defaultWallet
	}
	walletHash := wallet.PublicKeyHash()

	s.mu.Lock()
	defer s.mu.Unlock()

	// We hold this wallet's private key, so it is trustworthy. The
	// marking intentionally persists even if the spend below fails.
	if err := s.makeWalletTrustworthyLocked(walletHash); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	spendable, amounts, err := s.findAvailableSpend(tx, walletHash)
	if err != nil {
		return nil, err
	}
	var inputs []consensus.TransactionInput
	var total consensus.Amount
	for i, in := range spendable {
		inputs = append(inputs, in)
		total += amounts[i]
		if total >= requestedAmount {
			break
		}
	}
	if total < requestedAmount {
		return nil, &InsufficientBalanceError{Requested: requestedAmount, Available: total}
	}

	var outputs []consensus.TransactionOutput
	if walletHash != recipientHash {
		outputs = append(outputs, consensus.TransactionOutput{Amount: requestedAmount, RecipientHash: recipientHash})
		if total > requestedAmount {
			outputs = append(outputs, consensus.TransactionOutput{Amount: total - requestedAmount, RecipientHash: walletHash})
		}
	} else {
		// Output recipients must be distinct, so a self-payment
		// consolidates into a single output.
		outputs = append(outputs, consensus.TransactionOutput{Amount: total, RecipientHash: recipientHash})
	}

	txn, err := wallet.CreateRawTransaction(inputs, outputs)
	if err != nil {
		return nil, err
	}
	if err := s.receiveTentativeTransactionInternal(tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

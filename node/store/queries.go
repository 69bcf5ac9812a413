package store

import (
	"database/sql"
	"errors"
	"fmt"

	"simplecoin.dev/node/consensus"
)

// ChainEntry is one longest-chain element, tip first.
type ChainEntry struct {
	BlockHash   consensus.Hash
	BlockHeight uint64
}

// GetLongestChain walks the longest chain from the tip (greatest
// height, earliest discovered on ties) down to its root.
func (s *Storage) GetLongestChain() ([]ChainEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.query(nil, "SELECT block_hash, block_height FROM longest_chain")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChainEntry
	for rows.Next() {
		var hash []byte
		var height int64
		if err := rows.Scan(&hash, &height); err != nil {
			return nil, err
		}
		var e ChainEntry
		copy(e.BlockHash[:], hash)
		e.BlockHeight = uint64(height)
		out = append(out, e)
	}
	return out, rows.Err()
}

// fillTransactionInOut rehydrates a transaction's inputs and outputs
// from their relations, ordered by their stored indices.
func (s *Storage) fillTransactionInOut(tx *sql.Tx, th consensus.Hash, payer consensus.PublicKey, signature consensus.Signature) (consensus.Transaction, error) {
	txn := consensus.Transaction{
		Payer:           payer,
		Signature:       signature,
		TransactionHash: th,
	}

	rows, err := s.query(tx,
		"SELECT out_transaction_hash, out_transaction_index FROM transaction_inputs WHERE in_transaction_hash = ? ORDER BY in_transaction_index",
		th[:])
	if err != nil {
		return txn, err
	}
	defer rows.Close()
	for rows.Next() {
		var outHash []byte
		var outIndex int64
		if err := rows.Scan(&outHash, &outIndex); err != nil {
			return txn, err
		}
		var in consensus.TransactionInput
		copy(in.TransactionHash[:], outHash)
		in.OutputIndex = uint16(outIndex)
		txn.Inputs = append(txn.Inputs, in)
	}
	if err := rows.Err(); err != nil {
		return txn, err
	}

	rows, err = s.query(tx,
		"SELECT amount, recipient_hash FROM transaction_outputs WHERE out_transaction_hash = ? ORDER BY out_transaction_index",
		th[:])
	if err != nil {
		return txn, err
	}
	defer rows.Close()
	for rows.Next() {
		var amount int64
		var recipient []byte
		if err := rows.Scan(&amount, &recipient); err != nil {
			return txn, err
		}
		var out consensus.TransactionOutput
		out.Amount = consensus.Amount(amount)
		copy(out.RecipientHash[:], recipient)
		txn.Outputs = append(txn.Outputs, out)
	}
	return txn, rows.Err()
}

// GetBlockByHash rehydrates a full block — transactions ordered by
// their in-block index, inputs and outputs by their own indices — or
// returns nil when the hash is unknown.
func (s *Storage) GetBlockByHash(blockHash consensus.Hash) (*consensus.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.queryRow(tx, "SELECT nonce, parent_hash FROM blocks WHERE block_hash = ?", blockHash[:])
	if err != nil {
		return nil, err
	}
	var nonce int64
	var parent []byte
	switch err := row.Scan(&nonce, &parent); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}

	block := &consensus.Block{
		Nonce:     uint64(nonce),
		BlockHash: blockHash,
	}
	if parent != nil {
		var h consensus.Hash
		copy(h[:], parent)
		block.ParentHash = &h
	}

	rows, err := s.query(tx,
		"SELECT payer, signature, transaction_hash FROM transactions JOIN transaction_in_block USING (transaction_hash) WHERE block_hash = ? ORDER BY transaction_index",
		blockHash[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []tentativeRow
	for rows.Next() {
		var payer, sig, th []byte
		if err := rows.Scan(&payer, &sig, &th); err != nil {
			return nil, err
		}
		var r tentativeRow
		copy(r.hash[:], th)
		r.payer = consensus.PublicKey(payer)
		r.signature = consensus.Signature(sig)
		members = append(members, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range members {
		txn, err := s.fillTransactionInOut(tx, m.hash, m.payer, m.signature)
		if err != nil {
			return nil, err
		}
		block.Transactions = append(block.Transactions, txn)
	}
	return block, nil
}

// GetAllTentativeTransactions rehydrates every transaction that is not
// on a longest-chain block (reward transactions of abandoned branches
// excluded by the view's input requirement).
func (s *Storage) GetAllTentativeTransactions() ([]consensus.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := s.query(tx, "SELECT payer, signature, transaction_hash FROM all_tentative_txns")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []tentativeRow
	for rows.Next() {
		var payer, sig, th []byte
		if err := rows.Scan(&payer, &sig, &th); err != nil {
			return nil, err
		}
		var r tentativeRow
		copy(r.hash[:], th)
		r.payer = consensus.PublicKey(payer)
		r.signature = consensus.Signature(sig)
		members = append(members, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]consensus.Transaction, 0, len(members))
	for _, m := range members {
		txn, err := s.fillTransactionInOut(tx, m.hash, m.payer, m.signature)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, nil
}

// GetUITransactionByHash renders one stored transaction as ordered
// label/value pairs for display surfaces: hex hash, base58 wallets,
// formatted amounts, ledger credit/debit and confirmation count. It
// returns nil when the transaction is unknown.
func (s *Storage) GetUITransactionByHash(th consensus.Hash) ([][2]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.queryRow(tx,
		"SELECT payer, signature FROM transactions WHERE transaction_hash = ?", th[:])
	if err != nil {
		return nil, err
	}
	var payer, sig []byte
	switch err := row.Scan(&payer, &sig); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}

	txn, err := s.fillTransactionInOut(tx, th, consensus.PublicKey(payer), consensus.Signature(sig))
	if err != nil {
		return nil, err
	}

	rv := [][2]string{
		{"Transaction Hash", th.Hex()},
		{"Originating Wallet", txn.Payer.Hash().Base58()},
	}
	for i, out := range txn.Outputs {
		rv = append(rv,
			[2]string{fmt.Sprintf("Output %d Amount", i), out.Amount.String()},
			[2]string{fmt.Sprintf("Output %d Recipient", i), out.RecipientHash.Base58()})
	}
	if len(txn.Inputs) == 0 {
		rv = append(rv, [2]string{"Input", "None (this is a miner reward)"})
	}
	for i, in := range txn.Inputs {
		rv = append(rv, [2]string{
			fmt.Sprintf("Input %d", i),
			fmt.Sprintf("%s.%d", in.TransactionHash.Hex(), in.OutputIndex),
		})
	}

	row, err = s.queryRow(tx,
		"SELECT credited_amount, debited_amount FROM transaction_credit_debit WHERE transaction_hash = ?", th[:])
	if err != nil {
		return nil, err
	}
	var credited, debited int64
	switch err := row.Scan(&credited, &debited); {
	case err == nil:
		rv = append(rv,
			[2]string{"Credit Amount", consensus.Amount(credited).String()},
			[2]string{"Debit Amount", consensus.Amount(debited).String()})
	case errors.Is(err, sql.ErrNoRows):
		// Reward transactions have no credit/debit row.
	default:
		return nil, err
	}

	row, err = s.queryRow(tx,
		"SELECT ifnull((SELECT longest_chain.confirmations FROM transaction_in_block JOIN longest_chain USING (block_hash) WHERE transaction_hash = ?), 0)", th[:])
	if err != nil {
		return nil, err
	}
	var confirmations int64
	if err := row.Scan(&confirmations); err != nil {
		return nil, err
	}
	rv = append(rv, [2]string{"Confirmations", fmt.Sprintf("%d", confirmations)})
	return rv, nil
}

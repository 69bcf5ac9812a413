package store

import (
	"database/sql"
	"errors"

	"simplecoin.dev/node/consensus"
)

// defaultMineableLimit caps how many tentative transactions a
// candidate block collects unless the caller asks for fewer.
const defaultMineableLimit = 100

const mineableSavepoint = "mineable_probe"

// GetMineableTentativeTransactions selects, oldest first, a set of
// tentative transactions that would form a consistent next block on
// the current tip, together with that tip's hash (nil on an empty
// ledger). The selection runs as a dry run: a sentinel block row with
// the reserved 4-byte hash x'deadface' is linked to candidates inside
// an atomic unit that is always rolled back, so the ledger is never
// mutated. limit <= 0 means the default of 100.
func (s *Storage) GetMineableTentativeTransactions(limit int) ([]consensus.Transaction, *consensus.Hash, error) {
	if limit <= 0 || limit > defaultMineableLimit {
		limit = defaultMineableLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, err
	}
	// Dry run: everything below is discarded.
	defer func() { _ = tx.Rollback() }()

	var parentHash *consensus.Hash
	row, err := s.queryRow(tx,
		"SELECT block_hash FROM blocks ORDER BY block_height DESC, discovered_at ASC LIMIT 1")
	if err != nil {
		return nil, nil, err
	}
	var tip []byte
	switch err := row.Scan(&tip); {
	case err == nil:
		var h consensus.Hash
		copy(h[:], tip)
		parentHash = &h
	case errors.Is(err, sql.ErrNoRows):
		// Empty ledger; the candidate block becomes a root.
	default:
		return nil, nil, err
	}

	var parent any
	if parentHash != nil {
		parent = parentHash[:]
	}
	// The sentinel lands at tip height + 1, so during this unit the
	// longest chain runs through it and accepted candidates drop out
	// of the tentative view.
	if _, err := s.exec(tx,
		"INSERT INTO blocks (block_hash, parent_hash, nonce) VALUES (x'deadface', ?, 0)", parent); err != nil {
		return nil, nil, err
	}

	var accepted []consensus.Transaction
	for len(accepted) < limit {
		candidates, err := s.selectOldestTentative(tx, limit-len(accepted))
		if err != nil {
			return nil, nil, err
		}
		if len(candidates) == 0 {
			break
		}
		progress := false
		for _, c := range candidates {
			if err := savepoint(tx, mineableSavepoint); err != nil {
				return nil, nil, err
			}
			if _, err := s.exec(tx,
				"INSERT INTO transaction_in_block (transaction_hash, block_hash, transaction_index) VALUES (?, x'deadface', ?)",
				c.hash[:], int64(len(accepted))); err != nil {
				return nil, nil, err
			}
			violated, err := s.countPositive(tx,
				"SELECT total_violations_count FROM block_consistency WHERE perspective_block = x'deadface'")
			if err != nil {
				return nil, nil, err
			}
			if violated {
				if err := rollbackSavepoint(tx, mineableSavepoint); err != nil {
					return nil, nil, err
				}
				continue
			}
			if err := releaseSavepoint(tx, mineableSavepoint); err != nil {
				return nil, nil, err
			}
			progress = true
			txn, err := s.fillTransactionInOut(tx, c.hash, c.payer, c.signature)
			if err != nil {
				return nil, nil, err
			}
			accepted = append(accepted, txn)
		}
		if !progress {
			// None of the remaining tentative transactions are
			// compatible with the candidate block.
			break
		}
	}
	return accepted, parentHash, nil
}

type tentativeRow struct {
	hash      consensus.Hash
	payer     consensus.PublicKey
	signature consensus.Signature
}

func (s *Storage) selectOldestTentative(tx *sql.Tx, limit int) ([]tentativeRow, error) {
	rows, err := s.query(tx,
		"SELECT transaction_hash, payer, signature FROM all_tentative_txns ORDER BY discovered_at ASC LIMIT ?",
		int64(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tentativeRow
	for rows.Next() {
		var th, payer, sig []byte
		if err := rows.Scan(&th, &payer, &sig); err != nil {
			return nil, err
		}
		var r tentativeRow
		copy(r.hash[:], th)
		r.payer = consensus.PublicKey(payer)
		r.signature = consensus.Signature(sig)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PrepareMineableBlock assembles a candidate block for the miner
// wallet (default wallet when nil): a fresh reward transaction
// followed by up to 100 currently mineable tentative transactions,
// parented on the current tip. The nonce is left for the mining loop to solve.
func (s *Storage) PrepareMineableBlock(minerWallet *consensus.Wallet) (*consensus.Block, error) {
	if minerWallet == nil {
		minerWallet = s.defaultWallet
	}
	block, err := consensus.NewMineBlock(minerWallet)
	if err != nil {
		return nil, err
	}
	txns, parentHash, err := s.GetMineableTentativeTransactions(0)
	if err != nil {
		return nil, err
	}
	block.Transactions = append(block.Transactions, txns...)
	block.ParentHash = parentHash
	return block, nil
}

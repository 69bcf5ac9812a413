package consensus

import "encoding/binary"

const (
	// MINIMUM_DIFFICULTY_LEVEL is the required number of leading zero
	// bits on a committed block hash.
	MINIMUM_DIFFICULTY_LEVEL uint8 = 12

	MAX_BLOCK_TRANSACTIONS = 2000

	// MAX_NONCE keeps the nonce within 63 bits so it round-trips
	// through a signed 64-bit storage column.
	MAX_NONCE uint64 = 1 << 63
)

// Block carries an ordered transaction list, an optional parent link,
// a mining nonce and the solved block hash. The transaction at index 0
// is the reward transaction.
type Block struct {
	Nonce        uint64
	Transactions []Transaction
	ParentHash   *Hash
	BlockHash    Hash
}

// HashChallenge is the canonical encoding of (nonce, transactions,
// parent option). The nonce occupies bytes [0, 8) so a miner can
// mutate it in place without re-encoding the rest.
func (b *Block) HashChallenge() []byte {
	out := appendU64le(nil, b.Nonce)
	out = appendU64le(out, uint64(len(b.Transactions)))
	for i := range b.Transactions {
		t := &b.Transactions[i]
		out = appendPublicKey(out, t.Payer)
		out = appendInputs(out, t.Inputs)
		out = appendOutputs(out, t.Outputs)
		out = appendByteSeq(out, t.Signature)
	}
	if b.ParentHash == nil {
		out = append(out, 0)
	} else {
		out = append(out, 1)
		out = append(out, b.ParentHash[:]...)
	}
	return out
}

// SolveHashChallenge searches nonces until the challenge hashes to the
// requested difficulty, overwriting only the leading nonce bytes per
// attempt. maxTries of 0 means search the whole 63-bit nonce space.
// On success BlockHash is set and true is returned.
func (b *Block) SolveHashChallenge(difficulty uint8, maxTries uint64) bool {
	if maxTries == 0 {
		maxTries = MAX_NONCE
	}
	buf := b.HashChallenge()
	for i := uint64(0); i < maxTries; i++ {
		h := Sha256(buf)
		if h.HasDifficulty(difficulty) {
			b.BlockHash = h
			return true
		}
		b.Nonce = (b.Nonce + 1) % MAX_NONCE
		binary.LittleEndian.PutUint64(buf[0:8], b.Nonce)
	}
	return false
}

// VerifyHashChallenge reports whether BlockHash both meets the
// difficulty and equals the hash of the current challenge encoding.
func (b *Block) VerifyHashChallenge(difficulty uint8) bool {
	return b.BlockHash.HasDifficulty(difficulty) && b.BlockHash == Sha256(b.HashChallenge())
}

// NewMineBlock starts a candidate block holding only the reward
// transaction paying w. Parent and nonce are filled by the caller.
func NewMineBlock(w *Wallet) (*Block, error) {
	reward, err := w.CreateRawTransaction(nil, []TransactionOutput{{
		Amount:        BLOCK_REWARD,
		RecipientHash: w.PublicKeyHash(),
	}})
	if err != nil {
		return nil, err
	}
	return &Block{
		Nonce:        0,
		Transactions: []Transaction{*reward},
		ParentHash:   nil,
	}, nil
}

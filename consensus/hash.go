package consensus

import (
	"crypto/sha256"
	"math/bits"
	"strconv"

	"github.com/decred/base58"
)

// Hash is a 32-byte digest, produced by SHA-256 or supplied externally.
type Hash [32]byte

func Sha256(b []byte) Hash {
	return sha256.Sum256(b)
}

// Bytes returns the digest as a fresh-sliced byte view for storage
// parameters.
func (h Hash) Bytes() []byte {
	return h[:]
}

// HasDifficulty reports whether the first difficulty leading bits of
// the hash, read big-endian, are zero.
func (h Hash) HasDifficulty(difficulty uint8) bool {
	for _, b := range h {
		switch {
		case difficulty == 0:
			return true
		case difficulty < 8:
			return bits.LeadingZeros8(b) >= int(difficulty)
		case b != 0:
			return false
		default:
			difficulty -= 8
		}
	}
	// difficulty is a uint8, so it can never exceed 255 < 32*8; the
	// final iteration always sees difficulty < 8 and returns above.
	return true
}

// Hex is the technical display form: each byte in lowercase hex,
// unpadded.
func (h Hash) Hex() string {
	buf := make([]byte, 0, 64)
	for _, b := range h {
		buf = strconv.AppendUint(buf, uint64(b), 16)
	}
	return string(buf)
}

// Base58 is the user-facing display form (Bitcoin alphabet).
func (h Hash) Base58() string {
	return base58.Encode(h[:])
}

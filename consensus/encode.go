package consensus

import (
	"encoding/binary"
	"fmt"
)

// Canonical binary encoding shared by hashing and signing:
// integers little-endian of their natural width, sequences a 64-bit
// length followed by the elements, fixed-size byte arrays raw, options
// a single discriminator byte (0 absent, 1 present) plus the payload.

func appendU16le(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendU64le(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func appendByteSeq(dst []byte, b []byte) []byte {
	dst = appendU64le(dst, uint64(len(b)))
	return append(dst, b...)
}

func appendPublicKey(dst []byte, p PublicKey) []byte {
	return appendByteSeq(dst, p)
}

func appendInputs(dst []byte, inputs []TransactionInput) []byte {
	dst = appendU64le(dst, uint64(len(inputs)))
	for _, in := range inputs {
		dst = append(dst, in.TransactionHash[:]...)
		dst = appendU16le(dst, in.OutputIndex)
	}
	return dst
}

func appendOutputs(dst []byte, outputs []TransactionOutput) []byte {
	dst = appendU64le(dst, uint64(len(outputs)))
	for _, out := range outputs {
		dst = appendU64le(dst, uint64(out.Amount))
		dst = append(dst, out.RecipientHash[:]...)
	}
	return dst
}

// EncodeTransaction produces the wire form: (payer, inputs, outputs,
// signature). The transaction hash is SHA-256 of the signature bytes,
// not of this encoding.
func EncodeTransaction(t *Transaction) []byte {
	out := appendPublicKey(nil, t.Payer)
	out = appendInputs(out, t.Inputs)
	out = appendOutputs(out, t.Outputs)
	out = appendByteSeq(out, t.Signature)
	return out
}

// decoder is a bounds-checked cursor over an encoded buffer.
type decoder struct {
	b   []byte
	off int
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || len(d.b)-d.off < n {
		return nil, fmt.Errorf("decode: truncated at offset %d (want %d bytes)", d.off, n)
	}
	v := d.b[d.off : d.off+n]
	d.off += n
	return v, nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) hash() (Hash, error) {
	var h Hash
	b, err := d.take(32)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

func (d *decoder) seqLen(max uint64) (int, error) {
	n, err := d.u64()
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("decode: sequence length %d out of range (max %d)", n, max)
	}
	return int(n), nil
}

func (d *decoder) byteSeq(max uint64) ([]byte, error) {
	n, err := d.seqLen(max)
	if err != nil {
		return nil, err
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

const maxEncodedFieldBytes = 1 << 20

// DecodeTransaction parses the wire form and derives the transaction
// hash from the embedded signature.
func DecodeTransaction(b []byte) (*Transaction, error) {
	d := &decoder{b: b}
	payer, err := d.byteSeq(maxEncodedFieldBytes)
	if err != nil {
		return nil, err
	}

	nIn, err := d.seqLen(1 << 16)
	if err != nil {
		return nil, err
	}
	inputs := make([]TransactionInput, 0, nIn)
	for i := 0; i < nIn; i++ {
		th, err := d.hash()
		if err != nil {
			return nil, err
		}
		idx, err := d.u16()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, TransactionInput{TransactionHash: th, OutputIndex: idx})
	}

	nOut, err := d.seqLen(1 << 16)
	if err != nil {
		return nil, err
	}
	outputs := make([]TransactionOutput, 0, nOut)
	for i := 0; i < nOut; i++ {
		amt, err := d.u64()
		if err != nil {
			return nil, err
		}
		rh, err := d.hash()
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, TransactionOutput{Amount: Amount(amt), RecipientHash: rh})
	}

	sig, err := d.byteSeq(maxEncodedFieldBytes)
	if err != nil {
		return nil, err
	}
	if d.off != len(d.b) {
		return nil, fmt.Errorf("decode: %d trailing bytes", len(d.b)-d.off)
	}

	t := &Transaction{
		Payer:     PublicKey(payer),
		Inputs:    inputs,
		Outputs:   outputs,
		Signature: Signature(sig),
	}
	t.RecalcHash()
	return t, nil
}

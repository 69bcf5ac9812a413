package consensus

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func testWallet(t *testing.T) *Wallet {
	t.Helper()
	w, err := NewWallet()
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	return w
}

func mustRawTransaction(t *testing.T, w *Wallet, inputs []TransactionInput, outputs []TransactionOutput) *Transaction {
	t.Helper()
	tx, err := w.CreateRawTransaction(inputs, outputs)
	if err != nil {
		t.Fatalf("CreateRawTransaction: %v", err)
	}
	return tx
}

func TestTransactionWireRoundTrip(t *testing.T) {
	w := testWallet(t)
	prev := Sha256([]byte("prev"))
	tx := mustRawTransaction(t, w,
		[]TransactionInput{{TransactionHash: prev, OutputIndex: 3}},
		[]TransactionOutput{
			{Amount: 12345, RecipientHash: Sha256([]byte("alice"))},
			{Amount: 678, RecipientHash: Sha256([]byte("bob"))},
		},
	)

	decoded, err := DecodeTransaction(EncodeTransaction(tx))
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if decoded.TransactionHash != tx.TransactionHash {
		t.Fatalf("hash changed across round trip: %s vs %s",
			decoded.TransactionHash.Hex(), tx.TransactionHash.Hex())
	}
	if !decoded.VerifySignature() {
		t.Fatal("decoded transaction must still verify")
	}
	if len(decoded.Inputs) != 1 || decoded.Inputs[0].OutputIndex != 3 {
		t.Fatalf("inputs mangled: %+v", decoded.Inputs)
	}
	if len(decoded.Outputs) != 2 || decoded.Outputs[0].Amount != 12345 {
		t.Fatalf("outputs mangled: %+v", decoded.Outputs)
	}
}

func TestDecodeTransactionRejectsTrailingBytes(t *testing.T) {
	w := testWallet(t)
	tx := mustRawTransaction(t, w, nil, []TransactionOutput{{Amount: 1, RecipientHash: Sha256([]byte("r"))}})
	wire := append(EncodeTransaction(tx), 0x00)
	if _, err := DecodeTransaction(wire); err == nil {
		t.Fatal("trailing bytes should be rejected")
	}
}

func TestDecodeTransactionRejectsTruncation(t *testing.T) {
	w := testWallet(t)
	tx := mustRawTransaction(t, w, nil, []TransactionOutput{{Amount: 1, RecipientHash: Sha256([]byte("r"))}})
	wire := EncodeTransaction(tx)
	for _, cut := range []int{1, 8, len(wire) / 2, len(wire) - 1} {
		if _, err := DecodeTransaction(wire[:cut]); err == nil {
			t.Fatalf("truncation at %d should be rejected", cut)
		}
	}
}

func TestSignatureDataExcludesSignature(t *testing.T) {
	w := testWallet(t)
	tx := mustRawTransaction(t, w, nil, []TransactionOutput{{Amount: 1, RecipientHash: Sha256([]byte("r"))}})
	if bytes.Contains(tx.SignatureData(), tx.Signature) {
		t.Fatal("signing data must not cover the signature")
	}
	want := EncodeTransaction(tx)[:len(tx.SignatureData())]
	if !bytes.Equal(tx.SignatureData(), want) {
		t.Fatal("wire form must begin with the signing data")
	}
}

func TestHashChallengeNonceFirst(t *testing.T) {
	b := &Block{Nonce: 0x4142434445464748}
	challenge := b.HashChallenge()
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], b.Nonce)
	if !bytes.Equal(challenge[0:8], nonce[:]) {
		t.Fatalf("challenge[0:8] = %x, want %x", challenge[0:8], nonce)
	}
}

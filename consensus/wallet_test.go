package consensus

import (
	"path/filepath"
	"testing"
)

func TestPublicKeyLength(t *testing.T) {
	w := testWallet(t)
	if !w.PublicKey().CheckLen() {
		t.Fatalf("serialized public key is %d bytes, want %d", len(w.PublicKey()), PUBLIC_KEY_BYTES)
	}
	if w.PublicKeyHash() != w.PublicKey().Hash() {
		t.Fatal("wallet hash must be SHA-256 of the serialized key")
	}
}

func TestSignAndVerify(t *testing.T) {
	w := testWallet(t)
	tx := mustRawTransaction(t, w,
		[]TransactionInput{{TransactionHash: Sha256([]byte("prev")), OutputIndex: 0}},
		[]TransactionOutput{{Amount: 42, RecipientHash: Sha256([]byte("r"))}},
	)
	if !tx.VerifySignature() {
		t.Fatal("fresh signature must verify")
	}

	tx.Outputs[0].Amount = 43
	if tx.VerifySignature() {
		t.Fatal("verification must fail after mutating signed content")
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	w1 := testWallet(t)
	w2 := testWallet(t)
	tx := mustRawTransaction(t, w1, nil, []TransactionOutput{{Amount: 1, RecipientHash: Sha256([]byte("r"))}})
	tx.Payer = w2.PublicKey()
	if tx.VerifySignature() {
		t.Fatal("signature must not verify under a different payer key")
	}
}

func TestVerifyRejectsBadKeyLength(t *testing.T) {
	w := testWallet(t)
	tx := mustRawTransaction(t, w, nil, []TransactionOutput{{Amount: 1, RecipientHash: Sha256([]byte("r"))}})
	tx.Payer = tx.Payer[:87]
	if tx.VerifySignature() {
		t.Fatal("87-byte payer key must be rejected")
	}
}

func TestWalletPEMRoundTrip(t *testing.T) {
	w := testWallet(t)
	path := filepath.Join(t.TempDir(), "nested", "wallet.pem")
	if err := w.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := LoadWalletFrom(path)
	if err != nil {
		t.Fatalf("LoadWalletFrom: %v", err)
	}
	if !w.Equal(loaded) {
		t.Fatal("loaded wallet differs from saved wallet")
	}

	// A signature from the reloaded key verifies against the original
	// serialized public key.
	tx := mustRawTransaction(t, loaded, nil, []TransactionOutput{{Amount: 1, RecipientHash: w.PublicKeyHash()}})
	if !tx.VerifySignature() {
		t.Fatal("signature from reloaded wallet must verify")
	}
}

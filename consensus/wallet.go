package consensus

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Wallet key material lives at ~/.config/simplecoin/wallet.pem as a
// PEM-encoded SEC1 EC private key on secp256k1.
const walletFileName = "wallet.pem"

// spkiPrefix is the fixed DER SubjectPublicKeyInfo header for an
// secp256k1 key: SEQUENCE { AlgorithmIdentifier { id-ecPublicKey,
// secp256k1 }, BIT STRING <uncompressed point> }. The 65-byte point
// follows, for 88 bytes total.
var spkiPrefix = []byte{
	0x30, 0x56, 0x30, 0x10,
	0x06, 0x07, 0x2a, 0x86, 0x48, 0xce, 0x3d, 0x02, 0x01, // id-ecPublicKey
	0x06, 0x05, 0x2b, 0x81, 0x04, 0x00, 0x0a, // secp256k1
	0x03, 0x42, 0x00,
}

var oidSecp256k1 = asn1.ObjectIdentifier{1, 3, 132, 0, 10}

// ecPrivateKey is the SEC1 / RFC 5915 ECPrivateKey structure.
type ecPrivateKey struct {
	Version       int
	PrivateKey    []byte
	NamedCurveOID asn1.ObjectIdentifier `asn1:"optional,explicit,tag:0"`
	PublicKey     asn1.BitString        `asn1:"optional,explicit,tag:1"`
}

// MarshalPublicKey produces the 88-byte DER SubjectPublicKeyInfo form.
func MarshalPublicKey(pub *secp256k1.PublicKey) PublicKey {
	out := make([]byte, 0, PUBLIC_KEY_BYTES)
	out = append(out, spkiPrefix...)
	out = append(out, pub.SerializeUncompressed()...)
	return out
}

// ParsePublicKey rejects anything but the exact 88-byte encoding
// MarshalPublicKey emits.
func ParsePublicKey(der PublicKey) (*secp256k1.PublicKey, error) {
	if len(der) != PUBLIC_KEY_BYTES || !bytes.HasPrefix(der, spkiPrefix) {
		return nil, fmt.Errorf("public key: not an %d-byte secp256k1 SubjectPublicKeyInfo", PUBLIC_KEY_BYTES)
	}
	return secp256k1.ParsePubKey(der[len(spkiPrefix):])
}

func verifyDER(pub *secp256k1.PublicKey, digest Hash, sig Signature) bool {
	parsed, err := secpecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest[:], pub)
}

// Wallet is an secp256k1 keypair with its serialized public key and
// wallet identifier (SHA-256 of that serialization) precomputed.
type Wallet struct {
	priv             *secp256k1.PrivateKey
	publicSerialized PublicKey
	publicHash       Hash
}

func walletFromPriv(priv *secp256k1.PrivateKey) *Wallet {
	serialized := MarshalPublicKey(priv.PubKey())
	return &Wallet{
		priv:             priv,
		publicSerialized: serialized,
		publicHash:       serialized.Hash(),
	}
}

// NewWallet generates a fresh keypair.
func NewWallet() (*Wallet, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate wallet key: %w", err)
	}
	return walletFromPriv(priv), nil
}

func (w *Wallet) PublicKey() PublicKey { return w.publicSerialized }

// PublicKeyHash is the wallet identifier used as recipient and payer
// hash throughout the ledger.
func (w *Wallet) PublicKeyHash() Hash { return w.publicHash }

// Equal compares wallets by serialized public key.
func (w *Wallet) Equal(other *Wallet) bool {
	return other != nil && bytes.Equal(w.publicSerialized, other.publicSerialized)
}

// CreateRawTransaction builds and signs a transaction spending the
// given inputs into the given outputs. The caller is responsible for
// input/output cardinality; ledger-level validation happens at
// insertion.
//
// Signing is randomized rather than RFC6979-deterministic: the
// transaction hash is derived from the signature, and two transactions
// with identical content (same-miner reward transactions in
// particular) must not collide.
func (w *Wallet) CreateRawTransaction(inputs []TransactionInput, outputs []TransactionOutput) (*Transaction, error) {
	t := &Transaction{
		Payer:   w.publicSerialized,
		Inputs:  inputs,
		Outputs: outputs,
	}
	digest := Sha256(t.SignatureData())
	sig, err := ecdsa.SignASN1(rand.Reader, w.priv.ToECDSA(), digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	t.Signature = sig
	t.RecalcHash()
	return t, nil
}

// DefaultWalletPath is ~/.config/simplecoin/wallet.pem.
func DefaultWalletPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "simplecoin", walletFileName), nil
}

// SaveTo writes the private key to path as a PEM "EC PRIVATE KEY"
// block, creating parent directories as needed.
func (w *Wallet) SaveTo(path string) error {
	der, err := asn1.Marshal(ecPrivateKey{
		Version:       1,
		PrivateKey:    w.priv.Serialize(),
		NamedCurveOID: oidSecp256k1,
		PublicKey:     asn1.BitString{Bytes: w.priv.PubKey().SerializeUncompressed(), BitLength: 65 * 8},
	})
	if err != nil {
		return fmt.Errorf("marshal wallet key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0o600)
}

// SaveToDisk persists the wallet at the default path.
func (w *Wallet) SaveToDisk() error {
	path, err := DefaultWalletPath()
	if err != nil {
		return err
	}
	return w.SaveTo(path)
}

// LoadWalletFrom reads a PEM EC private key and rebuilds the wallet.
func LoadWalletFrom(path string) (*Wallet, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, fmt.Errorf("wallet %s: no EC PRIVATE KEY block", path)
	}
	var key ecPrivateKey
	if _, err := asn1.Unmarshal(block.Bytes, &key); err != nil {
		return nil, fmt.Errorf("wallet %s: %w", path, err)
	}
	if !key.NamedCurveOID.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("wallet %s: curve %v is not secp256k1", path, key.NamedCurveOID)
	}
	if len(key.PrivateKey) != 32 {
		return nil, fmt.Errorf("wallet %s: private key must be 32 bytes (got %d)", path, len(key.PrivateKey))
	}
	return walletFromPriv(secp256k1.PrivKeyFromBytes(key.PrivateKey)), nil
}

// LoadWalletFromDisk loads the wallet at the default path.
func LoadWalletFromDisk() (*Wallet, error) {
	path, err := DefaultWalletPath()
	if err != nil {
		return nil, err
	}
	return LoadWalletFrom(path)
}

package blockchain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/mr-tron/base58"
)

func testWallet(t *testing.T) *Wallet {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	w, err := NewWallet(base58.Encode(priv))
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	return w
}

func TestNewWalletFromSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		t.Fatal(err)
	}

	w, err := NewWallet(base58.Encode(seed))
	if err != nil {
		t.Fatalf("NewWallet from seed: %v", err)
	}

	if err := ValidateAddress(w.Address()); err != nil {
		t.Errorf("derived address invalid: %v", err)
	}
}

func TestNewWalletRejectsBadKey(t *testing.T) {
	if _, err := NewWallet("tooshort"); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := NewWallet("not-base58-0OIl"); err == nil {
		t.Error("expected error for non-base58 key")
	}
}

func TestWalletSignVerifies(t *testing.T) {
	w := testWallet(t)
	msg := []byte("swap instruction bytes")

	sig := w.Sign(msg)
	if !ed25519.Verify(w.PublicKey(), msg, sig) {
		t.Error("signature did not verify against wallet public key")
	}
}

func TestSignSerializedTransaction(t *testing.T) {
	w := testWallet(t)
	signer := NewTransactionSigner(w)

	// One signature slot (compact-u16 = 0x01), 64 zero bytes, then a
	// fake message body.
	message := []byte("versioned message payload for signing")
	tx := make([]byte, 0, 1+64+len(message))
	tx = append(tx, 0x01)
	tx = append(tx, make([]byte, 64)...)
	tx = append(tx, message...)

	signed, err := signer.SignSerializedTransaction(base64.StdEncoding.EncodeToString(tx))
	if err != nil {
		t.Fatalf("SignSerializedTransaction: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(signed)
	if err != nil {
		t.Fatalf("decode signed tx: %v", err)
	}

	sig := raw[1:65]
	if !ed25519.Verify(w.PublicKey(), raw[65:], sig) {
		t.Error("embedded signature does not verify over the message")
	}
}

func TestSignSerializedTransactionRejectsMalformed(t *testing.T) {
	signer := NewTransactionSigner(testWallet(t))

	cases := []string{
		"",
		"!!!not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte{0x00}),       // zero signatures
		base64.StdEncoding.EncodeToString([]byte{0x02, 0x01}), // truncated
	}
	for _, in := range cases {
		if _, err := signer.SignSerializedTransaction(in); err == nil {
			t.Errorf("expected error for input %q", in)
		}
	}
}

func TestBalanceTracker(t *testing.T) {
	b := NewBalanceTracker(testWallet(t), nil)

	b.SetBalance(2_500_000_000)
	if got := b.BalanceSOL(); got != 2.5 {
		t.Errorf("BalanceSOL() = %v, want 2.5", got)
	}

	if !b.HasSufficientBalance(2_000_000_000, 400_000_000) {
		t.Error("expected 2.4 SOL spend to fit in 2.5 SOL balance")
	}
	if b.HasSufficientBalance(2_400_000_000, 200_000_000) {
		t.Error("expected 2.6 SOL spend to exceed 2.5 SOL balance")
	}
}

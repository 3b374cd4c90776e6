package blockchain

import (
	"encoding/base64"
	"fmt"
)

// TransactionSigner signs serialized Solana transactions produced by an
// external builder (Jupiter's swap API returns fully-built, unsigned
// versioned transactions in base64).
type TransactionSigner struct {
	wallet *Wallet
}

// NewTransactionSigner creates a signer bound to a wallet.
func NewTransactionSigner(wallet *Wallet) *TransactionSigner {
	return &TransactionSigner{wallet: wallet}
}

// SignSerializedTransaction signs a base64-encoded unsigned transaction
// and returns it base64-encoded with the signature filled in.
//
// Wire layout: compact-u16 signature count, then 64-byte signature
// slots, then the message. The fee payer's signature is slot 0 and the
// message is everything after the signature section.
func (t *TransactionSigner) SignSerializedTransaction(unsignedTxBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(unsignedTxBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty transaction")
	}

	numSigs, sigOffset, err := decodeCompactU16(raw)
	if err != nil {
		return "", fmt.Errorf("read signature count: %w", err)
	}
	if numSigs == 0 {
		return "", fmt.Errorf("transaction declares zero signatures")
	}

	msgStart := sigOffset + numSigs*64
	if msgStart >= len(raw) {
		return "", fmt.Errorf("transaction too short for %d signatures", numSigs)
	}

	message := raw[msgStart:]
	signature := t.wallet.Sign(message)
	copy(raw[sigOffset:sigOffset+64], signature)

	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeCompactU16 reads a compact-u16 length prefix and returns the
// value and the number of bytes consumed.
func decodeCompactU16(data []byte) (int, int, error) {
	value := 0
	shift := 0
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("truncated compact-u16")
		}
		b := data[i]
		value |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}

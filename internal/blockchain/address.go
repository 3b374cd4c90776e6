package blockchain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLen is the byte length of a Solana public key.
const PubkeyLen = 32

// WSOLMint is the wrapped SOL mint address.
const WSOLMint = "So11111111111111111111111111111111111111112"

// base58Set marks the characters of the Bitcoin base58 alphabet, which
// excludes 0, O, I and l.
var base58Set [256]bool

func init() {
	for _, c := range []byte("123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz") {
		base58Set[c] = true
	}
}

// IsBase58 reports whether every character of s is in the base58 alphabet.
func IsBase58(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !base58Set[s[i]] {
			return false
		}
	}
	return true
}

// ValidateAddress checks that addr is a plausible Solana address: base58
// text of 32 to 44 characters that decodes to exactly 32 bytes. The
// decode step rejects strings that pass the cheap alphabet scan but are
// not real public keys.
func ValidateAddress(addr string) error {
	if len(addr) < 32 || len(addr) > 44 {
		return fmt.Errorf("address length %d outside 32-44", len(addr))
	}
	if !IsBase58(addr) {
		return fmt.Errorf("address contains non-base58 characters")
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != PubkeyLen {
		return fmt.Errorf("address decodes to %d bytes, expected %d", len(raw), PubkeyLen)
	}
	return nil
}

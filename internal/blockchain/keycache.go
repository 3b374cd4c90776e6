package blockchain

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// LoadOrCreateWallet resolves the signing wallet in order of preference:
// the named environment variable, a cached keypair file, or a freshly
// generated keypair persisted to the cache file with 0600 permissions.
//
// Generated wallets start with zero balance and are only useful for
// simulation runs until funded.
func LoadOrCreateWallet(envVar, cachePath string) (*Wallet, error) {
	if key := os.Getenv(envVar); key != "" {
		return NewWallet(key)
	}

	if cachePath == "" {
		return nil, fmt.Errorf("%s not set and no key cache path configured", envVar)
	}

	if data, err := os.ReadFile(cachePath); err == nil {
		w, err := NewWallet(string(data))
		if err != nil {
			return nil, fmt.Errorf("cached key at %s is invalid: %w", cachePath, err)
		}
		log.Info().Str("path", cachePath).Msg("loaded cached keypair")
		return w, nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	encoded := base58.Encode(priv)
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o700); err != nil {
		return nil, fmt.Errorf("create key cache dir: %w", err)
	}
	if err := os.WriteFile(cachePath, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("write key cache: %w", err)
	}

	w, err := NewWallet(encoded)
	if err != nil {
		return nil, err
	}

	log.Warn().
		Str("address", w.Address()).
		Str("path", cachePath).
		Msg("generated new keypair, fund this address before enabling real trading")
	return w, nil
}

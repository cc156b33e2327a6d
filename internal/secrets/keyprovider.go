// Package secrets provides the symmetric key that encrypts the local
// store. The key is held in the OS keyring when one is available; on
// headless hosts without a keyring a deterministic machine-bound key is
// derived instead, so the encrypted store still never travels to
// another machine in readable form.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/zalando/go-keyring"

	"github.com/wachbuch/roster-mirror/internal/logger"
)

const (
	keyringService = "roster-mirror"
	keyringUser    = "store-key"

	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
)

// StoreKey returns the 32-byte store encryption key, creating and
// persisting a random one on first use. Keyring failures degrade to the
// machine-derived key rather than failing the caller.
func StoreKey() ([]byte, error) {
	encoded, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		key, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr == nil && len(key) == KeySize {
			return key, nil
		}
		logger.Warn("keyring holds an unusable store key, replacing it", "error", decodeErr)
	} else if !errors.Is(err, keyring.ErrNotFound) {
		logger.Warn("keyring unavailable, falling back to machine-derived store key", "error", err)
		return machineDerivedKey()
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		logger.Warn("failed to persist store key in keyring, falling back to machine-derived key", "error", err)
		return machineDerivedKey()
	}
	return key, nil
}

// machineDerivedKey derives a stable key from host and user identity.
// Weaker than a random keyring key, but it keeps the store unreadable
// off-machine and survives restarts without any secret storage.
func machineDerivedKey() ([]byte, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostname: %w", err)
	}
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	sum := sha256.Sum256([]byte(keyringService + "\x00" + host + "\x00" + username))
	return sum[:], nil
}

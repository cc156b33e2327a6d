package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/wachbuch/roster-mirror/internal/logger"
	"github.com/wachbuch/roster-mirror/internal/roster"
)

// persistedStore is the plaintext JSON shape inside the encrypted file.
// The private cache is deliberately absent: it never touches disk.
type persistedStore struct {
	Employees []*roster.Employee `json:"employees"`
	Shifts    []*roster.Shift    `json:"shifts"`
}

// Open loads the store at path, taking an exclusive file lock so two
// daemon instances cannot corrupt each other's writes. A missing file
// yields an empty store; an unreadable or undecryptable one is treated
// the same after a warning, since the mirror can always refetch.
func Open(path string, key []byte) (*Store, *flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return nil, nil, fmt.Errorf("store %s is locked by another process", path)
	}

	s := newEmpty(path, key)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read store, starting fresh", "path", path, "error", err)
		}
		return s, lock, nil
	}

	plaintext, err := decrypt(data, key)
	if err != nil {
		logger.Warn("failed to decrypt store, starting fresh", "path", path, "error", err)
		return s, lock, nil
	}

	var persisted persistedStore
	if err := json.Unmarshal(plaintext, &persisted); err != nil {
		logger.Warn("failed to parse store, starting fresh", "path", path, "error", err)
		return s, lock, nil
	}

	for _, emp := range persisted.Employees {
		s.employees[emp.ID] = emp
	}
	for _, shift := range persisted.Shifts {
		s.public[shift.PrimaryKey()] = shift
		s.indexPublic(shift)
	}
	return s, lock, nil
}

// Save writes the public cache to disk, encrypted, via a temp file and
// an atomic rename.
func (s *Store) Save() error {
	s.mu.RLock()
	persisted := persistedStore{
		Employees: make([]*roster.Employee, 0, len(s.employees)),
		Shifts:    make([]*roster.Shift, 0, len(s.public)),
	}
	for _, emp := range s.employees {
		persisted.Employees = append(persisted.Employees, emp)
	}
	for _, shift := range s.public {
		persisted.Shifts = append(persisted.Shifts, shift)
	}
	path := s.path
	key := s.key
	s.mu.RUnlock()

	plaintext, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	ciphertext, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt store: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "store-*.db")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(ciphertext); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp store file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod store file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// encrypt seals plaintext with AES-256-GCM. The random nonce is
// prepended to the ciphertext.
func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a sealed store file. Any tampering fails the GCM tag
// check and surfaces here as an error.
func decrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("store file truncated")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate store: %w", err)
	}
	return plaintext, nil
}

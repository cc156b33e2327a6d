// Package profile manages the mutable operator profile: stored remote
// credentials and the catalog of shift kinds seen so far. The profile is
// plaintext JSON; only password hashes are stored, never passwords.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/wachbuch/roster-mirror/internal/logger"
)

// KnownShift is one catalog entry for a kind of shift the mirror has
// seen. The catalog lets consumers enumerate shift kinds without a date
// in hand.
type KnownShift struct {
	ConfigKey    string `json:"configKey"`
	RemoteTypeID int64  `json:"remoteTypeId"`
	FullName     string `json:"fullName"`
	ShortName    string `json:"shortName"`
}

// Profile is the persisted operator state. All methods are safe for
// concurrent use.
type Profile struct {
	mu   sync.Mutex
	path string

	credentials []*Credential
	knownShifts []KnownShift
}

// persistedProfile is the on-disk JSON shape.
type persistedProfile struct {
	Credentials []*Credential `json:"credentials"`
	KnownShifts []KnownShift  `json:"knownShifts"`
}

// New returns an empty profile bound to path.
func New(path string) *Profile {
	return &Profile{path: path}
}

// Load reads the profile from path. A missing, unreadable or corrupt
// file is not an error: the mirror must come up regardless, so the
// failure is logged and a fresh profile bound to the same path is
// returned. Credentials are then simply absent until re-entered.
func Load(path string) *Profile {
	p := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read profile, starting fresh", "path", path, "error", err)
		}
		return p
	}

	var persisted persistedProfile
	if err := json.Unmarshal(data, &persisted); err != nil {
		logger.Warn("failed to parse profile, starting fresh", "path", path, "error", err)
		return p
	}

	p.credentials = persisted.Credentials
	p.knownShifts = persisted.KnownShifts
	return p
}

// Save writes the profile atomically: marshal to a temp file in the
// target directory, then rename over the destination.
func (p *Profile) Save() error {
	p.mu.Lock()
	persisted := persistedProfile{
		Credentials: append([]*Credential(nil), p.credentials...),
		KnownShifts: append([]KnownShift(nil), p.knownShifts...),
	}
	path := p.path
	p.mu.Unlock()

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "profile-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp profile file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp profile file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp profile file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod profile file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace profile file: %w", err)
	}
	return nil
}

// AddKnownShift records a shift kind in the catalog if its config key is
// not present yet, and reports whether the catalog changed.
func (p *Profile) AddKnownShift(ks KnownShift) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.knownShifts {
		if existing.ConfigKey == ks.ConfigKey {
			return false
		}
	}
	p.knownShifts = append(p.knownShifts, ks)
	return true
}

// KnownShifts returns the catalog sorted by short name.
func (p *Profile) KnownShifts() []KnownShift {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := append([]KnownShift(nil), p.knownShifts...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShortName != out[j].ShortName {
			return out[i].ShortName < out[j].ShortName
		}
		return out[i].RemoteTypeID < out[j].RemoteTypeID
	})
	return out
}

// SetCredential upserts a credential from a freshly entered password.
// The credential becomes enabled and its renewal timestamp is stamped;
// the plaintext password does not leave this call.
func (p *Profile) SetCredential(username, password string) *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.credentials {
		if c.Username == username {
			c.PasswordHash = HashPassword(password)
			c.Enabled = true
			c.LastRenewed = time.Now()
			return c
		}
	}
	c := &Credential{
		Username:     username,
		PasswordHash: HashPassword(password),
		Enabled:      true,
		LastRenewed:  time.Now(),
	}
	p.credentials = append(p.credentials, c)
	return c
}

// Disable marks the credential as unusable for automatic fallback. The
// hash is kept so the entry can be re-enabled by a later renewal.
func (p *Profile) Disable(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.credentials {
		if c.Username == username {
			c.Enabled = false
			return
		}
	}
}

// MarkUsed stamps the renewal timestamp of a credential that just
// authenticated successfully, moving it to the front of the fallback
// order.
func (p *Profile) MarkUsed(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.credentials {
		if c.Username == username {
			c.LastRenewed = time.Now()
			return
		}
	}
}

// OrderedEnabled returns copies of all enabled credentials, most
// recently renewed first. This is the order the fallback login walks.
func (p *Profile) OrderedEnabled() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Credential
	for _, c := range p.credentials {
		if c.Enabled {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastRenewed.After(out[j].LastRenewed)
	})
	return out
}

// HasEnabled reports whether at least one credential is available for
// automatic fallback.
func (p *Profile) HasEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.credentials {
		if c.Enabled {
			return true
		}
	}
	return false
}

package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordIsDeterministic(t *testing.T) {
	t.Parallel()

	a := HashPassword("geheim")
	b := HashPassword("geheim")
	c := HashPassword("geheim2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEmpty(t, a)
	// HMAC-SHA512 digests are 64 bytes, 88 characters in base64.
	assert.Len(t, a, 88)
}

func TestCredentialLifecycle(t *testing.T) {
	t.Parallel()

	p := New(filepath.Join(t.TempDir(), "configuration.json"))
	assert.False(t, p.HasEnabled())

	p.SetCredential("alice", "pw1")
	time.Sleep(time.Millisecond)
	p.SetCredential("bob", "pw2")

	require.True(t, p.HasEnabled())
	ordered := p.OrderedEnabled()
	require.Len(t, ordered, 2)
	// Most recently renewed first.
	assert.Equal(t, "bob", ordered[0].Username)
	assert.Equal(t, "alice", ordered[1].Username)

	// A successful fallback use moves the credential to the front.
	time.Sleep(time.Millisecond)
	p.MarkUsed("alice")
	ordered = p.OrderedEnabled()
	assert.Equal(t, "alice", ordered[0].Username)

	// Disabling removes the credential from the fallback order but keeps
	// the hash so re-entering the password revives it in place.
	p.Disable("alice")
	ordered = p.OrderedEnabled()
	require.Len(t, ordered, 1)
	assert.Equal(t, "bob", ordered[0].Username)

	p.SetCredential("alice", "pw1")
	assert.Len(t, p.OrderedEnabled(), 2)
}

func TestSetCredentialUpsertsInPlace(t *testing.T) {
	t.Parallel()

	p := New(filepath.Join(t.TempDir(), "configuration.json"))
	first := p.SetCredential("alice", "pw1")
	second := p.SetCredential("alice", "pw2")

	assert.Same(t, first, second)
	assert.Len(t, p.OrderedEnabled(), 1)
	assert.Equal(t, HashPassword("pw2"), second.PasswordHash)
}

func TestKnownShiftCatalogDeduplicates(t *testing.T) {
	t.Parallel()

	p := New(filepath.Join(t.TempDir(), "configuration.json"))
	ks := KnownShift{ConfigKey: "#R1T#4334#", RemoteTypeID: 4334, FullName: "RTW 1 Tag", ShortName: "R1T"}

	assert.True(t, p.AddKnownShift(ks))
	assert.False(t, p.AddKnownShift(ks))
	assert.True(t, p.AddKnownShift(KnownShift{ConfigKey: "#K1#7#", RemoteTypeID: 7, FullName: "KTW 1", ShortName: "K1"}))

	catalog := p.KnownShifts()
	require.Len(t, catalog, 2)
	// Sorted by short name.
	assert.Equal(t, "K1", catalog[0].ShortName)
	assert.Equal(t, "R1T", catalog[1].ShortName)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "configuration.json")
	p := New(path)
	p.SetCredential("alice", "pw1")
	p.Disable("alice")
	p.SetCredential("bob", "pw2")
	p.AddKnownShift(KnownShift{ConfigKey: "#R1T#4334#", RemoteTypeID: 4334, FullName: "RTW 1 Tag", ShortName: "R1T"})
	require.NoError(t, p.Save())

	loaded := Load(path)
	ordered := loaded.OrderedEnabled()
	require.Len(t, ordered, 1)
	assert.Equal(t, "bob", ordered[0].Username)
	assert.Equal(t, HashPassword("pw2"), ordered[0].PasswordHash)
	require.Len(t, loaded.KnownShifts(), 1)

	// The disabled credential survived with its hash intact.
	loaded.SetCredential("alice", "pw1")
	assert.Len(t, loaded.OrderedEnabled(), 2)
}

func TestLoadCorruptFileStartsFresh(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "configuration.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	p := Load(path)
	assert.False(t, p.HasEnabled())
	assert.Empty(t, p.KnownShifts())

	// The fresh profile still saves to the original path.
	p.SetCredential("alice", "pw")
	require.NoError(t, p.Save())
	assert.True(t, Load(path).HasEnabled())
}

func TestLoadMissingFileStartsFresh(t *testing.T) {
	t.Parallel()

	p := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.False(t, p.HasEnabled())
}

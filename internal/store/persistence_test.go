package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wachbuch/roster-mirror/internal/roster"
)

func TestSaveAndReopenRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	s, lock, err := Open(path, testKey())
	require.NoError(t, err)

	var shifts []*roster.Shift
	var employees []*roster.Employee
	for i := 1; i <= 25; i++ {
		employees = append(employees, roster.NewEmployee(int64(i), "Vorname", fmt.Sprintf("Name%02d", i)))
		for j := 0; j < 4; j++ {
			shifts = append(shifts, testShift(i, int64(4000+j), fmt.Sprintf("S%d", j), int64(i)))
		}
	}
	s.ImportPublic(employees, shifts, day(1), day(25))
	s.ImportPrivate([]*roster.Shift{testShift(2, 4335, "R1N", 0)})
	require.NoError(t, s.SetQualification(1, roster.QualificationNA))
	require.NoError(t, s.Save())
	require.NoError(t, lock.Unlock())

	reopened, lock2, err := Open(path, testKey())
	require.NoError(t, err)
	defer lock2.Unlock()

	assert.Len(t, reopened.Employees(), 25)
	assert.Equal(t, roster.QualificationNA, reopened.Employee(1).Qualification)
	for i := 1; i <= 25; i++ {
		assert.Len(t, reopened.ShiftsOn(day(i)), 4)
	}
	assert.False(t, reopened.HasPrivateData(2024, time.March), "the private cache never touches disk")
}

func TestClassificationPersistsImmediately(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	s, lock, err := Open(path, testKey())
	require.NoError(t, err)
	s.ImportPublic([]*roster.Employee{roster.NewEmployee(100, "Max", "Muster")},
		nil, day(1), day(1))
	require.NoError(t, s.SetQualification(100, roster.QualificationNFS))
	require.NoError(t, s.SetAssignedStation(100, "Wache 1"))
	// No explicit Save: operator edits must already be on disk.
	require.NoError(t, lock.Unlock())

	reopened, lock2, err := Open(path, testKey())
	require.NoError(t, err)
	defer lock2.Unlock()

	emp := reopened.Employee(100)
	require.NotNil(t, emp)
	assert.Equal(t, roster.QualificationNFS, emp.Qualification)
	assert.Equal(t, "Wache 1", emp.AssignedStation)
}

func TestOpenTamperedFileStartsFresh(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	s, lock, err := Open(path, testKey())
	require.NoError(t, err)
	s.ImportPublic(nil, []*roster.Shift{testShift(1, 4334, "R1T", 100)}, day(1), day(1))
	require.NoError(t, s.Save())
	require.NoError(t, lock.Unlock())

	// Flip one ciphertext byte: the GCM tag check must reject the file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o600))

	reopened, lock2, err := Open(path, testKey())
	require.NoError(t, err)
	defer lock2.Unlock()
	assert.False(t, reopened.HasData(day(1)))
}

func TestOpenWithWrongKeyStartsFresh(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	s, lock, err := Open(path, testKey())
	require.NoError(t, err)
	s.ImportPublic(nil, []*roster.Shift{testShift(1, 4334, "R1T", 100)}, day(1), day(1))
	require.NoError(t, s.Save())
	require.NoError(t, lock.Unlock())

	other := make([]byte, 32)
	reopened, lock2, err := Open(path, other)
	require.NoError(t, err)
	defer lock2.Unlock()
	assert.False(t, reopened.HasData(day(1)))
}

func TestOpenRefusesSecondInstance(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	_, lock, err := Open(path, testKey())
	require.NoError(t, err)
	defer lock.Unlock()

	_, _, err = Open(path, testKey())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestStoreFileIsNotPlaintext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	s, lock, err := Open(path, testKey())
	require.NoError(t, err)
	defer lock.Unlock()

	s.ImportPublic([]*roster.Employee{roster.NewEmployee(100, "Max", "Muster")},
		[]*roster.Shift{testShift(1, 4334, "R1T", 100)}, day(1), day(1))
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Muster")
	assert.NotContains(t, string(data), "R1T")
}

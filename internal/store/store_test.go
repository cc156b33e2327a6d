package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wachbuch/roster-mirror/internal/roster"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, lock, err := Open(filepath.Join(t.TempDir(), "data.db"), testKey())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock.Unlock() })
	return s
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.Local)
}

func testShift(d int, typeID int64, short string, employees ...int64) *roster.Shift {
	date := day(d)
	s := roster.NewShift(typeID, "Dienst "+short, short,
		date, date.Add(7*time.Hour), date.Add(19*time.Hour), 30*time.Minute, employees[0])
	for _, id := range employees[1:] {
		s.Bind(id)
	}
	return s
}

func TestImportPublicMergesEmployees(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic([]*roster.Employee{roster.NewEmployee(100, "Max", "Muster")},
		[]*roster.Shift{testShift(1, 4334, "R1T", 100)}, day(1), day(1))

	require.NoError(t, s.SetQualification(100, roster.QualificationNFS))
	require.NoError(t, s.SetAssignedStation(100, "Wache 1"))

	// A later import renames but must not touch the classification.
	s.ImportPublic([]*roster.Employee{roster.NewEmployee(100, "Maximilian", "Muster")},
		[]*roster.Shift{testShift(1, 4334, "R1T", 100)}, day(1), day(1))

	emp := s.Employee(100)
	require.NotNil(t, emp)
	assert.Equal(t, "Maximilian", emp.FirstName)
	assert.Equal(t, roster.QualificationNFS, emp.Qualification)
	assert.Equal(t, "Wache 1", emp.AssignedStation)
}

func TestImportPublicPrunesRemovedShifts(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic(nil, []*roster.Shift{
		testShift(1, 4334, "R1T", 100),
		testShift(1, 4335, "R1N", 200),
		testShift(20, 4334, "R1T", 100),
	}, day(1), day(10))

	// The next batch for days 1..10 no longer carries the night shift.
	s.ImportPublic(nil, []*roster.Shift{testShift(1, 4334, "R1T", 100)}, day(1), day(10))

	assert.NotNil(t, s.GetShift(day(1), "#R1T#4334#"))
	assert.Nil(t, s.GetShift(day(1), "#R1N#4335#"), "shift missing from its own range must be pruned")
	assert.NotNil(t, s.GetShift(day(20), "#R1T#4334#"), "shift outside the batch range must survive")
}

func TestImportPublicReplacesWholeRecord(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic(nil, []*roster.Shift{testShift(1, 4334, "R1T", 100, 200)}, day(1), day(1))
	s.ImportPublic(nil, []*roster.Shift{testShift(1, 4334, "R1T", 300)}, day(1), day(1))

	shift := s.GetShift(day(1), "#R1T#4334#")
	require.NotNil(t, shift)
	assert.Equal(t, []int64{300}, shift.BoundEmployee, "a re-imported shift carries only the new crew")
}

func TestStaleness(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	assert.True(t, s.IsStale(day(1), 6*time.Hour), "a day with no data is always stale")
	assert.False(t, s.HasData(day(1)))
	assert.True(t, s.LatestFetch(day(1)).IsZero())

	fresh := testShift(1, 4334, "R1T", 100)
	old := testShift(1, 4335, "R1N", 200)
	old.FetchedAt = time.Now().Add(-7 * time.Hour)
	s.ImportPublic(nil, []*roster.Shift{fresh, old}, day(1), day(1))

	assert.True(t, s.HasData(day(1)))
	assert.True(t, s.IsStale(day(1), 6*time.Hour), "one aged shift makes the whole day stale")
	assert.False(t, s.IsStale(day(1), 8*time.Hour))
	assert.Equal(t, old.FetchedAt, s.LatestFetch(day(1)), "the day is only as fresh as its oldest shift")
}

func TestEvictOlderThan(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic(nil, []*roster.Shift{
		testShift(1, 4334, "R1T", 100),
		testShift(15, 4334, "R1T", 100),
	}, day(1), day(15))
	s.ImportPrivate([]*roster.Shift{testShift(2, 4335, "R1N", 0)})

	evicted := s.EvictOlderThan(day(10))
	assert.Equal(t, 1, evicted)
	assert.False(t, s.HasData(day(1)))
	assert.True(t, s.HasData(day(15)))
	require.Len(t, s.PrivateShiftsForMonth(2024, time.March), 1,
		"retention eviction leaves the private cache alone")
}

func TestImportPrivateUpsertsOnly(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPrivate([]*roster.Shift{
		testShift(5, 4334, "R1T", 0),
		testShift(12, 4335, "R1N", 0),
	})

	assert.True(t, s.HasPrivateData(2024, time.March))
	assert.False(t, s.IsPrivateStale(2024, time.March, 6*time.Hour))
	assert.True(t, s.IsPrivateStale(2024, time.April, 6*time.Hour), "an empty month is stale")
	assert.False(t, s.LatestPrivateFetch(2024, time.March).IsZero())
	assert.True(t, s.LatestPrivateFetch(2024, time.April).IsZero())

	// A partial re-import replaces matching records but never removes
	// the rest; only ClearPrivateCache empties the owner's cache.
	replacement := testShift(5, 4334, "R1T", 0)
	replacement.PauseDuration = 45 * time.Minute
	s.ImportPrivate([]*roster.Shift{replacement})

	shifts := s.PrivateShiftsForMonth(2024, time.March)
	require.Len(t, shifts, 2)
	assert.Equal(t, "#2024-03-05#R1T#4334#", shifts[0].PrimaryKey())
	assert.Equal(t, 45*time.Minute, shifts[0].PauseDuration)
	assert.Equal(t, "#2024-03-12#R1N#4335#", shifts[1].PrimaryKey())

	s.ClearPrivateCache()
	assert.False(t, s.HasPrivateData(2024, time.March))
}

func TestImportPublicKeepsOverCapacityCrew(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic(nil, []*roster.Shift{testShift(1, 4334, "R1T", 100, 200, 300, 400)}, day(1), day(1))

	shift := s.GetShift(day(1), "#R1T#4334#")
	require.NotNil(t, shift, "an overcrewed shift is noticed, not rejected")
	assert.ElementsMatch(t, []int64{100, 200, 300, 400}, shift.BoundEmployee)
}

func TestClassificationOfUnknownEmployee(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	assert.Error(t, s.SetQualification(1, roster.QualificationRS))
	assert.Error(t, s.SetAssignedStation(1, "Wache 1"))
}

func TestUnknownQualificationListing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic([]*roster.Employee{
		roster.NewEmployee(100, "Max", "Muster"),
		roster.NewEmployee(200, "Erika", "Beispiel"),
	}, nil, day(1), day(1))
	require.NoError(t, s.SetQualification(100, roster.QualificationRS))

	unknown := s.UnknownQualification()
	require.Len(t, unknown, 1)
	assert.Equal(t, int64(200), unknown[0].ID)
}

func TestCrewResolution(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic([]*roster.Employee{
		roster.NewEmployee(100, "Max", "Muster"),
		roster.NewEmployee(200, "Erika", "Beispiel"),
		roster.NewEmployee(300, "Fritz", "Azubi"),
	}, []*roster.Shift{testShift(1, 4334, "R1T", 100, 200, 300)}, day(1), day(1))
	require.NoError(t, s.SetQualification(100, roster.QualificationRS))
	require.NoError(t, s.SetQualification(200, roster.QualificationNFS))
	require.NoError(t, s.SetQualification(300, roster.QualificationAzubi))

	shift := s.GetShift(day(1), "#R1T#4334#")
	require.NotNil(t, shift)

	crew := s.BoundEmployees(shift)
	require.Len(t, crew, 3)
	assert.Equal(t, int64(200), crew[0].ID, "highest qualification leads the crew")
	assert.Equal(t, int64(100), crew[1].ID)
	assert.Equal(t, int64(300), crew[2].ID)

	buddy := s.Buddy(shift, 100)
	require.NotNil(t, buddy)
	assert.Equal(t, int64(200), buddy.ID)
	assert.Nil(t, s.Buddy(shift, 999), "a stranger has no buddy")
}

func TestShiftsOnOrdersByShortName(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic(nil, []*roster.Shift{
		testShift(1, 4335, "R1N", 100),
		testShift(1, 4334, "R1T", 100),
		testShift(1, 7, "K1", 200),
	}, day(1), day(1))

	shifts := s.ShiftsOn(day(1))
	require.Len(t, shifts, 3)
	assert.Equal(t, "K1", shifts[0].ShortName)
	assert.Equal(t, "R1N", shifts[1].ShortName)
	assert.Equal(t, "R1T", shifts[2].ShortName)
	assert.Empty(t, s.ShiftsOn(day(2)))
}

func TestAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.ImportPublic([]*roster.Employee{roster.NewEmployee(100, "Max", "Muster")},
		[]*roster.Shift{testShift(1, 4334, "R1T", 100)}, day(1), day(1))

	shift := s.GetShift(day(1), "#R1T#4334#")
	shift.Bind(999)
	assert.Equal(t, []int64{100}, s.GetShift(day(1), "#R1T#4334#").BoundEmployee)

	emp := s.Employee(100)
	emp.FirstName = "Hacked"
	assert.Equal(t, "Max", s.Employee(100).FirstName)
}

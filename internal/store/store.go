// Package store is the local mirror of the remote roster: employees and
// shifts held in memory behind a lock, persisted encrypted on disk. The
// public cache survives restarts; the private cache (the session
// owner's own duties) is memory-only.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wachbuch/roster-mirror/internal/logger"
	"github.com/wachbuch/roster-mirror/internal/roster"
)

// maxCrewSize is the expected upper bound of a crew. More bound
// employees than this on one shift usually means the remote data is
// off; the import keeps the record anyway and logs it.
const maxCrewSize = 3

// Store holds the mirrored roster. All methods are safe for concurrent
// use; accessors return copies, never internal pointers.
type Store struct {
	mu        sync.RWMutex
	path      string
	key       []byte
	employees map[int64]*roster.Employee
	public    map[string]*roster.Shift
	private   map[string]*roster.Shift

	// publicByDay indexes public primary keys by day key so pruning and
	// eviction never scan the whole shift map.
	publicByDay map[string]map[string]struct{}
}

func newEmpty(path string, key []byte) *Store {
	return &Store{
		path:        path,
		key:         key,
		employees:   make(map[int64]*roster.Employee),
		public:      make(map[string]*roster.Shift),
		private:     make(map[string]*roster.Shift),
		publicByDay: make(map[string]map[string]struct{}),
	}
}

func (s *Store) indexPublic(shift *roster.Shift) {
	day := roster.DayKey(shift.Date)
	if s.publicByDay[day] == nil {
		s.publicByDay[day] = make(map[string]struct{})
	}
	s.publicByDay[day][shift.PrimaryKey()] = struct{}{}
}

func (s *Store) dropPublic(day, primaryKey string) {
	delete(s.public, primaryKey)
	if keys := s.publicByDay[day]; keys != nil {
		delete(keys, primaryKey)
		if len(keys) == 0 {
			delete(s.publicByDay, day)
		}
	}
}

// ImportPublic merges one fetched range into the public cache. Shifts
// replace whole records; employees merge name fields only, so operator
// classification survives. Public shifts inside [from, to] that the
// batch no longer carries are pruned: the remote deleted or moved them.
func (s *Store) ImportPublic(employees []*roster.Employee, shifts []*roster.Shift, from, to time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, emp := range employees {
		if existing, ok := s.employees[emp.ID]; ok {
			existing.FirstName = emp.FirstName
			existing.LastName = emp.LastName
			continue
		}
		clone := *emp
		s.employees[emp.ID] = &clone
	}

	batchKeys := make(map[string]struct{}, len(shifts))
	for _, shift := range shifts {
		if len(shift.BoundEmployee) > maxCrewSize {
			logger.Warn("shift crewed beyond capacity",
				"shift", shift.PrimaryKey(), "crew", len(shift.BoundEmployee))
		}
		clone := *shift
		clone.BoundEmployee = append([]int64(nil), shift.BoundEmployee...)
		s.public[clone.PrimaryKey()] = &clone
		s.indexPublic(&clone)
		batchKeys[clone.PrimaryKey()] = struct{}{}
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		dayKey := roster.DayKey(day)
		for primaryKey := range s.publicByDay[dayKey] {
			if _, ok := batchKeys[primaryKey]; !ok {
				s.dropPublic(dayKey, primaryKey)
			}
		}
	}
}

// ImportPrivate upserts the fetched batch into the owner's duty cache.
// Unlike the public import there is no pruning: stale entries go away
// with ClearPrivateCache, never record by record.
func (s *Store) ImportPrivate(shifts []*roster.Shift) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, shift := range shifts {
		clone := *shift
		s.private[clone.PrimaryKey()] = &clone
	}
}

// ClearPrivateCache drops the owner's duty cache wholesale, e.g. when
// the stored credentials change identity.
func (s *Store) ClearPrivateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.private = make(map[string]*roster.Shift)
}

// HasData reports whether any public shift is cached for the given day.
func (s *Store) HasData(date time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.publicByDay[roster.DayKey(date)]) > 0
}

// IsStale reports whether the given day needs a refresh: it has no
// cached shifts at all, or any of its shifts was fetched longer than
// maxAge ago.
func (s *Store) IsStale(date time.Time, maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.publicByDay[roster.DayKey(date)]
	if len(keys) == 0 {
		return true
	}
	cutoff := time.Now().Add(-maxAge)
	for primaryKey := range keys {
		if s.public[primaryKey].FetchedAt.Before(cutoff) {
			return true
		}
	}
	return false
}

// LatestFetch returns the oldest fetch timestamp among the day's public
// shifts, i.e. the time the whole day was last known good. Zero when
// the day is empty.
func (s *Store) LatestFetch(date time.Time) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest time.Time
	for primaryKey := range s.publicByDay[roster.DayKey(date)] {
		fetched := s.public[primaryKey].FetchedAt
		if oldest.IsZero() || fetched.Before(oldest) {
			oldest = fetched
		}
	}
	return oldest
}

// HasPrivateData reports whether the owner's cache holds any shift in
// the given month.
func (s *Store) HasPrivateData(year int, month time.Month) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, shift := range s.private {
		if shift.Date.Year() == year && shift.Date.Month() == month {
			return true
		}
	}
	return false
}

// IsPrivateStale reports whether the owner's cache for the month needs
// a refresh.
func (s *Store) IsPrivateStale(year int, month time.Month, maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-maxAge)
	found := false
	for _, shift := range s.private {
		if shift.Date.Year() != year || shift.Date.Month() != month {
			continue
		}
		found = true
		if shift.FetchedAt.Before(cutoff) {
			return true
		}
	}
	return !found
}

// LatestPrivateFetch returns the oldest fetch timestamp among the
// month's private shifts, zero when the month is empty.
func (s *Store) LatestPrivateFetch(year int, month time.Month) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest time.Time
	for _, shift := range s.private {
		if shift.Date.Year() != year || shift.Date.Month() != month {
			continue
		}
		if oldest.IsZero() || shift.FetchedAt.Before(oldest) {
			oldest = shift.FetchedAt
		}
	}
	return oldest
}

// PrivateShiftsForMonth returns copies of the owner's shifts in the
// month, ordered by date.
func (s *Store) PrivateShiftsForMonth(year int, month time.Month) []*roster.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*roster.Shift
	for _, shift := range s.private {
		if shift.Date.Year() == year && shift.Date.Month() == month {
			clone := *shift
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// EvictOlderThan removes public shifts dated before cutoff and returns
// how many records went away. Retention only concerns the persisted
// cache; the private cache is ephemeral and cleared wholesale instead.
func (s *Store) EvictOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoffKey := roster.DayKey(cutoff)
	evicted := 0
	for day, keys := range s.publicByDay {
		if day >= cutoffKey {
			continue
		}
		for primaryKey := range keys {
			delete(s.public, primaryKey)
			evicted++
		}
		delete(s.publicByDay, day)
	}
	return evicted
}

// ShiftCount returns the number of public shifts held.
func (s *Store) ShiftCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.public)
}

// GetShift returns a copy of the public shift with the given config key
// on the given day, or nil.
func (s *Store) GetShift(date time.Time, configKey string) *roster.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()

	primaryKey := fmt.Sprintf("#%s%s", date.Format(roster.DateOnlyFormat), configKey)
	shift, ok := s.public[primaryKey]
	if !ok {
		return nil
	}
	clone := *shift
	clone.BoundEmployee = append([]int64(nil), shift.BoundEmployee...)
	return &clone
}

// ShiftsOn returns copies of all public shifts on the given day,
// ordered by short name.
func (s *Store) ShiftsOn(date time.Time) []*roster.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*roster.Shift
	for primaryKey := range s.publicByDay[roster.DayKey(date)] {
		shift := s.public[primaryKey]
		clone := *shift
		clone.BoundEmployee = append([]int64(nil), shift.BoundEmployee...)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShortName < out[j].ShortName })
	return out
}

// Employee returns a copy of the employee record, or nil.
func (s *Store) Employee(id int64) *roster.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emp, ok := s.employees[id]
	if !ok {
		return nil
	}
	clone := *emp
	return &clone
}

// Employees returns copies of all known employees, ordered by last then
// first name.
func (s *Store) Employees() []*roster.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*roster.Employee, 0, len(s.employees))
	for _, emp := range s.employees {
		clone := *emp
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out
}

// UnknownQualification returns employees an operator has not classified
// yet.
func (s *Store) UnknownQualification() []*roster.Employee {
	var out []*roster.Employee
	for _, emp := range s.Employees() {
		if emp.Qualification == roster.QualificationUnknown {
			out = append(out, emp)
		}
	}
	return out
}

// SetQualification classifies an employee. Operator edits are persisted
// right away: there is no later fetch guaranteed to flush them.
func (s *Store) SetQualification(id int64, q roster.Qualification) error {
	s.mu.Lock()
	emp, ok := s.employees[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown employee %d", id)
	}
	emp.Qualification = q
	s.mu.Unlock()
	return s.Save()
}

// SetAssignedStation records an employee's home station and persists it
// immediately.
func (s *Store) SetAssignedStation(id int64, station string) error {
	s.mu.Lock()
	emp, ok := s.employees[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown employee %d", id)
	}
	emp.AssignedStation = station
	s.mu.Unlock()
	return s.Save()
}

// BoundEmployees resolves a shift's crew to employee records, highest
// qualification first, names breaking ties.
func (s *Store) BoundEmployees(shift *roster.Shift) []*roster.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*roster.Employee
	for _, id := range shift.BoundEmployee {
		if emp, ok := s.employees[id]; ok {
			clone := *emp
			out = append(out, &clone)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Qualification != out[j].Qualification {
			return out[i].Qualification > out[j].Qualification
		}
		return out[i].LastName < out[j].LastName
	})
	return out
}

// Buddy returns the crew mate of the given employee on the shift, or
// nil when the employee works alone or is not on the shift.
func (s *Store) Buddy(shift *roster.Shift, employeeID int64) *roster.Employee {
	if !shift.Bound(employeeID) {
		return nil
	}
	for _, emp := range s.BoundEmployees(shift) {
		if emp.ID != employeeID {
			return emp
		}
	}
	return nil
}

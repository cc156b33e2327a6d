// Package roster defines the domain model shared by the remote client,
// the local store and the sync coordinator: employees, shifts and the
// keys that identify them.
package roster

import (
	"fmt"
	"time"
)

// DateOnlyFormat is the day-granularity date layout used in shift keys
// and in the remote API's path parameters.
const DateOnlyFormat = "2006-01-02"

// DayKey returns the day-granularity key for a timestamp.
func DayKey(t time.Time) string {
	return t.Format(DateOnlyFormat)
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Qualification is the rank of an employee. The zero value is not
// meaningful; imported employees start as QualificationUnknown until an
// operator classifies them. The numeric order matters: crews are listed
// highest rank first.
type Qualification int

// Qualification levels, ascending by rank. The UNKNOWN slot sits between
// the assistant ranks on purpose so that unclassified employees sort into
// the middle of a crew rather than the top or bottom.
const (
	QualificationAzubi Qualification = iota
	QualificationRH
	QualificationRS
	QualificationUnknown
	QualificationRA
	QualificationNFS
	QualificationNA
)

// ShortLabel returns the parenthesised rank abbreviation, or an empty
// string for trainees and unclassified employees.
func (q Qualification) ShortLabel() string {
	switch q {
	case QualificationRH:
		return "(RH)"
	case QualificationRS:
		return "(RS)"
	case QualificationRA:
		return "(RA)"
	case QualificationNFS:
		return "(NFS)"
	case QualificationNA:
		return "(NA)"
	default:
		return ""
	}
}

// FullLabel returns the spelled-out rank name.
func (q Qualification) FullLabel() string {
	switch q {
	case QualificationAzubi:
		return "Azubi"
	case QualificationRH:
		return "Rettungshelfer"
	case QualificationRS:
		return "Rettungssanitäter"
	case QualificationRA:
		return "Rettungsassistent"
	case QualificationNFS:
		return "Notfallsanitäter"
	case QualificationNA:
		return "Notarzt"
	default:
		return "Unbekannt"
	}
}

// Employee is one person known to the mirror. The identity is assigned by
// the remote service and stable across time. Name fields are refreshed by
// merge-imports; Qualification and AssignedStation are operator-maintained
// and survive imports.
type Employee struct {
	ID              int64         `json:"id"`
	FirstName       string        `json:"firstName"`
	LastName        string        `json:"lastName"`
	Qualification   Qualification `json:"qualification"`
	AssignedStation string        `json:"assignedStation,omitempty"`
}

// NewEmployee creates an employee as delivered by a fetch: names set,
// qualification unknown, no station assignment.
func NewEmployee(id int64, firstName, lastName string) *Employee {
	return &Employee{
		ID:            id,
		FirstName:     firstName,
		LastName:      lastName,
		Qualification: QualificationUnknown,
	}
}

// NameLabel returns "First Last".
func (e *Employee) NameLabel() string {
	return fmt.Sprintf("%s %s", e.FirstName, e.LastName)
}

// ListLabel returns "Last, First (RANK)" for roster listings.
func (e *Employee) ListLabel() string {
	return fmt.Sprintf("%s, %s %s", e.LastName, e.FirstName, e.Qualification.ShortLabel())
}

// Shift is one duty instance on one calendar day, possibly crewed by
// several employees. FetchedAt records the last successful write and
// drives the staleness queries.
type Shift struct {
	RemoteTypeID  int64         `json:"remoteTypeId"`
	FullName      string        `json:"fullName"`
	ShortName     string        `json:"shortName"`
	Date          time.Time     `json:"date"`
	TimeStart     time.Time     `json:"timeStart"`
	TimeEnd       time.Time     `json:"timeEnd"`
	PauseDuration time.Duration `json:"pauseDuration"`
	BoundEmployee []int64       `json:"boundEmployee"`
	FetchedAt     time.Time     `json:"fetchedAt"`
}

// NewShift creates a shift bound to a single employee with FetchedAt set
// to now. Further employees accumulate via Bind.
func NewShift(remoteTypeID int64, fullName, shortName string,
	date, timeStart, timeEnd time.Time, pause time.Duration, employeeID int64) *Shift {
	return &Shift{
		RemoteTypeID:  remoteTypeID,
		FullName:      fullName,
		ShortName:     shortName,
		Date:          date,
		TimeStart:     timeStart,
		TimeEnd:       timeEnd,
		PauseDuration: pause,
		BoundEmployee: []int64{employeeID},
		FetchedAt:     time.Now(),
	}
}

// ConfigKey identifies a kind of shift independent of date. The format
// ("#<short>#<id>#") is shared with the known-shift catalog and must not
// change, or existing catalogs stop matching.
func (s *Shift) ConfigKey() string {
	return fmt.Sprintf("#%s#%d#", s.ShortName, s.RemoteTypeID)
}

// PrimaryKey uniquely identifies one shift instance on one day and is the
// store's map key.
func (s *Shift) PrimaryKey() string {
	return fmt.Sprintf("#%s%s", s.Date.Format(DateOnlyFormat), s.ConfigKey())
}

// Bind adds an employee to the crew if not already present and reports
// whether the set changed.
func (s *Shift) Bind(employeeID int64) bool {
	for _, id := range s.BoundEmployee {
		if id == employeeID {
			return false
		}
	}
	s.BoundEmployee = append(s.BoundEmployee, employeeID)
	return true
}

// Bound reports whether the employee is part of the crew.
func (s *Shift) Bound(employeeID int64) bool {
	for _, id := range s.BoundEmployee {
		if id == employeeID {
			return true
		}
	}
	return false
}

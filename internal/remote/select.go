package remote

import (
	"time"

	"github.com/wachbuch/roster-mirror/internal/roster"
)

// placeholderShortName marks filler entries (days off, blockers) that
// the public roster must not show. The private list keeps them: the
// owner wants to see their own blockers.
const placeholderShortName = "/"

// pickActiveDuty reduces one day's duty candidates to the single entry
// that is currently in force. The service keeps superseded revisions in
// the payload; the newest change wins. The winner is then validated,
// not replaced: if the newest revision is incomplete or belongs to a
// foreign department, the day has no active duty at all.
func pickActiveDuty(duties []wireDuty, departmentID int64, publicOnly bool) *wireDuty {
	var newest *wireDuty
	for i := range duties {
		if newest == nil || duties[i].ChangedAt.After(newest.ChangedAt.Time) {
			newest = &duties[i]
		}
	}
	if newest == nil {
		return nil
	}

	if newest.Kind == nil || newest.Area == nil || len(newest.Times) == 0 {
		return nil
	}
	if newest.Area.ID != departmentID {
		return nil
	}
	if publicOnly && newest.Kind.ShortName == placeholderShortName {
		return nil
	}
	return newest
}

// shiftFromDuty builds the domain shift for a validated duty. Only the
// first time window counts; Pause comes in minutes.
func shiftFromDuty(duty *wireDuty, date time.Time, employeeID int64) *roster.Shift {
	window := duty.Times[0]
	return roster.NewShift(
		duty.Kind.ID,
		duty.Kind.Name,
		duty.Kind.ShortName,
		date,
		window.Start.Time,
		window.End.Time,
		time.Duration(window.Pause)*time.Minute,
		employeeID,
	)
}

// reducePlan turns the public payload into employees and crewed shifts.
// Shifts sharing a primary key accumulate their crew; an employee with
// no surviving duty in the range is dropped entirely.
func reducePlan(employees []planEmployee, departmentID int64) *RangeResult {
	result := &RangeResult{}
	byKey := make(map[string]*roster.Shift)

	for _, emp := range employees {
		listed := false
		for _, day := range emp.Days {
			duty := pickActiveDuty(day.Duties, departmentID, true)
			if duty == nil {
				continue
			}
			listed = true

			shift := shiftFromDuty(duty, day.Date.Time, emp.ID)
			if existing, ok := byKey[shift.PrimaryKey()]; ok {
				existing.Bind(emp.ID)
				continue
			}
			byKey[shift.PrimaryKey()] = shift
			result.Shifts = append(result.Shifts, shift)
		}
		if listed {
			result.Employees = append(result.Employees, roster.NewEmployee(emp.ID, emp.FirstName, emp.LastName))
		}
	}
	return result
}

// reducePrivate turns the owner's duty list into shifts. The payload
// carries no employee identities, so the shifts stay unbound; the store
// keeps them in a separate cache keyed the same way as public shifts.
func reducePrivate(items []privateDay, departmentID int64) *RangeResult {
	result := &RangeResult{}

	for _, item := range items {
		duty := pickActiveDuty(item.Duties, departmentID, false)
		if duty == nil {
			continue
		}
		shift := shiftFromDuty(duty, item.Day.Time, 0)
		shift.BoundEmployee = nil
		result.Shifts = append(result.Shifts, shift)
	}
	return result
}

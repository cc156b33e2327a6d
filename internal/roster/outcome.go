package roster

import "time"

// ClientState is the closed error taxonomy for every remote operation.
// Transport and parse failures inside the client are translated into one
// of these values at the call boundary; raw errors never cross it.
type ClientState int

const (
	// StateSuccessful means the operation completed and its payload is usable.
	StateSuccessful ClientState = iota
	// StateServerAppError covers unexpected payloads or statuses from the
	// remote, including a session-expired signal that cannot be resolved
	// without user re-authentication.
	StateServerAppError
	// StateCredentialsError means the login was rejected, or every stored
	// credential has been exhausted.
	StateCredentialsError
	// StateConnectionError covers network unreachability, DNS failure and
	// the transport timeout.
	StateConnectionError
)

// String returns the canonical name of the state.
func (s ClientState) String() string {
	switch s {
	case StateSuccessful:
		return "SUCCESSFUL"
	case StateServerAppError:
		return "SERVER_APP_ERROR"
	case StateCredentialsError:
		return "CREDENTIALS_ERROR"
	case StateConnectionError:
		return "CONNECTION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// FetchOutcome is what every coordinator retrieval returns. DataAvailable
// gates blocking vs. non-blocking failure presentation in the consumer:
// when cached data exists, a failure is a notice carrying the age of that
// data; when none exists, the failure blocks the view.
type FetchOutcome struct {
	State         ClientState
	DataAvailable bool
	LastFetchTime time.Time
}

// Failed reports whether the outcome represents anything but success.
func (o FetchOutcome) Failed() bool {
	return o.State != StateSuccessful
}

// SuccessOutcome is the outcome of a retrieval that ended with usable,
// fresh data.
func SuccessOutcome() FetchOutcome {
	return FetchOutcome{
		State:         StateSuccessful,
		DataAvailable: true,
		LastFetchTime: time.Now(),
	}
}

// FailureOutcome is the outcome of a failed retrieval, combined with
// whatever availability facts the cache still holds. A successful state is
// coerced to SERVER_APP_ERROR: this constructor is for failures only.
func FailureOutcome(state ClientState, dataAvailable bool, lastFetch time.Time) FetchOutcome {
	if state == StateSuccessful {
		state = StateServerAppError
	}
	return FetchOutcome{
		State:         state,
		DataAvailable: dataAvailable,
		LastFetchTime: lastFetch,
	}
}

// MasterData is the authenticated user's own identity as reported by the
// remote service.
type MasterData struct {
	State          ClientState
	EmployeeID     int64
	FirstName      string
	LastName       string
	EmployeeNumber string
}

// Failed reports whether the master-data fetch failed.
func (m MasterData) Failed() bool {
	return m.State != StateSuccessful
}

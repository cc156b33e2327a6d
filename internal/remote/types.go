package remote

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// The remote service speaks German on the wire; the field names below
// are its contract and must not be "translated".

// wireTime tolerates the timestamp shapes the service emits: RFC 3339,
// zone-less ISO timestamps and bare dates.
type wireTime struct {
	time.Time
}

var wireTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (w *wireTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		w.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		w.Time = time.Time{}
		return nil
	}
	for _, layout := range wireTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			w.Time = t
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", raw)
}

type loginRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

type loginResponse struct {
	Message string `json:"Message"`
	Token   string `json:"Token"`
}

type masterDataResponse struct {
	Message        string `json:"Message"`
	ID             int64  `json:"Id"`
	FirstName      string `json:"Vorname"`
	LastName       string `json:"Nachname"`
	EmployeeNumber string `json:"Personalnummer"`
}

// planResponse is the public roster payload: one entry per employee,
// each carrying per-day duty candidates. A body that carries a Message
// or lacks the collection entirely is a failure report, not data.
type planResponse struct {
	Message   string         `json:"Message"`
	Employees []planEmployee `json:"Mitarbeiter"`
}

type planEmployee struct {
	ID        int64     `json:"Id"`
	LastName  string    `json:"Name"`
	FirstName string    `json:"Vorname"`
	Days      []planDay `json:"DatenJeTag"`
}

type planDay struct {
	Date   wireTime   `json:"Date"`
	Duties []wireDuty `json:"DpDienste"`
}

// privateResponse is the authenticated user's own duty list. Same duty
// shape as the public plan, grouped differently.
type privateResponse struct {
	Message string       `json:"Message"`
	Items   []privateDay `json:"Items"`
}

type privateDay struct {
	Day    wireTime   `json:"Day"`
	Duties []wireDuty `json:"IstDienste"`
}

// wireDuty is one duty candidate. Several revisions of the same day can
// appear; selection picks the newest complete one.
type wireDuty struct {
	ChangedAt wireTime   `json:"GeaendertAm"`
	Confirmed bool       `json:"IstBestaetigt"`
	Times     []dutyTime `json:"Zeiten"`
	Kind      *dutyKind  `json:"Dienst"`
	Area      *dutyArea  `json:"Bereich"`
}

type dutyTime struct {
	Start wireTime `json:"Start"`
	End   wireTime `json:"End"`
	// Pause is in minutes.
	Pause float64 `json:"Pause"`
}

type dutyKind struct {
	ID        int64  `json:"Id"`
	Name      string `json:"Name"`
	ShortName string `json:"ShortName"`
}

type dutyArea struct {
	ID int64 `json:"Id"`
}

// sessionExpiredFragment is the literal the service embeds in its
// Message field when the auth token has lapsed.
const sessionExpiredFragment = "Token ist abgelaufen oder"

func isSessionExpiredMessage(message string) bool {
	return strings.Contains(message, sessionExpiredFragment)
}

package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of Appointment.Data
const DateLayout = "2006-01-02"

// AppointmentStatus represents appointment status values
type AppointmentStatus string

const (
	StatusToDo         AppointmentStatus = "da_fare"
	StatusDone         AppointmentStatus = "completato"
	StatusNotPresented AppointmentStatus = "non_presentato"
	StatusCancelled    AppointmentStatus = "annullato"
)

// Known reports whether the status belongs to the closed status set.
func (s AppointmentStatus) Known() bool {
	switch s {
	case StatusToDo, StatusDone, StatusNotPresented, StatusCancelled:
		return true
	}
	return false
}

// Counted reports whether an appointment in this status is a visit for statistics.
// Unknown statuses are never counted.
func (s AppointmentStatus) Counted() bool {
	return s == StatusToDo || s == StatusDone
}

// AppointmentType represents the kind of visit (PICC line care, general dressing...)
type AppointmentType string

const (
	TypePICC AppointmentType = "PICC"
	TypeMED  AppointmentType = "MED"
)

// Appointment represents a scheduled nursing visit.
// Data is kept as the raw YYYY-MM-DD string: a bad value must not break decoding of a whole snapshot.
type Appointment struct {
	ID          string            `json:"id,omitempty" db:"id"`
	PatientID   string            `json:"patient_id" db:"patient_id"`
	Ambulatorio string            `json:"ambulatorio" db:"ambulatorio"`
	Data        string            `json:"data" db:"data"`
	Ora         string            `json:"ora" db:"ora"`
	Tipo        AppointmentType   `json:"tipo" db:"tipo"`
	Prestazioni []string          `json:"prestazioni" db:"prestazioni"`
	Stato       AppointmentStatus `json:"stato" db:"stato"`
}

// Date parses Data
func (a *Appointment) Date() (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(a.Data))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid appointment date %q: %w", a.Data, err)
	}
	return d, nil
}

// Clone returns a deep copy of the appointment
func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.Prestazioni != nil {
		c.Prestazioni = append([]string(nil), a.Prestazioni...)
	}
	return &c
}

// AppointmentUpdates represents a partial update to an appointment
type AppointmentUpdates struct {
	Data        *string            `json:"data,omitempty"`
	Ora         *string            `json:"ora,omitempty"`
	Tipo        *AppointmentType   `json:"tipo,omitempty"`
	Prestazioni []string           `json:"prestazioni,omitempty"`
	Stato       *AppointmentStatus `json:"stato,omitempty"`
}

// Empty reports whether the update carries no change
func (u *AppointmentUpdates) Empty() bool {
	return u.Data == nil && u.Ora == nil && u.Tipo == nil && u.Prestazioni == nil && u.Stato == nil
}

// Apply applies the update to apt in place
func (u *AppointmentUpdates) Apply(apt *Appointment) {
	if u.Data != nil {
		apt.Data = *u.Data
	}
	if u.Ora != nil {
		apt.Ora = *u.Ora
	}
	if u.Tipo != nil {
		apt.Tipo = *u.Tipo
	}
	if u.Prestazioni != nil {
		apt.Prestazioni = append([]string(nil), u.Prestazioni...)
	}
	if u.Stato != nil {
		apt.Stato = *u.Stato
	}
}

// AppointmentFilters represents filters for appointment queries
type AppointmentFilters struct {
	Ambulatorio string `json:"ambulatorio,omitempty"`
	Data        string `json:"data,omitempty"`
	PatientID   string `json:"patient_id,omitempty"`
}

// Matches reports whether apt satisfies the filters
func (f *AppointmentFilters) Matches(apt *Appointment) bool {
	if f == nil {
		return true
	}
	if f.Ambulatorio != "" && apt.Ambulatorio != f.Ambulatorio {
		return false
	}
	if f.Data != "" && apt.Data != f.Data {
		return false
	}
	if f.PatientID != "" && apt.PatientID != f.PatientID {
		return false
	}
	return true
}

// Patient represents a patient enrolled at a site
type Patient struct {
	ID          string          `json:"id,omitempty" db:"id"`
	Nome        string          `json:"nome" db:"nome"`
	Cognome     string          `json:"cognome" db:"cognome"`
	Tipo        AppointmentType `json:"tipo" db:"tipo"`
	Ambulatorio string          `json:"ambulatorio" db:"ambulatorio"`
}

// MonthRange returns the half-open interval [first day of month, first day of next month)
func MonthRange(year, month int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

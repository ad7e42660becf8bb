package scheduler

import (
	"strings"
	"time"
)

type Role string

const (
	RolePatient   Role = "patient"
	RoleCaregiver Role = "caregiver"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RolePatient:
		return RolePatient, nil
	case RoleCaregiver:
		return RoleCaregiver, nil
	}
	return "", ErrUnknownRole
}

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleCaregiver
}

// DateLayout is the canonical rendering of a reservation date.
const DateLayout = "2006-01-02"

// ParseDate accepts yyyy-mm-dd, with or without zero padding on month and day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-1-2", s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

type Account struct {
	Username string
	Salt     []byte
	Hash     []byte
}

// Identity is who a session acts as.
type Identity struct {
	Role     Role
	Username string
}

type Vaccine struct {
	Name  string
	Doses int
}

type Reservation struct {
	ID        int64
	Date      time.Time
	Caregiver string
	Vaccine   string
	Patient   string
}

// OwnedBy reports whether id is the patient or caregiver on the reservation.
func (r *Reservation) OwnedBy(id Identity) bool {
	switch id.Role {
	case RolePatient:
		return r.Patient == id.Username
	case RoleCaregiver:
		return r.Caregiver == id.Username
	}
	return false
}

// Appointment is a reservation seen from one party's side.
type Appointment struct {
	ID           int64
	Vaccine      string
	Date         time.Time
	Counterparty string
}

type Schedule struct {
	Date       time.Time
	Caregivers []string
	Vaccines   []Vaccine
}

type EventLog struct {
	ID            int64
	EventType     string
	ReservationID *int64
	Payload       []byte
	CreatedAt     time.Time
}

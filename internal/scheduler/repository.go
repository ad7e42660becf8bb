package scheduler

import (
	"context"
	"time"
)

// Repository runs units of work against the scheduler's state. Every
// Tx passed to fn sees a consistent snapshot; when fn returns an error
// none of its writes are kept.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx contains all store interactions needed by the service.
type Tx interface {
	// Accounts, one namespace per role
	CreateAccount(ctx context.Context, role Role, acc Account) error
	GetAccount(ctx context.Context, role Role, username string) (*Account, error)

	// Availability ledger, set semantics on (caregiver, date)
	AddSlot(ctx context.Context, caregiver string, date time.Time) error
	RemoveSlot(ctx context.Context, caregiver string, date time.Time) error
	FindFreeCaregiver(ctx context.Context, date time.Time) (string, error)
	ListOpenCaregivers(ctx context.Context, date time.Time) ([]string, error)

	// Dose inventory
	AddDoses(ctx context.Context, vaccine string, count int) error
	TakeDose(ctx context.Context, vaccine string) (remaining int, err error)
	ReleaseDose(ctx context.Context, vaccine string) error
	ListStockedVaccines(ctx context.Context) ([]Vaccine, error)

	// Reservations
	InsertReservation(ctx context.Context, r Reservation) (*Reservation, error)
	GetReservation(ctx context.Context, id int64) (*Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	ListReservations(ctx context.Context, owner Identity) ([]Reservation, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

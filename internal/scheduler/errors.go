package scheduler

import "errors"

var (
	ErrWeakPassword     = errors.New("password does not meet strength policy")
	ErrInvalidUsername  = errors.New("username must be non-empty and contain no whitespace")
	ErrInvalidDate      = errors.New("date must be formatted as yyyy-mm-dd")
	ErrInvalidDoseCount = errors.New("dose count must not be negative")
	ErrInvalidVaccine   = errors.New("vaccine name must be non-empty")
	ErrUnknownRole      = errors.New("role must be patient or caregiver")

	ErrNotAuthenticated   = errors.New("login required")
	ErrWrongRole          = errors.New("operation not allowed for this role")
	ErrAlreadyLoggedIn    = errors.New("a user is already logged in")
	ErrNotLoggedIn        = errors.New("no user is logged in")
	ErrInvalidCredentials = errors.New("invalid username or password")

	ErrUsernameTaken        = errors.New("username already taken")
	ErrNoCaregiverAvailable = errors.New("no caregiver is available")
	ErrOutOfStock           = errors.New("not enough available doses")
	ErrVaccineUnknown       = errors.New("vaccine not found")

	ErrNotOwner = errors.New("reservation belongs to another user")

	ErrReservationNotFound = errors.New("reservation not found")
	ErrAccountNotFound     = errors.New("account not found")

	ErrBusy = errors.New("resource is busy, please retry")
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindStore Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindOwnership
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindOwnership:
		return "ownership"
	case KindNotFound:
		return "not_found"
	}
	return "store"
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrWeakPassword, ErrInvalidUsername, ErrInvalidDate, ErrInvalidDoseCount, ErrInvalidVaccine, ErrUnknownRole}},
	{KindAuth, []error{ErrNotAuthenticated, ErrWrongRole, ErrAlreadyLoggedIn, ErrNotLoggedIn, ErrInvalidCredentials}},
	{KindConflict, []error{ErrUsernameTaken, ErrNoCaregiverAvailable, ErrOutOfStock, ErrVaccineUnknown}},
	{KindOwnership, []error{ErrNotOwner}},
	{KindNotFound, []error{ErrReservationNotFound, ErrAccountNotFound}},
}

// KindOf classifies err. Anything not recognised is a store failure.
func KindOf(err error) Kind {
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindStore
}

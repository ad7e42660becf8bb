package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/credential"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/metrics"
	redisclient "github.com/hackgods/vaccine-reservation-scheduling/internal/redis"
)

const (
	EventReservationCreated   = "RESERVATION_CREATED"
	EventReservationCancelled = "RESERVATION_CANCELLED"
)

const maxUsernameLength = 255

type Service struct {
	repo   Repository
	locker redisclient.Locker
	hasher credential.Hasher
	log    *slog.Logger
}

type Option func(*Service)

// WithHasher overrides the password hashing cost.
func WithHasher(h credential.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func NewService(repo Repository, locker redisclient.Locker, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		locker: locker,
		hasher: credential.DefaultHasher,
		log:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func validUsername(username string) bool {
	return username != "" &&
		len(username) <= maxUsernameLength &&
		!strings.ContainsFunc(username, unicode.IsSpace)
}

// CreateAccount registers a patient or caregiver. It does not log anyone in.
func (s *Service) CreateAccount(ctx context.Context, role Role, username, password string) error {
	err := s.createAccount(ctx, role, username, password)
	metrics.ObserveAccountCreated(string(role), outcome(err))
	return err
}

func (s *Service) createAccount(ctx context.Context, role Role, username, password string) error {
	if !role.Valid() {
		return ErrUnknownRole
	}
	if !validUsername(username) {
		return ErrInvalidUsername
	}
	if !credential.IsStrong(password) {
		return ErrWeakPassword
	}

	salt, err := credential.Salt()
	if err != nil {
		return err
	}
	acc := Account{
		Username: username,
		Salt:     salt,
		Hash:     s.hasher.Hash(password, salt),
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateAccount(ctx, role, acc)
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return err
		}
		return fmt.Errorf("create %s: %w", role, err)
	}

	s.log.InfoContext(ctx, "account created",
		slog.String("role", string(role)),
		slog.String("username", username),
	)
	return nil
}

// Authenticate checks a password against the stored digest. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, role Role, username, password string) (*Account, error) {
	if !role.Valid() {
		return nil, ErrUnknownRole
	}

	var acc *Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		acc, err = tx.GetAccount(ctx, role, username)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// spend the same work as a real comparison
			s.hasher.Verify(password, make([]byte, credential.SaltSize), nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if !s.hasher.Verify(password, acc.Salt, acc.Hash) {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

// Login authenticates and binds the identity to sess.
func (s *Service) Login(ctx context.Context, sess *Session, role Role, username, password string) (Identity, error) {
	if _, ok := sess.Current(); ok {
		return Identity{}, ErrAlreadyLoggedIn
	}

	acc, err := s.Authenticate(ctx, role, username, password)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{Role: role, Username: acc.Username}
	if err := sess.Login(id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (s *Service) Logout(sess *Session) error {
	return sess.Logout()
}

// UploadAvailability publishes the logged in caregiver as free on date.
// Uploading the same date twice is a no-op.
func (s *Service) UploadAvailability(ctx context.Context, sess *Session, date time.Time) error {
	who, err := sess.Require(RoleCaregiver)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AddSlot(ctx, who.Username, date)
	})
	if err != nil {
		return fmt.Errorf("upload availability: %w", err)
	}
	return nil
}

func (s *Service) AddDoses(ctx context.Context, sess *Session, vaccine string, count int) error {
	if _, err := sess.Require(RoleCaregiver); err != nil {
		return err
	}
	if vaccine == "" {
		return ErrInvalidVaccine
	}
	if count < 0 {
		return ErrInvalidDoseCount
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AddDoses(ctx, vaccine, count)
	})
	if err != nil {
		return fmt.Errorf("add doses: %w", err)
	}
	return nil
}

// Reserve books the first free caregiver on date for the logged in patient
// and takes one dose of vaccine. Either all of slot removal, dose decrement
// and reservation insert happen or none of them do.
func (s *Service) Reserve(ctx context.Context, sess *Session, date time.Time, vaccine string) (*Reservation, error) {
	start := time.Now()
	res, err := s.reserve(ctx, sess, date, vaccine)
	metrics.ObserveReservation(outcome(err), time.Since(start))
	return res, err
}

func (s *Service) reserve(ctx context.Context, sess *Session, date time.Time, vaccine string) (*Reservation, error) {
	who, err := sess.Require(RolePatient)
	if err != nil {
		return nil, err
	}
	if vaccine == "" {
		return nil, ErrInvalidVaccine
	}

	var created *Reservation

	err = s.locker.WithLock(ctx, "reserve:"+FormatDate(date), func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(ctx context.Context, tx Tx) error {
			caregiver, err := tx.FindFreeCaregiver(ctx, date)
			if err != nil {
				return err
			}

			remaining, err := tx.TakeDose(ctx, vaccine)
			if err != nil {
				return err
			}

			if err := tx.RemoveSlot(ctx, caregiver, date); err != nil {
				return err
			}

			res, err := tx.InsertReservation(ctx, Reservation{
				Date:      date,
				Caregiver: caregiver,
				Vaccine:   vaccine,
				Patient:   who.Username,
			})
			if err != nil {
				return err
			}

			if err := s.logEvent(ctx, tx, res.ID, EventReservationCreated, map[string]any{
				"date":            FormatDate(date),
				"caregiver":       caregiver,
				"patient":         who.Username,
				"vaccine":         vaccine,
				"doses_remaining": remaining,
			}); err != nil {
				return err
			}

			created = res
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		if KindOf(err) == KindStore {
			s.log.ErrorContext(ctx, "reserve failed",
				slog.String("date", FormatDate(date)),
				slog.String("vaccine", vaccine),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "reservation created",
		slog.Int64("reservation_id", created.ID),
		slog.String("caregiver", created.Caregiver),
		slog.String("patient", created.Patient),
		slog.String("date", FormatDate(date)),
	)
	return created, nil
}

// Cancel removes a reservation owned by the logged in user and gives back
// both the caregiver's slot and the dose.
func (s *Service) Cancel(ctx context.Context, sess *Session, id int64) error {
	err := s.cancel(ctx, sess, id)
	metrics.ObserveCancellation(outcome(err))
	return err
}

func (s *Service) cancel(ctx context.Context, sess *Session, id int64) error {
	who, err := sess.RequireAny()
	if err != nil {
		return err
	}

	err = s.locker.WithLock(ctx, fmt.Sprintf("reservation:%d", id), func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(ctx context.Context, tx Tx) error {
			res, err := tx.GetReservation(ctx, id)
			if err != nil {
				return err
			}
			if !res.OwnedBy(who) {
				return ErrNotOwner
			}

			if err := tx.DeleteReservation(ctx, id); err != nil {
				return err
			}
			if err := tx.AddSlot(ctx, res.Caregiver, res.Date); err != nil {
				return err
			}
			if err := tx.ReleaseDose(ctx, res.Vaccine); err != nil {
				return err
			}

			return s.logEvent(ctx, tx, res.ID, EventReservationCancelled, map[string]any{
				"date":         FormatDate(res.Date),
				"caregiver":    res.Caregiver,
				"patient":      res.Patient,
				"vaccine":      res.Vaccine,
				"cancelled_by": string(who.Role) + ":" + who.Username,
			})
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return ErrBusy
		}
		if KindOf(err) == KindStore {
			s.log.ErrorContext(ctx, "cancel failed",
				slog.Int64("reservation_id", id),
				slog.String("error", err.Error()),
			)
		}
		return err
	}

	s.log.InfoContext(ctx, "reservation cancelled",
		slog.Int64("reservation_id", id),
		slog.String("by", who.Username),
	)
	return nil
}

// ScheduleOn lists caregivers still free on date and vaccines in stock.
func (s *Service) ScheduleOn(ctx context.Context, sess *Session, date time.Time) (*Schedule, error) {
	if _, err := sess.RequireAny(); err != nil {
		return nil, err
	}

	sched := &Schedule{Date: date}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if sched.Caregivers, err = tx.ListOpenCaregivers(ctx, date); err != nil {
			return err
		}
		sched.Vaccines, err = tx.ListStockedVaccines(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return sched, nil
}

// MyReservations lists the session owner's reservations by id, naming the
// other party on each.
func (s *Service) MyReservations(ctx context.Context, sess *Session) ([]Appointment, error) {
	who, err := sess.RequireAny()
	if err != nil {
		return nil, err
	}

	var reservations []Reservation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		reservations, err = tx.ListReservations(ctx, who)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	result := make([]Appointment, 0, len(reservations))
	for _, r := range reservations {
		counterparty := r.Caregiver
		if who.Role == RoleCaregiver {
			counterparty = r.Patient
		}
		result = append(result, Appointment{
			ID:           r.ID,
			Vaccine:      r.Vaccine,
			Date:         r.Date,
			Counterparty: counterparty,
		})
	}
	return result, nil
}

func (s *Service) logEvent(ctx context.Context, tx Tx, reservationID int64, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.WarnContext(ctx, "failed to marshal event payload",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		data = []byte("{}")
	}

	id := reservationID
	ev := EventLog{
		EventType:     eventType,
		ReservationID: &id,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("log %s: %w", eventType, err)
	}
	return nil
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNoCaregiverAvailable):
		return "no_caregiver"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrVaccineUnknown):
		return "unknown_vaccine"
	}
	return KindOf(err).String()
}

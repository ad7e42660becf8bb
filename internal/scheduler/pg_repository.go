package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PgxPool is the subset of *pgxpool.Pool the repository needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx runs fn in a database transaction, rolling back on error or panic.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// Helpers

func accountTable(role Role) (string, error) {
	switch role {
	case RolePatient:
		return "patients", nil
	case RoleCaregiver:
		return "caregivers", nil
	}
	return "", ErrUnknownRole
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation

	err := row.Scan(
		&res.ID,
		&res.Date,
		&res.Caregiver,
		&res.Vaccine,
		&res.Patient,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	return &res, nil
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Accounts

func (t *pgTx) CreateAccount(ctx context.Context, role Role, acc Account) error {
	table, err := accountTable(role)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO `+table+` (username, salt, hash)
		VALUES ($1, $2, $3)
	`, acc.Username, acc.Salt, acc.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert %s: %w", role, err)
	}

	return nil
}

func (t *pgTx) GetAccount(ctx context.Context, role Role, username string) (*Account, error) {
	table, err := accountTable(role)
	if err != nil {
		return nil, err
	}

	var acc Account
	err = t.tx.QueryRow(ctx, `
		SELECT username, salt, hash
		FROM `+table+`
		WHERE username = $1
	`, username).Scan(&acc.Username, &acc.Salt, &acc.Hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load %s: %w", role, err)
	}

	return &acc, nil
}

// Availability

// AddSlot is a no-op when the caregiver is already booked on date.
func (t *pgTx) AddSlot(ctx context.Context, caregiver string, date time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO availabilities (time, username)
		SELECT $1, $2
		WHERE NOT EXISTS (
			SELECT 1 FROM reservations r
			WHERE r.time = $1 AND r.caregiver_name = $2
		)
		ON CONFLICT DO NOTHING
	`, date, caregiver)
	if err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	return nil
}

func (t *pgTx) RemoveSlot(ctx context.Context, caregiver string, date time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM availabilities
		WHERE time = $1 AND username = $2
	`, date, caregiver)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoCaregiverAvailable
	}
	return nil
}

// FindFreeCaregiver locks the chosen availability row until the transaction ends.
func (t *pgTx) FindFreeCaregiver(ctx context.Context, date time.Time) (string, error) {
	var username string
	err := t.tx.QueryRow(ctx, `
		SELECT a.username
		FROM availabilities a
		WHERE a.time = $1
		  AND NOT EXISTS (
			SELECT 1 FROM reservations r
			WHERE r.time = a.time AND r.caregiver_name = a.username
		  )
		ORDER BY a.username
		LIMIT 1
		FOR UPDATE OF a
	`, date).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoCaregiverAvailable
		}
		return "", fmt.Errorf("find caregiver: %w", err)
	}
	return username, nil
}

func (t *pgTx) ListOpenCaregivers(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT username
		FROM availabilities
		WHERE time = $1
		ORDER BY username
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return collectStrings(rows)
}

// Inventory

func (t *pgTx) AddDoses(ctx context.Context, vaccine string, count int) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO vaccines (name, doses)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET doses = vaccines.doses + EXCLUDED.doses
	`, vaccine, count)
	if err != nil {
		return fmt.Errorf("upsert vaccine: %w", err)
	}
	return nil
}

// TakeDose decrements only when stock is positive, so concurrent callers
// can never drive it negative.
func (t *pgTx) TakeDose(ctx context.Context, vaccine string) (int, error) {
	var remaining int
	err := t.tx.QueryRow(ctx, `
		UPDATE vaccines
		SET doses = doses - 1
		WHERE name = $1 AND doses > 0
		RETURNING doses
	`, vaccine).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("decrement doses: %w", err)
	}

	var doses int
	err = t.tx.QueryRow(ctx, `
		SELECT doses FROM vaccines WHERE name = $1
	`, vaccine).Scan(&doses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrVaccineUnknown
		}
		return 0, fmt.Errorf("load vaccine: %w", err)
	}
	return 0, ErrOutOfStock
}

func (t *pgTx) ReleaseDose(ctx context.Context, vaccine string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE vaccines
		SET doses = doses + 1
		WHERE name = $1
	`, vaccine)
	if err != nil {
		return fmt.Errorf("increment doses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVaccineUnknown
	}
	return nil
}

func (t *pgTx) ListStockedVaccines(ctx context.Context) ([]Vaccine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT name, doses
		FROM vaccines
		WHERE doses > 0
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list vaccines: %w", err)
	}
	defer rows.Close()

	result := []Vaccine{}
	for rows.Next() {
		var v Vaccine
		if err := rows.Scan(&v.Name, &v.Doses); err != nil {
			return nil, err
		}
		result = append(result, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Reservations

func (t *pgTx) InsertReservation(ctx context.Context, res Reservation) (*Reservation, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO reservations (time, caregiver_name, vaccine_name, patient_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, res.Date, res.Caregiver, res.Vaccine, res.Patient).Scan(&res.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrNoCaregiverAvailable
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	return &res, nil
}

func (t *pgTx) GetReservation(ctx context.Context, id int64) (*Reservation, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, time, caregiver_name, vaccine_name, patient_name
		FROM reservations
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanReservation(row)
}

func (t *pgTx) DeleteReservation(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM reservations WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (t *pgTx) ListReservations(ctx context.Context, owner Identity) ([]Reservation, error) {
	column := "patient_name"
	if owner.Role == RoleCaregiver {
		column = "caregiver_name"
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, time, caregiver_name, vaccine_name, patient_name
		FROM reservations
		WHERE `+column+` = $1
		ORDER BY id
	`, owner.Username)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	result := []Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Events

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, reservation_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.ReservationID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

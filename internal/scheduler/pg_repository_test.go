package scheduler

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPgServiceWithMock(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newServiceOn(NewPgRepository(mock)), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func TestPgReserve_Success(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)
	day := mustDate(t, "2024-05-01")
	patient := NewSessionFor(Identity{Role: RolePatient, Username: "p1"})

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT a\.username\s+FROM availabilities a.*ORDER BY a\.username\s+LIMIT 1\s+FOR UPDATE OF a`).
		WithArgs(day).
		WillReturnRows(mock.NewRows([]string{"username"}).AddRow("alpha"))
	mock.ExpectQuery(q("SET doses = doses - 1")).
		WithArgs("pfizer").
		WillReturnRows(mock.NewRows([]string{"doses"}).AddRow(4))
	mock.ExpectExec(q("DELETE FROM availabilities")).
		WithArgs(day, "alpha").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(q("INSERT INTO reservations (time, caregiver_name, vaccine_name, patient_name)")).
		WithArgs(day, "alpha", "pfizer", "p1").
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(q("INSERT INTO event_logs")).
		WithArgs(EventReservationCreated, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := svc.Reserve(context.Background(), patient, day, "pfizer")
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.ID)
	assert.Equal(t, "alpha", res.Caregiver)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReserve_OutOfStockRollsBack(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)
	day := mustDate(t, "2024-05-01")
	patient := NewSessionFor(Identity{Role: RolePatient, Username: "p1"})

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT a.username")).
		WithArgs(day).
		WillReturnRows(mock.NewRows([]string{"username"}).AddRow("alpha"))
	mock.ExpectQuery(q("SET doses = doses - 1")).
		WithArgs("pfizer").
		WillReturnRows(mock.NewRows([]string{"doses"}))
	mock.ExpectQuery(q("SELECT doses FROM vaccines WHERE name = $1")).
		WithArgs("pfizer").
		WillReturnRows(mock.NewRows([]string{"doses"}).AddRow(0))
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), patient, day, "pfizer")
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReserve_UnknownVaccine(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)
	day := mustDate(t, "2024-05-01")
	patient := NewSessionFor(Identity{Role: RolePatient, Username: "p1"})

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT a.username")).
		WithArgs(day).
		WillReturnRows(mock.NewRows([]string{"username"}).AddRow("alpha"))
	mock.ExpectQuery(q("SET doses = doses - 1")).
		WithArgs("nope").
		WillReturnRows(mock.NewRows([]string{"doses"}))
	mock.ExpectQuery(q("SELECT doses FROM vaccines")).
		WithArgs("nope").
		WillReturnRows(mock.NewRows([]string{"doses"}))
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), patient, day, "nope")
	assert.ErrorIs(t, err, ErrVaccineUnknown)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReserve_NoCaregiver(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)
	day := mustDate(t, "2024-05-01")
	patient := NewSessionFor(Identity{Role: RolePatient, Username: "p1"})

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT a.username")).
		WithArgs(day).
		WillReturnRows(mock.NewRows([]string{"username"}))
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), patient, day, "pfizer")
	assert.ErrorIs(t, err, ErrNoCaregiverAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReserve_UniqueViolationMeansTaken(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)
	day := mustDate(t, "2024-05-01")
	patient := NewSessionFor(Identity{Role: RolePatient, Username: "p1"})

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT a.username")).
		WithArgs(day).
		WillReturnRows(mock.NewRows([]string{"username"}).AddRow("alpha"))
	mock.ExpectQuery(q("SET doses = doses - 1")).
		WithArgs("pfizer").
		WillReturnRows(mock.NewRows([]string{"doses"}).AddRow(1))
	mock.ExpectExec(q("DELETE FROM availabilities")).
		WithArgs(day, "alpha").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(q("INSERT INTO reservations")).
		WithArgs(day, "alpha", "pfizer", "p1").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), patient, day, "pfizer")
	assert.ErrorIs(t, err, ErrNoCaregiverAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCancel_RestoresEverything(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)
	day := mustDate(t, "2024-05-01")
	patient := NewSessionFor(Identity{Role: RolePatient, Username: "p1"})

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT id, time, caregiver_name, vaccine_name, patient_name\s+FROM reservations\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(mock.NewRows([]string{"id", "time", "caregiver_name", "vaccine_name", "patient_name"}).
			AddRow(int64(7), day, "alpha", "pfizer", "p1"))
	mock.ExpectExec(q("DELETE FROM reservations WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`(?s)INSERT INTO availabilities \(time, username\)\s+SELECT \$1, \$2\s+WHERE NOT EXISTS.*FROM reservations`).
		WithArgs(day, "alpha").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("SET doses = doses + 1")).
		WithArgs("pfizer").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q("INSERT INTO event_logs")).
		WithArgs(EventReservationCancelled, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, svc.Cancel(context.Background(), patient, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCancel_NotOwner(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)
	day := mustDate(t, "2024-05-01")
	stranger := NewSessionFor(Identity{Role: RolePatient, Username: "p2"})

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM reservations")).
		WithArgs(int64(7)).
		WillReturnRows(mock.NewRows([]string{"id", "time", "caregiver_name", "vaccine_name", "patient_name"}).
			AddRow(int64(7), day, "alpha", "pfizer", "p1"))
	mock.ExpectRollback()

	assert.ErrorIs(t, svc.Cancel(context.Background(), stranger, 7), ErrNotOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCancel_NotFound(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)
	patient := NewSessionFor(Identity{Role: RolePatient, Username: "p1"})

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM reservations")).
		WithArgs(int64(9)).
		WillReturnRows(mock.NewRows([]string{"id", "time", "caregiver_name", "vaccine_name", "patient_name"}))
	mock.ExpectRollback()

	assert.ErrorIs(t, svc.Cancel(context.Background(), patient, 9), ErrReservationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAccount_Taken(t *testing.T) {
	svc, mock := newPgServiceWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO caregivers (username, salt, hash)")).
		WithArgs("alpha", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := svc.CreateAccount(context.Background(), RoleCaregiver, "alpha", testPassword)
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgWithTx_CommitFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO vaccines (name, doses)")).
		WithArgs("pfizer", 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	err = repo.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.AddDoses(ctx, "pfizer", 3)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit tx")
	assert.Equal(t, KindStore, KindOf(err))
}

func TestPgListStockedVaccines(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT name, doses\s+FROM vaccines\s+WHERE doses > 0\s+ORDER BY name`).
		WillReturnRows(mock.NewRows([]string{"name", "doses"}).
			AddRow("astra", 2).
			AddRow("pfizer", 5))
	mock.ExpectCommit()

	var got []Vaccine
	err = repo.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		got, err = tx.ListStockedVaccines(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []Vaccine{{Name: "astra", Doses: 2}, {Name: "pfizer", Doses: 5}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

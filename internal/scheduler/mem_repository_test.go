package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemRepository_FailedTxDiscardsWrites(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()
	day, err := ParseDate("2024-05-01")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.AddSlot(ctx, "c1", day))
		require.NoError(t, tx.AddDoses(ctx, "pfizer", 2))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		open, err := tx.ListOpenCaregivers(ctx, day)
		require.NoError(t, err)
		assert.Empty(t, open)

		_, err = tx.TakeDose(ctx, "pfizer")
		assert.ErrorIs(t, err, ErrVaccineUnknown)
		return nil
	})
	require.NoError(t, err)
}

func TestMemRepository_BookingIndex(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()
	day, err := ParseDate("2024-05-01")
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.AddSlot(ctx, "a", day))
		require.NoError(t, tx.AddSlot(ctx, "b", day))

		_, err := tx.InsertReservation(ctx, Reservation{Date: day, Caregiver: "a", Vaccine: "v", Patient: "p"})
		require.NoError(t, err)

		// a still has a slot row but is booked, so b is next
		free, err := tx.FindFreeCaregiver(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, "b", free)

		_, err = tx.InsertReservation(ctx, Reservation{Date: day, Caregiver: "a", Vaccine: "v", Patient: "q"})
		assert.ErrorIs(t, err, ErrNoCaregiverAvailable)
		return nil
	})
	require.NoError(t, err)
}

func TestMemRepository_ContextCancelled(t *testing.T) {
	repo := NewMemRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.WithTx(ctx, func(context.Context, Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

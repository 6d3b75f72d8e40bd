package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentTransitions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("Completed", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments\s+SET status = 'COMPLETED'`).
			WithArgs(id, "FLW-123", "successful").
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := repo.MarkCompleted(ctx, id, "FLW-123", "successful")
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("Already Terminal", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payments\s+SET status = 'FAILED'`).
			WithArgs(id, "declined", "failed").
			WillReturnResult(sqlmock.NewResult(0, 0))

		applied, err := repo.MarkFailed(ctx, id, "declined", "failed")
		require.NoError(t, err)
		assert.False(t, applied)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStalePayments(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	cutoff := time.Now().Add(-30 * time.Minute)

	mock.ExpectQuery(`SELECT .+ FROM payments\s+WHERE status IN \('PENDING', 'PROCESSING'\) AND created_at < \$1`).
		WithArgs(cutoff, 25).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow(uuid.New(), "PENDING").
			AddRow(uuid.New(), "PROCESSING"))

	payments, err := repo.ListStale(context.Background(), cutoff, 25)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, models.PaymentStatusProcessing, payments[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingUpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	id := uuid.New()

	mock.ExpectExec(`UPDATE bookings\s+SET status = \$3`).
		WithArgs(id, models.BookingStatusPending, models.BookingStatusCancelled, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.UpdateStatus(context.Background(), id, models.BookingStatusPending, models.BookingStatusCancelled)
	require.NoError(t, err)
	assert.True(t, applied)

	mock.ExpectExec(`UPDATE bookings\s+SET status = \$3`).
		WithArgs(id, models.BookingStatusPending, models.BookingStatusConfirmed, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err = repo.UpdateStatus(context.Background(), id, models.BookingStatusPending, models.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.False(t, applied, "status changed concurrently")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithCapacityCheck_TourMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	booking := &models.Booking{ID: uuid.New(), TourID: uuid.New()}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tours WHERE id = \$1 FOR UPDATE`).
		WithArgs(booking.TourID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := repo.CreateWithCapacityCheck(context.Background(), booking, nil, func(*CapacitySnapshot) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithCapacityCheck_RetriesSerializationFailures(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	booking := &models.Booking{ID: uuid.New(), TourID: uuid.New()}

	for i := 0; i < maxSerializableAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM tours WHERE id = \$1 FOR UPDATE`).
			WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
		mock.ExpectRollback()
	}

	err := repo.CreateWithCapacityCheck(context.Background(), booking, nil, func(*CapacitySnapshot) error { return nil })
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectCapacitySnapshot(mock sqlmock.Sqlmock, tourID uuid.UUID) {
	mock.ExpectQuery(`FROM tours WHERE id = \$1 FOR UPDATE`).
		WithArgs(tourID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_group_size"}).AddRow(tourID, 12))
	mock.ExpectQuery(`FROM tour_availability`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tour_id", "start_date", "end_date", "availability_type", "note"}))
	mock.ExpectQuery(`FROM bookings`).
		WillReturnRows(sqlmock.NewRows([]string{"start_date", "end_date", "guests"}))
}

func TestCreateWithCapacityCheck_RejectedGuestIsNotInserted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	booking := &models.Booking{ID: uuid.New(), TourID: uuid.New()}
	guest := models.NewGuestUser("guest@example.com", "Guest", "", "hash")

	mock.ExpectBegin()
	expectCapacitySnapshot(mock, booking.TourID)
	mock.ExpectRollback()

	rejected := errors.New("only 0 places left")
	err := repo.CreateWithCapacityCheck(context.Background(), booking, guest, func(*CapacitySnapshot) error {
		return rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, uuid.Nil, booking.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithCapacityCheck_GuestInsertedWithBooking(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	booking := &models.Booking{ID: uuid.New(), TourID: uuid.New()}
	guest := models.NewGuestUser("guest@example.com", "Guest", "", "hash")

	mock.ExpectBegin()
	expectCapacitySnapshot(mock, booking.TourID)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(guest.ID, "guest@example.com", "Guest", sqlmock.AnyArg(), "hash", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO bookings`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreateWithCapacityCheck(context.Background(), booking, guest, func(*CapacitySnapshot) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, guest.ID, booking.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithCapacityCheck_GuestRaceIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	booking := &models.Booking{ID: uuid.New(), TourID: uuid.New()}
	guest := models.NewGuestUser("guest@example.com", "Guest", "", "hash")

	mock.ExpectBegin()
	expectCapacitySnapshot(mock, booking.TourID)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.CreateWithCapacityCheck(context.Background(), booking, guest, func(*CapacitySnapshot) error { return nil })
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTour(t *testing.T) {
	tourID := uuid.New()

	t.Run("blocked by active bookings", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTourRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM tours WHERE id = \$1 FOR UPDATE`).
			WithArgs(tourID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(tourID))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bookings`).
			WithArgs(tourID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectCommit()

		active, err := repo.DeleteTour(context.Background(), tourID)
		require.NoError(t, err)
		assert.Equal(t, 2, active)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleted", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTourRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM tours WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(tourID))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`DELETE FROM tours WHERE id = \$1`).
			WithArgs(tourID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		active, err := repo.DeleteTour(context.Background(), tourID)
		require.NoError(t, err)
		assert.Zero(t, active)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, isSerializationFailure(&pq.Error{Code: "40001"}))
	assert.True(t, isSerializationFailure(&pq.Error{Code: "40P01"}))
	assert.False(t, isSerializationFailure(&pq.Error{Code: "23505"}))
	assert.False(t, isSerializationFailure(errors.New("boom")))
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
}

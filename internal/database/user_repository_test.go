package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var userRowColumns = []string{
	"id", "email", "name", "phone", "password_hash", "roles", "is_guest", "created_at", "updated_at",
}

func TestGetUserByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		userID := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
				userID, "amina@example.com", "Amina Otieno", "+254712345678", "hash",
				[]byte(`{traveler}`), false, now, now,
			))

		user, err := repo.GetUserByID(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "amina@example.com", user.Email)
		assert.Equal(t, []string{models.RoleTraveler}, []string(user.Roles))
		require.NotNil(t, user.Phone)
		assert.Equal(t, "+254712345678", *user.Phone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(userRowColumns))

		user, err := repo.GetUserByID(ctx, uuid.New())
		assert.NoError(t, err)
		assert.Nil(t, user)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
			WillReturnError(fmt.Errorf("connection reset"))

		user, err := repo.GetUserByID(ctx, uuid.New())
		assert.Error(t, err)
		assert.Nil(t, user)
		assert.Contains(t, err.Error(), "failed to get user by id")
	})
}

func TestGetUserByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE LOWER\(email\) = \$1`).
		WithArgs("amina@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			userID, "amina@example.com", "Amina Otieno", nil, "hash",
			[]byte(`{guest}`), true, now, now,
		))

	user, err := repo.GetUserByEmail(context.Background(), "  Amina@Example.com ")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, userID, user.ID)
	assert.True(t, user.IsGuest)
	assert.Nil(t, user.Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUser(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	t.Run("Guest", func(t *testing.T) {
		user := models.NewGuestUser(" Guest@Example.com", "Guest Traveler", "+254700000001", "hash")

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(
				user.ID, "guest@example.com", "Guest Traveler", sqlmock.AnyArg(), "hash",
				sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, insertUser(ctx, db, user))
		assert.Equal(t, []string{models.RoleGuest}, []string(user.Roles))
		require.NotNil(t, user.Phone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Without Phone", func(t *testing.T) {
		user := models.NewGuestUser("nophone@example.com", "No Phone", "", "hash")
		assert.Nil(t, user.Phone)

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, insertUser(ctx, db, user))
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(fmt.Errorf("connection reset"))

		err := insertUser(ctx, db, models.NewGuestUser("dupe@example.com", "Dupe", "", "hash"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create user")
	})
}

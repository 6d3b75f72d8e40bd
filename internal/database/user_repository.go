package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safaritrails/booking-backend/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, phone, password_hash, roles, is_guest, created_at, updated_at`

// GetUserByID retrieves a user by ID, returning nil when not found
func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email (case-insensitive), returning nil when not found
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = $1`

	err := r.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(email)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// insertUser writes a user row. Guest users are inserted inside the booking
// transaction so a rejected booking leaves no account behind.
func insertUser(ctx context.Context, exec sqlx.ExecerContext, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, phone, password_hash, roles, is_guest, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := exec.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.Phone, user.PasswordHash,
		user.Roles, user.IsGuest, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

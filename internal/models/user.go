package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// User roles
const (
	RoleTraveler = "traveler"
	RoleGuest    = "guest"
	RoleAgent    = "agent"
	RoleAdmin    = "admin"
)

// User represents an account that can own bookings
type User struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Email        string         `json:"email" db:"email"`
	Name         string         `json:"name" db:"name"`
	Phone        *string        `json:"phone,omitempty" db:"phone"`
	PasswordHash string         `json:"-" db:"password_hash"`
	Roles        pq.StringArray `json:"roles" db:"roles"`
	IsGuest      bool           `json:"isGuest" db:"is_guest"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

// HasRole checks if user has a specific role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NewGuestUser prepares a guest account for an unauthenticated booking
func NewGuestUser(email, name, phone, passwordHash string) *User {
	now := time.Now()
	user := &User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         name,
		PasswordHash: passwordHash,
		Roles:        pq.StringArray{RoleGuest},
		IsGuest:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if phone != "" {
		user.Phone = &phone
	}
	return user
}

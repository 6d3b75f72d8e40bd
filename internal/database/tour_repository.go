package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/safaritrails/booking-backend/internal/models"
)

// TourRepository handles tour catalog reads and the deletion guard
type TourRepository struct {
	db *sqlx.DB
}

// NewTourRepository creates a new tour repository
func NewTourRepository(db *sqlx.DB) *TourRepository {
	return &TourRepository{db: db}
}

const tourColumns = `
	id, agent_id, title, destination, country, status, duration_days, max_group_size,
	price_per_adult, price_per_child, currency, free_cancellation_days,
	deposit_enabled, deposit_percentage, discount_percentage, image_url,
	created_at, updated_at`

// GetTourByID retrieves a tour, returning nil when not found
func (r *TourRepository) GetTourByID(ctx context.Context, id uuid.UUID) (*models.Tour, error) {
	var tour models.Tour
	err := r.db.GetContext(ctx, &tour, `SELECT `+tourColumns+` FROM tours WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}
	return &tour, nil
}

// GetAgentByID retrieves the agent that owns a tour, returning nil when not found
func (r *TourRepository) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	query := `
		SELECT id, user_id, business_name, commission_rate, is_verified, created_at
		FROM agents WHERE id = $1`

	err := r.db.GetContext(ctx, &agent, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}

// GetAgentByUserID retrieves the agent profile of a user, returning nil when not found
func (r *TourRepository) GetAgentByUserID(ctx context.Context, userID uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	query := `
		SELECT id, user_id, business_name, commission_rate, is_verified, created_at
		FROM agents WHERE user_id = $1`

	err := r.db.GetContext(ctx, &agent, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent by user: %w", err)
	}
	return &agent, nil
}

// GetAccommodationOptions loads the given accommodation options of a tour.
// Options that belong to another tour are not returned.
func (r *TourRepository) GetAccommodationOptions(ctx context.Context, tourID uuid.UUID, ids []uuid.UUID) ([]models.AccommodationOption, error) {
	options := []models.AccommodationOption{}
	if len(ids) == 0 {
		return options, nil
	}

	query := `
		SELECT id, tour_id, name, tier, price_per_night, capacity
		FROM accommodation_options
		WHERE tour_id = $1 AND id = ANY($2)`

	if err := r.db.SelectContext(ctx, &options, query, tourID, pq.Array(uuidStrings(ids))); err != nil {
		return nil, fmt.Errorf("failed to get accommodation options: %w", err)
	}
	return options, nil
}

// GetActivityAddons loads the given activity add-ons of a tour.
// Add-ons that belong to another tour are not returned.
func (r *TourRepository) GetActivityAddons(ctx context.Context, tourID uuid.UUID, ids []uuid.UUID) ([]models.ActivityAddon, error) {
	addons := []models.ActivityAddon{}
	if len(ids) == 0 {
		return addons, nil
	}

	query := `
		SELECT id, tour_id, name, price, max_capacity
		FROM activity_addons
		WHERE tour_id = $1 AND id = ANY($2)`

	if err := r.db.SelectContext(ctx, &addons, query, tourID, pq.Array(uuidStrings(ids))); err != nil {
		return nil, fmt.Errorf("failed to get activity addons: %w", err)
	}
	return addons, nil
}

// GetCapacitySnapshot reads blocked windows and occupied intervals for a range
// without taking any locks. Used by the public availability endpoint.
func (r *TourRepository) GetCapacitySnapshot(ctx context.Context, tour *models.Tour, start, end time.Time) (*CapacitySnapshot, error) {
	return loadCapacitySnapshot(ctx, r.db, tour, start, end)
}

// DeleteTour removes a tour unless it still has active bookings.
// The count and the delete share one transaction holding the tour row lock,
// so a booking created concurrently cannot slip in between them.
func (r *TourRepository) DeleteTour(ctx context.Context, tourID uuid.UUID) (activeBookings int, err error) {
	err = WithTx(ctx, r.db, sql.LevelReadCommitted, func(tx *sqlx.Tx) error {
		var locked uuid.UUID
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM tours WHERE id = $1 FOR UPDATE`, tourID); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock tour: %w", err)
		}

		query := `
			SELECT COUNT(*) FROM bookings
			WHERE tour_id = $1 AND status IN ('PENDING', 'CONFIRMED')`
		if err := tx.GetContext(ctx, &activeBookings, query, tourID); err != nil {
			return fmt.Errorf("failed to count active bookings: %w", err)
		}
		if activeBookings > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tours WHERE id = $1`, tourID); err != nil {
			return fmt.Errorf("failed to delete tour: %w", err)
		}
		return nil
	})
	return activeBookings, err
}

// ===== capacity snapshot =====

// CapacitySnapshot is what the availability check sees for a tour and range
type CapacitySnapshot struct {
	Tour     models.Tour
	Blocked  []models.TourAvailability
	Occupied []models.OccupiedInterval
}

func loadCapacitySnapshot(ctx context.Context, q sqlx.QueryerContext, tour *models.Tour, start, end time.Time) (*CapacitySnapshot, error) {
	snapshot := &CapacitySnapshot{
		Tour:     *tour,
		Blocked:  []models.TourAvailability{},
		Occupied: []models.OccupiedInterval{},
	}

	blockedQuery := `
		SELECT id, tour_id, start_date, end_date, availability_type, note
		FROM tour_availability
		WHERE tour_id = $1 AND availability_type = 'BLOCKED'
		AND start_date <= $3 AND end_date >= $2`

	if err := sqlx.SelectContext(ctx, q, &snapshot.Blocked, blockedQuery, tour.ID, start, end); err != nil {
		return nil, fmt.Errorf("failed to load blocked dates: %w", err)
	}

	occupiedQuery := `
		SELECT start_date, end_date, adults + children AS guests
		FROM bookings
		WHERE tour_id = $1 AND status NOT IN ('CANCELLED', 'REFUNDED')
		AND start_date <= $3 AND end_date >= $2`

	if err := sqlx.SelectContext(ctx, q, &snapshot.Occupied, occupiedQuery, tour.ID, start, end); err != nil {
		return nil, fmt.Errorf("failed to load overlapping bookings: %w", err)
	}

	return snapshot, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

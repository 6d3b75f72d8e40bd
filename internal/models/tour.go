package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is a custom type for handling JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

// TourStatus is the publication state of a tour
type TourStatus string

const (
	TourStatusDraft    TourStatus = "DRAFT"
	TourStatusActive   TourStatus = "ACTIVE"
	TourStatusPaused   TourStatus = "PAUSED"
	TourStatusArchived TourStatus = "ARCHIVED"
)

// Tour is a bookable multi-day safari package owned by an agent
type Tour struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	AgentID              uuid.UUID  `json:"agentId" db:"agent_id"`
	Title                string     `json:"title" db:"title"`
	Destination          string     `json:"destination" db:"destination"`
	Country              string     `json:"country" db:"country"`
	Status               TourStatus `json:"status" db:"status"`
	DurationDays         int        `json:"durationDays" db:"duration_days"`
	MaxGroupSize         int        `json:"maxGroupSize" db:"max_group_size"`
	PricePerAdult        float64    `json:"pricePerAdult" db:"price_per_adult"`
	PricePerChild        *float64   `json:"pricePerChild,omitempty" db:"price_per_child"`
	Currency             string     `json:"currency" db:"currency"`
	FreeCancellationDays *int       `json:"freeCancellationDays,omitempty" db:"free_cancellation_days"`
	DepositEnabled       bool       `json:"depositEnabled" db:"deposit_enabled"`
	DepositPercentage    *float64   `json:"depositPercentage,omitempty" db:"deposit_percentage"`
	DiscountPercentage   *float64   `json:"discountPercentage,omitempty" db:"discount_percentage"`
	ImageURL             *string    `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt            time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time  `json:"updatedAt" db:"updated_at"`
}

// ChildPrice returns the per-child price, falling back to the adult price
func (t *Tour) ChildPrice() float64 {
	if t.PricePerChild != nil {
		return *t.PricePerChild
	}
	return t.PricePerAdult
}

// Agent is the tour operator that receives earnings for a booking
type Agent struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         uuid.UUID `json:"userId" db:"user_id"`
	BusinessName   string    `json:"businessName" db:"business_name"`
	CommissionRate *float64  `json:"commissionRate,omitempty" db:"commission_rate"`
	IsVerified     bool      `json:"isVerified" db:"is_verified"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// AccommodationOption is a lodging choice attached to a tour
type AccommodationOption struct {
	ID            uuid.UUID `json:"id" db:"id"`
	TourID        uuid.UUID `json:"tourId" db:"tour_id"`
	Name          string    `json:"name" db:"name"`
	Tier          *string   `json:"tier,omitempty" db:"tier"`
	PricePerNight float64   `json:"pricePerNight" db:"price_per_night"`
	Capacity      int       `json:"capacity" db:"capacity"` // guests per room
}

// ActivityAddon is an optional activity sold with a tour
type ActivityAddon struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TourID      uuid.UUID `json:"tourId" db:"tour_id"`
	Name        string    `json:"name" db:"name"`
	Price       float64   `json:"price" db:"price"`
	MaxCapacity *int      `json:"maxCapacity,omitempty" db:"max_capacity"`
}

// AvailabilityType classifies a tour_availability row
type AvailabilityType string

const (
	AvailabilityAvailable AvailabilityType = "AVAILABLE"
	AvailabilityBlocked   AvailabilityType = "BLOCKED"
)

// TourAvailability is an agent-managed date window on a tour
type TourAvailability struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	TourID    uuid.UUID        `json:"tourId" db:"tour_id"`
	StartDate time.Time        `json:"startDate" db:"start_date"`
	EndDate   time.Time        `json:"endDate" db:"end_date"`
	Type      AvailabilityType `json:"type" db:"availability_type"`
	Note      *string          `json:"note,omitempty" db:"note"`
}

// Overlaps reports whether the window intersects [start, end], both inclusive
func (a *TourAvailability) Overlaps(start, end time.Time) bool {
	return !a.StartDate.After(end) && !a.EndDate.Before(start)
}

// OccupiedInterval is a capacity-holding booking's date range and guest count
type OccupiedInterval struct {
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	Guests    int       `db:"guests"`
}

// AvailabilityResponse is returned by GET /api/tours/:id/availability
type AvailabilityResponse struct {
	TourID            uuid.UUID `json:"tourId"`
	StartDate         string    `json:"startDate"`
	EndDate           string    `json:"endDate"`
	MaxGroupSize      int       `json:"maxGroupSize"`
	RemainingCapacity int       `json:"remainingCapacity"`
	Blocked           bool      `json:"blocked"`
	Available         bool      `json:"available"`
}

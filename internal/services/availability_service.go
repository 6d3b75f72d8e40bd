package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safaritrails/booking-backend/internal/database"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// maxTripDays bounds the length of a requested date range
const maxTripDays = 90

const dateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseBookingDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns
// the calendar date at midnight UTC
func ParseBookingDate(value string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return DateOnly(t), nil
}

// CapacityResult summarizes occupancy for a requested range
type CapacityResult struct {
	PeakOccupancy int
	Remaining     int
	Blocked       bool
}

// EvaluateCapacity computes per-day occupancy over the inclusive range
// [start, end] and reports the busiest day. Bookings sharing any day with
// the range count towards that day.
func EvaluateCapacity(snapshot *database.CapacitySnapshot, start, end time.Time) CapacityResult {
	start, end = DateOnly(start), DateOnly(end)
	result := CapacityResult{}

	for _, window := range snapshot.Blocked {
		blocked := models.TourAvailability{StartDate: DateOnly(window.StartDate), EndDate: DateOnly(window.EndDate)}
		if blocked.Overlaps(start, end) {
			result.Blocked = true
			break
		}
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		occupied := 0
		for _, interval := range snapshot.Occupied {
			if !DateOnly(interval.StartDate).After(day) && !DateOnly(interval.EndDate).Before(day) {
				occupied += interval.Guests
			}
		}
		if occupied > result.PeakOccupancy {
			result.PeakOccupancy = occupied
		}
	}

	result.Remaining = snapshot.Tour.MaxGroupSize - result.PeakOccupancy
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result
}

// ValidateDateRange checks the date rules that need no database access
func ValidateDateRange(start, end, today time.Time) error {
	start, end, today = DateOnly(start), DateOnly(end), DateOnly(today)

	if start.Before(today) {
		return BusinessError("Start date cannot be in the past").
			WithDetail("startDate", start.Format(dateLayout))
	}
	if !end.After(start) {
		return BusinessError("End date must be after start date").
			WithDetail("startDate", start.Format(dateLayout)).
			WithDetail("endDate", end.Format(dateLayout))
	}
	if end.Sub(start) > maxTripDays*24*time.Hour {
		return BusinessError("Trips longer than %d days cannot be booked", maxTripDays)
	}
	return nil
}

// CheckCapacity rejects a request for guests that would push any day of
// [start, end] over the tour's maximum group size, or that touches a blocked window
func CheckCapacity(snapshot *database.CapacitySnapshot, start, end time.Time, guests int) error {
	result := EvaluateCapacity(snapshot, start, end)

	if result.Blocked {
		return BusinessError("The selected dates are not available for this tour")
	}

	if result.PeakOccupancy+guests > snapshot.Tour.MaxGroupSize {
		return BusinessError("Not enough capacity for %d guests. Only %d spots remaining for the selected dates",
			guests, result.Remaining).
			WithDetail("remainingCapacity", result.Remaining).
			WithDetail("requestedGuests", guests)
	}
	return nil
}

// ===== availability lookups =====

// TourReader is the subset of the tour repository used for availability
type TourReader interface {
	GetTourByID(ctx context.Context, id uuid.UUID) (*models.Tour, error)
	GetCapacitySnapshot(ctx context.Context, tour *models.Tour, start, end time.Time) (*database.CapacitySnapshot, error)
}

// AvailabilityService answers public availability queries
type AvailabilityService struct {
	tours  TourReader
	logger *logrus.Logger
	now    func() time.Time
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(tours TourReader, logger *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{tours: tours, logger: logger, now: time.Now}
}

// GetAvailability reports remaining capacity for a tour over a date range.
// The answer is advisory; booking creation re-checks under a lock.
func (s *AvailabilityService) GetAvailability(ctx context.Context, tourID uuid.UUID, startDate, endDate string, guests int) (*models.AvailabilityResponse, error) {
	start, err := ParseBookingDate(startDate)
	if err != nil {
		return nil, ValidationError("%s", err.Error()).WithDetail("field", "startDate")
	}
	end, err := ParseBookingDate(endDate)
	if err != nil {
		return nil, ValidationError("%s", err.Error()).WithDetail("field", "endDate")
	}
	if err := ValidateDateRange(start, end, s.now()); err != nil {
		return nil, err
	}

	tour, err := s.tours.GetTourByID(ctx, tourID)
	if err != nil {
		return nil, err
	}
	if tour == nil {
		return nil, NotFoundError("Tour not found")
	}

	snapshot, err := s.tours.GetCapacitySnapshot(ctx, tour, start, end)
	if err != nil {
		return nil, err
	}

	result := EvaluateCapacity(snapshot, start, end)
	if guests < 1 {
		guests = 1
	}

	return &models.AvailabilityResponse{
		TourID:            tour.ID,
		StartDate:         start.Format(dateLayout),
		EndDate:           end.Format(dateLayout),
		MaxGroupSize:      tour.MaxGroupSize,
		RemainingCapacity: result.Remaining,
		Blocked:           result.Blocked,
		Available:         tour.Status == models.TourStatusActive && !result.Blocked && result.Remaining >= guests,
	}, nil
}

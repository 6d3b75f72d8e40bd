package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safaritrails/booking-backend/internal/models"
)

// maxSerializableAttempts bounds retries of the booking transaction
const maxSerializableAttempts = 3

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, booking_reference, user_id, tour_id, agent_id,
	start_date, end_date, adults, children, infants,
	base_amount, accommodation_amount, activities_amount, tax_amount, discount_amount,
	total_amount, platform_commission, agent_earnings, currency,
	status, payment_status, payment_type, deposit_amount, balance_amount, balance_due_date,
	contact_name, contact_email, contact_phone, special_requests,
	cancelled_at, created_at, updated_at`

// CapacityCheck inspects the locked snapshot and returns an error to abort the insert
type CapacityCheck func(snapshot *CapacitySnapshot) error

// CreateWithCapacityCheck inserts a booking and its line items after running
// check against a snapshot read under a row lock on the tour. Everything runs
// in one SERIALIZABLE transaction which is retried on serialization failures.
// A non-nil guest is inserted in the same transaction and becomes the owner.
// Errors returned by check are passed through unchanged.
func (r *BookingRepository) CreateWithCapacityCheck(ctx context.Context, booking *models.Booking, guest *models.User, check CapacityCheck) error {
	var err error
	for attempt := 1; attempt <= maxSerializableAttempts; attempt++ {
		err = WithTx(ctx, r.db, sql.LevelSerializable, func(tx *sqlx.Tx) error {
			return r.createInTx(ctx, tx, booking, guest, check)
		})
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
}

func (r *BookingRepository) createInTx(ctx context.Context, tx *sqlx.Tx, booking *models.Booking, guest *models.User, check CapacityCheck) error {
	var tour models.Tour
	lockQuery := `SELECT ` + tourColumns + ` FROM tours WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &tour, lockQuery, booking.TourID); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock tour: %w", err)
	}

	snapshot, err := loadCapacitySnapshot(ctx, tx, &tour, booking.StartDate, booking.EndDate)
	if err != nil {
		return err
	}
	if err := check(snapshot); err != nil {
		return err
	}

	if guest != nil {
		if err := insertUser(ctx, tx, guest); err != nil {
			if isUniqueViolation(err) {
				// another checkout created this guest first; a retry finds it
				return fmt.Errorf("%w: guest %s already exists", ErrConcurrentUpdate, guest.Email)
			}
			return err
		}
		booking.UserID = guest.ID
	}

	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	bookingQuery := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25,
			$26, $27, $28, $29,
			$30, $31, $32
		)`

	_, err = tx.ExecContext(ctx, bookingQuery,
		booking.ID, booking.BookingReference, booking.UserID, booking.TourID, booking.AgentID,
		booking.StartDate, booking.EndDate, booking.Adults, booking.Children, booking.Infants,
		booking.BaseAmount, booking.AccommodationAmount, booking.ActivitiesAmount, booking.TaxAmount, booking.DiscountAmount,
		booking.TotalAmount, booking.PlatformCommission, booking.AgentEarnings, booking.Currency,
		booking.Status, booking.PaymentStatus, booking.PaymentType, booking.DepositAmount, booking.BalanceAmount, booking.BalanceDueDate,
		booking.ContactName, booking.ContactEmail, booking.ContactPhone, booking.SpecialRequests,
		booking.CancelledAt, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	for i := range booking.Accommodations {
		a := &booking.Accommodations[i]
		a.BookingID = booking.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO booking_accommodations (id, booking_id, accommodation_option_id, day_number, rooms, price_per_night)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, a.BookingID, a.AccommodationOptionID, a.DayNumber, a.Rooms, a.PricePerNight,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking accommodation: %w", err)
		}
	}

	for i := range booking.Activities {
		a := &booking.Activities[i]
		a.BookingID = booking.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO booking_activities (id, booking_id, activity_addon_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			a.ID, a.BookingID, a.ActivityAddonID, a.Quantity, a.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking activity: %w", err)
		}
	}

	return nil
}

// ReferenceExists checks whether a booking reference is already taken
func (r *BookingRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM bookings WHERE booking_reference = $1`, reference)
	if err != nil {
		return false, fmt.Errorf("failed to check booking reference: %w", err)
	}
	return count > 0, nil
}

// GetByID retrieves a booking with its line items, returning nil when not found
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	booking.Accommodations = []models.BookingAccommodation{}
	accommodationQuery := `
		SELECT ba.id, ba.booking_id, ba.accommodation_option_id, ba.day_number, ba.rooms,
			ba.price_per_night, ao.name AS accommodation_option_name
		FROM booking_accommodations ba
		JOIN accommodation_options ao ON ao.id = ba.accommodation_option_id
		WHERE ba.booking_id = $1
		ORDER BY ba.day_number`
	if err := r.db.SelectContext(ctx, &booking.Accommodations, accommodationQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get booking accommodations: %w", err)
	}

	booking.Activities = []models.BookingActivity{}
	activityQuery := `
		SELECT bac.id, bac.booking_id, bac.activity_addon_id, bac.quantity, bac.unit_price,
			aa.name AS activity_name
		FROM booking_activities bac
		JOIN activity_addons aa ON aa.id = bac.activity_addon_id
		WHERE bac.booking_id = $1`
	if err := r.db.SelectContext(ctx, &booking.Activities, activityQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get booking activities: %w", err)
	}

	return &booking, nil
}

// ListByUser returns a user's bookings, newest first. An empty status lists all.
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, status models.BookingStatus, limit, offset int) ([]models.BookingListItem, error) {
	items := []models.BookingListItem{}
	query := `
		SELECT b.id, b.booking_reference, b.user_id, b.tour_id, b.agent_id,
			b.start_date, b.end_date, b.adults, b.children, b.infants,
			b.base_amount, b.accommodation_amount, b.activities_amount, b.tax_amount, b.discount_amount,
			b.total_amount, b.platform_commission, b.agent_earnings, b.currency,
			b.status, b.payment_status, b.payment_type, b.deposit_amount, b.balance_amount, b.balance_due_date,
			b.contact_name, b.contact_email, b.contact_phone, b.special_requests,
			b.cancelled_at, b.created_at, b.updated_at,
			t.title AS tour_title, t.destination AS tour_destination,
			t.country AS tour_country, t.image_url AS tour_image_url
		FROM bookings b
		JOIN tours t ON t.id = b.tour_id
		WHERE b.user_id = $1 AND ($2::text = '' OR b.status = $2)
		ORDER BY b.created_at DESC
		LIMIT $3 OFFSET $4`

	if err := r.db.SelectContext(ctx, &items, query, userID, string(status), limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return items, nil
}

// UpdateStatus moves a booking from one status to another. The update only
// applies while the row still has the expected status; it returns false when
// another writer changed it first.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $3,
			cancelled_at = CASE WHEN $4 THEN NOW() ELSE cancelled_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to, to == models.BookingStatusCancelled)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

// UpdatePaymentStatus sets the booking's aggregate payment status
func (r *BookingRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error {
	query := `UPDATE bookings SET payment_status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("failed to update booking payment status: %w", err)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safaritrails/booking-backend/internal/models"
)

// ErrDuplicateIdempotencyKey is returned when a payment with the same key exists
var ErrDuplicateIdempotencyKey = errors.New("payment idempotency key already used")

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, booking_id, user_id, gateway, amount, currency, status,
	payment_method, phone_number, idempotency_key,
	gateway_reference, gateway_transaction_id, redirect_url, gateway_status,
	failure_message, is_deposit, failed_at, completed_at, created_at, updated_at`

// Create inserts a new PENDING payment row
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	now := time.Now()
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = now
	payment.UpdatedAt = now

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.BookingID, payment.UserID, payment.Gateway, payment.Amount, payment.Currency, payment.Status,
		payment.PaymentMethod, payment.PhoneNumber, payment.IdempotencyKey,
		payment.GatewayReference, payment.GatewayTransactionID, payment.RedirectURL, payment.GatewayStatus,
		payment.FailureMessage, payment.IsDeposit, payment.FailedAt, payment.CompletedAt, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment, returning nil when not found
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetByIdempotencyKey retrieves a payment by its merchant reference
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key)
}

// GetByGatewayReference retrieves a payment by the gateway's tracking id
func (r *PaymentRepository) GetByGatewayReference(ctx context.Context, gateway models.PaymentGateway, reference string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway = $1 AND gateway_reference = $2`, gateway, reference)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// ListByBooking returns every payment attempt for a booking, newest first
func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &payments, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// ListStale returns PENDING or PROCESSING payments created before cutoff, oldest first
func (r *PaymentRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE status IN ('PENDING', 'PROCESSING') AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &payments, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale payments: %w", err)
	}
	return payments, nil
}

// MarkProcessing stores the gateway's tracking ids after a successful order submission
func (r *PaymentRepository) MarkProcessing(ctx context.Context, id uuid.UUID, gatewayReference, redirectURL string) error {
	query := `
		UPDATE payments
		SET status = 'PROCESSING', gateway_reference = NULLIF($2, ''), redirect_url = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`
	if _, err := r.db.ExecContext(ctx, query, id, gatewayReference, redirectURL); err != nil {
		return fmt.Errorf("failed to mark payment processing: %w", err)
	}
	return nil
}

// MarkFailed moves a non-terminal payment to FAILED. Returns false when the
// payment was already terminal.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, message, gatewayStatus string) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'FAILED', failure_message = $2, gateway_status = NULLIF($3, ''),
			failed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`
	return r.execTransition(ctx, query, id, message, gatewayStatus)
}

// MarkCompleted moves a non-terminal payment to COMPLETED. Returns false when
// the payment was already terminal.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, gatewayTransactionID, gatewayStatus string) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'COMPLETED', gateway_transaction_id = COALESCE(NULLIF($2, ''), gateway_transaction_id),
			gateway_status = NULLIF($3, ''), completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`
	return r.execTransition(ctx, query, id, gatewayTransactionID, gatewayStatus)
}

func (r *PaymentRepository) execTransition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, payment_id, booking_id, gateway, merchant_reference,
			event_type, event_source,
			expected_amount, received_amount, currency, amounts_match,
			payment_status, gateway_transaction_id,
			request_payload, response_payload, error_message,
			is_duplicate, ip_address, user_agent, device_type, browser,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13,
			$14, $15, $16,
			$17, $18, $19, $20, $21,
			$22
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.PaymentID, audit.BookingID, audit.Gateway, audit.MerchantReference,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.Currency, audit.AmountsMatch,
		audit.PaymentStatus, audit.GatewayTransactionID,
		audit.RequestPayload, audit.ResponsePayload, audit.ErrorMessage,
		audit.IsDuplicate, audit.IPAddress, audit.UserAgent, audit.DeviceType, audit.Browser,
		audit.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"payment_id": audit.PaymentID,
		}).Error("Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"payment_id": audit.PaymentID,
	}).Debug("Payment audit logged")

	return nil
}

// GetByPaymentID retrieves all audit entries for a payment
func (r *PaymentAuditRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*models.PaymentAudit, error) {
	var audits []*models.PaymentAudit
	query := `
		SELECT * FROM payment_audits
		WHERE payment_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, paymentID); err != nil {
		return nil, fmt.Errorf("failed to get audits by payment id: %w", err)
	}
	return audits, nil
}

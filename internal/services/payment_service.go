package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safaritrails/booking-backend/internal/config"
	"github.com/safaritrails/booking-backend/internal/database"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/safaritrails/booking-backend/internal/utils"
	"github.com/safaritrails/booking-backend/pkg/payments"
	"github.com/safaritrails/booking-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

// PaymentStore is the payment persistence used by PaymentService
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	GetByGatewayReference(ctx context.Context, gateway models.PaymentGateway, reference string) (*models.Payment, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, gatewayReference, redirectURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID, message, gatewayStatus string) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, gatewayTransactionID, gatewayStatus string) (bool, error)
}

// PaymentBookingStore is the slice of booking persistence payments need
type PaymentBookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) error
}

// AuditLogger records payment audit events
type AuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// GatewayResolver picks a gateway adapter; *payments.Router implements it
type GatewayResolver interface {
	Resolve(method, currency, override string) (payments.Gateway, error)
	Get(name string) (payments.Gateway, bool)
}

// RequestMeta is the caller metadata stored on audit records
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WebhookResult reports how a webhook was applied
type WebhookResult struct {
	PaymentID         uuid.UUID
	MerchantReference string
	TrackingID        string
	EventType         string
	Status            models.PaymentStatus
	Duplicate         bool
}

// ReconcileSummary counts the outcomes of one reconciliation sweep
type ReconcileSummary struct {
	Checked      int `json:"checked"`
	Orphaned     int `json:"orphaned"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	StillPending int `json:"stillPending"`
	Errors       int `json:"errors"`
}

// PaymentService initiates gateway payments and applies their outcomes
type PaymentService struct {
	payments  PaymentStore
	bookings  PaymentBookingStore
	audits    AuditLogger
	gateways  GatewayResolver
	phones    *validator.PhoneValidator
	bookCfg   config.BookingConfig
	reconcile config.ReconcileConfig
	logger    *logrus.Logger
	now       func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	paymentStore PaymentStore,
	bookings PaymentBookingStore,
	audits AuditLogger,
	gateways GatewayResolver,
	bookCfg config.BookingConfig,
	reconcile config.ReconcileConfig,
	logger *logrus.Logger,
) *PaymentService {
	if bookCfg.PaymentInProgressTTL <= 0 {
		bookCfg.PaymentInProgressTTL = 30 * time.Minute
	}
	if reconcile.StaleAfter <= 0 {
		reconcile.StaleAfter = 30 * time.Minute
	}
	if reconcile.BatchSize <= 0 {
		reconcile.BatchSize = 50
	}

	return &PaymentService{
		payments:  paymentStore,
		bookings:  bookings,
		audits:    audits,
		gateways:  gateways,
		phones:    validator.NewPhoneValidator(),
		bookCfg:   bookCfg,
		reconcile: reconcile,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================================
// INITIATE
// ============================================================================

// GetPayment returns a payment owned by actor, or any payment for admins
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID, actor *Actor) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, NotFoundError("Payment not found")
	}
	if payment.UserID != actor.UserID && !actor.HasRole(models.RoleAdmin) {
		return nil, ForbiddenError("You do not have access to this payment")
	}
	return payment, nil
}

// InitiatePayment creates a local payment attempt for a booking, submits it to
// the selected gateway and returns the URL where the customer pays
func (s *PaymentService) InitiatePayment(ctx context.Context, req *models.InitiatePaymentRequest, actor *Actor, meta RequestMeta) (*models.InitiatePaymentResponse, error) {
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, ValidationError("Invalid booking ID").WithDetail("field", "bookingId")
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, NotFoundError("Booking not found")
	}
	if actor == nil || booking.UserID != actor.UserID {
		return nil, ForbiddenError("You do not have access to this booking")
	}

	if booking.Status == models.BookingStatusCancelled || booking.Status == models.BookingStatusRefunded {
		return nil, BusinessError("Cannot pay for a %s booking", strings.ToLower(string(booking.Status))).
			WithDetail("bookingStatus", booking.Status)
	}

	existing, err := s.payments.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	amount, isDeposit, err := s.amountDue(booking, existing)
	if err != nil {
		return nil, err
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	phone := strings.TrimSpace(req.PhoneNumber)
	if models.IsMobileMoneyMethod(method) {
		normalized, err := s.phones.Validate(phone)
		if err != nil {
			return nil, ValidationError("A valid mobile money phone number is required: %s", err.Error()).
				WithDetail("field", "phoneNumber")
		}
		phone = normalized
	}

	gateway, err := s.gateways.Resolve(method, booking.Currency, req.Gateway)
	if err != nil {
		return nil, ValidationError("%s", err.Error()).WithDetail("field", "gateway")
	}

	merchantRef, err := GenerateMerchantReference(booking.BookingReference)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		BookingID:      booking.ID,
		UserID:         booking.UserID,
		Gateway:        models.PaymentGateway(gateway.Name()),
		Amount:         amount,
		Currency:       booking.Currency,
		Status:         models.PaymentStatusPending,
		PaymentMethod:  optionalString(method),
		PhoneNumber:    optionalString(phone),
		IdempotencyKey: merchantRef,
		IsDeposit:      isDeposit,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, database.ErrDuplicateIdempotencyKey) {
			return nil, ConflictError("Payment reference collision, please try again")
		}
		return nil, err
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		ForPayment(payment).
		SetRequestPayload(map[string]interface{}{
			"payment_method": method,
			"amount":         amount,
			"currency":       booking.Currency,
			"is_deposit":     isDeposit,
		}), meta)

	customerPhone := phone
	if customerPhone == "" {
		customerPhone = booking.ContactPhone
	}
	order := &payments.OrderRequest{
		MerchantReference: merchantRef,
		Amount:            amount,
		Currency:          booking.Currency,
		Description:       orderDescription(booking, isDeposit),
		PaymentMethod:     method,
		CustomerName:      booking.ContactName,
		CustomerEmail:     booking.ContactEmail,
		CustomerPhone:     customerPhone,
		BookingID:         booking.ID.String(),
	}

	result, err := gateway.SubmitOrder(ctx, order)
	if err != nil {
		return nil, s.failSubmission(ctx, payment, err, meta)
	}

	if err := s.payments.MarkProcessing(ctx, payment.ID, result.TrackingID, result.RedirectURL); err != nil {
		return nil, err
	}
	if err := s.bookings.UpdatePaymentStatus(ctx, booking.ID, models.PaymentStatusProcessing); err != nil {
		return nil, err
	}

	submitted := models.NewPaymentAudit(models.PaymentEventOrderSubmitted, models.PaymentSourceGateway).
		ForPayment(payment).
		SetResponsePayload(result.Raw)
	if !submitted.SetAmounts(amount, result.ChargedAmount, booking.Currency) && result.DevMode {
		submitted.SetError("dev mode test amount charged")
	}
	s.audit(ctx, submitted, meta)

	s.logger.WithFields(logrus.Fields{
		"payment_id":         payment.ID,
		"booking_id":         booking.ID,
		"gateway":            gateway.Name(),
		"merchant_reference": merchantRef,
		"amount":             amount,
		"is_deposit":         isDeposit,
	}).Info("Payment submitted to gateway")

	return &models.InitiatePaymentResponse{
		PaymentID:         payment.ID,
		Gateway:           payment.Gateway,
		RedirectURL:       result.RedirectURL,
		MerchantReference: merchantRef,
		OrderTrackingID:   result.TrackingID,
		Amount:            amount,
		Currency:          booking.Currency,
		IsDeposit:         isDeposit,
	}, nil
}

// amountDue applies the double-payment guards and returns what to charge next
func (s *PaymentService) amountDue(booking *models.Booking, existing []models.Payment) (float64, bool, error) {
	now := s.now()
	depositPaid := false

	// Completed payments win over in-progress attempts regardless of order
	for i := range existing {
		p := &existing[i]
		if p.Status != models.PaymentStatusCompleted {
			continue
		}
		if !p.IsDeposit {
			return 0, false, BusinessError("Payment already completed for this booking")
		}
		depositPaid = true
	}
	if booking.PaymentStatus == models.PaymentStatusCompleted {
		return 0, false, BusinessError("Payment already completed for this booking")
	}

	for i := range existing {
		p := &existing[i]
		if p.IsInProgress(now, s.bookCfg.PaymentInProgressTTL) {
			return 0, false, BusinessError("A payment is already in progress for this booking").
				WithDetail("paymentId", p.ID)
		}
	}

	if booking.PaymentType != models.PaymentTypeDeposit {
		return booking.TotalAmount, false, nil
	}

	if !depositPaid {
		if booking.DepositAmount == nil || *booking.DepositAmount <= 0 {
			return 0, false, BusinessError("Booking has no deposit amount")
		}
		return *booking.DepositAmount, true, nil
	}

	if booking.BalanceAmount == nil || *booking.BalanceAmount <= 0 {
		return 0, false, BusinessError("Payment already completed for this booking")
	}
	return *booking.BalanceAmount, false, nil
}

// failSubmission records a rejected gateway submission. The booking's payment
// status is left as it was.
func (s *PaymentService) failSubmission(ctx context.Context, payment *models.Payment, cause error, meta RequestMeta) error {
	s.logger.WithFields(logrus.Fields{
		"payment_id":         payment.ID,
		"booking_id":         payment.BookingID,
		"gateway":            payment.Gateway,
		"merchant_reference": payment.IdempotencyKey,
		"error":              cause.Error(),
	}).Error("Gateway order submission failed")

	if _, err := s.payments.MarkFailed(ctx, payment.ID, cause.Error(), ""); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Error("Failed to mark payment as failed")
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventOrderFailed, models.PaymentSourceGateway).
		ForPayment(payment).
		SetError(cause.Error()), meta)

	return GatewayError(cause, "Payment gateway request failed, please try again")
}

// ============================================================================
// WEBHOOKS
// ============================================================================

// HandleWebhook authenticates a gateway notification, re-queries the
// transaction at the gateway and applies the authoritative status
func (s *PaymentService) HandleWebhook(ctx context.Context, gatewayName string, header http.Header, query url.Values, body []byte, meta RequestMeta) (*WebhookResult, error) {
	gateway, ok := s.gateways.Get(gatewayName)
	if !ok {
		return nil, NotFoundError("Unknown payment gateway %q", gatewayName)
	}

	if err := gateway.VerifyWebhookSignature(header, body); err != nil {
		rejected := models.NewPaymentAudit(models.PaymentEventWebhookRejected, models.PaymentSourceWebhook).
			SetError(err.Error())
		name := gateway.Name()
		rejected.Gateway = &name
		s.audit(ctx, rejected, meta)

		s.logger.WithFields(logrus.Fields{
			"gateway": gateway.Name(),
			"ip":      meta.IPAddress,
		}).Warn("Rejected webhook with invalid signature")
		return nil, ForbiddenError("Invalid webhook signature")
	}

	notification, err := gateway.ParseNotification(query, body)
	if err != nil {
		return nil, ValidationError("%s", err.Error())
	}

	payment, err := s.findNotifiedPayment(ctx, gateway, notification)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{
		MerchantReference: notification.MerchantReference,
		TrackingID:        notification.TrackingID,
		EventType:         notification.EventType,
	}

	received := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceWebhook).
		SetRequestPayload(notification.Raw)
	if payment == nil {
		name := gateway.Name()
		received.Gateway = &name
		received.MerchantReference = optionalString(notification.MerchantReference)
		received.SetError("no payment matches notification")
		s.audit(ctx, received, meta)
		return nil, NotFoundError("Payment not found")
	}

	result.PaymentID = payment.ID
	result.MerchantReference = payment.IdempotencyKey
	received.ForPayment(payment)

	if payment.Status.IsTerminal() {
		received.MarkAsDuplicate()
		received.SetPaymentStatus(string(payment.Status))
		s.audit(ctx, received, meta)

		s.logger.WithFields(logrus.Fields{
			"payment_id": payment.ID,
			"status":     payment.Status,
		}).Info("Duplicate webhook for settled payment ignored")

		result.Status = payment.Status
		result.Duplicate = true
		return result, nil
	}
	s.audit(ctx, received, meta)

	trackingID := notification.TrackingID
	if payment.GatewayReference != nil && *payment.GatewayReference != "" {
		trackingID = *payment.GatewayReference
	}
	if result.TrackingID == "" {
		result.TrackingID = trackingID
	}

	status, err := gateway.QueryStatus(ctx, payment.IdempotencyKey, trackingID)
	if err != nil {
		return nil, GatewayError(err, "Could not verify payment status with gateway")
	}

	applied, duplicate, err := s.applyStatus(ctx, payment, status, models.PaymentSourceWebhook, meta)
	if err != nil {
		return nil, err
	}

	result.Status = applied
	result.Duplicate = duplicate
	return result, nil
}

func (s *PaymentService) findNotifiedPayment(ctx context.Context, gateway payments.Gateway, n *payments.Notification) (*models.Payment, error) {
	if n.MerchantReference != "" {
		payment, err := s.payments.GetByIdempotencyKey(ctx, n.MerchantReference)
		if err != nil || payment != nil {
			return payment, err
		}
	}
	if n.TrackingID != "" {
		return s.payments.GetByGatewayReference(ctx, models.PaymentGateway(gateway.Name()), n.TrackingID)
	}
	return nil, nil
}

// applyStatus moves a payment and its booking to the state reported by the
// gateway. Payments already in a terminal state are left alone and reported
// as duplicates.
func (s *PaymentService) applyStatus(ctx context.Context, payment *models.Payment, status *payments.StatusResult, source models.PaymentEventSource, meta RequestMeta) (models.PaymentStatus, bool, error) {
	check := models.NewPaymentAudit(models.PaymentEventStatusCheckResponse, source).
		ForPayment(payment).
		SetPaymentStatus(status.GatewayStatus).
		SetResponsePayload(status.Raw)
	s.audit(ctx, check, meta)

	switch status.Status {
	case payments.StatusCompleted:
		updated, err := s.payments.MarkCompleted(ctx, payment.ID, status.TransactionID, status.GatewayStatus)
		if err != nil {
			return "", false, err
		}
		if !updated {
			return models.PaymentStatusCompleted, true, nil
		}

		bookingStatus := models.PaymentStatusCompleted
		if payment.IsDeposit {
			// Deposit received, balance still outstanding
			bookingStatus = models.PaymentStatusPending
		}
		if err := s.bookings.UpdatePaymentStatus(ctx, payment.BookingID, bookingStatus); err != nil {
			return "", false, err
		}

		success := models.NewPaymentAudit(models.PaymentEventSuccess, source).ForPayment(payment).
			SetPaymentStatus(status.GatewayStatus)
		if status.TransactionID != "" {
			success.GatewayTransactionID = &status.TransactionID
		}
		if status.Amount > 0 && !success.SetAmounts(payment.Amount, status.Amount, payment.Currency) {
			mismatch := models.NewPaymentAudit(models.PaymentEventAmountMismatch, source).ForPayment(payment)
			mismatch.SetAmounts(payment.Amount, status.Amount, status.Currency)
			s.audit(ctx, mismatch, meta)

			s.logger.WithFields(logrus.Fields{
				"payment_id": payment.ID,
				"expected":   payment.Amount,
				"received":   status.Amount,
			}).Warn("Gateway reported a different amount than expected")
		}
		s.audit(ctx, success, meta)

		s.logger.WithFields(logrus.Fields{
			"payment_id":     payment.ID,
			"booking_id":     payment.BookingID,
			"transaction_id": status.TransactionID,
			"is_deposit":     payment.IsDeposit,
		}).Info("Payment completed")
		return models.PaymentStatusCompleted, false, nil

	case payments.StatusFailed:
		message := fmt.Sprintf("Payment %s at gateway", strings.ToLower(status.GatewayStatus))
		updated, err := s.payments.MarkFailed(ctx, payment.ID, message, status.GatewayStatus)
		if err != nil {
			return "", false, err
		}
		if !updated {
			return models.PaymentStatusFailed, true, nil
		}

		if err := s.settleFailedBooking(ctx, payment); err != nil {
			return "", false, err
		}

		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventFailed, source).
			ForPayment(payment).
			SetPaymentStatus(status.GatewayStatus).
			SetError(message), meta)

		s.logger.WithFields(logrus.Fields{
			"payment_id":     payment.ID,
			"booking_id":     payment.BookingID,
			"gateway_status": status.GatewayStatus,
		}).Warn("Payment failed")
		return models.PaymentStatusFailed, false, nil

	default:
		return payment.Status, false, nil
	}
}

// settleFailedBooking derives the booking's payment status from the remaining
// attempts once one of them failed. A completed full or balance payment wins,
// then a live attempt the gateway accepted, then a completed deposit.
func (s *PaymentService) settleFailedBooking(ctx context.Context, failed *models.Payment) error {
	siblings, err := s.payments.ListByBooking(ctx, failed.BookingID)
	if err != nil {
		return err
	}

	var completed, live, depositPaid bool
	for i := range siblings {
		p := &siblings[i]
		if p.ID == failed.ID {
			continue
		}
		switch {
		case p.Status == models.PaymentStatusCompleted && !p.IsDeposit:
			completed = true
		case p.Status == models.PaymentStatusCompleted:
			depositPaid = true
		case !p.Status.IsTerminal() && p.HasTrackingInfo():
			live = true
		}
	}

	status := models.PaymentStatusFailed
	switch {
	case completed:
		status = models.PaymentStatusCompleted
	case live:
		status = models.PaymentStatusProcessing
	case depositPaid:
		status = models.PaymentStatusPending
	}
	return s.bookings.UpdatePaymentStatus(ctx, failed.BookingID, status)
}

// ============================================================================
// RECONCILIATION
// ============================================================================

// ReconcileStalePayments resolves PENDING and PROCESSING payments older than
// the configured threshold. Payments that never reached the gateway are failed;
// the rest are re-queried and settled like webhooks.
func (s *PaymentService) ReconcileStalePayments(ctx context.Context) (*ReconcileSummary, error) {
	cutoff := s.now().Add(-s.reconcile.StaleAfter)

	stale, err := s.payments.ListStale(ctx, cutoff, s.reconcile.BatchSize)
	if err != nil {
		return nil, err
	}

	summary := &ReconcileSummary{}
	meta := RequestMeta{}

	for i := range stale {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		payment := &stale[i]
		summary.Checked++
		logger := s.logger.WithFields(logrus.Fields{
			"payment_id":         payment.ID,
			"merchant_reference": payment.IdempotencyKey,
			"gateway":            payment.Gateway,
		})

		if !payment.HasTrackingInfo() {
			const message = "Payment was never submitted to the gateway"
			updated, err := s.payments.MarkFailed(ctx, payment.ID, message, "")
			if err != nil {
				logger.WithError(err).Error("Failed to mark orphaned payment")
				summary.Errors++
				continue
			}
			if updated {
				s.audit(ctx, models.NewPaymentAudit(models.PaymentEventOrphaned, models.PaymentSourceReconcile).
					ForPayment(payment).
					SetError(message), meta)
				logger.Info("Orphaned payment marked as failed")
			}
			summary.Orphaned++
			continue
		}

		gateway, ok := s.gateways.Get(string(payment.Gateway))
		if !ok {
			logger.Warn("No adapter configured for payment gateway")
			summary.Errors++
			continue
		}

		trackingID := ""
		if payment.GatewayReference != nil {
			trackingID = *payment.GatewayReference
		}

		status, err := gateway.QueryStatus(ctx, payment.IdempotencyKey, trackingID)
		if err != nil {
			logger.WithError(err).Warn("Gateway status query failed during reconciliation")
			summary.Errors++
			continue
		}

		applied, _, err := s.applyStatus(ctx, payment, status, models.PaymentSourceReconcile, meta)
		if err != nil {
			logger.WithError(err).Error("Failed to apply reconciled payment status")
			summary.Errors++
			continue
		}

		switch applied {
		case models.PaymentStatusCompleted:
			summary.Completed++
		case models.PaymentStatusFailed:
			summary.Failed++
		default:
			summary.StillPending++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"checked":       summary.Checked,
		"orphaned":      summary.Orphaned,
		"completed":     summary.Completed,
		"failed":        summary.Failed,
		"still_pending": summary.StillPending,
		"errors":        summary.Errors,
	}).Info("Payment reconciliation finished")

	return summary, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// audit writes an audit record; failures are logged and never block payments
func (s *PaymentService) audit(ctx context.Context, entry *models.PaymentAudit, meta RequestMeta) {
	if s.audits == nil {
		return
	}
	if meta.IPAddress != "" || meta.UserAgent != "" {
		device := utils.ParseUserAgent(meta.UserAgent)
		entry.SetMetadata(meta.IPAddress, meta.UserAgent, device.DeviceType, device.Browser)
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("event_type", entry.EventType).Warn("Failed to write payment audit")
	}
}

func orderDescription(b *models.Booking, isDeposit bool) string {
	if isDeposit {
		return "Deposit for booking " + b.BookingReference
	}
	return "Payment for booking " + b.BookingReference
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

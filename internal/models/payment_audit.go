package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated           PaymentEventType = "payment_initiated"
	PaymentEventOrderSubmitted      PaymentEventType = "order_submitted"
	PaymentEventOrderFailed         PaymentEventType = "order_failed"
	PaymentEventWebhookReceived     PaymentEventType = "webhook_received"
	PaymentEventWebhookRejected     PaymentEventType = "webhook_rejected"
	PaymentEventStatusCheckResponse PaymentEventType = "status_check_response"
	PaymentEventSuccess             PaymentEventType = "payment_success"
	PaymentEventFailed              PaymentEventType = "payment_failed"
	PaymentEventOrphaned            PaymentEventType = "payment_orphaned"
	PaymentEventAmountMismatch      PaymentEventType = "amount_mismatch"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend   PaymentEventSource = "backend"
	PaymentSourceWebhook   PaymentEventSource = "gateway_webhook"
	PaymentSourceGateway   PaymentEventSource = "gateway_api"
	PaymentSourceReconcile PaymentEventSource = "reconciliation"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	PaymentID *uuid.UUID `json:"paymentId,omitempty" db:"payment_id"`
	BookingID *uuid.UUID `json:"bookingId,omitempty" db:"booking_id"`
	Gateway   *string    `json:"gateway,omitempty" db:"gateway"`

	MerchantReference *string `json:"merchantReference,omitempty" db:"merchant_reference"`

	EventType   PaymentEventType   `json:"eventType" db:"event_type"`
	EventSource PaymentEventSource `json:"eventSource" db:"event_source"`

	ExpectedAmount *float64 `json:"expectedAmount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"receivedAmount,omitempty" db:"received_amount"`
	Currency       *string  `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool    `json:"amountsMatch,omitempty" db:"amounts_match"`

	PaymentStatus        *string `json:"paymentStatus,omitempty" db:"payment_status"`
	GatewayTransactionID *string `json:"gatewayTransactionId,omitempty" db:"gateway_transaction_id"`

	RequestPayload  JSONB   `json:"requestPayload,omitempty" db:"request_payload"`
	ResponsePayload JSONB   `json:"responsePayload,omitempty" db:"response_payload"`
	ErrorMessage    *string `json:"errorMessage,omitempty" db:"error_message"`

	IsDuplicate bool `json:"isDuplicate" db:"is_duplicate"`

	// Request metadata
	IPAddress  *string `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent  *string `json:"userAgent,omitempty" db:"user_agent"`
	DeviceType *string `json:"deviceType,omitempty" db:"device_type"`
	Browser    *string `json:"browser,omitempty" db:"browser"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// ForPayment copies the identifying fields of a payment onto the audit
func (pa *PaymentAudit) ForPayment(p *Payment) *PaymentAudit {
	if p == nil {
		return pa
	}
	paymentID, bookingID := p.ID, p.BookingID
	gateway, ref := string(p.Gateway), p.IdempotencyKey
	pa.PaymentID = &paymentID
	pa.BookingID = &bookingID
	pa.Gateway = &gateway
	pa.MerchantReference = &ref
	if p.GatewayTransactionID != nil {
		pa.GatewayTransactionID = p.GatewayTransactionID
	}
	return pa
}

// SetAmounts sets and verifies amounts, returning whether they match
func (pa *PaymentAudit) SetAmounts(expected, received float64, currency string) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.Currency = &currency

	const tolerance = 0.01
	diff := expected - received
	if diff < 0 {
		diff = -diff
	}
	match := diff < tolerance
	pa.AmountsMatch = &match
	return match
}

// SetPaymentStatus sets the payment status reported by the gateway
func (pa *PaymentAudit) SetPaymentStatus(status string) *PaymentAudit {
	pa.PaymentStatus = &status
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetRequestPayload sets the request payload sent
func (pa *PaymentAudit) SetRequestPayload(payload map[string]interface{}) *PaymentAudit {
	pa.RequestPayload = JSONB(payload)
	return pa
}

// SetResponsePayload sets the response payload received
func (pa *PaymentAudit) SetResponsePayload(payload map[string]interface{}) *PaymentAudit {
	pa.ResponsePayload = JSONB(payload)
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent, deviceType, browser string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if deviceType != "" {
		pa.DeviceType = &deviceType
	}
	if browser != "" {
		pa.Browser = &browser
	}
	return pa
}

// MarkAsDuplicate marks this event as a replay of an already applied event
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}

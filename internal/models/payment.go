package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentGateway names a configured payment provider
type PaymentGateway string

const (
	GatewayPesapal     PaymentGateway = "pesapal"
	GatewayFlutterwave PaymentGateway = "flutterwave"
)

// Payment method names accepted from clients
const (
	PaymentMethodMpesa       = "mpesa"
	PaymentMethodAirtelMoney = "airtel_money"
	PaymentMethodMobileMoney = "mobile_money"
	PaymentMethodCard        = "card"
	PaymentMethodBank        = "bank"
)

// IsMobileMoneyMethod reports whether the method is a mobile money wallet
func IsMobileMoneyMethod(method string) bool {
	switch method {
	case PaymentMethodMpesa, PaymentMethodAirtelMoney, PaymentMethodMobileMoney:
		return true
	}
	return false
}

// Payment is one attempt to charge a booking through a gateway
type Payment struct {
	ID                   uuid.UUID      `json:"id" db:"id"`
	BookingID            uuid.UUID      `json:"bookingId" db:"booking_id"`
	UserID               uuid.UUID      `json:"userId" db:"user_id"`
	Gateway              PaymentGateway `json:"gateway" db:"gateway"`
	Amount               float64        `json:"amount" db:"amount"`
	Currency             string         `json:"currency" db:"currency"`
	Status               PaymentStatus  `json:"status" db:"status"`
	PaymentMethod        *string        `json:"paymentMethod,omitempty" db:"payment_method"`
	PhoneNumber          *string        `json:"phoneNumber,omitempty" db:"phone_number"`
	IdempotencyKey       string         `json:"idempotencyKey" db:"idempotency_key"` // also the merchant reference
	GatewayReference     *string        `json:"gatewayReference,omitempty" db:"gateway_reference"`
	GatewayTransactionID *string        `json:"gatewayTransactionId,omitempty" db:"gateway_transaction_id"`
	RedirectURL          *string        `json:"redirectUrl,omitempty" db:"redirect_url"`
	GatewayStatus        *string        `json:"gatewayStatus,omitempty" db:"gateway_status"`
	FailureMessage       *string        `json:"failureMessage,omitempty" db:"failure_message"`
	IsDeposit            bool           `json:"isDeposit" db:"is_deposit"`
	FailedAt             *time.Time     `json:"failedAt,omitempty" db:"failed_at"`
	CompletedAt          *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt            time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time      `json:"updatedAt" db:"updated_at"`
}

// HasTrackingInfo reports whether the gateway accepted the order
func (p *Payment) HasTrackingInfo() bool {
	return (p.GatewayReference != nil && *p.GatewayReference != "") ||
		(p.RedirectURL != nil && *p.RedirectURL != "")
}

// IsInProgress reports whether the payment still blocks a new attempt at now
func (p *Payment) IsInProgress(now time.Time, ttl time.Duration) bool {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusProcessing {
		return false
	}
	return p.HasTrackingInfo() && now.Sub(p.CreatedAt) < ttl
}

// InitiatePaymentRequest is the body of POST /api/payments/initiate
type InitiatePaymentRequest struct {
	BookingID     string `json:"bookingId" binding:"required,uuid"`
	PaymentMethod string `json:"paymentMethod" binding:"max=32"`
	PhoneNumber   string `json:"phoneNumber" binding:"max=32"`
	Gateway       string `json:"gateway" binding:"max=32"`
}

// InitiatePaymentResponse tells the client where to complete payment
type InitiatePaymentResponse struct {
	PaymentID         uuid.UUID      `json:"paymentId"`
	Gateway           PaymentGateway `json:"gateway"`
	RedirectURL       string         `json:"redirectUrl"`
	MerchantReference string         `json:"merchantReference"`
	OrderTrackingID   string         `json:"orderTrackingId,omitempty"`
	Amount            float64        `json:"amount"`
	Currency          string         `json:"currency"`
	IsDeposit         bool           `json:"isDeposit"`
}

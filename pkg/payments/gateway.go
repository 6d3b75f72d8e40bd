// Package payments contains the payment gateway adapters (Pesapal and
// Flutterwave) and the router that picks one for a payment.
package payments

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// Gateway names
const (
	Pesapal     = "pesapal"
	Flutterwave = "flutterwave"
)

// Status is a gateway-neutral payment outcome
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var (
	// ErrInvalidSignature is returned when a webhook fails authentication
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrNotConfigured is returned when a gateway lacks credentials
	ErrNotConfigured = errors.New("payment gateway not configured")
)

// OrderRequest is what we ask a gateway to charge
type OrderRequest struct {
	MerchantReference string
	Amount            float64
	Currency          string
	Description       string
	PaymentMethod     string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	BookingID         string // appended to the customer return URL
}

// OrderResult is the gateway's answer to an order submission
type OrderResult struct {
	TrackingID    string // gateway order id, empty when the gateway tracks by merchant reference
	RedirectURL   string // where the customer completes payment
	ChargedAmount float64
	DevMode       bool
	Raw           map[string]interface{}
}

// StatusResult is the authoritative state of a transaction at the gateway
type StatusResult struct {
	Status            Status
	GatewayStatus     string // the gateway's own status wording
	TransactionID     string
	MerchantReference string
	Amount            float64
	Currency          string
	Raw               map[string]interface{}
}

// Notification identifies the transaction a webhook is about
type Notification struct {
	MerchantReference string
	TrackingID        string
	EventType         string
	Raw               map[string]interface{}
}

// Gateway is implemented by every payment provider adapter
type Gateway interface {
	Name() string
	// SubmitOrder creates a hosted checkout for the order
	SubmitOrder(ctx context.Context, order *OrderRequest) (*OrderResult, error)
	// QueryStatus fetches the transaction status by tracking id or merchant reference
	QueryStatus(ctx context.Context, merchantReference, trackingID string) (*StatusResult, error)
	// MapStatus converts the gateway's status wording to a Status
	MapStatus(gatewayStatus string) Status
	// VerifyWebhookSignature authenticates an inbound webhook
	VerifyWebhookSignature(header http.Header, body []byte) error
	// ParseNotification extracts the transaction identifiers from a webhook
	ParseNotification(query url.Values, body []byte) (*Notification, error)
}

func roundAmount(amount float64) float64 {
	f, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return f
}

// returnURL adds the booking id to a configured customer return URL so the
// web app can show the right booking after payment
func returnURL(base, bookingID string) string {
	if base == "" || bookingID == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("bookingId", bookingID)
	u.RawQuery = q.Encode()
	return u.String()
}

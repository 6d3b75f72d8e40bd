package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pesapal API 3.0 base URLs
var pesapalURLs = map[string]string{
	"sandbox":    "https://cybqa.pesapal.com/pesapalv3",
	"production": "https://pay.pesapal.com/v3",
}

// Test amount charged when dev mode is on (KES)
const pesapalDevAmount = 1.0

// PesapalBaseURL returns the API base URL for an environment, defaulting to sandbox
func PesapalBaseURL(environment string) string {
	if u, ok := pesapalURLs[strings.ToLower(environment)]; ok {
		return u
	}
	return pesapalURLs["sandbox"]
}

// PesapalConfig holds Pesapal credentials and endpoints
type PesapalConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	IPNID          string
	IPNURL         string
	CallbackURL    string
	DevMode        bool
}

// PesapalGateway talks to Pesapal API 3.0
type PesapalGateway struct {
	config PesapalConfig
	client *http.Client
	logger *logrus.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	ipnID       string
}

// NewPesapalGateway creates a Pesapal adapter
func NewPesapalGateway(config PesapalConfig, logger *logrus.Logger) *PesapalGateway {
	if config.BaseURL == "" {
		config.BaseURL = pesapalURLs["sandbox"]
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &PesapalGateway{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
		ipnID:  config.IPNID,
	}
}

// Name returns "pesapal"
func (g *PesapalGateway) Name() string { return Pesapal }

// ===== Pesapal wire types =====

type pesapalError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *pesapalError) present() bool {
	return e != nil && (e.Code != "" || e.Message != "")
}

type pesapalTokenResponse struct {
	Token      string        `json:"token"`
	ExpiryDate string        `json:"expiryDate"`
	Error      *pesapalError `json:"error"`
	Status     string        `json:"status"`
	Message    string        `json:"message"`
}

type pesapalIPNResponse struct {
	IPNID  string        `json:"ipn_id"`
	URL    string        `json:"url"`
	Error  *pesapalError `json:"error"`
	Status string        `json:"status"`
}

type pesapalBillingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

type pesapalOrderRequest struct {
	ID              string                `json:"id"`
	Currency        string                `json:"currency"`
	Amount          float64               `json:"amount"`
	Description     string                `json:"description"`
	CallbackURL     string                `json:"callback_url"`
	NotificationID  string                `json:"notification_id"`
	BillingAddress  pesapalBillingAddress `json:"billing_address"`
	RedirectMode    string                `json:"redirect_mode,omitempty"`
	CancellationURL string                `json:"cancellation_url,omitempty"`
}

type pesapalOrderResponse struct {
	OrderTrackingID   string        `json:"order_tracking_id"`
	MerchantReference string        `json:"merchant_reference"`
	RedirectURL       string        `json:"redirect_url"`
	Error             *pesapalError `json:"error"`
	Status            string        `json:"status"`
}

type pesapalStatusResponse struct {
	PaymentMethod            string        `json:"payment_method"`
	Amount                   float64       `json:"amount"`
	ConfirmationCode         string        `json:"confirmation_code"`
	PaymentStatusDescription string        `json:"payment_status_description"`
	Description              string        `json:"description"`
	StatusCode               int           `json:"status_code"`
	MerchantReference        string        `json:"merchant_reference"`
	Currency                 string        `json:"currency"`
	Error                    *pesapalError `json:"error"`
	Status                   string        `json:"status"`
}

// ===== Authentication =====

// accessToken returns a cached bearer token, requesting a new one when it is
// missing or about to expire
func (g *PesapalGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Add(30*time.Second).Before(g.tokenExpiry) {
		return g.token, nil
	}

	if g.config.ConsumerKey == "" || g.config.ConsumerSecret == "" {
		return "", ErrNotConfigured
	}

	payload := map[string]string{
		"consumer_key":    g.config.ConsumerKey,
		"consumer_secret": g.config.ConsumerSecret,
	}

	var resp pesapalTokenResponse
	if _, err := g.do(ctx, http.MethodPost, "/api/Auth/RequestToken", "", payload, &resp); err != nil {
		return "", fmt.Errorf("failed to request Pesapal token: %w", err)
	}
	if resp.Error.present() || resp.Token == "" {
		return "", fmt.Errorf("pesapal token request rejected: %s", g.describeError(resp.Error, resp.Message))
	}

	expiry, err := time.Parse(time.RFC3339Nano, resp.ExpiryDate)
	if err != nil {
		// Tokens are valid for five minutes
		expiry = time.Now().Add(4 * time.Minute)
	}

	g.token = resp.Token
	g.tokenExpiry = expiry
	return g.token, nil
}

// notificationID returns the registered IPN id, registering the IPN URL on first use
func (g *PesapalGateway) notificationID(ctx context.Context, token string) (string, error) {
	g.mu.Lock()
	id := g.ipnID
	g.mu.Unlock()
	if id != "" {
		return id, nil
	}

	if g.config.IPNURL == "" {
		return "", fmt.Errorf("pesapal IPN id is not configured and no IPN URL is set")
	}

	payload := map[string]string{
		"url":                   g.config.IPNURL,
		"ipn_notification_type": "GET",
	}

	var resp pesapalIPNResponse
	if _, err := g.do(ctx, http.MethodPost, "/api/URLSetup/RegisterIPN", token, payload, &resp); err != nil {
		return "", fmt.Errorf("failed to register Pesapal IPN: %w", err)
	}
	if resp.Error.present() || resp.IPNID == "" {
		return "", fmt.Errorf("pesapal IPN registration rejected: %s", g.describeError(resp.Error, ""))
	}

	g.logger.WithFields(logrus.Fields{
		"ipn_id":  resp.IPNID,
		"ipn_url": g.config.IPNURL,
	}).Info("Registered Pesapal IPN URL")

	g.mu.Lock()
	g.ipnID = resp.IPNID
	g.mu.Unlock()
	return resp.IPNID, nil
}

// ===== Gateway implementation =====

// SubmitOrder submits an order request and returns the hosted checkout URL
func (g *PesapalGateway) SubmitOrder(ctx context.Context, order *OrderRequest) (*OrderResult, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	ipnID, err := g.notificationID(ctx, token)
	if err != nil {
		return nil, err
	}

	amount := roundAmount(order.Amount)
	if g.config.DevMode {
		g.logger.WithFields(logrus.Fields{
			"merchant_reference": order.MerchantReference,
			"real_amount":        amount,
			"charged_amount":     pesapalDevAmount,
		}).Warn("Pesapal dev mode: charging test amount instead of booking amount")
		amount = pesapalDevAmount
	}

	firstName, lastName := splitName(order.CustomerName)
	payload := pesapalOrderRequest{
		ID:             order.MerchantReference,
		Currency:       strings.ToUpper(order.Currency),
		Amount:         amount,
		Description:    truncate(order.Description, 100),
		CallbackURL:    returnURL(g.config.CallbackURL, order.BookingID),
		NotificationID: ipnID,
		BillingAddress: pesapalBillingAddress{
			EmailAddress: order.CustomerEmail,
			PhoneNumber:  order.CustomerPhone,
			FirstName:    firstName,
			LastName:     lastName,
		},
	}

	var resp pesapalOrderResponse
	raw, err := g.do(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", token, payload, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to submit Pesapal order: %w", err)
	}
	if resp.Error.present() {
		return nil, fmt.Errorf("pesapal rejected order: %s", g.describeError(resp.Error, ""))
	}
	if resp.RedirectURL == "" || resp.OrderTrackingID == "" {
		return nil, fmt.Errorf("pesapal response missing redirect_url or order_tracking_id")
	}

	return &OrderResult{
		TrackingID:    resp.OrderTrackingID,
		RedirectURL:   resp.RedirectURL,
		ChargedAmount: amount,
		DevMode:       g.config.DevMode,
		Raw:           raw,
	}, nil
}

// QueryStatus fetches the transaction status. Pesapal needs the order tracking id.
func (g *PesapalGateway) QueryStatus(ctx context.Context, merchantReference, trackingID string) (*StatusResult, error) {
	if trackingID == "" {
		return nil, fmt.Errorf("pesapal status query needs an order tracking id (merchant reference %s)", merchantReference)
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(trackingID)

	var resp pesapalStatusResponse
	raw, err := g.do(ctx, http.MethodGet, path, token, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to query Pesapal transaction status: %w", err)
	}

	// Pesapal reports failed payments with an error object too, so only bail
	// when there is no status description at all
	if resp.PaymentStatusDescription == "" && resp.Error.present() {
		return nil, fmt.Errorf("pesapal status query rejected: %s", g.describeError(resp.Error, ""))
	}

	return &StatusResult{
		Status:            g.MapStatus(resp.PaymentStatusDescription),
		GatewayStatus:     resp.PaymentStatusDescription,
		TransactionID:     resp.ConfirmationCode,
		MerchantReference: resp.MerchantReference,
		Amount:            resp.Amount,
		Currency:          resp.Currency,
		Raw:               raw,
	}, nil
}

// MapStatus maps payment_status_description values
func (g *PesapalGateway) MapStatus(gatewayStatus string) Status {
	switch strings.ToUpper(strings.TrimSpace(gatewayStatus)) {
	case "COMPLETED":
		return StatusCompleted
	case "FAILED", "INVALID", "REVERSED":
		return StatusFailed
	default:
		return StatusPending
	}
}

// VerifyWebhookSignature always succeeds: Pesapal IPNs are unsigned and are
// trusted only after the status is re-queried with our credentials
func (g *PesapalGateway) VerifyWebhookSignature(header http.Header, body []byte) error {
	return nil
}

// ParseNotification reads OrderTrackingId and OrderMerchantReference from the
// query string (GET IPN) or JSON body (POST IPN)
func (g *PesapalGateway) ParseNotification(query url.Values, body []byte) (*Notification, error) {
	n := &Notification{
		TrackingID:        query.Get("OrderTrackingId"),
		MerchantReference: query.Get("OrderMerchantReference"),
		EventType:         query.Get("OrderNotificationType"),
	}

	if len(bytes.TrimSpace(body)) > 0 {
		var payload struct {
			OrderTrackingID        string `json:"OrderTrackingId"`
			OrderMerchantReference string `json:"OrderMerchantReference"`
			OrderNotificationType  string `json:"OrderNotificationType"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if n.TrackingID == "" {
				n.TrackingID = payload.OrderTrackingID
			}
			if n.MerchantReference == "" {
				n.MerchantReference = payload.OrderMerchantReference
			}
			if n.EventType == "" {
				n.EventType = payload.OrderNotificationType
			}
		}
	}

	if n.TrackingID == "" && n.MerchantReference == "" {
		return nil, fmt.Errorf("pesapal notification has no OrderTrackingId or OrderMerchantReference")
	}

	n.Raw = map[string]interface{}{
		"OrderTrackingId":        n.TrackingID,
		"OrderMerchantReference": n.MerchantReference,
		"OrderNotificationType":  n.EventType,
	}
	return n, nil
}

// ===== HTTP plumbing =====

// do sends a JSON request and decodes the response into out. It returns the
// response as a generic map for audit logging.
func (g *PesapalGateway) do(ctx context.Context, method, path, token string, payload interface{}, out interface{}) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"gateway":     Pesapal,
		"path":        strings.SplitN(path, "?", 2)[0],
		"status_code": resp.StatusCode,
	}).Debug("Pesapal API response")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pesapal returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBody, &raw)
	return raw, nil
}

func (g *PesapalGateway) describeError(e *pesapalError, fallback string) string {
	if e.present() {
		if e.Message != "" {
			return fmt.Sprintf("%s (%s)", e.Message, e.Code)
		}
		return e.Code
	}
	if fallback != "" {
		return fallback
	}
	return "unknown error"
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// truncate keeps at most max characters without splitting a multi-byte rune
func truncate(s string, max int) string {
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

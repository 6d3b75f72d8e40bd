package payments

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Test amount charged when dev mode is on
const flutterwaveDevAmount = 10.0

// Flutterwave payment_options per payment method
var flutterwaveOptions = map[string]string{
	"card":  "card",
	"bank":  "banktransfer",
	"mpesa": "mpesa",
}

// FlutterwaveConfig holds Flutterwave credentials and endpoints
type FlutterwaveConfig struct {
	BaseURL     string
	SecretKey   string
	SecretHash  string
	RedirectURL string
	DevMode     bool
}

// FlutterwaveGateway talks to the Flutterwave v3 API
type FlutterwaveGateway struct {
	config FlutterwaveConfig
	client *http.Client
	logger *logrus.Logger
}

// NewFlutterwaveGateway creates a Flutterwave adapter
func NewFlutterwaveGateway(config FlutterwaveConfig, logger *logrus.Logger) *FlutterwaveGateway {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.flutterwave.com/v3"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &FlutterwaveGateway{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Name returns "flutterwave"
func (g *FlutterwaveGateway) Name() string { return Flutterwave }

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flutterwaveTransaction struct {
	ID       int64   `json:"id"`
	TxRef    string  `json:"tx_ref"`
	FlwRef   string  `json:"flw_ref"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
}

// SubmitOrder creates a standard hosted payment link
func (g *FlutterwaveGateway) SubmitOrder(ctx context.Context, order *OrderRequest) (*OrderResult, error) {
	if g.config.SecretKey == "" {
		return nil, ErrNotConfigured
	}

	amount := roundAmount(order.Amount)
	if g.config.DevMode {
		g.logger.WithFields(logrus.Fields{
			"merchant_reference": order.MerchantReference,
			"real_amount":        amount,
			"charged_amount":     flutterwaveDevAmount,
		}).Warn("Flutterwave dev mode: charging test amount instead of booking amount")
		amount = flutterwaveDevAmount
	}

	payload := map[string]interface{}{
		"tx_ref":       order.MerchantReference,
		"amount":       amount,
		"currency":     strings.ToUpper(order.Currency),
		"redirect_url": returnURL(g.config.RedirectURL, order.BookingID),
		"customer": map[string]string{
			"email":       order.CustomerEmail,
			"phonenumber": order.CustomerPhone,
			"name":        order.CustomerName,
		},
		"customizations": map[string]string{
			"title":       "Safari booking",
			"description": truncate(order.Description, 100),
		},
	}
	if opt, ok := flutterwaveOptions[strings.ToLower(order.PaymentMethod)]; ok {
		payload["payment_options"] = opt
	}

	var env flutterwaveEnvelope
	raw, err := g.do(ctx, http.MethodPost, "/payments", payload, &env)
	if err != nil {
		return nil, fmt.Errorf("failed to create Flutterwave payment: %w", err)
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("flutterwave rejected payment: %s", env.Message)
	}

	var data struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Link == "" {
		return nil, fmt.Errorf("flutterwave response missing payment link")
	}

	return &OrderResult{
		RedirectURL:   data.Link,
		ChargedAmount: amount,
		DevMode:       g.config.DevMode,
		Raw:           raw,
	}, nil
}

// QueryStatus verifies a transaction by its tx_ref (our merchant reference)
func (g *FlutterwaveGateway) QueryStatus(ctx context.Context, merchantReference, trackingID string) (*StatusResult, error) {
	if g.config.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if merchantReference == "" {
		return nil, fmt.Errorf("flutterwave status query needs a merchant reference")
	}

	var env flutterwaveEnvelope
	raw, err := g.do(ctx, http.MethodGet, "/transactions/verify_by_reference?tx_ref="+url.QueryEscape(merchantReference), nil, &env)
	if err != nil {
		return nil, fmt.Errorf("failed to verify Flutterwave transaction: %w", err)
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("flutterwave verification rejected: %s", env.Message)
	}

	var tx flutterwaveTransaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse Flutterwave transaction: %w", err)
	}

	result := &StatusResult{
		Status:            g.MapStatus(tx.Status),
		GatewayStatus:     tx.Status,
		MerchantReference: tx.TxRef,
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		Raw:               raw,
	}
	if tx.ID != 0 {
		result.TransactionID = strconv.FormatInt(tx.ID, 10)
	}
	return result, nil
}

// MapStatus maps Flutterwave transaction statuses
func (g *FlutterwaveGateway) MapStatus(gatewayStatus string) Status {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case "successful", "completed":
		return StatusCompleted
	case "failed", "cancelled":
		return StatusFailed
	default:
		return StatusPending
	}
}

// VerifyWebhookSignature compares the verif-hash header with the configured secret hash
func (g *FlutterwaveGateway) VerifyWebhookSignature(header http.Header, body []byte) error {
	if g.config.SecretHash == "" {
		return ErrNotConfigured
	}

	got := header.Get("verif-hash")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(g.config.SecretHash)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// ParseNotification reads a charge.completed style webhook body
func (g *FlutterwaveGateway) ParseNotification(query url.Values, body []byte) (*Notification, error) {
	var payload struct {
		Event string                 `json:"event"`
		Data  flutterwaveTransaction `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid flutterwave webhook body: %w", err)
	}
	if payload.Data.TxRef == "" {
		return nil, fmt.Errorf("flutterwave webhook has no tx_ref")
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	n := &Notification{
		MerchantReference: payload.Data.TxRef,
		EventType:         payload.Event,
		Raw:               raw,
	}
	if payload.Data.ID != 0 {
		n.TrackingID = strconv.FormatInt(payload.Data.ID, 10)
	}
	return n, nil
}

func (g *FlutterwaveGateway) do(ctx context.Context, method, path string, payload interface{}, out interface{}) (map[string]interface{}, error) {
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
	req.Header.Set("Authorization", "Bearer "+g.config.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
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
		"gateway":     Flutterwave,
		"path":        strings.SplitN(path, "?", 2)[0],
		"status_code": resp.StatusCode,
	}).Debug("Flutterwave API response")

	// Flutterwave puts a useful message in error bodies, so decode before
	// checking the status code
	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, fmt.Errorf("status %d, failed to parse response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if env, ok := out.(*flutterwaveEnvelope); ok && env.Message != "" {
			return nil, fmt.Errorf("flutterwave returned status %d: %s", resp.StatusCode, env.Message)
		}
		return nil, fmt.Errorf("flutterwave returned status %d", resp.StatusCode)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBody, &raw)
	return raw, nil
}

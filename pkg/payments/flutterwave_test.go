package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlutterwave(baseURL string, devMode bool) *FlutterwaveGateway {
	return NewFlutterwaveGateway(FlutterwaveConfig{
		BaseURL:     baseURL,
		SecretKey:   "FLWSECK_TEST-abc",
		SecretHash:  "my-secret-hash",
		RedirectURL: "https://example.com/bookings/confirmation",
		DevMode:     devMode,
	}, testLogger())
}

func TestFlutterwaveSubmitOrder(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer FLWSECK_TEST-abc", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "success",
			"message": "Hosted Link",
			"data":    map[string]string{"link": "https://checkout.flutterwave.com/v3/hosted/pay/abc"},
		})
	}))
	defer srv.Close()

	gw := newTestFlutterwave(srv.URL, false)
	result, err := gw.SubmitOrder(context.Background(), &OrderRequest{
		MerchantReference: "ST-20250701-ABC123-0a1b2c3d",
		Amount:            2499,
		Currency:          "usd",
		Description:       "Masai Mara Explorer",
		PaymentMethod:     "card",
		CustomerName:      "Jane Doe",
		CustomerEmail:     "jane@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.flutterwave.com/v3/hosted/pay/abc", result.RedirectURL)
	assert.Empty(t, result.TrackingID)
	assert.Equal(t, 2499.0, result.ChargedAmount)

	assert.Equal(t, "ST-20250701-ABC123-0a1b2c3d", received["tx_ref"])
	assert.Equal(t, "USD", received["currency"])
	assert.Equal(t, 2499.0, received["amount"])
	assert.Equal(t, "card", received["payment_options"])
	customer := received["customer"].(map[string]interface{})
	assert.Equal(t, "jane@example.com", customer["email"])
}

func TestFlutterwaveDevMode(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   map[string]string{"link": "https://checkout.flutterwave.com/pay/x"},
		})
	}))
	defer srv.Close()

	gw := newTestFlutterwave(srv.URL, true)
	result, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref", Amount: 2499, Currency: "USD"})

	require.NoError(t, err)
	assert.True(t, result.DevMode)
	assert.Equal(t, flutterwaveDevAmount, result.ChargedAmount)
	assert.Equal(t, flutterwaveDevAmount, received["amount"])
	_, hasOptions := received["payment_options"]
	assert.False(t, hasOptions)
}

func TestFlutterwaveSubmitOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "error",
			"message": "Invalid currency provided",
			"data":    nil,
		})
	}))
	defer srv.Close()

	gw := newTestFlutterwave(srv.URL, false)
	_, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref", Amount: 1, Currency: "XYZ"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid currency provided")
}

func TestFlutterwaveMissingSecretKey(t *testing.T) {
	gw := NewFlutterwaveGateway(FlutterwaveConfig{}, testLogger())

	_, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = gw.QueryStatus(context.Background(), "ref", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFlutterwaveQueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/verify_by_reference", r.URL.Path)
		assert.Equal(t, "ST-20250701-ABC123-0a1b2c3d", r.URL.Query().Get("tx_ref"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "success",
			"message": "Transaction fetched successfully",
			"data": map[string]interface{}{
				"id":       4975363,
				"tx_ref":   "ST-20250701-ABC123-0a1b2c3d",
				"flw_ref":  "FLW-MOCK-1",
				"amount":   2499,
				"currency": "USD",
				"status":   "successful",
			},
		})
	}))
	defer srv.Close()

	gw := newTestFlutterwave(srv.URL, false)
	result, err := gw.QueryStatus(context.Background(), "ST-20250701-ABC123-0a1b2c3d", "")

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "successful", result.GatewayStatus)
	assert.Equal(t, "4975363", result.TransactionID)
	assert.Equal(t, 2499.0, result.Amount)
}

func TestFlutterwaveMapStatus(t *testing.T) {
	gw := newTestFlutterwave("", false)

	assert.Equal(t, StatusCompleted, gw.MapStatus("successful"))
	assert.Equal(t, StatusCompleted, gw.MapStatus("Completed"))
	assert.Equal(t, StatusFailed, gw.MapStatus("failed"))
	assert.Equal(t, StatusFailed, gw.MapStatus("cancelled"))
	assert.Equal(t, StatusPending, gw.MapStatus("pending"))
}

func TestFlutterwaveVerifyWebhookSignature(t *testing.T) {
	gw := newTestFlutterwave("", false)

	valid := http.Header{}
	valid.Set("verif-hash", "my-secret-hash")
	assert.NoError(t, gw.VerifyWebhookSignature(valid, nil))

	wrong := http.Header{}
	wrong.Set("verif-hash", "nope")
	assert.ErrorIs(t, gw.VerifyWebhookSignature(wrong, nil), ErrInvalidSignature)

	assert.ErrorIs(t, gw.VerifyWebhookSignature(http.Header{}, nil), ErrInvalidSignature)

	unconfigured := NewFlutterwaveGateway(FlutterwaveConfig{}, testLogger())
	assert.ErrorIs(t, unconfigured.VerifyWebhookSignature(valid, nil), ErrNotConfigured)
}

func TestFlutterwaveParseNotification(t *testing.T) {
	gw := newTestFlutterwave("", false)

	body := []byte(`{"event":"charge.completed","data":{"id":285959875,"tx_ref":"ST-20250701-ABC123-0a1b2c3d","status":"successful","amount":100,"currency":"USD"}}`)
	n, err := gw.ParseNotification(url.Values{}, body)

	require.NoError(t, err)
	assert.Equal(t, "ST-20250701-ABC123-0a1b2c3d", n.MerchantReference)
	assert.Equal(t, "285959875", n.TrackingID)
	assert.Equal(t, "charge.completed", n.EventType)

	_, err = gw.ParseNotification(url.Values{}, []byte(`{"event":"charge.completed","data":{}}`))
	assert.Error(t, err)

	_, err = gw.ParseNotification(url.Values{}, []byte(`not json`))
	assert.Error(t, err)
}

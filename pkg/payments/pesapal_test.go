package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// pesapalStub fakes the Pesapal endpoints used by the adapter
type pesapalStub struct {
	tokenCalls int32
	ipnCalls   int32
	lastOrder  pesapalOrderRequest
	status     string
}

func (s *pesapalStub) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.tokenCalls, 1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["consumer_key"] != "key" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":  map[string]string{"code": "invalid_consumer_key_or_secret_provided", "message": "bad credentials"},
				"status": "500",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "tok-1",
			"expiryDate": time.Now().Add(5 * time.Minute).UTC().Format(time.RFC3339Nano),
			"status":     "200",
		})
	})

	mux.HandleFunc("/api/URLSetup/RegisterIPN", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.ipnCalls, 1)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{"ipn_id": "ipn-123", "status": "200"})
	})

	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastOrder))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"order_tracking_id":  "track-abc",
			"merchant_reference": s.lastOrder.ID,
			"redirect_url":       "https://cybqa.pesapal.com/iframe?OrderTrackingId=track-abc",
			"status":             "200",
		})
	})

	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track-abc", r.URL.Query().Get("orderTrackingId"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"payment_method":             "MpesaKE",
			"amount":                     749.7,
			"confirmation_code":          "QK12345",
			"payment_status_description": s.status,
			"status_code":                1,
			"merchant_reference":         "ST-20250701-ABC123-0a1b2c3d",
			"currency":                   "KES",
			"status":                     "200",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestPesapal(baseURL string, devMode bool) *PesapalGateway {
	return NewPesapalGateway(PesapalConfig{
		BaseURL:        baseURL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		IPNURL:         "https://api.example.com/api/payments/webhooks/pesapal",
		CallbackURL:    "https://example.com/bookings/confirmation",
		DevMode:        devMode,
	}, testLogger())
}

func TestPesapalBaseURL(t *testing.T) {
	assert.Equal(t, "https://pay.pesapal.com/v3", PesapalBaseURL("production"))
	assert.Equal(t, "https://cybqa.pesapal.com/pesapalv3", PesapalBaseURL("sandbox"))
	assert.Equal(t, "https://cybqa.pesapal.com/pesapalv3", PesapalBaseURL(""))
}

func TestPesapalSubmitOrder(t *testing.T) {
	stub := &pesapalStub{}
	srv := stub.server(t)
	gw := newTestPesapal(srv.URL, false)

	result, err := gw.SubmitOrder(context.Background(), &OrderRequest{
		MerchantReference: "ST-20250701-ABC123-0a1b2c3d",
		Amount:            749.699,
		Currency:          "kes",
		Description:       "Deposit for Masai Mara Explorer",
		CustomerName:      "Amina Otieno Wanjiru",
		CustomerEmail:     "amina@example.com",
		CustomerPhone:     "0712345678",
		BookingID:         "b-42",
	})

	require.NoError(t, err)
	assert.Equal(t, "track-abc", result.TrackingID)
	assert.Equal(t, "https://example.com/bookings/confirmation?bookingId=b-42", stub.lastOrder.CallbackURL)
	assert.Contains(t, result.RedirectURL, "track-abc")
	assert.Equal(t, 749.7, result.ChargedAmount)
	assert.False(t, result.DevMode)

	assert.Equal(t, "ST-20250701-ABC123-0a1b2c3d", stub.lastOrder.ID)
	assert.Equal(t, "KES", stub.lastOrder.Currency)
	assert.Equal(t, 749.7, stub.lastOrder.Amount)
	assert.Equal(t, "ipn-123", stub.lastOrder.NotificationID)
	assert.Equal(t, "Amina", stub.lastOrder.BillingAddress.FirstName)
	assert.Equal(t, "Otieno Wanjiru", stub.lastOrder.BillingAddress.LastName)
}

func TestPesapalCachesTokenAndIPN(t *testing.T) {
	stub := &pesapalStub{}
	srv := stub.server(t)
	gw := newTestPesapal(srv.URL, false)

	for i := 0; i < 3; i++ {
		_, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref", Amount: 10, Currency: "KES"})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.tokenCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.ipnCalls))
}

func TestPesapalConfiguredIPNSkipsRegistration(t *testing.T) {
	stub := &pesapalStub{}
	srv := stub.server(t)
	gw := NewPesapalGateway(PesapalConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		IPNID:          "preconfigured",
	}, testLogger())

	_, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref", Amount: 10, Currency: "KES"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&stub.ipnCalls))
	assert.Equal(t, "preconfigured", stub.lastOrder.NotificationID)
}

func TestPesapalDevModeChargesTestAmount(t *testing.T) {
	stub := &pesapalStub{}
	srv := stub.server(t)
	gw := newTestPesapal(srv.URL, true)

	result, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref", Amount: 2499, Currency: "KES"})

	require.NoError(t, err)
	assert.True(t, result.DevMode)
	assert.Equal(t, pesapalDevAmount, result.ChargedAmount)
	assert.Equal(t, pesapalDevAmount, stub.lastOrder.Amount)
}

func TestPesapalRejectedCredentials(t *testing.T) {
	stub := &pesapalStub{}
	srv := stub.server(t)
	gw := NewPesapalGateway(PesapalConfig{BaseURL: srv.URL, ConsumerKey: "wrong", ConsumerSecret: "x", IPNID: "ipn"}, testLogger())

	_, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref", Amount: 10, Currency: "KES"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad credentials")
}

func TestPesapalMissingCredentials(t *testing.T) {
	gw := NewPesapalGateway(PesapalConfig{BaseURL: "http://127.0.0.1:0"}, testLogger())

	_, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref", Amount: 10})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPesapalQueryStatus(t *testing.T) {
	stub := &pesapalStub{status: "Completed"}
	srv := stub.server(t)
	gw := newTestPesapal(srv.URL, false)

	result, err := gw.QueryStatus(context.Background(), "ST-20250701-ABC123-0a1b2c3d", "track-abc")

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "Completed", result.GatewayStatus)
	assert.Equal(t, "QK12345", result.TransactionID)
	assert.Equal(t, 749.7, result.Amount)
	assert.Equal(t, "KES", result.Currency)
}

func TestPesapalQueryStatusNeedsTrackingID(t *testing.T) {
	gw := newTestPesapal("http://127.0.0.1:0", false)

	_, err := gw.QueryStatus(context.Background(), "ref", "")
	assert.Error(t, err)
}

func TestPesapalServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	gw := newTestPesapal(srv.URL, false)
	_, err := gw.SubmitOrder(context.Background(), &OrderRequest{MerchantReference: "ref", Amount: 10})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPesapalMapStatus(t *testing.T) {
	gw := newTestPesapal("", false)

	assert.Equal(t, StatusCompleted, gw.MapStatus("Completed"))
	assert.Equal(t, StatusCompleted, gw.MapStatus("COMPLETED"))
	assert.Equal(t, StatusFailed, gw.MapStatus("Failed"))
	assert.Equal(t, StatusFailed, gw.MapStatus("Invalid"))
	assert.Equal(t, StatusFailed, gw.MapStatus("Reversed"))
	assert.Equal(t, StatusPending, gw.MapStatus("Pending"))
	assert.Equal(t, StatusPending, gw.MapStatus(""))
}

func TestPesapalParseNotification(t *testing.T) {
	gw := newTestPesapal("", false)

	t.Run("query string", func(t *testing.T) {
		q := url.Values{}
		q.Set("OrderTrackingId", "track-abc")
		q.Set("OrderMerchantReference", "ST-20250701-ABC123-0a1b2c3d")
		q.Set("OrderNotificationType", "IPNCHANGE")

		n, err := gw.ParseNotification(q, nil)
		require.NoError(t, err)
		assert.Equal(t, "track-abc", n.TrackingID)
		assert.Equal(t, "ST-20250701-ABC123-0a1b2c3d", n.MerchantReference)
		assert.Equal(t, "IPNCHANGE", n.EventType)
	})

	t.Run("json body", func(t *testing.T) {
		body := []byte(`{"OrderTrackingId":"track-xyz","OrderMerchantReference":"ref-1","OrderNotificationType":"IPNCHANGE"}`)

		n, err := gw.ParseNotification(url.Values{}, body)
		require.NoError(t, err)
		assert.Equal(t, "track-xyz", n.TrackingID)
		assert.Equal(t, "ref-1", n.MerchantReference)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := gw.ParseNotification(url.Values{}, nil)
		assert.Error(t, err)
	})
}

func TestPesapalWebhooksAreUnsigned(t *testing.T) {
	gw := newTestPesapal("", false)
	assert.NoError(t, gw.VerifyWebhookSignature(http.Header{}, nil))
}

package handlers

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/safaritrails/booking-backend/internal/services"
	"github.com/safaritrails/booking-backend/pkg/payments"
	"github.com/sirupsen/logrus"
)

// maxWebhookBody caps the webhook payload read into memory
const maxWebhookBody = 1 << 20

// PaymentManager is the payment service surface used by PaymentHandler
type PaymentManager interface {
	InitiatePayment(ctx context.Context, req *models.InitiatePaymentRequest, actor *services.Actor, meta services.RequestMeta) (*models.InitiatePaymentResponse, error)
	GetPayment(ctx context.Context, id uuid.UUID, actor *services.Actor) (*models.Payment, error)
	HandleWebhook(ctx context.Context, gatewayName string, header http.Header, query url.Values, body []byte, meta services.RequestMeta) (*services.WebhookResult, error)
}

// PaymentHandler handles payment initiation, lookups and gateway callbacks
type PaymentHandler struct {
	payments PaymentManager
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentManager, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// ============================================================================
// CUSTOMER ENDPOINTS
// ============================================================================

// InitiatePayment handles POST /api/payments/initiate
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	resp, err := h.payments.InitiatePayment(c.Request.Context(), &req, actor, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	body := gin.H{
		"success":           true,
		"gateway":           resp.Gateway,
		"paymentId":         resp.PaymentID,
		"redirectUrl":       resp.RedirectURL,
		"merchantReference": resp.MerchantReference,
		"amount":            resp.Amount,
		"currency":          resp.Currency,
		"isDeposit":         resp.IsDeposit,
	}
	if resp.OrderTrackingID != "" {
		body["orderTrackingId"] = resp.OrderTrackingID
	}
	c.JSON(http.StatusOK, body)
}

// GetPayment handles GET /api/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "payment")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// ============================================================================
// WEBHOOKS
// ============================================================================

// PesapalIPN handles GET|POST /api/payments/webhooks/pesapal. Pesapal retries
// the notification until it receives the acknowledgement body with status 200.
func (h *PaymentHandler) PesapalIPN(c *gin.Context) {
	result, ok := h.handleWebhook(c, payments.Pesapal)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderNotificationType":  result.EventType,
		"orderTrackingId":        result.TrackingID,
		"orderMerchantReference": result.MerchantReference,
		"status":                 200,
	})
}

// FlutterwaveWebhook handles POST /api/payments/webhooks/flutterwave
func (h *PaymentHandler) FlutterwaveWebhook(c *gin.Context) {
	result, ok := h.handleWebhook(c, payments.Flutterwave)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"paymentId": result.PaymentID,
		"duplicate": result.Duplicate,
	})
}

func (h *PaymentHandler) handleWebhook(c *gin.Context, gateway string) (*services.WebhookResult, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(services.KindValidation),
			Message: "Failed to read request body",
		})
		return nil, false
	}

	result, err := h.payments.HandleWebhook(c.Request.Context(), gateway, c.Request.Header, c.Request.URL.Query(), body, requestMeta(c))
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"gateway": gateway,
			"error":   err.Error(),
		}).Warn("Webhook not applied")
		respondError(c, h.logger, err)
		return nil, false
	}

	h.logger.WithFields(logrus.Fields{
		"gateway":    gateway,
		"payment_id": result.PaymentID,
		"status":     result.Status,
		"duplicate":  result.Duplicate,
	}).Info("Webhook processed")
	return result, true
}

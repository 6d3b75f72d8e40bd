package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/safaritrails/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// BookingManager is the booking service surface used by BookingHandler
type BookingManager interface {
	CreateBooking(ctx context.Context, req *models.CreateBookingRequest, actor *services.Actor) (*models.BookingResponse, error)
	GetBooking(ctx context.Context, id uuid.UUID, actor *services.Actor) (*models.Booking, error)
	ListBookings(ctx context.Context, actor *services.Actor, status models.BookingStatus, limit, offset int) ([]models.BookingListItem, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, to models.BookingStatus, actor *services.Actor) (*models.Booking, error)
}

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookings BookingManager
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingManager, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// CreateBooking handles POST /api/bookings (guest or authenticated)
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	actor := optionalActor(c)
	resp, err := h.bookings.CreateBooking(c.Request.Context(), &req, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"booking": resp,
	})
}

// ListBookings handles GET /api/bookings?status=&limit=&offset=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	status := models.BookingStatus(c.Query("status"))

	bookings, err := h.bookings.ListBookings(c.Request.Context(), actor, status, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// GetBooking handles GET /api/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// UpdateBookingStatus handles PATCH /api/bookings/:id/status
func (h *BookingHandler) UpdateBookingStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	var req models.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	booking, err := h.bookings.UpdateBookingStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"booking": booking,
	})
}

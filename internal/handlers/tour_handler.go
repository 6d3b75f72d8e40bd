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

// AvailabilityChecker answers capacity queries; *services.AvailabilityService implements it
type AvailabilityChecker interface {
	GetAvailability(ctx context.Context, tourID uuid.UUID, startDate, endDate string, guests int) (*models.AvailabilityResponse, error)
}

// TourDeleter removes tours; *services.BookingService implements it
type TourDeleter interface {
	DeleteTour(ctx context.Context, tourID uuid.UUID, actor *services.Actor) error
}

// TourHandler handles tour availability and deletion
type TourHandler struct {
	availability AvailabilityChecker
	tours        TourDeleter
	logger       *logrus.Logger
}

// NewTourHandler creates a new tour handler
func NewTourHandler(availability AvailabilityChecker, tours TourDeleter, logger *logrus.Logger) *TourHandler {
	return &TourHandler{availability: availability, tours: tours, logger: logger}
}

// GetAvailability handles GET /api/tours/:id/availability?startDate=&endDate=&guests=
func (h *TourHandler) GetAvailability(c *gin.Context) {
	tourID, ok := parseIDParam(c, "id", "tour")
	if !ok {
		return
	}

	startDate := c.Query("startDate")
	endDate := c.Query("endDate")
	if startDate == "" || endDate == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(services.KindValidation),
			Message: "startDate and endDate are required",
			Details: map[string]interface{}{"fields": map[string]string{"startDate": "is required", "endDate": "is required"}},
		})
		return
	}

	result, err := h.availability.GetAvailability(c.Request.Context(), tourID, startDate, endDate, queryInt(c, "guests", 1))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// DeleteTour handles DELETE /api/tours/:id (agent owning the tour, or admin)
func (h *TourHandler) DeleteTour(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	tourID, ok := parseIDParam(c, "id", "tour")
	if !ok {
		return
	}

	if err := h.tours.DeleteTour(c.Request.Context(), tourID, actor); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Tour deleted",
	})
}

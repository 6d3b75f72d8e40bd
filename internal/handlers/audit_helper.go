package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safaritrails/booking-backend/internal/middleware"
	"github.com/safaritrails/booking-backend/internal/services"
	"github.com/safaritrails/booking-backend/internal/utils"
)

// requestMeta collects the caller metadata stored on payment audit records
func requestMeta(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
}

// optionalActor returns the authenticated caller, or nil for guests
func optionalActor(c *gin.Context) *services.Actor {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		return nil
	}
	return &services.Actor{UserID: userCtx.UserID, Email: userCtx.Email, Roles: userCtx.Roles}
}

// requireActor returns the authenticated caller or writes a 401
func requireActor(c *gin.Context) (*services.Actor, bool) {
	actor := optionalActor(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Authentication required",
		})
		return nil, false
	}
	return actor, true
}

// parseIDParam parses a UUID path parameter or writes a 400
func parseIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(services.KindValidation),
			Message: "Invalid " + label + " ID format",
			Details: map[string]interface{}{"fields": map[string]string{name: "must be a valid UUID"}},
		})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return fallback
}

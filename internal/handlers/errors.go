package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/safaritrails/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation: http.StatusBadRequest,
	services.KindBusiness:   http.StatusBadRequest,
	services.KindNotFound:   http.StatusNotFound,
	services.KindForbidden:  http.StatusForbidden,
	services.KindConflict:   http.StatusConflict,
	services.KindGateway:    http.StatusInternalServerError,
	services.KindInternal:   http.StatusInternalServerError,
}

// respondError writes err as a JSON error body. Service errors keep their
// message; anything else is logged and hidden behind a generic 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	if appErr, ok := services.AsAppError(err); ok {
		status, known := kindStatus[appErr.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"path":  c.Request.URL.Path,
				"kind":  appErr.Kind,
				"error": appErr.Error(),
			}).Error("Request failed")
		}
		c.JSON(status, ErrorResponse{
			Error:   string(appErr.Kind),
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}

	logger.WithFields(logrus.Fields{
		"path":  c.Request.URL.Path,
		"error": err.Error(),
	}).Error("Unexpected error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   string(services.KindInternal),
		Message: "An unexpected error occurred",
	})
}

// respondBindingError reports request body problems with per-field detail
func respondBindingError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = describeFieldError(fe)
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(services.KindValidation),
			Message: "Request validation failed",
			Details: map[string]interface{}{"fields": fields},
		})
		return
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(services.KindValidation),
			Message: "Request validation failed",
			Details: map[string]interface{}{"fields": map[string]string{typeErr.Field: "must be a " + typeErr.Type.String()}},
		})
		return
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   string(services.KindValidation),
		Message: "Invalid request body",
	})
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "booking_date":
		return "must be a date in YYYY-MM-DD format"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

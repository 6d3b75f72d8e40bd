package handlers

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/safaritrails/booking-backend/internal/services"
)

// RegisterValidators installs the custom binding rules on gin's validator and
// makes field errors report JSON field names
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	v.RegisterTagNameFunc(jsonFieldName)

	if err := v.RegisterValidation("booking_date", validateBookingDate); err != nil {
		return fmt.Errorf("failed to register booking_date validator: %w", err)
	}
	return nil
}

// validateBookingDate accepts YYYY-MM-DD or an RFC 3339 timestamp
func validateBookingDate(fl validator.FieldLevel) bool {
	_, err := services.ParseBookingDate(fl.Field().String())
	return err == nil
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

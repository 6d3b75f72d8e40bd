package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrInvalidLength indicates the subscriber part is not 9 digits
	ErrInvalidLength = errors.New("phone number must have 9 digits after the country code")

	// ErrUnsupportedCountry indicates a country code we do not accept mobile money for
	ErrUnsupportedCountry = errors.New("phone number must be a Kenyan, Ugandan, Tanzanian or Rwandan mobile number")

	// ErrInvalidPrefix indicates the number is not a mobile number for its country
	ErrInvalidPrefix = errors.New("phone number is not a valid mobile number")
)

// Country describes the mobile numbering plan of a supported country
type Country struct {
	Code         string   // international dialling code without +
	Name         string
	MobilePrefix []string // allowed first digits of the 9-digit subscriber number
}

// Supported countries, keyed by dialling code
var countries = map[string]Country{
	"254": {Code: "254", Name: "Kenya", MobilePrefix: []string{"7", "1"}},
	"255": {Code: "255", Name: "Tanzania", MobilePrefix: []string{"6", "7"}},
	"256": {Code: "256", Name: "Uganda", MobilePrefix: []string{"7"}},
	"250": {Code: "250", Name: "Rwanda", MobilePrefix: []string{"7"}},
}

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator validates East African mobile numbers for mobile money payments
type PhoneValidator struct {
	defaultCountry string
}

// NewPhoneValidator creates a validator that treats local numbers (07..., 01...) as Kenyan
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{defaultCountry: "254"}
}

// NewPhoneValidatorForCountry creates a validator with a different default country code
func NewPhoneValidatorForCountry(code string) (*PhoneValidator, error) {
	if _, ok := countries[code]; !ok {
		return nil, ErrUnsupportedCountry
	}
	return &PhoneValidator{defaultCountry: code}, nil
}

// Validate validates a mobile number and returns it in international form
// without the plus sign, e.g. 254712345678.
// Accepts: +254712345678, 254712345678, 0712345678, 0712 345 678
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)
	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	// Local format: leading 0 followed by the subscriber number
	if strings.HasPrefix(sanitized, "0") {
		sanitized = v.defaultCountry + sanitized[1:]
	}

	if len(sanitized) < 4 {
		return "", ErrInvalidLength
	}

	country, ok := countries[sanitized[:3]]
	if !ok {
		return "", ErrUnsupportedCountry
	}

	subscriber := sanitized[3:]
	if len(subscriber) != 9 {
		return "", ErrInvalidLength
	}

	if !hasMobilePrefix(country, subscriber) {
		return "", ErrInvalidPrefix
	}

	return sanitized, nil
}

// Sanitize removes common separators and the leading plus sign
func (v *PhoneValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")
	return replacer.Replace(strings.TrimSpace(phone))
}

// CountryOf returns the country a valid number belongs to
func (v *PhoneValidator) CountryOf(phone string) (Country, error) {
	normalized, err := v.Validate(phone)
	if err != nil {
		return Country{}, err
	}
	return countries[normalized[:3]], nil
}

// Format formats a number as +254 712 345 678
func (v *PhoneValidator) Format(phone string) (string, error) {
	n, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("+%s %s %s %s", n[0:3], n[3:6], n[6:9], n[9:12]), nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

func hasMobilePrefix(country Country, subscriber string) bool {
	for _, p := range country.MobilePrefix {
		if strings.HasPrefix(subscriber, p) {
			return true
		}
	}
	return false
}

package validator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPhoneValidator(t *testing.T) {
	validator := NewPhoneValidator()
	assert.NotNil(t, validator)
	assert.Equal(t, "254", validator.defaultCountry)
}

func TestValidate_ValidNumbers(t *testing.T) {
	validator := NewPhoneValidator()

	validNumbers := []struct {
		input    string
		expected string
		name     string
	}{
		{"0712345678", "254712345678", "Kenyan local format"},
		{"0112345678", "254112345678", "Kenyan 01 range"},
		{"0712 345 678", "254712345678", "With spaces"},
		{"0712-345-678", "254712345678", "With dashes"},
		{"(0712) 345.678", "254712345678", "With parentheses and dots"},
		{"+254712345678", "254712345678", "Kenya international"},
		{"254712345678", "254712345678", "Kenya without plus"},
		{"+256772123456", "256772123456", "Uganda"},
		{"+255652123456", "255652123456", "Tanzania 06 range"},
		{"+255712123456", "255712123456", "Tanzania 07 range"},
		{"+250788123456", "250788123456", "Rwanda"},
	}

	for _, tc := range validNumbers {
		t.Run(tc.name, func(t *testing.T) {
			normalized, err := validator.Validate(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, normalized)
		})
	}
}

func TestValidate_InvalidNumbers(t *testing.T) {
	validator := NewPhoneValidator()

	invalidNumbers := []struct {
		input       string
		expectedErr error
		name        string
	}{
		{"", ErrEmptyPhone, "Empty string"},
		{"   ", ErrEmptyPhone, "Whitespace only"},
		{"071234567a", ErrInvalidFormat, "Contains letters"},
		{"071234567", ErrInvalidLength, "Too short"},
		{"07123456789", ErrInvalidLength, "Too long"},
		{"12", ErrInvalidLength, "Far too short"},
		{"0212345678", ErrInvalidPrefix, "Kenyan landline"},
		{"+256412123456", ErrInvalidPrefix, "Ugandan landline"},
		{"+14155550123", ErrUnsupportedCountry, "US number"},
		{"+94771234567", ErrUnsupportedCountry, "Sri Lankan number"},
	}

	for _, tc := range invalidNumbers {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validator.Validate(tc.input)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestValidatorForCountry(t *testing.T) {
	validator, err := NewPhoneValidatorForCountry("256")
	require.NoError(t, err)

	normalized, err := validator.Validate("0772123456")
	require.NoError(t, err)
	assert.Equal(t, "256772123456", normalized)

	_, err = NewPhoneValidatorForCountry("1")
	assert.ErrorIs(t, err, ErrUnsupportedCountry)
}

func TestSanitize(t *testing.T) {
	validator := NewPhoneValidator()

	assert.Equal(t, "254712345678", validator.Sanitize(" +254 712-345.678 "))
	assert.Equal(t, "0712345678", validator.Sanitize("(0712) 345 678"))
}

func TestCountryOf(t *testing.T) {
	validator := NewPhoneValidator()

	country, err := validator.CountryOf("+255712123456")
	require.NoError(t, err)
	assert.Equal(t, "Tanzania", country.Name)

	country, err = validator.CountryOf("0712345678")
	require.NoError(t, err)
	assert.Equal(t, "Kenya", country.Name)

	_, err = validator.CountryOf("nope")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	validator := NewPhoneValidator()

	formatted, err := validator.Format("0712345678")
	require.NoError(t, err)
	assert.Equal(t, "+254 712 345 678", formatted)

	_, err = validator.Format("123")
	assert.Error(t, err)
}

func TestIsValid(t *testing.T) {
	validator := NewPhoneValidator()

	assert.True(t, validator.IsValid("0712345678"))
	assert.True(t, validator.IsValid("+250788123456"))
	assert.False(t, validator.IsValid(""))
	assert.False(t, validator.IsValid("0212345678"))
}

func TestConcurrentValidation(t *testing.T) {
	validator := NewPhoneValidator()
	numbers := []string{"0712345678", "+256772123456", "+255652123456", "+250788123456"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			assert.True(t, validator.IsValid(n))
		}(numbers[i%len(numbers)])
	}
	wg.Wait()
}

func BenchmarkValidate(b *testing.B) {
	validator := NewPhoneValidator()
	for i := 0; i < b.N; i++ {
		_, _ = validator.Validate("+254 712 345 678")
	}
}

package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	bookingReferencePrefix = "ST"
	maxReferenceAttempts   = 10
	// Pesapal rejects merchant references longer than 50 characters
	maxMerchantReferenceLength = 50
)

// ReferenceChecker reports whether a booking reference is already taken
type ReferenceChecker interface {
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

// ReferenceService generates human readable booking and payment references
type ReferenceService struct {
	checker ReferenceChecker
	now     func() time.Time
}

// NewReferenceService creates a new reference service
func NewReferenceService(checker ReferenceChecker) *ReferenceService {
	return &ReferenceService{checker: checker, now: time.Now}
}

// GenerateBookingReference returns a reference not yet used by any booking.
// Format: ST-YYYYMMDD-XXXXXX (6 upper hex chars)
// Example: ST-20250715-A1B2C3
func (s *ReferenceService) GenerateBookingReference(ctx context.Context) (string, error) {
	todayStr := s.now().UTC().Format("20060102")

	for attempts := 0; attempts < maxReferenceAttempts; attempts++ {
		randomStr, err := randomHex(3)
		if err != nil {
			return "", err
		}
		ref := fmt.Sprintf("%s-%s-%s", bookingReferencePrefix, todayStr, randomStr)

		exists, err := s.checker.ReferenceExists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("failed to check reference uniqueness: %w", err)
		}
		if !exists {
			return ref, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique booking reference after %d attempts", maxReferenceAttempts)
}

// GenerateMerchantReference derives a per-attempt payment reference from a
// booking reference: <bookingRef>-XXXXXXXX (8 upper hex chars).
func GenerateMerchantReference(bookingRef string) (string, error) {
	suffix, err := randomHex(4)
	if err != nil {
		return "", err
	}

	// Keep the random suffix intact when the booking reference is unusually long
	maxPrefix := maxMerchantReferenceLength - len(suffix) - 1
	if len(bookingRef) > maxPrefix {
		bookingRef = bookingRef[:maxPrefix]
	}
	return bookingRef + "-" + suffix, nil
}

func randomHex(n int) (string, error) {
	randomBytes := make([]byte, n)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(randomBytes)), nil
}

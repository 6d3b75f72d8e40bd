package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReferenceChecker struct {
	taken int // number of leading calls that report a collision
	calls int
	err   error
}

func (s *stubReferenceChecker) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.calls <= s.taken, nil
}

var bookingRefPattern = regexp.MustCompile(`^ST-\d{8}-[0-9A-F]{6}$`)

func TestGenerateBookingReference_Format(t *testing.T) {
	checker := &stubReferenceChecker{}
	service := NewReferenceService(checker)
	service.now = func() time.Time { return time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC) }

	ref, err := service.GenerateBookingReference(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, bookingRefPattern, ref)
	assert.True(t, strings.HasPrefix(ref, "ST-20250715-"))
	assert.Equal(t, 1, checker.calls)
}

func TestGenerateBookingReference_RetriesOnCollision(t *testing.T) {
	checker := &stubReferenceChecker{taken: 3}
	service := NewReferenceService(checker)

	ref, err := service.GenerateBookingReference(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, bookingRefPattern, ref)
	assert.Equal(t, 4, checker.calls)
}

func TestGenerateBookingReference_GivesUp(t *testing.T) {
	checker := &stubReferenceChecker{taken: 100}
	service := NewReferenceService(checker)

	_, err := service.GenerateBookingReference(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 10, checker.calls)
}

func TestGenerateBookingReference_CheckerError(t *testing.T) {
	service := NewReferenceService(&stubReferenceChecker{err: errors.New("db down")})

	_, err := service.GenerateBookingReference(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check reference uniqueness")
}

func TestGenerateMerchantReference(t *testing.T) {
	ref, err := GenerateMerchantReference("ST-20250715-A1B2C3")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ST-20250715-A1B2C3-[0-9A-F]{8}$`), ref)

	other, err := GenerateMerchantReference("ST-20250715-A1B2C3")
	require.NoError(t, err)
	assert.NotEqual(t, ref, other)
}

func TestGenerateMerchantReference_Truncates(t *testing.T) {
	ref, err := GenerateMerchantReference(strings.Repeat("X", 80))
	require.NoError(t, err)
	assert.Len(t, ref, 50)
	assert.Regexp(t, regexp.MustCompile(`-[0-9A-F]{8}$`), ref)
}

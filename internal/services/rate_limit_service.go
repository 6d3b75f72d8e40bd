package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Limit      int
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// RetryAfterSeconds is the value for the Retry-After header, at least 1
func (e *RateLimitError) RetryAfterSeconds(now time.Time) int {
	secs := int(e.RetryAfter.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}

// RateLimitStore counts hits for a key inside a window
type RateLimitStore interface {
	// Hit records one request and returns the number of requests in the
	// current window (including this one) and when the window resets
	Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
}

// ===== Redis store =====

// RedisRateLimitStore is a fixed-window counter on INCR + EXPIRE
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore creates a Redis backed store
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Hit increments the window counter, setting the expiry on first use. A key
// left without a TTL (process died between INCR and EXPIRE) is repaired.
func (s *RedisRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	redisKey := "ratelimit:" + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit: %w", err)
	}

	remaining := window
	if count > 1 {
		remaining, err = s.client.PTTL(ctx, redisKey).Result()
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("redis rate limit: %w", err)
		}
	}
	if count == 1 || remaining < 0 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis rate limit: %w", err)
		}
		remaining = window
	}

	return int(count), time.Now().Add(remaining), nil
}

// ===== Database store =====

// DBRateLimitStore keeps one row per request in booking_rate_limits and
// counts rows inside a sliding window
type DBRateLimitStore struct {
	db *sqlx.DB
}

// NewDBRateLimitStore creates a PostgreSQL backed store
func NewDBRateLimitStore(db *sqlx.DB) *DBRateLimitStore {
	return &DBRateLimitStore{db: db}
}

// Hit records a request and counts requests since window ago
func (s *DBRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO booking_rate_limits (identifier, created_at)
		VALUES ($1, NOW())`, key)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to record request: %w", err)
	}

	windowStart := time.Now().Add(-window)
	query := `
		SELECT COUNT(*), COALESCE(MIN(created_at), NOW())
		FROM booking_rate_limits
		WHERE identifier = $1 AND created_at > $2`

	var count int
	var oldest time.Time
	if err := s.db.QueryRowxContext(ctx, query, key, windowStart).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to count requests: %w", err)
	}

	return count, oldest.Add(window), nil
}

// Cleanup removes rows older than window
func (s *DBRateLimitStore) Cleanup(ctx context.Context, window time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM booking_rate_limits WHERE created_at < $1`, time.Now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// ===== Service =====

// RateLimitService limits booking creation per client identifier
type RateLimitService struct {
	store  RateLimitStore
	limit  int
	window time.Duration
	logger *logrus.Logger
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(store RateLimitStore, limit int, window time.Duration, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// CheckBookingRateLimit records a booking attempt for identifier and returns a
// *RateLimitError once the limit for the current window is exceeded.
// Store failures fail open: the request is allowed and the error logged.
func (s *RateLimitService) CheckBookingRateLimit(ctx context.Context, identifier string) error {
	if identifier == "" {
		return nil
	}

	count, resetAt, err := s.store.Hit(ctx, "booking:"+identifier, s.window)
	if err != nil {
		s.logger.WithError(err).WithField("identifier", identifier).Warn("Rate limit store unavailable, allowing request")
		return nil
	}

	if count > s.limit {
		s.logger.WithFields(logrus.Fields{
			"identifier": identifier,
			"count":      count,
			"limit":      s.limit,
		}).Warn("Booking rate limit exceeded")

		return &RateLimitError{
			Message:    fmt.Sprintf("Too many booking requests. Please try again after %s", resetAt.UTC().Format("15:04:05")),
			RetryAfter: resetAt,
			Limit:      s.limit,
		}
	}

	return nil
}

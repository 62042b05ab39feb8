package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// SessionTTL is refreshed on every commit, so idle sessions expire
	SessionTTL time.Duration

	// MaxRetries bounds optimistic-commit attempts when WATCH detects a
	// concurrent writer. Exhausting them yields model.ErrConflict.
	MaxRetries   int
	RetryBackoff time.Duration

	// ExpiryCheckInterval is how often a subscription checks that its
	// session has not expired. Zero disables the check.
	ExpiryCheckInterval time.Duration

	// OnConflict, if set, is called every time a commit attempt loses a race
	OnConflict func()
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		SessionTTL:   24 * time.Hour,
		MaxRetries:   10,
		RetryBackoff: 5 * time.Millisecond,

		ExpiryCheckInterval: time.Minute,
	}
}

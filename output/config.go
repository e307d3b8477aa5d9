package output

import (
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/pithecene-io/lattice/log"
)

// Policy names a write policy.
type Policy string

// Write policies.
const (
	PolicyStrict   Policy = "strict"
	PolicyBuffered Policy = "buffered"
)

// Config configures an EncodedOutput.
type Config struct {
	// Policy is the write policy. Default strict.
	Policy Policy

	// BufferRecords is the buffered flush threshold in elements.
	BufferRecords int

	// BufferBytes is the buffered flush threshold in estimated bytes.
	// At least one buffer limit must be set for the buffered policy.
	BufferBytes int64

	// RateLimit caps sink throughput in elements per second. Zero disables it.
	RateLimit float64

	// Logger is optional.
	Logger *log.Logger
}

// DefaultConfig returns strict write-through with no throttling.
func DefaultConfig() Config {
	return Config{Policy: PolicyStrict}
}

// Validate checks the policy and buffer limits.
func (c Config) Validate() error {
	switch c.Policy {
	case "", PolicyStrict:
	case PolicyBuffered:
		if c.BufferRecords <= 0 && c.BufferBytes <= 0 {
			return errors.New("buffered policy: at least one of buffer_records or buffer_bytes must be set")
		}
	default:
		return fmt.Errorf("unknown write policy %q", c.Policy)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0, got %g", c.RateLimit)
	}
	return nil
}

func (c Config) limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	burst := max(int(c.RateLimit), c.BufferRecords, 1)
	return rate.NewLimiter(rate.Limit(c.RateLimit), burst)
}

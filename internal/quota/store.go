// File: internal/quota/store.go
package quota

import (
	"context"
	"time"
)

// CounterStore abstracts the hourly usage counters. Implementations must make
// IncrWithTTL atomic: the increment and the expiry of a fresh counter happen
// as one operation so concurrent callers never observe a counter without a
// deadline.
type CounterStore interface {
	// Get returns the current value of a counter, 0 when absent or expired.
	Get(ctx context.Context, key string) (int64, error)

	// IncrWithTTL increments a counter and sets the TTL when the counter is
	// newly created. Returns the value after the increment.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases store resources.
	Close() error
}

// File: internal/quota/limiter.go
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/metrics"
	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/pkg/utils"
)

// Window is the fixed quota accounting window
const Window = time.Hour

// KeyStore is the persistence surface the limiter needs
type KeyStore interface {
	GetActiveAPIKey(ctx context.Context, token string) (*models.APIKey, error)
	GetContractQuota(ctx context.Context, apiKeyID int64, contractID string) (*int, error)
	TouchAPIKey(ctx context.Context, id int64, usedAt time.Time) error
}

// Decision is the outcome of a quota check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Tier      string
}

// Limiter enforces per-key hourly request quotas using fixed windows aligned
// to the wall clock hour.
type Limiter struct {
	keys     KeyStore
	counters CounterStore
	metrics  *metrics.PrometheusMetrics
	logger   *logrus.Entry
	now      func() time.Time
}

// NewLimiter creates a quota limiter
func NewLimiter(keys KeyStore, counters CounterStore, m *metrics.PrometheusMetrics) *Limiter {
	return &Limiter{
		keys:     keys,
		counters: counters,
		metrics:  m,
		logger:   utils.Component("quota"),
		now:      time.Now,
	}
}

// Allow checks and consumes quota for one request. An empty token is allowed
// through untouched so anonymous endpoints stay reachable; an unknown or
// revoked token is denied with a zero limit. When contractID is non-empty a
// per-contract override can only tighten the key's tier quota.
func (l *Limiter) Allow(ctx context.Context, token, contractID string) (*Decision, error) {
	now := l.now()

	if token == "" {
		return &Decision{Allowed: true, ResetAt: l.windowEnd(now)}, nil
	}

	key, err := l.keys.GetActiveAPIKey(ctx, token)
	if err != nil {
		return nil, err
	}
	if key == nil {
		if l.metrics != nil {
			l.metrics.RecordQuotaDecision("unknown", false)
		}
		return &Decision{Allowed: false, Limit: 0, Remaining: 0, ResetAt: l.windowEnd(now), Tier: "unknown"}, nil
	}

	limit := key.QuotaPerHour
	if contractID != "" {
		override, err := l.keys.GetContractQuota(ctx, key.ID, contractID)
		if err != nil {
			return nil, err
		}
		if override != nil && *override < limit {
			limit = *override
		}
	}

	decision := &Decision{Limit: limit, ResetAt: l.windowEnd(now), Tier: key.Tier}

	counterKey := l.counterKey(key.ID, now)
	count, err := l.counters.Get(ctx, counterKey)
	if err != nil {
		return nil, err
	}

	if count >= int64(limit) {
		decision.Allowed = false
		decision.Remaining = 0
		if l.metrics != nil {
			l.metrics.RecordQuotaDecision(key.Tier, false)
		}
		l.logger.WithFields(logrus.Fields{
			"key_id": key.ID,
			"tier":   key.Tier,
			"limit":  limit,
		}).Debug("Quota exceeded")
		return decision, nil
	}

	newCount, err := l.counters.IncrWithTTL(ctx, counterKey, Window)
	if err != nil {
		return nil, err
	}

	decision.Allowed = true
	decision.Remaining = limit - int(newCount)
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if l.metrics != nil {
		l.metrics.RecordQuotaDecision(key.Tier, true)
	}

	// Last-used tracking is best effort and must not block the request.
	go l.touch(key.ID, now)

	return decision, nil
}

// Wait returns how long the caller must wait before the next request can
// succeed. Zero when a request is currently allowed; otherwise the time until
// the current window rolls over, never more than one window.
func (l *Limiter) Wait(ctx context.Context, token, contractID string) (time.Duration, error) {
	now := l.now()

	if token == "" {
		return 0, nil
	}

	key, err := l.keys.GetActiveAPIKey(ctx, token)
	if err != nil {
		return 0, err
	}
	if key == nil {
		return 0, utils.NewAppError(utils.ErrCodeUnauthorized, "Unknown API key")
	}

	limit := key.QuotaPerHour
	if contractID != "" {
		override, err := l.keys.GetContractQuota(ctx, key.ID, contractID)
		if err != nil {
			return 0, err
		}
		if override != nil && *override < limit {
			limit = *override
		}
	}

	count, err := l.counters.Get(ctx, l.counterKey(key.ID, now))
	if err != nil {
		return 0, err
	}
	if count < int64(limit) {
		return 0, nil
	}

	wait := l.windowEnd(now).Sub(now)
	if wait < 0 {
		wait = 0
	}
	if wait > Window {
		wait = Window
	}
	return wait, nil
}

func (l *Limiter) counterKey(keyID int64, now time.Time) string {
	bucket := now.Unix() / int64(Window.Seconds())
	return fmt.Sprintf("quota:%d:%d", keyID, bucket)
}

func (l *Limiter) windowEnd(now time.Time) time.Time {
	seconds := int64(Window.Seconds())
	return time.Unix((now.Unix()/seconds+1)*seconds, 0).UTC()
}

func (l *Limiter) touch(keyID int64, usedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.keys.TouchAPIKey(ctx, keyID, usedAt); err != nil {
		l.logger.WithError(err).Debug("Failed to update API key last-used timestamp")
	}
}

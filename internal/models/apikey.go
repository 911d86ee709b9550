package models

import (
	"time"
)

// API key tiers
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Hourly quotas per tier. UnlimitedQuota is a sentinel high enough that
// enterprise keys are never throttled in practice.
const (
	FreeQuota      = 50
	ProQuota       = 5000
	UnlimitedQuota = 1000000000
)

// APIKey is a credential with a tier-derived hourly request quota.
type APIKey struct {
	ID           int64      `json:"id" db:"id"`
	Owner        string     `json:"owner" db:"owner"`
	Name         string     `json:"name" db:"name"`
	Key          string     `json:"key" db:"key"`
	Tier         string     `json:"tier" db:"tier"`
	QuotaPerHour int        `json:"quota_per_hour" db:"quota_per_hour"`
	Active       bool       `json:"active" db:"active"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// TierQuota returns the hourly quota for a tier. Unknown tiers get the
// free-tier quota.
func TierQuota(tier string) int {
	switch tier {
	case TierPro:
		return ProQuota
	case TierEnterprise:
		return UnlimitedQuota
	default:
		return FreeQuota
	}
}

// ValidTier reports whether t is a known tier name.
func ValidTier(t string) bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// ContractQuota is a per-(api_key, contract) override of the hourly quota.
// An override can only tighten the tier ceiling, never loosen it; enterprise
// keys are exempt from that check.
type ContractQuota struct {
	ID           int64     `json:"id" db:"id"`
	ContractID   int64     `json:"contract_id" db:"contract_id"`
	APIKeyID     int64     `json:"api_key_id" db:"api_key_id"`
	QuotaPerHour int       `json:"quota_per_hour" db:"quota_per_hour"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

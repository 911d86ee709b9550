package models

import (
	"time"
)

// TrackedContract represents a Soroban contract being monitored
type TrackedContract struct {
	ID         int64     `json:"id" db:"id"`
	ContractID string    `json:"contract_id" db:"contract_id"`
	Name       string    `json:"name" db:"name"`
	Owner      string    `json:"owner" db:"owner"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// ContractIDLength is the length of a Soroban contract strkey ("C...").
const ContractIDLength = 56

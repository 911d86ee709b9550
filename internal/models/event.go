package models

import (
	"time"
)

// ContractEvent represents one ingested contract event. The triple
// (contract_id, ledger, event_index) is unique; re-ingesting the same triple
// updates the existing row instead of creating a duplicate.
type ContractEvent struct {
	ID         int64                  `json:"id" db:"id"`
	ContractID int64                  `json:"contract_id" db:"contract_id"`
	EventType  string                 `json:"event_type" db:"event_type"`
	Payload    map[string]interface{} `json:"payload" db:"payload"`
	Ledger     uint64                 `json:"ledger" db:"ledger"`
	EventIndex int                    `json:"event_index" db:"event_index"`
	TxHash     string                 `json:"tx_hash" db:"tx_hash"`
	Timestamp  *time.Time             `json:"timestamp,omitempty" db:"timestamp"`
	RawXDR     string                 `json:"raw_xdr" db:"raw_xdr"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// RawEvent is an inbound event as delivered by an upstream source, before
// deduplication. EventIndex may be absent upstream, in which case the caller
// supplies a fallback.
type RawEvent struct {
	Ledger     uint64                 `json:"ledger"`
	EventIndex *int                   `json:"event_index,omitempty"`
	TxHash     string                 `json:"tx_hash"`
	Type       string                 `json:"type"`
	Value      map[string]interface{} `json:"value"`
	Timestamp  *time.Time             `json:"timestamp,omitempty"`
	XDR        string                 `json:"xdr"`
}

// EventFilter for querying events
type EventFilter struct {
	ContractID      *string `json:"contract_id,omitempty"`
	EventType       *string `json:"event_type,omitempty"`
	FromLedger      *uint64 `json:"from_ledger,omitempty"`
	ToLedger        *uint64 `json:"to_ledger,omitempty"`
	PayloadContains string  `json:"payload_contains,omitempty"`
	Limit           int     `json:"limit,omitempty"`
	Offset          int     `json:"offset,omitempty"`
}

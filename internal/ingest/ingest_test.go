// File: internal/ingest/ingest_test.go
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soroscan/soroscan/internal/alerting"
	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/internal/notification"
)

// fakeStore implements the storage surfaces of the ingest and alerting
// pipeline with upsert semantics matching the real backends.
type fakeStore struct {
	contracts  map[string]*models.TrackedContract
	events     map[string]*models.ContractEvent
	rules      []*models.AlertRule
	executions []*models.AlertExecution
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contracts: make(map[string]*models.TrackedContract),
		events:    make(map[string]*models.ContractEvent),
	}
}

func (f *fakeStore) GetContractByContractID(ctx context.Context, contractID string) (*models.TrackedContract, error) {
	return f.contracts[contractID], nil
}

func (f *fakeStore) GetContract(ctx context.Context, id int64) (*models.TrackedContract, error) {
	for _, contract := range f.contracts {
		if contract.ID == id {
			return contract, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpsertEvent(ctx context.Context, event *models.ContractEvent) (bool, error) {
	key := fmt.Sprintf("%d/%d/%d", event.ContractID, event.Ledger, event.EventIndex)
	if existing, ok := f.events[key]; ok {
		existing.EventType = event.EventType
		existing.Payload = event.Payload
		existing.TxHash = event.TxHash
		*event = *existing
		return false, nil
	}
	f.nextID++
	event.ID = f.nextID
	event.CreatedAt = time.Now().UTC()
	stored := *event
	f.events[key] = &stored
	return true, nil
}

func (f *fakeStore) CountActiveContracts(ctx context.Context) (int64, error) {
	var count int64
	for _, contract := range f.contracts {
		if contract.Active {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) GetActiveRules(ctx context.Context, contractID int64) ([]*models.AlertRule, error) {
	var out []*models.AlertRule
	for _, rule := range f.rules {
		if rule.ContractID == contractID && rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRule(ctx context.Context, id int64) (*models.AlertRule, error) {
	for _, rule := range f.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetEvent(ctx context.Context, id int64) (*models.ContractEvent, error) {
	for _, event := range f.events {
		if event.ID == id {
			return event, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SaveExecution(ctx context.Context, execution *models.AlertExecution) error {
	execution.ID = int64(len(f.executions) + 1)
	f.executions = append(f.executions, execution)
	return nil
}

type countingSender struct {
	sent []*notification.Alert
}

func (c *countingSender) Channel() string { return "webhook" }

func (c *countingSender) Send(ctx context.Context, target string, alert *notification.Alert) (string, error) {
	c.sent = append(c.sent, alert)
	return "status: 200", nil
}

const testContractID = "CCTESTCONTRACT0000000000000000000000000000000000000000AA"

func newTestPipeline(store *fakeStore) (*Ingestor, *countingSender) {
	sender := &countingSender{}
	matcher := alerting.NewMatcher(store, nil)
	dispatcher := alerting.NewDispatcher(store, []notification.Sender{sender}, nil, time.Second)
	// No scheduler: dispatch runs inline, which keeps assertions synchronous.
	ingestor := NewIngestor(store, matcher, dispatcher, nil, nil, testnetPassphrase)
	return ingestor, sender
}

func rawEvent(ledger uint64, index int, amount float64) *models.RawEvent {
	return &models.RawEvent{
		Ledger:     ledger,
		EventIndex: &index,
		TxHash:     "tx1",
		Type:       "transfer",
		Value:      map[string]interface{}{"amount": amount},
	}
}

func TestNetworkLabel(t *testing.T) {
	assert.Equal(t, "testnet", NetworkLabel("Test SDF Network ; September 2015"))
	assert.Equal(t, "mainnet", NetworkLabel("Public Global Stellar Network ; September 2015"))
	assert.Equal(t, "unknown", NetworkLabel("Standalone Network ; February 2017"))
	assert.Equal(t, "unknown", NetworkLabel(""))
}

func TestUpsertCreatesOnce(t *testing.T) {
	store := newFakeStore()
	store.contracts[testContractID] = &models.TrackedContract{ID: 1, ContractID: testContractID, Active: true}
	ingestor, _ := newTestPipeline(store)

	event, created, err := ingestor.Upsert(context.Background(), testContractID, rawEvent(100, 0, 50), 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, event.ID)

	// Same triple again: updated in place, not created.
	again, created, err := ingestor.Upsert(context.Background(), testContractID, rawEvent(100, 0, 75), 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, event.ID, again.ID)
	assert.Len(t, store.events, 1)
	assert.Equal(t, float64(75), store.events["1/100/0"].Payload["amount"])

	// Different index on the same ledger is a new event.
	_, created, err = ingestor.Upsert(context.Background(), testContractID, rawEvent(100, 1, 50), 0)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestUpsertUnknownContract(t *testing.T) {
	ingestor, _ := newTestPipeline(newFakeStore())

	_, _, err := ingestor.Upsert(context.Background(), testContractID, rawEvent(100, 0, 50), 0)
	assert.Error(t, err)
}

func TestUpsertInactiveContract(t *testing.T) {
	store := newFakeStore()
	store.contracts[testContractID] = &models.TrackedContract{ID: 1, ContractID: testContractID, Active: false}
	ingestor, _ := newTestPipeline(store)

	_, _, err := ingestor.Upsert(context.Background(), testContractID, rawEvent(100, 0, 50), 0)
	assert.Error(t, err)
}

func TestUpsertTriggersAlertsOnCreateOnly(t *testing.T) {
	store := newFakeStore()
	store.contracts[testContractID] = &models.TrackedContract{ID: 1, ContractID: testContractID, Active: true}
	store.rules = []*models.AlertRule{{
		ID: 1, ContractID: 1, Name: "big transfer", Active: true,
		ActionType: models.ActionWebhook, ActionTarget: "https://example.com/hook",
		Condition: json.RawMessage(`{"op":"gt","field":"amount","value":100}`),
	}}
	ingestor, sender := newTestPipeline(store)

	// Matching event fires the rule once.
	_, created, err := ingestor.Upsert(context.Background(), testContractID, rawEvent(100, 0, 500), 0)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, sender.sent, 1)
	require.Len(t, store.executions, 1)
	assert.Equal(t, models.ExecutionSent, store.executions[0].Status)

	// Re-delivery of the same event does not alert again.
	_, created, err = ingestor.Upsert(context.Background(), testContractID, rawEvent(100, 0, 500), 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, sender.sent, 1)

	// Non-matching event creates a row but no alert.
	_, created, err = ingestor.Upsert(context.Background(), testContractID, rawEvent(101, 0, 5), 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, sender.sent, 1)
}

func TestUpsertBatch(t *testing.T) {
	store := newFakeStore()
	store.contracts[testContractID] = &models.TrackedContract{ID: 1, ContractID: testContractID, Active: true}
	ingestor, _ := newTestPipeline(store)

	batch := []*models.RawEvent{
		rawEvent(100, 0, 1),
		rawEvent(100, 1, 2),
		rawEvent(100, 0, 3), // duplicate of the first
	}

	created, err := ingestor.UpsertBatch(context.Background(), testContractID, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
}

func TestUpsertDefaultsMissingFields(t *testing.T) {
	store := newFakeStore()
	store.contracts[testContractID] = &models.TrackedContract{ID: 1, ContractID: testContractID, Active: true}
	ingestor, _ := newTestPipeline(store)

	event, created, err := ingestor.Upsert(context.Background(), testContractID, &models.RawEvent{
		Ledger: 100,
		TxHash: "tx1",
	}, 0)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 0, event.EventIndex)
	assert.Equal(t, "unknown", event.EventType)
	assert.NotNil(t, event.Payload)
}

func TestUpsertFallbackIndex(t *testing.T) {
	store := newFakeStore()
	store.contracts[testContractID] = &models.TrackedContract{ID: 1, ContractID: testContractID, Active: true}
	ingestor, _ := newTestPipeline(store)

	// Without an upstream index the caller's fallback becomes the dedup key.
	event, created, err := ingestor.Upsert(context.Background(), testContractID, &models.RawEvent{
		Ledger: 100,
		TxHash: "tx1",
	}, 7)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 7, event.EventIndex)

	// An explicit index always wins over the fallback.
	event, created, err = ingestor.Upsert(context.Background(), testContractID, rawEvent(100, 3, 50), 7)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 3, event.EventIndex)
}

func TestUpsertBatchIndexlessEventsStayDistinct(t *testing.T) {
	store := newFakeStore()
	store.contracts[testContractID] = &models.TrackedContract{ID: 1, ContractID: testContractID, Active: true}
	ingestor, _ := newTestPipeline(store)

	// Two index-less events in the same ledger take their batch positions and
	// must not collapse onto a single row.
	batch := []*models.RawEvent{
		{Ledger: 100, TxHash: "tx1", Type: "transfer"},
		{Ledger: 100, TxHash: "tx2", Type: "transfer"},
	}

	created, err := ingestor.UpsertBatch(context.Background(), testContractID, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, "tx1", store.events["1/100/0"].TxHash)
	assert.Equal(t, "tx2", store.events["1/100/1"].TxHash)
}

// File: internal/alerting/dispatcher_test.go
package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/internal/notification"
)

type fakeDispatchStore struct {
	rules      map[int64]*models.AlertRule
	events     map[int64]*models.ContractEvent
	contracts  map[int64]*models.TrackedContract
	executions []*models.AlertExecution
}

func newFakeDispatchStore() *fakeDispatchStore {
	return &fakeDispatchStore{
		rules:     make(map[int64]*models.AlertRule),
		events:    make(map[int64]*models.ContractEvent),
		contracts: make(map[int64]*models.TrackedContract),
	}
}

func (f *fakeDispatchStore) GetRule(ctx context.Context, id int64) (*models.AlertRule, error) {
	return f.rules[id], nil
}

func (f *fakeDispatchStore) GetEvent(ctx context.Context, id int64) (*models.ContractEvent, error) {
	return f.events[id], nil
}

func (f *fakeDispatchStore) GetContract(ctx context.Context, id int64) (*models.TrackedContract, error) {
	return f.contracts[id], nil
}

func (f *fakeDispatchStore) SaveExecution(ctx context.Context, execution *models.AlertExecution) error {
	execution.ID = int64(len(f.executions) + 1)
	f.executions = append(f.executions, execution)
	return nil
}

type fakeSender struct {
	channel  string
	response string
	err      error
	sent     []*notification.Alert
	targets  []string
}

func (f *fakeSender) Channel() string { return f.channel }

func (f *fakeSender) Send(ctx context.Context, target string, alert *notification.Alert) (string, error) {
	f.sent = append(f.sent, alert)
	f.targets = append(f.targets, target)
	return f.response, f.err
}

func testRule() *models.AlertRule {
	return &models.AlertRule{
		ID: 1, ContractID: 10, Name: "big transfer", Active: true,
		ActionType: models.ActionWebhook, ActionTarget: "https://example.com/hook",
	}
}

func testEvent() *models.ContractEvent {
	return &models.ContractEvent{
		ID: 2, ContractID: 10, EventType: "transfer",
		Ledger: 1234, TxHash: "abc123",
		Payload: map[string]interface{}{"amount": float64(5000)},
	}
}

func TestDispatchSent(t *testing.T) {
	store := newFakeDispatchStore()
	store.rules[1] = testRule()
	store.events[2] = testEvent()
	store.contracts[10] = &models.TrackedContract{ID: 10, ContractID: "CCEXAMPLE"}

	sender := &fakeSender{channel: "webhook", response: "status: 200"}
	dispatcher := NewDispatcher(store, []notification.Sender{sender}, nil, time.Second)

	outcome, err := dispatcher.Dispatch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	require.Len(t, store.executions, 1)
	execution := store.executions[0]
	assert.Equal(t, int64(1), execution.RuleID)
	assert.Equal(t, int64(2), execution.EventID)
	assert.Equal(t, models.ExecutionSent, execution.Status)
	assert.Equal(t, "status: 200", execution.Response)

	require.Len(t, sender.sent, 1)
	alert := sender.sent[0]
	assert.Equal(t, "big transfer", alert.RuleName)
	assert.Equal(t, "CCEXAMPLE", alert.ContractID)
	assert.Equal(t, uint64(1234), alert.Ledger)
	assert.Equal(t, "https://example.com/hook", sender.targets[0])
}

func TestDispatchFailed(t *testing.T) {
	store := newFakeDispatchStore()
	store.rules[1] = testRule()
	store.events[2] = testEvent()

	sender := &fakeSender{channel: "webhook", err: errors.New("connection refused")}
	dispatcher := NewDispatcher(store, []notification.Sender{sender}, nil, time.Second)

	outcome, err := dispatcher.Dispatch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	require.Len(t, store.executions, 1)
	assert.Equal(t, models.ExecutionFailed, store.executions[0].Status)
	assert.Contains(t, store.executions[0].Response, "connection refused")
}

func TestDispatchRuleGone(t *testing.T) {
	store := newFakeDispatchStore()
	store.events[2] = testEvent()

	sender := &fakeSender{channel: "webhook"}
	dispatcher := NewDispatcher(store, []notification.Sender{sender}, nil, time.Second)

	outcome, err := dispatcher.Dispatch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedRuleGone, outcome)

	// Skips leave no trace: no delivery, no execution record.
	assert.Empty(t, sender.sent)
	assert.Empty(t, store.executions)
}

func TestDispatchDeactivatedRuleSkips(t *testing.T) {
	store := newFakeDispatchStore()
	rule := testRule()
	rule.Active = false
	store.rules[1] = rule
	store.events[2] = testEvent()

	dispatcher := NewDispatcher(store, nil, nil, time.Second)

	outcome, err := dispatcher.Dispatch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedRuleGone, outcome)
	assert.Empty(t, store.executions)
}

func TestDispatchEventGone(t *testing.T) {
	store := newFakeDispatchStore()
	store.rules[1] = testRule()

	sender := &fakeSender{channel: "webhook"}
	dispatcher := NewDispatcher(store, []notification.Sender{sender}, nil, time.Second)

	outcome, err := dispatcher.Dispatch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedEventGone, outcome)
	assert.Empty(t, sender.sent)
	assert.Empty(t, store.executions)
}

func TestDispatchUnknownChannel(t *testing.T) {
	store := newFakeDispatchStore()
	rule := testRule()
	rule.ActionType = "pager"
	store.rules[1] = rule
	store.events[2] = testEvent()

	dispatcher := NewDispatcher(store, nil, nil, time.Second)

	outcome, err := dispatcher.Dispatch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	require.Len(t, store.executions, 1)
	assert.Contains(t, store.executions[0].Response, "unknown action type")
}

func TestDispatchContractGoneUsesUnknownLabel(t *testing.T) {
	store := newFakeDispatchStore()
	store.rules[1] = testRule()
	store.events[2] = testEvent()

	sender := &fakeSender{channel: "webhook"}
	dispatcher := NewDispatcher(store, []notification.Sender{sender}, nil, time.Second)

	outcome, err := dispatcher.Dispatch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "unknown", sender.sent[0].ContractID)
}

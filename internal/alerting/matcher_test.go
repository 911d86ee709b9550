// File: internal/alerting/matcher_test.go
package alerting

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soroscan/soroscan/internal/models"
)

type fakeRuleStore struct {
	rules     []*models.AlertRule
	contracts map[int64]*models.TrackedContract
	events    map[int64]*models.ContractEvent
}

func (f *fakeRuleStore) GetEvent(ctx context.Context, id int64) (*models.ContractEvent, error) {
	return f.events[id], nil
}

func (f *fakeRuleStore) GetActiveRules(ctx context.Context, contractID int64) ([]*models.AlertRule, error) {
	var out []*models.AlertRule
	for _, rule := range f.rules {
		if rule.ContractID == contractID && rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) GetContract(ctx context.Context, id int64) (*models.TrackedContract, error) {
	return f.contracts[id], nil
}

func TestMatchEvent(t *testing.T) {
	store := &fakeRuleStore{
		rules: []*models.AlertRule{
			{
				ID: 1, ContractID: 10, Name: "large transfer", Active: true,
				Condition: json.RawMessage(`{"op":"gt","field":"amount","value":1000}`),
			},
			{
				ID: 2, ContractID: 10, Name: "usdc only", Active: true,
				Condition: json.RawMessage(`{"op":"eq","field":"asset","value":"USDC"}`),
			},
			{
				ID: 3, ContractID: 10, Name: "broken", Active: true,
				Condition: json.RawMessage(`{"op":"regex","field":"a","value":"x"}`),
			},
			{
				ID: 4, ContractID: 99, Name: "other contract", Active: true,
				Condition: json.RawMessage(`{"op":"and","conditions":[]}`),
			},
		},
	}
	matcher := NewMatcher(store, nil)

	event := &models.ContractEvent{
		ID:         7,
		ContractID: 10,
		EventType:  "transfer",
		Payload:    map[string]interface{}{"amount": float64(5000), "asset": "USDC"},
	}

	matched, err := matcher.MatchEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, int64(1), matched[0].ID)
	assert.Equal(t, int64(2), matched[1].ID)
}

func TestMatchRulesByID(t *testing.T) {
	event := &models.ContractEvent{
		ID:         7,
		ContractID: 10,
		EventType:  "transfer",
		Payload:    map[string]interface{}{"amount": float64(5000)},
	}
	store := &fakeRuleStore{
		rules: []*models.AlertRule{
			{
				ID: 1, ContractID: 10, Name: "large transfer", Active: true,
				Condition: json.RawMessage(`{"op":"gt","field":"amount","value":1000}`),
			},
			{
				ID: 2, ContractID: 10, Name: "small transfer", Active: true,
				Condition: json.RawMessage(`{"op":"lt","field":"amount","value":10}`),
			},
		},
		events: map[int64]*models.ContractEvent{7: event},
	}
	matcher := NewMatcher(store, nil)

	count, err := matcher.MatchRules(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A vanished event matches nothing.
	count, err = matcher.MatchRules(context.Background(), 999)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMatchEventExcludesInactive(t *testing.T) {
	store := &fakeRuleStore{
		rules: []*models.AlertRule{
			{
				ID: 1, ContractID: 10, Active: false,
				Condition: json.RawMessage(`{"op":"and","conditions":[]}`),
			},
		},
	}
	matcher := NewMatcher(store, nil)

	matched, err := matcher.MatchEvent(context.Background(), &models.ContractEvent{ContractID: 10, Payload: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestMatchEventNoRules(t *testing.T) {
	matcher := NewMatcher(&fakeRuleStore{}, nil)

	matched, err := matcher.MatchEvent(context.Background(), &models.ContractEvent{ContractID: 10, Payload: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Empty(t, matched)
}

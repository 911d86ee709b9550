// File: internal/soroban/client_test.go
package soroban

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      int             `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "2.0", req.JSONRPC)

		result, rpcErr := handler(req.Method, req.Params)

		response := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			response["error"] = rpcErr
		} else {
			response["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
}

func TestGetEvents(t *testing.T) {
	server := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		require.Equal(t, "getEvents", method)

		var decoded getEventsParams
		require.NoError(t, json.Unmarshal(params, &decoded))
		assert.Equal(t, uint64(4000), decoded.StartLedger)
		require.Len(t, decoded.Filters, 1)
		assert.Equal(t, []string{"CCEXAMPLE"}, decoded.Filters[0].ContractIDs)
		assert.Equal(t, 100, decoded.Pagination.Limit)

		return getEventsResult{
			LatestLedger: 4096,
			Events: []rpcEvent{
				{
					Type:           "contract",
					Ledger:         4096,
					LedgerClosedAt: "2024-05-01T12:00:00Z",
					ContractID:     "CCEXAMPLE",
					ID:             "0000004096-0000000002",
					Topic:          []string{"AAAADwAAAAh0cmFuc2Zlcg=="},
					Value:          "AAAAAQ==",
					TxHash:         "abc123",
				},
			},
		}, nil
	})
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	events, latestLedger, err := client.GetEvents(context.Background(), "CCEXAMPLE", 4000, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), latestLedger)

	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, uint64(4096), event.Ledger)
	assert.Equal(t, "abc123", event.TxHash)
	assert.Equal(t, "contract", event.Type)
	require.NotNil(t, event.EventIndex)
	assert.Equal(t, 2, *event.EventIndex)
	require.NotNil(t, event.Timestamp)
	assert.Equal(t, 2024, event.Timestamp.Year())
	assert.Equal(t, "AAAAAQ==", event.Value["value_xdr"])
}

func TestGetLatestLedger(t *testing.T) {
	server := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		require.Equal(t, "getLatestLedger", method)
		return map[string]interface{}{"sequence": 123456}, nil
	})
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	sequence, err := client.GetLatestLedger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), sequence)
}

func TestRPCError(t *testing.T) {
	server := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32600, Message: "start is before oldest ledger"}
	})
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, _, err := client.GetEvents(context.Background(), "CCEXAMPLE", 1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start is before oldest ledger")
}

func TestRPCNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.GetLatestLedger(context.Background())
	assert.Error(t, err)
}

func TestToRawEventMalformedID(t *testing.T) {
	raw := toRawEvent(rpcEvent{Ledger: 10, ID: "noindex", TxHash: "tx"})
	assert.Nil(t, raw.EventIndex)
	assert.Nil(t, raw.Timestamp)
}

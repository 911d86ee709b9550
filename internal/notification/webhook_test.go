// File: internal/notification/webhook_test.go
package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soroscan/soroscan/pkg/utils"
)

func testAlert() *Alert {
	return &Alert{
		RuleID:     1,
		RuleName:   "big transfer",
		ContractID: "CCEXAMPLE",
		EventType:  "transfer",
		Ledger:     1234,
		TxHash:     "abc123",
		Payload:    map[string]interface{}{"amount": float64(5000)},
	}
}

func TestWebhookSend(t *testing.T) {
	var received WebhookPayload
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(5 * time.Second)
	response, err := sender.Send(context.Background(), server.URL, testAlert())
	require.NoError(t, err)
	assert.Equal(t, "status: 200", response)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "soroscan", received.Source)
	require.NotNil(t, received.Alert)
	assert.Equal(t, "big transfer", received.Alert.RuleName)
	assert.Equal(t, uint64(1234), received.Alert.Ledger)
	assert.Equal(t, float64(5000), received.Alert.Payload["amount"])
}

func TestWebhookSendNonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewWebhookSender(5 * time.Second)
	response, err := sender.Send(context.Background(), server.URL, testAlert())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeExternal))
	assert.Equal(t, "status: 502", response)
}

func TestWebhookSendConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	sender := NewWebhookSender(time.Second)
	_, err := sender.Send(context.Background(), server.URL, testAlert())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeExternal))
}

func TestSlackSend(t *testing.T) {
	var received map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSlackSender(5 * time.Second)
	response, err := sender.Send(context.Background(), server.URL, testAlert())
	require.NoError(t, err)
	assert.Equal(t, "status: 200", response)

	assert.Contains(t, received["text"], "big transfer")
	assert.Contains(t, received["text"], "CCEXAMPLE")
	assert.Contains(t, received["text"], "ledger 1234")
}

func TestSenderChannels(t *testing.T) {
	assert.Equal(t, "webhook", NewWebhookSender(time.Second).Channel())
	assert.Equal(t, "slack", NewSlackSender(time.Second).Channel())
}

func TestTruncateResponse(t *testing.T) {
	long := make([]byte, maxResponseLen*2)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncateResponse(string(long)), maxResponseLen)
	assert.Equal(t, "short", truncateResponse("short"))
}

// File: internal/soroban/client.go
package soroban

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/pkg/utils"
)

// Client is a minimal Soroban JSON-RPC client covering the getEvents and
// getLatestLedger calls the sync loop needs.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient creates a Soroban RPC client
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.Component("soroban_client"),
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type getEventsParams struct {
	StartLedger uint64        `json:"startLedger"`
	Filters     []eventFilter `json:"filters"`
	Pagination  pagination    `json:"pagination"`
}

type eventFilter struct {
	Type        string   `json:"type"`
	ContractIDs []string `json:"contractIds"`
}

type pagination struct {
	Limit int `json:"limit"`
}

type getEventsResult struct {
	Events       []rpcEvent `json:"events"`
	LatestLedger uint64     `json:"latestLedger"`
}

type rpcEvent struct {
	Type           string   `json:"type"`
	Ledger         uint64   `json:"ledger"`
	LedgerClosedAt string   `json:"ledgerClosedAt"`
	ContractID     string   `json:"contractId"`
	ID             string   `json:"id"`
	Topic          []string `json:"topic"`
	Value          string   `json:"value"`
	TxHash         string   `json:"txHash"`
}

// GetEvents fetches contract events starting at the given ledger and returns
// them as raw events together with the latest ledger the RPC node has seen.
func (c *Client) GetEvents(ctx context.Context, contractID string, startLedger uint64, limit int) ([]*models.RawEvent, uint64, error) {
	params := getEventsParams{
		StartLedger: startLedger,
		Filters: []eventFilter{
			{Type: "contract", ContractIDs: []string{contractID}},
		},
		Pagination: pagination{Limit: limit},
	}

	var result getEventsResult
	if err := c.call(ctx, "getEvents", params, &result); err != nil {
		return nil, 0, err
	}

	raws := make([]*models.RawEvent, 0, len(result.Events))
	for _, ev := range result.Events {
		raws = append(raws, toRawEvent(ev))
	}
	return raws, result.LatestLedger, nil
}

// GetLatestLedger returns the latest ledger sequence known to the RPC node
func (c *Client) GetLatestLedger(ctx context.Context) (uint64, error) {
	var result struct {
		Sequence uint64 `json:"sequence"`
	}
	if err := c.call(ctx, "getLatestLedger", nil, &result); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal RPC request", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create RPC request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "RPC request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return utils.NewAppError(utils.ErrCodeExternal,
			"RPC returned non-success status", fmt.Sprintf("status: %d", resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Failed to decode RPC response", err.Error())
	}
	if rpcResp.Error != nil {
		return utils.NewAppError(utils.ErrCodeExternal,
			"RPC error", fmt.Sprintf("code %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Failed to decode RPC result", err.Error())
	}
	return nil
}

func toRawEvent(ev rpcEvent) *models.RawEvent {
	raw := &models.RawEvent{
		Ledger: ev.Ledger,
		TxHash: ev.TxHash,
		Type:   ev.Type,
		XDR:    ev.Value,
		Value: map[string]interface{}{
			"topic":     ev.Topic,
			"value_xdr": ev.Value,
		},
	}

	// Event IDs look like "0000004096-0000000001"; the suffix orders events
	// within a ledger.
	if idx := strings.LastIndex(ev.ID, "-"); idx >= 0 {
		if n, err := strconv.Atoi(ev.ID[idx+1:]); err == nil {
			raw.EventIndex = &n
		}
	}

	if ev.LedgerClosedAt != "" {
		if t, err := time.Parse(time.RFC3339, ev.LedgerClosedAt); err == nil {
			raw.Timestamp = &t
		}
	}

	return raw
}

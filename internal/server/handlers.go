// File: internal/server/handlers.go
package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/soroscan/soroscan/internal/alerting"
	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/pkg/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Contract handlers

func (s *HTTPServer) listContractsHandler(w http.ResponseWriter, r *http.Request) {
	var active *bool
	if v := r.URL.Query().Get("active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid active filter", v))
			return
		}
		active = &parsed
	}

	contracts, err := s.storage.GetContracts(r.Context(), active)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"contracts": contracts,
		"count":     len(contracts),
	})
}

func (s *HTTPServer) addContractHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContractID string `json:"contract_id"`
		Name       string `json:"name"`
		Owner      string `json:"owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	if len(req.ContractID) != models.ContractIDLength {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation,
			"Invalid contract ID", "contract IDs are 56 characters"))
		return
	}
	if req.Name == "" {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Contract name is required"))
		return
	}

	existing, err := s.storage.GetContractByContractID(r.Context(), req.ContractID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if existing != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Contract is already tracked"))
		return
	}

	contract := &models.TrackedContract{
		ContractID: req.ContractID,
		Name:       req.Name,
		Owner:      req.Owner,
		Active:     true,
	}
	if err := s.storage.SaveContract(r.Context(), contract); err != nil {
		s.writeError(w, err)
		return
	}

	if s.ingestor != nil {
		if err := s.ingestor.RefreshContractGauge(r.Context()); err != nil {
			s.logger.WithError(err).Debug("Failed to refresh contract gauge")
		}
	}

	s.writeJSON(w, http.StatusCreated, contract)
}

func (s *HTTPServer) getContractHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contract, err := s.storage.GetContract(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contract == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Contract not found"))
		return
	}

	s.writeJSON(w, http.StatusOK, contract)
}

func (s *HTTPServer) updateContractHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contract, err := s.storage.GetContract(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contract == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Contract not found"))
		return
	}

	var req struct {
		Name   *string `json:"name"`
		Owner  *string `json:"owner"`
		Active *bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	if req.Name != nil {
		contract.Name = *req.Name
	}
	if req.Owner != nil {
		contract.Owner = *req.Owner
	}
	if req.Active != nil {
		contract.Active = *req.Active
	}

	if err := s.storage.UpdateContract(r.Context(), contract); err != nil {
		s.writeError(w, err)
		return
	}

	if s.ingestor != nil {
		if err := s.ingestor.RefreshContractGauge(r.Context()); err != nil {
			s.logger.WithError(err).Debug("Failed to refresh contract gauge")
		}
	}

	s.writeJSON(w, http.StatusOK, contract)
}

// Event handlers

func (s *HTTPServer) ingestEventsHandler(w http.ResponseWriter, r *http.Request) {
	contractID := mux.Vars(r)["contract_id"]

	var req struct {
		Events []*models.RawEvent `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}
	if len(req.Events) == 0 {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "No events in request"))
		return
	}

	created, err := s.ingestor.UpsertBatch(r.Context(), contractID, req.Events)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"received": len(req.Events),
		"created":  created,
	})
}

func (s *HTTPServer) getEventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	event, err := s.storage.GetEvent(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if event == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Event not found"))
		return
	}

	s.writeJSON(w, http.StatusOK, event)
}

func (s *HTTPServer) searchEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	events, total, err := s.storage.SearchEvents(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func parseEventFilter(r *http.Request) (models.EventFilter, error) {
	query := r.URL.Query()
	filter := models.EventFilter{
		Limit:           defaultPageSize,
		PayloadContains: query.Get("payload_contains"),
	}

	if v := query.Get("contract_id"); v != "" {
		filter.ContractID = &v
	}
	if v := query.Get("event_type"); v != "" {
		filter.EventType = &v
	}
	if v := query.Get("from_ledger"); v != "" {
		ledger, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid from_ledger", v)
		}
		filter.FromLedger = &ledger
	}
	if v := query.Get("to_ledger"); v != "" {
		ledger, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid to_ledger", v)
		}
		filter.ToLedger = &ledger
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid limit", v)
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
		filter.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, utils.NewAppError(utils.ErrCodeValidation, "Invalid offset", v)
		}
		filter.Offset = offset
	}

	return filter, nil
}

// Rule handlers

func (s *HTTPServer) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	var contractID *int64
	if v := r.URL.Query().Get("contract_id"); v != "" {
		contract, err := s.storage.GetContractByContractID(r.Context(), v)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if contract == nil {
			s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Contract not found"))
			return
		}
		contractID = &contract.ID
	}

	rules, err := s.storage.GetRules(r.Context(), contractID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *HTTPServer) addRuleHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContractID   string          `json:"contract_id"`
		Name         string          `json:"name"`
		Condition    json.RawMessage `json:"condition"`
		ActionType   string          `json:"action_type"`
		ActionTarget string          `json:"action_target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	contract, err := s.storage.GetContractByContractID(r.Context(), req.ContractID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contract == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Contract not found"))
		return
	}

	rule := &models.AlertRule{
		ContractID:   contract.ID,
		Name:         req.Name,
		Condition:    req.Condition,
		ActionType:   req.ActionType,
		ActionTarget: req.ActionTarget,
		Active:       true,
	}
	if err := validateRule(rule); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.storage.SaveRule(r.Context(), rule); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, rule)
}

func (s *HTTPServer) getRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rule, err := s.storage.GetRule(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rule == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Rule not found"))
		return
	}

	s.writeJSON(w, http.StatusOK, rule)
}

func (s *HTTPServer) updateRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rule, err := s.storage.GetRule(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rule == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Rule not found"))
		return
	}

	var req struct {
		Name         *string         `json:"name"`
		Condition    json.RawMessage `json:"condition"`
		ActionType   *string         `json:"action_type"`
		ActionTarget *string         `json:"action_target"`
		Active       *bool           `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Condition != nil {
		rule.Condition = req.Condition
	}
	if req.ActionType != nil {
		rule.ActionType = *req.ActionType
	}
	if req.ActionTarget != nil {
		rule.ActionTarget = *req.ActionTarget
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := validateRule(rule); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.storage.UpdateRule(r.Context(), rule); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, rule)
}

func (s *HTTPServer) removeRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.storage.DeleteRule(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *HTTPServer) listExecutionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	limit := defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid limit", v))
			return
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}

	executions, err := s.storage.GetExecutions(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"executions": executions,
		"count":      len(executions),
	})
}

func validateRule(rule *models.AlertRule) error {
	if rule.Name == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Rule name is required")
	}
	if !models.ValidActionType(rule.ActionType) {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid action type", rule.ActionType)
	}
	if rule.ActionTarget == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Action target is required")
	}
	if _, err := alerting.ParseCondition(rule.Condition); err != nil {
		return err
	}
	return nil
}

// API key handlers

func (s *HTTPServer) listAPIKeysHandler(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Owner is required"))
		return
	}

	keys, err := s.storage.GetAPIKeys(r.Context(), owner)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The secret is shown once at creation; listings only expose a prefix.
	type keyView struct {
		ID           int64   `json:"id"`
		Name         string  `json:"name"`
		KeyPrefix    string  `json:"key_prefix"`
		Tier         string  `json:"tier"`
		QuotaPerHour int     `json:"quota_per_hour"`
		Active       bool    `json:"active"`
		LastUsedAt   *string `json:"last_used_at,omitempty"`
	}

	views := make([]keyView, 0, len(keys))
	for _, key := range keys {
		view := keyView{
			ID:           key.ID,
			Name:         key.Name,
			KeyPrefix:    key.Key[:8] + "...",
			Tier:         key.Tier,
			QuotaPerHour: key.QuotaPerHour,
			Active:       key.Active,
		}
		if key.LastUsedAt != nil {
			used := key.LastUsedAt.UTC().Format("2006-01-02T15:04:05Z")
			view.LastUsedAt = &used
		}
		views = append(views, view)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_keys": views,
		"count":    len(views),
	})
}

func (s *HTTPServer) addAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner string `json:"owner"`
		Name  string `json:"name"`
		Tier  string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	if req.Owner == "" || req.Name == "" {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Owner and name are required"))
		return
	}
	if req.Tier == "" {
		req.Tier = models.TierFree
	}
	if !models.ValidTier(req.Tier) {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid tier", req.Tier))
		return
	}

	token, err := utils.GenerateAPIKey()
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeInternal, "Failed to generate API key", err.Error()))
		return
	}

	key := &models.APIKey{
		Owner:        req.Owner,
		Name:         req.Name,
		Key:          token,
		Tier:         req.Tier,
		QuotaPerHour: models.TierQuota(req.Tier),
		Active:       true,
	}
	if err := s.storage.SaveAPIKey(r.Context(), key); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":             key.ID,
		"key":            key.Key,
		"tier":           key.Tier,
		"quota_per_hour": key.QuotaPerHour,
	})
}

func (s *HTTPServer) revokeAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.storage.RevokeAPIKey(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *HTTPServer) addContractQuotaHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContractID   string `json:"contract_id"`
		APIKeyID     int64  `json:"api_key_id"`
		QuotaPerHour int    `json:"quota_per_hour"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error()))
		return
	}

	contract, err := s.storage.GetContractByContractID(r.Context(), req.ContractID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contract == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Contract not found"))
		return
	}

	contractQuota := &models.ContractQuota{
		ContractID:   contract.ID,
		APIKeyID:     req.APIKeyID,
		QuotaPerHour: req.QuotaPerHour,
	}
	if err := s.storage.SaveContractQuota(r.Context(), contractQuota); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, contractQuota)
}

// pathID parses the {id} path variable
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid ID", raw)
	}
	return id, nil
}

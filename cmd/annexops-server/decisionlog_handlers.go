package main

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/decisionlog"
	"github.com/annexops/registry/internal/domain"
)

func (s *server) handleEnableLogging(w http.ResponseWriter, r *http.Request) {
	if !requireMinRole(w, r, domain.RoleAdmin) {
		return
	}
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		AllowRawPII bool   `json:"allow_raw_pii"`
	}
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var key *domain.LogApiKey
	var plaintext string
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		key, plaintext, err = s.decisionlog.EnableLogging(r.Context(), tx, orgID, versionID, req.Name, req.AllowRawPII)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"api_key": key, "plaintext_key": plaintext})
}

func (s *server) handleRevokeLoggingKey(w http.ResponseWriter, r *http.Request) {
	if !requireMinRole(w, r, domain.RoleAdmin) {
		return
	}
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		return s.decisionlog.Revoke(r.Context(), tx, orgID, id)
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteNoContent(w)
}

// handleIngestDecisionLog authenticates via the X-API-Key header (a
// version-scoped decision-log key), not the user JWT middleware (spec
// §4.5). It is the only route authenticated by an API key rather than a
// user bearer token.
func (s *server) handleIngestDecisionLog(w http.ResponseWriter, r *http.Request) {
	presented := r.Header.Get("X-API-Key")
	if presented == "" {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "missing X-API-Key header"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, api.MaxBodyBytes)
	body, err := readAll(r)
	if err != nil {
		api.WriteBadRequest(w, r, "could not read request body")
		return
	}

	var log *domain.DecisionLog
	err = s.withTx(r.Context(), func(tx *sql.Tx) error {
		key, err := s.decisionlog.Authenticate(r.Context(), tx, presented)
		if err != nil {
			return err
		}
		log, err = s.decisionlog.Ingest(r.Context(), tx, key, body)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, log)
}

func (s *server) handleListDecisionLogs(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	filter, ok := parseLogFilter(w, r)
	if !ok {
		return
	}
	summaries, err := s.decisionlog.List(r.Context(), s.db, orgID, versionID, filter)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, summaries)
}

func (s *server) handleExportDecisionLogs(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	filter, ok := parseLogFilter(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		csvBytes, err := s.decisionlog.ExportCSV(r.Context(), s.db, orgID, versionID, filter)
		if err != nil {
			api.WriteRegistryError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=\"decision-logs.csv\"")
		_, _ = w.Write(csvBytes)
		return
	}

	rows, err := s.decisionlog.ExportJSON(r.Context(), s.db, orgID, versionID, filter)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rows)
}

func parseLogFilter(w http.ResponseWriter, r *http.Request) (decisionlog.ListFilter, bool) {
	q := r.URL.Query()
	var filter decisionlog.ListFilter
	if start := q.Get("start"); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			api.WriteBadRequest(w, r, "start must be RFC3339")
			return filter, false
		}
		filter.StartTime = &t
	}
	if end := q.Get("end"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			api.WriteBadRequest(w, r, "end must be RFC3339")
			return filter, false
		}
		filter.EndTime = &t
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}
	return filter, true
}

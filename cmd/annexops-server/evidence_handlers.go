package main

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/pkg/evidence"
)

func (s *server) handleCreateEvidence(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	var req evidence.CreateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var created *domain.EvidenceItem
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		created, err = s.evidence.Create(r.Context(), tx, orgID, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	item, err := s.evidence.Get(r.Context(), s.db, orgID, id)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, item)
}

func (s *server) handleUpdateEvidence(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req evidence.UpdateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var updated *domain.EvidenceItem
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		updated, err = s.evidence.Update(r.Context(), tx, orgID, id, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, updated)
}

func (s *server) handleDeleteEvidence(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		return s.evidence.Delete(r.Context(), tx, orgID, id, force)
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteNoContent(w)
}

func (s *server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := evidence.ListFilter{
		Query: q.Get("q"),
	}
	if t := q.Get("type"); t != "" {
		et := domain.EvidenceType(t)
		filter.Type = &et
	}
	if c := q.Get("classification"); c != "" {
		cl := domain.Classification(c)
		filter.Classification = &cl
	}
	if tags := q.Get("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	if orphaned := q.Get("orphaned"); orphaned != "" {
		v := orphaned == "true"
		filter.Orphaned = &v
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}

	items, err := s.evidence.List(r.Context(), s.db, orgID, filter)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, items)
}

package main

import (
	"database/sql"
	"net/http"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/versions"
)

type transitionRequest struct {
	NewStatus domain.VersionStatus `json:"new_status"`
}

func (s *server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	systemID, ok := pathUUID(w, r, "system_id")
	if !ok {
		return
	}
	var req versions.CreateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var created *domain.SystemVersion
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		created, err = s.versions.Create(r.Context(), tx, systemID, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	systemID, ok := pathUUID(w, r, "system_id")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	v, err := s.versions.Get(r.Context(), s.db, orgID, systemID, id)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, v)
}

func (s *server) handleUpdateVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	systemID, ok := pathUUID(w, r, "system_id")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req versions.UpdateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var updated *domain.SystemVersion
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		updated, err = s.versions.Update(r.Context(), tx, orgID, systemID, id, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, updated)
}

func (s *server) handleTransitionVersion(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	systemID, ok := pathUUID(w, r, "system_id")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	principal, err := requirePrincipal(w, r)
	if err != nil {
		return
	}
	userID, err := principalUserID(r)
	if err != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "missing principal"))
		return
	}
	var req transitionRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var updated *domain.SystemVersion
	err = s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		updated, err = s.versions.Transition(r.Context(), tx, orgID, systemID, id, principal.GetRole(), userID, req.NewStatus)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, updated)
}

func (s *server) handleCloneVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	systemID, ok := pathUUID(w, r, "system_id")
	if !ok {
		return
	}
	sourceID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req versions.CloneRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var created *domain.SystemVersion
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		created, err = s.versions.Clone(r.Context(), tx, orgID, systemID, sourceID, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (s *server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMinRole(w, r, domain.RoleAdmin) {
		return
	}
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	systemID, ok := pathUUID(w, r, "system_id")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		return s.versions.Delete(r.Context(), tx, orgID, systemID, id)
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteNoContent(w)
}

func (s *server) handleDiffVersion(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	systemID, ok := pathUUID(w, r, "system_id")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	compareID, err := uuid.Parse(r.URL.Query().Get("compare_to"))
	if err != nil {
		api.WriteBadRequest(w, r, "compare_to query parameter must be a UUID")
		return
	}

	current, err := s.versions.Get(r.Context(), s.db, orgID, systemID, id)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	other, err := s.versions.Get(r.Context(), s.db, orgID, systemID, compareID)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	result, err := versions.ComputeDiff(other, current)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

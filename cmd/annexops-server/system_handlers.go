package main

import (
	"database/sql"
	"net/http"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/systems"
)

func (s *server) handleCreateSystem(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	var req systems.CreateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var created *domain.AISystem
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		created, err = s.systems.Create(r.Context(), tx, orgID, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetSystem(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	sys, err := s.systems.Get(r.Context(), s.db, orgID, id)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, sys)
}

func (s *server) handleUpdateSystem(w http.ResponseWriter, r *http.Request) {
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
	var req systems.UpdateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var updated *domain.AISystem
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		updated, err = s.systems.Update(r.Context(), tx, orgID, id, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, updated)
}

func (s *server) handleDeleteSystem(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	if !requireMinRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		return s.systems.Delete(r.Context(), tx, orgID, id)
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteNoContent(w)
}

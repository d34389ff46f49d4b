package main

import (
	"database/sql"
	"net/http"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/sections"
)

func (s *server) handleListSections(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	var list []*domain.AnnexSection
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		list, err = s.sections.List(r.Context(), tx, orgID, versionID)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, list)
}

func (s *server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	key := domain.AnnexSectionKey(r.PathValue("key"))
	if !key.Valid() {
		api.WriteBadRequest(w, r, "unknown section key")
		return
	}
	var sec *domain.AnnexSection
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		sec, err = s.sections.Get(r.Context(), tx, orgID, versionID, key)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, sec)
}

func (s *server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	key := domain.AnnexSectionKey(r.PathValue("key"))
	if !key.Valid() {
		api.WriteBadRequest(w, r, "unknown section key")
		return
	}
	userID, err := principalUserID(r)
	if err != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "missing principal"))
		return
	}
	var req sections.UpdateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	req.EditedBy = userID

	var updated *domain.AnnexSection
	err = s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		updated, err = s.sections.Update(r.Context(), tx, orgID, versionID, key, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, updated)
}

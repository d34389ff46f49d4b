package main

import (
	"database/sql"
	"net/http"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/mapping"
)

func (s *server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
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
	var req mapping.CreateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	req.VersionID = versionID

	var created *domain.EvidenceMapping
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		created, err = s.mapping.Create(r.Context(), tx, orgID, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (s *server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	var filter mapping.ListFilter
	if tt := r.URL.Query().Get("target_type"); tt != "" {
		targetType := domain.TargetType(tt)
		filter.TargetType = &targetType
	}
	filter.TargetKey = r.URL.Query().Get("target_key")

	views, err := s.mapping.List(r.Context(), s.db, orgID, versionID, filter)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, views)
}

func (s *server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
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
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		return s.mapping.Delete(r.Context(), tx, orgID, id)
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteNoContent(w)
}

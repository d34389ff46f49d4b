package main

import (
	"database/sql"
	"net/http"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/export"
)

func (s *server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	if !requireMinRole(w, r, domain.RoleEditor) {
		return
	}
	systemID, ok := pathUUID(w, r, "system_id")
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	var req export.CreateRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var created *domain.Export
	err := s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		created, err = s.export.Create(r.Context(), tx, orgID, systemID, versionID, req)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (s *server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var storageURI string
	err := s.db.QueryRowContext(r.Context(), `
		SELECT e.storage_uri
		FROM exports e
		JOIN system_versions v ON v.id = e.version_id
		JOIN ai_systems a ON a.id = v.ai_system_id
		WHERE e.id = $1 AND a.org_id = $2
	`, id, orgID).Scan(&storageURI)
	if err != nil {
		if err == sql.ErrNoRows {
			api.WriteRegistryError(w, r, api.NewError(api.KindNotFound, "export not found"))
			return
		}
		api.WriteInternal(w, r, err)
		return
	}

	url, err := s.export.Download(r.Context(), storageURI, 0)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"download_url": url})
}

package main

import (
	"database/sql"
	"net/http"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/llmdraft"
)

type generateDraftRequest struct {
	SelectedEvidenceIDs []uuid.UUID `json:"selected_evidence_ids"`
	Instructions        string      `json:"instructions"`
}

func (s *server) handleGenerateDraft(w http.ResponseWriter, r *http.Request) {
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
		api.WriteBadRequest(w, r, "unknown annex section key")
		return
	}
	userID, err := principalUserID(r)
	if err != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "malformed user id"))
		return
	}

	var req generateDraftRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var result *llmdraft.GenerateResult
	err = s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		result, err = s.llmdraft.Generate(r.Context(), tx, orgID, versionID, userID, llmdraft.GenerateRequest{
			SectionKey:          key,
			SelectedEvidenceIDs: req.SelectedEvidenceIDs,
			Instructions:        req.Instructions,
		})
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

func (s *server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	interactions, err := s.llmdraft.List(r.Context(), s.db, versionID)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, interactions)
}

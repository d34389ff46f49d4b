package main

import (
	"database/sql"
	"net/http"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/assessment"
	"github.com/annexops/registry/internal/domain"
)

// handleListQuestions returns the fixed high-risk screening question set.
// It needs no path or principal parameters since the set is global.
func (s *server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, assessment.Questions)
}

type submitAssessmentRequest struct {
	Answers []assessment.Answer `json:"answers"`
	Notes   string              `json:"notes"`
}

func (s *server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	if !requireMinRole(w, r, domain.RoleEditor) {
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
	userID, err := principalUserID(r)
	if err != nil {
		api.WriteRegistryError(w, r, api.NewError(api.KindUnauthenticated, "malformed user id"))
		return
	}

	var req submitAssessmentRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	var created *domain.HighRiskAssessment
	err = s.withTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		created, err = s.assessment.Submit(r.Context(), tx, orgID, versionID, userID, req.Answers, req.Notes)
		return err
	})
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (s *server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	assessments, err := s.assessment.List(r.Context(), s.db, orgID, versionID)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, assessments)
}

func (s *server) handleLatestAssessment(w http.ResponseWriter, r *http.Request) {
	orgID, ok := principalOrgID(w, r)
	if !ok {
		return
	}
	versionID, ok := pathUUID(w, r, "version_id")
	if !ok {
		return
	}
	latest, err := s.assessment.Latest(r.Context(), s.db, orgID, versionID)
	if err != nil {
		api.WriteRegistryError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, latest)
}

// Package assessment implements the high-risk screening wizard: a fixed
// question set scored per SystemVersion, with a majority-of-indicators
// threshold for is_high_risk (supplemented feature, SPEC_FULL.md
// "Supplemented features" 1; grounded on
// original_source/.../assessment_service.py).
package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
)

// Service is the transaction-bound collaborator for HighRiskAssessment
// reads and submissions.
type Service struct {
	audit audit.Logger
}

// NewService creates a Service using the given audit logger.
func NewService(logger audit.Logger) *Service {
	return &Service{audit: logger}
}

// ensureVersionInOrg confirms versionID is reachable from orgID through
// ai_systems before any read or submission touches it (spec §3).
func ensureVersionInOrg(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID) error {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM system_versions v
			JOIN ai_systems a ON a.id = v.ai_system_id
			WHERE v.id = $1 AND a.org_id = $2
		)
	`, versionID, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("assessment: check version: %w", err)
	}
	if !exists {
		return api.NewError(api.KindNotFound, "system version not found")
	}
	return nil
}

// Answer is one submitted response to a fixed wizard question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Answer     bool   `json:"answer"`
}

// score tallies true answers against Questions, returning a 0-100 score
// and the rationale lines backing a high-risk call. Unknown question ids
// are ignored rather than rejected, so a wizard version bump never breaks
// history replay.
func score(answers []Answer) (float64, bool, []string) {
	var trueCount int
	var rationale []string
	for _, a := range answers {
		q, ok := questionByID(a.QuestionID)
		if !ok || !a.Answer {
			continue
		}
		trueCount++
		if q.HighRiskIndicator {
			rationale = append(rationale, q.Text)
		}
	}
	pct := math.Round(float64(trueCount)/float64(len(Questions))*10000) / 100
	isHighRisk := trueCount*2 >= len(Questions) // majority of the fixed set
	return pct, isHighRisk, rationale
}

// Submit scores answers and persists a HighRiskAssessment row for
// versionID.
func (s *Service) Submit(ctx context.Context, tx *sql.Tx, orgID, versionID, createdBy uuid.UUID, answers []Answer, notes string) (*domain.HighRiskAssessment, error) {
	if err := ensureVersionInOrg(ctx, tx, orgID, versionID); err != nil {
		return nil, err
	}
	pct, isHighRisk, rationale := score(answers)

	answered := make([]map[string]interface{}, 0, len(answers))
	for _, a := range answers {
		q, _ := questionByID(a.QuestionID)
		answered = append(answered, map[string]interface{}{
			"id":                  a.QuestionID,
			"text":                q.Text,
			"answer":              a.Answer,
			"high_risk_indicator": q.HighRiskIndicator,
		})
	}
	answersPayload := map[string]interface{}{
		"wizard_version": WizardVersion,
		"questions":      answered,
		"notes":          notes,
	}
	answersJSON, err := json.Marshal(answersPayload)
	if err != nil {
		return nil, fmt.Errorf("assessment: encode answers: %w", err)
	}
	var answersMap map[string]interface{}
	if err := json.Unmarshal(answersJSON, &answersMap); err != nil {
		return nil, fmt.Errorf("assessment: decode answers: %w", err)
	}

	record := &domain.HighRiskAssessment{
		ID:         uuid.New(),
		VersionID:  versionID,
		Answers:    answersMap,
		Score:      pct,
		IsHighRisk: isHighRisk,
		Rationale:  rationale,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now().UTC(),
	}

	rationaleJSON, err := json.Marshal(record.Rationale)
	if err != nil {
		return nil, fmt.Errorf("assessment: encode rationale: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO high_risk_assessments (id, version_id, answers, score, is_high_risk, rationale, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, record.ID, record.VersionID, answersJSON, record.Score, record.IsHighRisk, rationaleJSON, record.CreatedBy, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("assessment: insert: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionAssessmentSubmit, "high_risk_assessment", record.ID, map[string]any{
		"score":        record.Score,
		"is_high_risk": record.IsHighRisk,
	}); err != nil {
		return nil, fmt.Errorf("assessment: audit: %w", err)
	}
	return record, nil
}

// Latest returns the most recent HighRiskAssessment for versionID, tied on
// (created_at DESC, id DESC), or nil if none exists. Satisfies
// internal/export.AssessmentReader.
func (s *Service) Latest(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID) (*domain.HighRiskAssessment, error) {
	if err := ensureVersionInOrg(ctx, q, orgID, versionID); err != nil {
		return nil, err
	}
	row := q.QueryRowContext(ctx, `
		SELECT id, version_id, answers, score, is_high_risk, rationale, created_by, created_at
		FROM high_risk_assessments
		WHERE version_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, versionID)
	record, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("assessment: latest: %w", err)
	}
	return record, nil
}

// List returns the full assessment history for versionID, newest first.
func (s *Service) List(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID) ([]*domain.HighRiskAssessment, error) {
	if err := ensureVersionInOrg(ctx, q, orgID, versionID); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, version_id, answers, score, is_high_risk, rationale, created_by, created_at
		FROM high_risk_assessments
		WHERE version_id = $1
		ORDER BY created_at DESC, id DESC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("assessment: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.HighRiskAssessment
	for rows.Next() {
		record, err := scanAssessmentRows(rows)
		if err != nil {
			return nil, fmt.Errorf("assessment: scan: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAssessment(row scanner) (*domain.HighRiskAssessment, error) {
	return scanAssessmentRows(row)
}

func scanAssessmentRows(s scanner) (*domain.HighRiskAssessment, error) {
	var a domain.HighRiskAssessment
	var answersJSON, rationaleJSON []byte
	if err := s.Scan(&a.ID, &a.VersionID, &answersJSON, &a.Score, &a.IsHighRisk, &rationaleJSON, &a.CreatedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answersJSON, &a.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if len(rationaleJSON) > 0 {
		if err := json.Unmarshal(rationaleJSON, &a.Rationale); err != nil {
			return nil, fmt.Errorf("decode rationale: %w", err)
		}
	}
	return &a, nil
}

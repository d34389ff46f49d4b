// Package systems implements AISystem CRUD with optimistic concurrency on
// its row-revision counter (spec §3, §8 scenario S8).
package systems

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
)

// Service is the transaction-bound collaborator for AISystem mutations.
// Every method runs against the *sql.Tx of the caller's request.
type Service struct {
	audit audit.Logger
}

// NewService creates a Service using the given audit logger.
func NewService(logger audit.Logger) *Service {
	return &Service{audit: logger}
}

// CreateRequest is the payload for creating an AISystem.
type CreateRequest struct {
	Name              string
	IntendedPurpose   string
	HRUseCaseType     string
	DeploymentType    string
	DecisionInfluence string
	OwnerUserID       *uuid.UUID
}

// Create inserts a new AISystem, rejecting a duplicate (org_id, name) with
// a Conflict.
func (s *Service) Create(ctx context.Context, tx *sql.Tx, orgID uuid.UUID, req CreateRequest) (*domain.AISystem, error) {
	now := time.Now().UTC()
	sys := &domain.AISystem{
		ID:                uuid.New(),
		OrgID:             orgID,
		Name:              req.Name,
		IntendedPurpose:   req.IntendedPurpose,
		HRUseCaseType:     req.HRUseCaseType,
		DeploymentType:    req.DeploymentType,
		DecisionInfluence: req.DecisionInfluence,
		OwnerUserID:       req.OwnerUserID,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO ai_systems (id, org_id, name, intended_purpose, hr_use_case_type, deployment_type, decision_influence, owner_user_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sys.ID, sys.OrgID, sys.Name, sys.IntendedPurpose, sys.HRUseCaseType, sys.DeploymentType, sys.DecisionInfluence, sys.OwnerUserID, sys.Version, sys.CreatedAt, sys.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, api.NewError(api.KindConflict, fmt.Sprintf("an AI system named %q already exists", req.Name))
		}
		return nil, fmt.Errorf("systems: insert: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionSystemCreate, "ai_system", sys.ID, sys); err != nil {
		return nil, fmt.Errorf("systems: audit: %w", err)
	}
	return sys, nil
}

// Get fetches one AISystem, scoped to orgID.
func (s *Service) Get(ctx context.Context, q database.Querier, orgID, id uuid.UUID) (*domain.AISystem, error) {
	var sys domain.AISystem
	err := q.QueryRowContext(ctx, `
		SELECT id, org_id, name, intended_purpose, hr_use_case_type, deployment_type, decision_influence, owner_user_id, version, created_at, updated_at
		FROM ai_systems WHERE id = $1 AND org_id = $2
	`, id, orgID).Scan(
		&sys.ID, &sys.OrgID, &sys.Name, &sys.IntendedPurpose, &sys.HRUseCaseType, &sys.DeploymentType, &sys.DecisionInfluence,
		&sys.OwnerUserID, &sys.Version, &sys.CreatedAt, &sys.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, api.NewError(api.KindNotFound, "AI system not found")
		}
		return nil, fmt.Errorf("systems: get: %w", err)
	}
	return &sys, nil
}

// UpdateRequest carries the optimistic-concurrency token plus the mutable
// fields. A nil field is left unchanged.
type UpdateRequest struct {
	ExpectedVersion   int
	Name              *string
	IntendedPurpose   *string
	HRUseCaseType     *string
	DeploymentType    *string
	DecisionInfluence *string
	OwnerUserID       *uuid.UUID
}

// Update applies a partial update guarded by ExpectedVersion; a mismatch (or
// a concurrent update that already bumped the row) returns a Conflict
// (spec §8 scenario S8).
func (s *Service) Update(ctx context.Context, tx *sql.Tx, orgID, id uuid.UUID, req UpdateRequest) (*domain.AISystem, error) {
	current, err := s.Get(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if req.Name != nil {
		next.Name = *req.Name
	}
	if req.IntendedPurpose != nil {
		next.IntendedPurpose = *req.IntendedPurpose
	}
	if req.HRUseCaseType != nil {
		next.HRUseCaseType = *req.HRUseCaseType
	}
	if req.DeploymentType != nil {
		next.DeploymentType = *req.DeploymentType
	}
	if req.DecisionInfluence != nil {
		next.DecisionInfluence = *req.DecisionInfluence
	}
	if req.OwnerUserID != nil {
		next.OwnerUserID = req.OwnerUserID
	}
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now().UTC()

	res, err := tx.ExecContext(ctx, `
		UPDATE ai_systems
		SET name = $1, intended_purpose = $2, hr_use_case_type = $3, deployment_type = $4,
		    decision_influence = $5, owner_user_id = $6, version = $7, updated_at = $8
		WHERE id = $9 AND org_id = $10 AND version = $11
	`, next.Name, next.IntendedPurpose, next.HRUseCaseType, next.DeploymentType,
		next.DecisionInfluence, next.OwnerUserID, next.Version, next.UpdatedAt,
		id, orgID, req.ExpectedVersion)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, api.NewError(api.KindConflict, fmt.Sprintf("an AI system named %q already exists", next.Name))
		}
		return nil, fmt.Errorf("systems: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("systems: rows affected: %w", err)
	}
	if affected == 0 {
		return nil, api.NewError(api.KindConflict, "AI system was modified concurrently; reload and retry")
	}

	if err := s.audit.Record(ctx, tx, domain.ActionSystemUpdate, "ai_system", id, diff(current, &next)); err != nil {
		return nil, fmt.Errorf("systems: audit: %w", err)
	}
	return &next, nil
}

// Delete removes an AISystem and its dependents via cascade.
func (s *Service) Delete(ctx context.Context, tx *sql.Tx, orgID, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM ai_systems WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("systems: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("systems: rows affected: %w", err)
	}
	if affected == 0 {
		return api.NewError(api.KindNotFound, "AI system not found")
	}
	return s.audit.Record(ctx, tx, domain.ActionSystemDelete, "ai_system", id, nil)
}

func diff(before, after *domain.AISystem) map[string]any {
	return map[string]any{"before": before, "after": after}
}


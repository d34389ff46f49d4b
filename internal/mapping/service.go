// Package mapping implements EvidenceMapping CRUD: linking an EvidenceItem
// to a sub-target of a SystemVersion, with org-scoped validity checks on
// both endpoints (spec §4.2).
package mapping

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
)

// Service is the transaction-bound collaborator for EvidenceMapping
// mutations.
type Service struct {
	audit audit.Logger
}

// NewService creates a Service using the given audit logger.
func NewService(logger audit.Logger) *Service {
	return &Service{audit: logger}
}

// CreateRequest is the payload for creating an EvidenceMapping.
type CreateRequest struct {
	EvidenceID uuid.UUID
	VersionID  uuid.UUID
	TargetType domain.TargetType
	TargetKey  string
	Strength   domain.MappingStrength
	Notes      string
}

// Create links an evidence item to a version sub-target, after confirming
// both endpoints belong to orgID. A duplicate (evidence_id, version_id,
// target_type, target_key) is rejected as a Conflict.
func (s *Service) Create(ctx context.Context, tx *sql.Tx, orgID uuid.UUID, req CreateRequest) (*domain.EvidenceMapping, error) {
	if !req.TargetType.Valid() {
		return nil, api.NewError(api.KindValidationFailed, "unknown target_type")
	}
	if req.TargetKey == "" {
		return nil, api.NewError(api.KindValidationFailed, "target_key is required")
	}
	if !req.Strength.Valid() {
		return nil, api.NewError(api.KindValidationFailed, "unknown strength")
	}

	if err := s.ensureEvidenceInOrg(ctx, tx, orgID, req.EvidenceID); err != nil {
		return nil, err
	}
	if err := s.ensureVersionInOrg(ctx, tx, orgID, req.VersionID); err != nil {
		return nil, err
	}

	m := &domain.EvidenceMapping{
		ID:         uuid.New(),
		EvidenceID: req.EvidenceID,
		VersionID:  req.VersionID,
		TargetType: req.TargetType,
		TargetKey:  req.TargetKey,
		Strength:   req.Strength,
		Notes:      req.Notes,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO evidence_mappings (id, evidence_id, version_id, target_type, target_key, strength, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.EvidenceID, m.VersionID, m.TargetType, m.TargetKey, m.Strength, m.Notes, m.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, api.NewError(api.KindConflict, "this evidence is already mapped to that target")
		}
		return nil, fmt.Errorf("mapping: insert: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionMappingCreate, "evidence_mapping", m.ID, m); err != nil {
		return nil, fmt.Errorf("mapping: audit: %w", err)
	}
	return m, nil
}

func (s *Service) ensureEvidenceInOrg(ctx context.Context, tx *sql.Tx, orgID, evidenceID uuid.UUID) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM evidence_items WHERE id = $1 AND org_id = $2)`, evidenceID, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("mapping: check evidence: %w", err)
	}
	if !exists {
		return api.NewError(api.KindNotFound, "evidence item not found")
	}
	return nil
}

func (s *Service) ensureVersionInOrg(ctx context.Context, tx *sql.Tx, orgID, versionID uuid.UUID) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM system_versions v
			JOIN ai_systems a ON a.id = v.ai_system_id
			WHERE v.id = $1 AND a.org_id = $2
		)
	`, versionID, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("mapping: check version: %w", err)
	}
	if !exists {
		return api.NewError(api.KindNotFound, "system version not found")
	}
	return nil
}

// EvidenceMappingView is an EvidenceMapping joined with its EvidenceItem, as
// returned by List (spec §4.2 Mapping list).
type EvidenceMappingView struct {
	domain.EvidenceMapping
	Evidence *domain.EvidenceItem `json:"evidence"`
}

// ListFilter narrows a per-version mapping listing. TargetKey ending in "*"
// matches by prefix; otherwise it is an exact match.
type ListFilter struct {
	TargetType *domain.TargetType
	TargetKey  string
}

// List returns every mapping for versionID, joined with its evidence.
func (s *Service) List(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID, filter ListFilter) ([]*EvidenceMappingView, error) {
	conditions := []string{"m.version_id = $1", "e.org_id = $2"}
	args := []interface{}{versionID, orgID}

	if filter.TargetType != nil {
		args = append(args, *filter.TargetType)
		conditions = append(conditions, fmt.Sprintf("m.target_type = $%d", len(args)))
	}
	if filter.TargetKey != "" {
		if strings.HasSuffix(filter.TargetKey, "*") {
			args = append(args, strings.TrimSuffix(filter.TargetKey, "*")+"%")
			conditions = append(conditions, fmt.Sprintf("m.target_key LIKE $%d", len(args)))
		} else {
			args = append(args, filter.TargetKey)
			conditions = append(conditions, fmt.Sprintf("m.target_key = $%d", len(args)))
		}
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.evidence_id, m.version_id, m.target_type, m.target_key, m.strength, m.notes, m.created_at,
		       e.id, e.org_id, e.type, e.title, e.description, e.tags, e.classification, e.type_metadata, e.created_at, e.updated_at
		FROM evidence_mappings m
		JOIN evidence_items e ON e.id = m.evidence_id
		WHERE %s
		ORDER BY m.created_at ASC
	`, strings.Join(conditions, " AND "))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mapping: list: %w", err)
	}
	defer rows.Close()

	var views []*EvidenceMappingView
	for rows.Next() {
		var v EvidenceMappingView
		var ev domain.EvidenceItem
		var tags pq.StringArray
		if err := rows.Scan(
			&v.ID, &v.EvidenceID, &v.VersionID, &v.TargetType, &v.TargetKey, &v.Strength, &v.Notes, &v.CreatedAt,
			&ev.ID, &ev.OrgID, &ev.Type, &ev.Title, &ev.Description, &tags, &ev.Classification, &ev.TypeMetadata, &ev.CreatedAt, &ev.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("mapping: scan: %w", err)
		}
		ev.Tags = []string(tags)
		v.Evidence = &ev
		views = append(views, &v)
	}
	return views, rows.Err()
}

// Delete removes one EvidenceMapping, scoped to orgID via its evidence.
func (s *Service) Delete(ctx context.Context, tx *sql.Tx, orgID, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM evidence_mappings m
		USING evidence_items e
		WHERE m.evidence_id = e.id AND m.id = $1 AND e.org_id = $2
	`, id, orgID)
	if err != nil {
		return fmt.Errorf("mapping: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mapping: rows affected: %w", err)
	}
	if affected == 0 {
		return api.NewError(api.KindNotFound, "evidence mapping not found")
	}
	return s.audit.Record(ctx, tx, domain.ActionMappingDelete, "evidence_mapping", id, nil)
}

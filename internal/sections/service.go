// Package sections implements the AnnexSection store: lazy initialization
// of a version's twelve fixed sections, immutability-aware updates, and
// completeness recomputation on write (spec §4.4).
package sections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/pkg/scoring"
)

// ImmutabilityChecker reports whether a version is locked against edits
// (spec §4.1). Satisfied by *versions.Service.
type ImmutabilityChecker interface {
	IsImmutable(ctx context.Context, q database.Querier, versionID uuid.UUID) (bool, error)
}

// Service is the transaction-bound collaborator for AnnexSection reads and
// mutations.
type Service struct {
	audit      audit.Logger
	immutable  ImmutabilityChecker
}

// NewService creates a Service using the given audit logger and
// immutability checker.
func NewService(logger audit.Logger, immutable ImmutabilityChecker) *Service {
	return &Service{audit: logger, immutable: immutable}
}

// EnsureInitialized lazily inserts all twelve sections for versionID with
// empty content, empty evidence_refs, and score 0, if they don't already
// exist (spec §4.4: "First read lazily initializes all twelve").
func (s *Service) EnsureInitialized(ctx context.Context, tx *sql.Tx, versionID uuid.UUID) error {
	now := time.Now().UTC()
	for _, key := range domain.AllSectionKeys {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO annex_sections (id, version_id, section_key, content, evidence_refs, completeness_score, llm_assisted, updated_at)
			VALUES ($1, $2, $3, '{}', '{}', 0, FALSE, $4)
			ON CONFLICT (version_id, section_key) DO NOTHING
		`, uuid.New(), versionID, key, now)
		if err != nil {
			return fmt.Errorf("sections: ensure initialized: %w", err)
		}
	}
	return nil
}

// List returns all twelve sections for versionID, initializing them first
// if this is the first read. versionID must belong to orgID.
func (s *Service) List(ctx context.Context, tx *sql.Tx, orgID, versionID uuid.UUID) ([]*domain.AnnexSection, error) {
	if err := s.ensureVersionInOrg(ctx, tx, orgID, versionID); err != nil {
		return nil, err
	}
	if err := s.EnsureInitialized(ctx, tx, versionID); err != nil {
		return nil, err
	}
	return s.list(ctx, tx, versionID)
}

// ensureVersionInOrg confirms versionID's owning AISystem belongs to orgID,
// mirroring internal/mapping.Service's ensureVersionInOrg (spec §3's
// invariant that no cross-org reference is ever traversed).
func (s *Service) ensureVersionInOrg(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID) error {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM system_versions v
			JOIN ai_systems a ON a.id = v.ai_system_id
			WHERE v.id = $1 AND a.org_id = $2
		)
	`, versionID, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sections: check version: %w", err)
	}
	if !exists {
		return api.NewError(api.KindNotFound, "system version not found")
	}
	return nil
}

func (s *Service) list(ctx context.Context, q database.Querier, versionID uuid.UUID) ([]*domain.AnnexSection, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, version_id, section_key, content, evidence_refs, completeness_score, llm_assisted, last_edited_by, updated_at
		FROM annex_sections WHERE version_id = $1
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("sections: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.AnnexSection
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSection(row rowScanner) (*domain.AnnexSection, error) {
	var sec domain.AnnexSection
	var content []byte
	var refs pq.StringArray
	if err := row.Scan(&sec.ID, &sec.VersionID, &sec.SectionKey, &content, &refs, &sec.CompletenessScore, &sec.LLMAssisted, &sec.LastEditedBy, &sec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("sections: scan: %w", err)
	}
	if err := json.Unmarshal(content, &sec.Content); err != nil {
		return nil, fmt.Errorf("sections: decode content: %w", err)
	}
	sec.EvidenceRefs = make([]uuid.UUID, 0, len(refs))
	for _, r := range refs {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("sections: decode evidence ref: %w", err)
		}
		sec.EvidenceRefs = append(sec.EvidenceRefs, id)
	}
	return &sec, nil
}

// Get fetches one section, initializing the set first if needed. versionID
// must belong to orgID.
func (s *Service) Get(ctx context.Context, tx *sql.Tx, orgID, versionID uuid.UUID, key domain.AnnexSectionKey) (*domain.AnnexSection, error) {
	if err := s.ensureVersionInOrg(ctx, tx, orgID, versionID); err != nil {
		return nil, err
	}
	if err := s.EnsureInitialized(ctx, tx, versionID); err != nil {
		return nil, err
	}
	row := tx.QueryRowContext(ctx, `
		SELECT id, version_id, section_key, content, evidence_refs, completeness_score, llm_assisted, last_edited_by, updated_at
		FROM annex_sections WHERE version_id = $1 AND section_key = $2
	`, versionID, key)
	sec, err := scanSection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.NewError(api.KindNotFound, "section not found")
		}
		return nil, err
	}
	return sec, nil
}

// UpdateRequest carries the two mutable fields of a section. A nil field is
// left unchanged.
type UpdateRequest struct {
	Content      map[string]interface{}
	EvidenceRefs *[]uuid.UUID
	EditedBy     uuid.UUID
}

// Update applies content/evidence_refs changes, recomputes
// completeness_score, and records the audit diff. Rejected with a Conflict
// if the version is immutable (spec §4.4). versionID must belong to orgID.
func (s *Service) Update(ctx context.Context, tx *sql.Tx, orgID, versionID uuid.UUID, key domain.AnnexSectionKey, req UpdateRequest) (*domain.AnnexSection, error) {
	if err := s.ensureVersionInOrg(ctx, tx, orgID, versionID); err != nil {
		return nil, err
	}
	immutable, err := s.immutable.IsImmutable(ctx, tx, versionID)
	if err != nil {
		return nil, err
	}
	if immutable {
		return nil, api.NewError(api.KindConflict, "version is immutable: an export already exists for it")
	}

	current, err := s.Get(ctx, tx, orgID, versionID, key)
	if err != nil {
		return nil, err
	}

	before := *current
	next := *current
	if req.Content != nil {
		next.Content = req.Content
	}
	if req.EvidenceRefs != nil {
		next.EvidenceRefs = *req.EvidenceRefs
	}
	next.CompletenessScore = scoring.SectionScore(key, next.Content, len(next.EvidenceRefs))
	next.LastEditedBy = &req.EditedBy
	next.UpdatedAt = time.Now().UTC()

	contentJSON, err := json.Marshal(next.Content)
	if err != nil {
		return nil, fmt.Errorf("sections: encode content: %w", err)
	}
	refStrings := make([]string, len(next.EvidenceRefs))
	for i, id := range next.EvidenceRefs {
		refStrings[i] = id.String()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE annex_sections
		SET content = $1, evidence_refs = $2, completeness_score = $3, last_edited_by = $4, updated_at = $5
		WHERE version_id = $6 AND section_key = $7
	`, contentJSON, pq.Array(refStrings), next.CompletenessScore, next.LastEditedBy, next.UpdatedAt, versionID, key)
	if err != nil {
		return nil, fmt.Errorf("sections: update: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionSectionUpdate, "annex_section", next.ID, map[string]any{
		"before": map[string]any{"content": before.Content, "evidence_refs": before.EvidenceRefs},
		"after":  map[string]any{"content": next.Content, "evidence_refs": next.EvidenceRefs},
	}); err != nil {
		return nil, fmt.Errorf("sections: audit: %w", err)
	}
	return &next, nil
}

// OverallScore computes the weighted version score from the current set of
// sections (spec §4.4 "Version overall score").
func OverallScore(sections []*domain.AnnexSection) float64 {
	scores := make(map[domain.AnnexSectionKey]float64, len(sections))
	for _, sec := range sections {
		scores[sec.SectionKey] = sec.CompletenessScore
	}
	return scoring.VersionScore(scores)
}

// Package versions implements the SystemVersion lifecycle state machine,
// immutability enforcement, cloning, and diff computation (spec §4.1,
// scenarios S1/S7/S8).
package versions

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/rbac"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,50}$`)

// Service is the transaction-bound collaborator for SystemVersion mutations.
type Service struct {
	audit audit.Logger
}

// NewService creates a Service using the given audit logger.
func NewService(logger audit.Logger) *Service {
	return &Service{audit: logger}
}

// CreateRequest is the payload for creating a SystemVersion under an
// existing AISystem.
type CreateRequest struct {
	Label string
}

// Create inserts a new draft SystemVersion, rejecting a duplicate label
// within the AI system with a Conflict.
func (s *Service) Create(ctx context.Context, tx *sql.Tx, aiSystemID uuid.UUID, req CreateRequest) (*domain.SystemVersion, error) {
	if !labelPattern.MatchString(req.Label) {
		return nil, api.NewError(api.KindValidationFailed, "label must match [A-Za-z0-9._-]{1,50}")
	}

	now := time.Now().UTC()
	v := &domain.SystemVersion{
		ID:         uuid.New(),
		AISystemID: aiSystemID,
		Label:      req.Label,
		Status:     domain.VersionDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO system_versions (id, ai_system_id, label, status, notes, release_date, approved_by, approved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', NULL, NULL, NULL, $5, $6)
	`, v.ID, v.AISystemID, v.Label, v.Status, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, api.NewError(api.KindConflict, fmt.Sprintf("a version labeled %q already exists for this system", req.Label))
		}
		return nil, fmt.Errorf("versions: insert: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionVersionCreate, "system_version", v.ID, v); err != nil {
		return nil, fmt.Errorf("versions: audit: %w", err)
	}
	return v, nil
}

// Get fetches one SystemVersion scoped to both aiSystemID and orgID, so a
// caller can never reach a version by guessing its UUID across org
// boundaries (spec §3).
func (s *Service) Get(ctx context.Context, q database.Querier, orgID, aiSystemID, id uuid.UUID) (*domain.SystemVersion, error) {
	var v domain.SystemVersion
	err := q.QueryRowContext(ctx, `
		SELECT v.id, v.ai_system_id, v.label, v.status, v.notes, v.release_date, v.approved_by, v.approved_at, v.created_at, v.updated_at
		FROM system_versions v
		JOIN ai_systems a ON a.id = v.ai_system_id
		WHERE v.id = $1 AND v.ai_system_id = $2 AND a.org_id = $3
	`, id, aiSystemID, orgID).Scan(
		&v.ID, &v.AISystemID, &v.Label, &v.Status, &v.Notes, &v.ReleaseDate, &v.ApprovedBy, &v.ApprovedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, api.NewError(api.KindNotFound, "system version not found")
		}
		return nil, fmt.Errorf("versions: get: %w", err)
	}
	return &v, nil
}

// IsImmutable reports whether v is approved and has at least one Export,
// which together lock the version (and its sections) against further edits
// (spec §4.1, §4.3).
func (s *Service) IsImmutable(ctx context.Context, q database.Querier, versionID uuid.UUID) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT count(*) FROM exports e
		JOIN system_versions v ON v.id = e.version_id
		WHERE e.version_id = $1 AND v.status = 'approved'
	`, versionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("versions: count exports: %w", err)
	}
	return count > 0, nil
}

// UpdateRequest carries the two mutable fields; a nil field is left
// unchanged. ReleaseDate uses a double pointer so callers can distinguish
// "leave unchanged" from "clear the date".
type UpdateRequest struct {
	Notes       *string
	ReleaseDate **time.Time
}

// Update applies Notes/ReleaseDate changes. Rejected with a Conflict if the
// version is immutable (spec §4.1).
func (s *Service) Update(ctx context.Context, tx *sql.Tx, orgID, aiSystemID, id uuid.UUID, req UpdateRequest) (*domain.SystemVersion, error) {
	current, err := s.Get(ctx, tx, orgID, aiSystemID, id)
	if err != nil {
		return nil, err
	}
	immutable, err := s.IsImmutable(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if immutable {
		return nil, api.NewError(api.KindConflict, "version is immutable: an export already exists for it")
	}

	next := *current
	if req.Notes != nil {
		next.Notes = *req.Notes
	}
	if req.ReleaseDate != nil {
		next.ReleaseDate = *req.ReleaseDate
	}
	next.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE system_versions SET notes = $1, release_date = $2, updated_at = $3
		WHERE id = $4 AND ai_system_id = $5
	`, next.Notes, next.ReleaseDate, next.UpdatedAt, id, aiSystemID)
	if err != nil {
		return nil, fmt.Errorf("versions: update: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionVersionUpdate, "system_version", id, Diff(current, &next)); err != nil {
		return nil, fmt.Errorf("versions: audit: %w", err)
	}
	return &next, nil
}

// Transition moves v from its current status to newStatus per the role-gate
// table in internal/rbac. Approving (-> approved) stamps approved_by and
// approved_at atomically with the status write.
func (s *Service) Transition(ctx context.Context, tx *sql.Tx, orgID, aiSystemID, id uuid.UUID, role domain.Role, approvedBy uuid.UUID, newStatus domain.VersionStatus) (*domain.SystemVersion, error) {
	current, err := s.Get(ctx, tx, orgID, aiSystemID, id)
	if err != nil {
		return nil, err
	}
	if err := rbac.CheckTransition(role, current.Status, newStatus); err != nil {
		return nil, err
	}

	next := *current
	next.Status = newStatus
	next.UpdatedAt = time.Now().UTC()

	if newStatus == domain.VersionApproved {
		approvedAt := time.Now().UTC()
		next.ApprovedBy = &approvedBy
		next.ApprovedAt = &approvedAt
		_, err = tx.ExecContext(ctx, `
			UPDATE system_versions SET status = $1, approved_by = $2, approved_at = $3, updated_at = $4
			WHERE id = $5 AND ai_system_id = $6
		`, next.Status, next.ApprovedBy, next.ApprovedAt, next.UpdatedAt, id, aiSystemID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE system_versions SET status = $1, updated_at = $2
			WHERE id = $3 AND ai_system_id = $4
		`, next.Status, next.UpdatedAt, id, aiSystemID)
	}
	if err != nil {
		return nil, fmt.Errorf("versions: transition: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionVersionStatusChange, "system_version", id, Diff(current, &next)); err != nil {
		return nil, fmt.Errorf("versions: audit: %w", err)
	}
	return &next, nil
}

// CloneRequest is the payload for cloning a SystemVersion into a new draft.
type CloneRequest struct {
	NewLabel string
}

// Clone creates a new draft version under the same AI system, carrying
// forward only notes. Sections and evidence mappings are not copied (spec
// §4.1: out of scope for this core).
func (s *Service) Clone(ctx context.Context, tx *sql.Tx, orgID, aiSystemID, sourceID uuid.UUID, req CloneRequest) (*domain.SystemVersion, error) {
	source, err := s.Get(ctx, tx, orgID, aiSystemID, sourceID)
	if err != nil {
		return nil, err
	}

	created, err := s.Create(ctx, tx, aiSystemID, CreateRequest{Label: req.NewLabel})
	if err != nil {
		return nil, err
	}
	created.Notes = source.Notes
	_, err = tx.ExecContext(ctx, `UPDATE system_versions SET notes = $1 WHERE id = $2`, created.Notes, created.ID)
	if err != nil {
		return nil, fmt.Errorf("versions: clone notes: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionVersionClone, "system_version", created.ID, map[string]any{"cloned_from": sourceID}); err != nil {
		return nil, fmt.Errorf("versions: audit: %w", err)
	}
	return created, nil
}

// Delete removes a SystemVersion and its dependents via cascade. Admin-only
// at the handler layer; rejected here if the version is immutable.
func (s *Service) Delete(ctx context.Context, tx *sql.Tx, orgID, aiSystemID, id uuid.UUID) error {
	if _, err := s.Get(ctx, tx, orgID, aiSystemID, id); err != nil {
		return err
	}
	immutable, err := s.IsImmutable(ctx, tx, id)
	if err != nil {
		return err
	}
	if immutable {
		return api.NewError(api.KindConflict, "version is immutable: an export already exists for it")
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM system_versions WHERE id = $1 AND ai_system_id = $2`, id, aiSystemID)
	if err != nil {
		return fmt.Errorf("versions: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("versions: rows affected: %w", err)
	}
	if affected == 0 {
		return api.NewError(api.KindNotFound, "system version not found")
	}
	return s.audit.Record(ctx, tx, domain.ActionVersionDelete, "system_version", id, nil)
}

// FieldChange is one entry of a Diff result.
type FieldChange struct {
	Field    string  `json:"field"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

// DiffResult is the ordered diff plus its added/removed/modified summary
// counts (spec §4.1).
type DiffResult struct {
	Changes  []FieldChange `json:"changes"`
	Added    int           `json:"added"`
	Removed  int           `json:"removed"`
	Modified int           `json:"modified"`
}

// Diff compares two SystemVersions over the fixed comparable set
// {label, status, notes, release_date}. Returns a map for audit payloads;
// see ComputeDiff for the structured handler-facing result.
func Diff(before, after *domain.SystemVersion) map[string]any {
	return map[string]any{"before": before, "after": after}
}

// ComputeDiff produces the ordered per-field diff between two versions of
// the same AI system (spec §4.1's Diff computation).
func ComputeDiff(a, b *domain.SystemVersion) (*DiffResult, error) {
	if a.AISystemID != b.AISystemID {
		return nil, api.NewError(api.KindBadRequest, "cannot diff versions belonging to different AI systems")
	}

	fields := []struct {
		name string
		old  *string
		new  *string
	}{
		{"label", strPtr(a.Label), strPtr(b.Label)},
		{"status", strPtr(string(a.Status)), strPtr(string(b.Status))},
		{"notes", nilIfEmpty(a.Notes), nilIfEmpty(b.Notes)},
		{"release_date", dateStr(a.ReleaseDate), dateStr(b.ReleaseDate)},
	}

	result := &DiffResult{}
	for _, f := range fields {
		if equalStrPtr(f.old, f.new) {
			continue
		}
		result.Changes = append(result.Changes, FieldChange{Field: f.name, OldValue: f.old, NewValue: f.new})
		switch {
		case f.old == nil && f.new != nil:
			result.Added++
		case f.old != nil && f.new == nil:
			result.Removed++
		default:
			result.Modified++
		}
	}
	return result, nil
}

func strPtr(s string) *string { return &s }

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dateStr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func equalStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
)

// Store is the storage collaborator evidence deletion uses to best-effort
// remove the backing object of an upload (spec §4.2 Delete).
type Store interface {
	Delete(ctx context.Context, key string) error
}

// Service is the transaction-bound collaborator for EvidenceItem and
// EvidenceMapping mutations.
type Service struct {
	audit audit.Logger
	store Store
}

// NewService creates a Service. store may be nil if uploads are never used
// (e.g. in tests exercising non-upload evidence types only).
func NewService(logger audit.Logger, store Store) *Service {
	return &Service{audit: logger, store: store}
}

// CreateRequest is the payload for creating an EvidenceItem.
type CreateRequest struct {
	Type           domain.EvidenceType
	Title          string
	Description    string
	Tags           []string
	Classification domain.Classification
	TypeMetadata   json.RawMessage
}

// Create validates and inserts a new EvidenceItem. For upload evidence, a
// checksum match against another item in the org sets DuplicateOf on the
// returned item without blocking creation (spec §4.2 Duplicate detection).
func (s *Service) Create(ctx context.Context, tx *sql.Tx, orgID uuid.UUID, req CreateRequest) (*domain.EvidenceItem, error) {
	if !req.Type.Valid() {
		return nil, api.NewError(api.KindValidationFailed, "unknown evidence type")
	}
	if !req.Classification.Valid() {
		return nil, api.NewError(api.KindValidationFailed, "unknown classification")
	}
	if req.Title == "" {
		return nil, api.NewError(api.KindValidationFailed, "title is required")
	}
	if err := ValidateTags(req.Tags); err != nil {
		return nil, api.WrapError(api.KindValidationFailed, err.Error(), err)
	}

	normalized, err := Validate(req.Type, orgID, req.TypeMetadata)
	if err != nil {
		return nil, api.WrapError(api.KindValidationFailed, err.Error(), err)
	}

	now := time.Now().UTC()
	item := &domain.EvidenceItem{
		ID:             uuid.New(),
		OrgID:          orgID,
		Type:           req.Type,
		Title:          req.Title,
		Description:    req.Description,
		Tags:           req.Tags,
		Classification: req.Classification,
		TypeMetadata:   normalized,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if req.Type == domain.EvidenceUpload {
		if dup, err := s.findDuplicateByChecksum(ctx, tx, orgID, normalized); err != nil {
			return nil, err
		} else if dup != uuid.Nil {
			item.DuplicateOf = &dup
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evidence_items (id, org_id, type, title, description, tags, classification, type_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, item.ID, item.OrgID, item.Type, item.Title, item.Description, pq.Array(item.Tags), item.Classification, item.TypeMetadata, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("evidence: insert: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionEvidenceCreate, "evidence_item", item.ID, item); err != nil {
		return nil, fmt.Errorf("evidence: audit: %w", err)
	}
	return item, nil
}

func (s *Service) findDuplicateByChecksum(ctx context.Context, tx *sql.Tx, orgID uuid.UUID, metadata json.RawMessage) (uuid.UUID, error) {
	var m UploadMetadata
	if err := json.Unmarshal(metadata, &m); err != nil {
		return uuid.Nil, fmt.Errorf("evidence: decode upload metadata: %w", err)
	}

	var existing uuid.UUID
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM evidence_items
		WHERE org_id = $1 AND type = 'upload' AND type_metadata->>'checksum_sha256' = $2
		ORDER BY created_at ASC LIMIT 1
	`, orgID, m.ChecksumSHA256).Scan(&existing)
	if err != nil {
		if err == sql.ErrNoRows {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("evidence: duplicate lookup: %w", err)
	}
	return existing, nil
}

// Get fetches one EvidenceItem scoped to orgID, with usage_count populated.
func (s *Service) Get(ctx context.Context, q database.Querier, orgID, id uuid.UUID) (*domain.EvidenceItem, error) {
	var item domain.EvidenceItem
	var tags pq.StringArray
	err := q.QueryRowContext(ctx, `
		SELECT e.id, e.org_id, e.type, e.title, e.description, e.tags, e.classification, e.type_metadata, e.created_at, e.updated_at,
		       (SELECT count(*) FROM evidence_mappings m WHERE m.evidence_id = e.id)
		FROM evidence_items e WHERE e.id = $1 AND e.org_id = $2
	`, id, orgID).Scan(
		&item.ID, &item.OrgID, &item.Type, &item.Title, &item.Description, &tags, &item.Classification, &item.TypeMetadata,
		&item.CreatedAt, &item.UpdatedAt, &item.UsageCount,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, api.NewError(api.KindNotFound, "evidence item not found")
		}
		return nil, fmt.Errorf("evidence: get: %w", err)
	}
	item.Tags = []string(tags)
	return &item, nil
}

// UpdateRequest carries the mutable fields of an EvidenceItem. A nil field
// leaves that column unchanged; type and (for uploads) the immutable
// metadata keys can never be changed (spec §4.2 Update).
type UpdateRequest struct {
	Title          *string
	Description    *string
	Tags           *[]string
	Classification *domain.Classification
	TypeMetadata   json.RawMessage
}

// Update applies a partial update, revalidating TypeMetadata (if supplied)
// under the item's existing type and rejecting any attempt to change the
// immutable upload fields.
func (s *Service) Update(ctx context.Context, tx *sql.Tx, orgID, id uuid.UUID, req UpdateRequest) (*domain.EvidenceItem, error) {
	current, err := s.Get(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if req.Title != nil {
		if *req.Title == "" {
			return nil, api.NewError(api.KindValidationFailed, "title cannot be nulled")
		}
		next.Title = *req.Title
	}
	if req.Description != nil {
		next.Description = *req.Description
	}
	if req.Tags != nil {
		if *req.Tags == nil {
			return nil, api.NewError(api.KindValidationFailed, "tags cannot be nulled")
		}
		if err := ValidateTags(*req.Tags); err != nil {
			return nil, api.WrapError(api.KindValidationFailed, err.Error(), err)
		}
		next.Tags = *req.Tags
	}
	if req.Classification != nil {
		if !req.Classification.Valid() || *req.Classification == "" {
			return nil, api.NewError(api.KindValidationFailed, "classification cannot be nulled or invalid")
		}
		next.Classification = *req.Classification
	}
	if req.TypeMetadata != nil {
		normalized, err := Validate(current.Type, orgID, req.TypeMetadata)
		if err != nil {
			return nil, api.WrapError(api.KindValidationFailed, err.Error(), err)
		}
		if current.Type == domain.EvidenceUpload {
			if err := ensureUploadImmutableFieldsUnchanged(current.TypeMetadata, normalized); err != nil {
				return nil, err
			}
		}
		next.TypeMetadata = normalized
	}
	next.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE evidence_items
		SET title = $1, description = $2, tags = $3, classification = $4, type_metadata = $5, updated_at = $6
		WHERE id = $7 AND org_id = $8
	`, next.Title, next.Description, pq.Array(next.Tags), next.Classification, next.TypeMetadata, next.UpdatedAt, id, orgID)
	if err != nil {
		return nil, fmt.Errorf("evidence: update: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionEvidenceUpdate, "evidence_item", id, map[string]any{"before": current, "after": &next}); err != nil {
		return nil, fmt.Errorf("evidence: audit: %w", err)
	}
	return &next, nil
}

func ensureUploadImmutableFieldsUnchanged(before, after json.RawMessage) error {
	var b, a UploadMetadata
	if err := json.Unmarshal(before, &b); err != nil {
		return fmt.Errorf("evidence: decode current upload metadata: %w", err)
	}
	if err := json.Unmarshal(after, &a); err != nil {
		return fmt.Errorf("evidence: decode incoming upload metadata: %w", err)
	}
	if b.StorageURI != a.StorageURI || b.ChecksumSHA256 != a.ChecksumSHA256 || b.FileSize != a.FileSize || b.MimeType != a.MimeType {
		return api.NewError(api.KindValidationFailed, "storage_uri, checksum_sha256, file_size, and mime_type are immutable for upload evidence")
	}
	return nil
}

// Delete removes an EvidenceItem. If it has mappings and force is false, a
// Conflict is returned naming the mapping count. If force is true, every
// mapping is deleted first with a mapping.delete audit event before the
// item itself is removed. For upload evidence, the backing object is
// best-effort deleted; failure is logged but never blocks the DB delete.
func (s *Service) Delete(ctx context.Context, tx *sql.Tx, orgID, id uuid.UUID, force bool) error {
	item, err := s.Get(ctx, tx, orgID, id)
	if err != nil {
		return err
	}

	if item.UsageCount > 0 {
		if !force {
			return api.NewError(api.KindConflict, fmt.Sprintf("evidence item is referenced by %d mapping(s); pass force=true to delete anyway", item.UsageCount))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM evidence_mappings WHERE evidence_id = $1`, id); err != nil {
			return fmt.Errorf("evidence: force delete mappings: %w", err)
		}
		if err := s.audit.Record(ctx, tx, domain.ActionMappingDelete, "evidence_mapping", id, map[string]any{"reason": "force_delete_evidence"}); err != nil {
			return fmt.Errorf("evidence: audit: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM evidence_items WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("evidence: delete: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("evidence: rows affected: %w", err)
	} else if affected == 0 {
		return api.NewError(api.KindNotFound, "evidence item not found")
	}

	if item.Type == domain.EvidenceUpload && s.store != nil {
		var m UploadMetadata
		if jerr := json.Unmarshal(item.TypeMetadata, &m); jerr == nil {
			if derr := s.store.Delete(ctx, m.StorageURI); derr != nil {
				slog.Warn("evidence: best-effort storage delete failed", "evidence_id", id, "storage_uri", m.StorageURI, "error", derr)
			}
		}
	}

	return s.audit.Record(ctx, tx, domain.ActionEvidenceDelete, "evidence_item", id, nil)
}

// ListFilter narrows a List query (spec §4.2 Listing).
type ListFilter struct {
	Query          string
	Type           *domain.EvidenceType
	Classification *domain.Classification
	Tags           []string
	Orphaned       *bool
	Limit          int
	Offset         int
}

// List runs a filtered, paginated evidence query ordered by created_at
// DESC, with usage_count populated per item.
func (s *Service) List(ctx context.Context, q database.Querier, orgID uuid.UUID, filter ListFilter) ([]*domain.EvidenceItem, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var conditions []string
	var args []interface{}
	args = append(args, orgID)
	conditions = append(conditions, "e.org_id = $1")

	if filter.Query != "" {
		args = append(args, filter.Query)
		conditions = append(conditions, fmt.Sprintf("to_tsvector('english', e.title || ' ' || e.description) @@ plainto_tsquery('english', $%d)", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		conditions = append(conditions, fmt.Sprintf("e.type = $%d", len(args)))
	}
	if filter.Classification != nil {
		args = append(args, *filter.Classification)
		conditions = append(conditions, fmt.Sprintf("e.classification = $%d", len(args)))
	}
	if len(filter.Tags) > 0 {
		args = append(args, pq.Array(filter.Tags))
		conditions = append(conditions, fmt.Sprintf("e.tags @> $%d", len(args)))
	}
	if filter.Orphaned != nil {
		if *filter.Orphaned {
			conditions = append(conditions, "NOT EXISTS (SELECT 1 FROM evidence_mappings m WHERE m.evidence_id = e.id)")
		} else {
			conditions = append(conditions, "EXISTS (SELECT 1 FROM evidence_mappings m WHERE m.evidence_id = e.id)")
		}
	}

	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT e.id, e.org_id, e.type, e.title, e.description, e.tags, e.classification, e.type_metadata, e.created_at, e.updated_at,
		       (SELECT count(*) FROM evidence_mappings m WHERE m.evidence_id = e.id)
		FROM evidence_items e
		WHERE %s
		ORDER BY e.created_at DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("evidence: list: %w", err)
	}
	defer rows.Close()

	var items []*domain.EvidenceItem
	for rows.Next() {
		var item domain.EvidenceItem
		var tags pq.StringArray
		if err := rows.Scan(&item.ID, &item.OrgID, &item.Type, &item.Title, &item.Description, &tags, &item.Classification,
			&item.TypeMetadata, &item.CreatedAt, &item.UpdatedAt, &item.UsageCount); err != nil {
			return nil, fmt.Errorf("evidence: scan: %w", err)
		}
		item.Tags = []string(tags)
		items = append(items, &item)
	}
	return items, rows.Err()
}

// Package export builds the deterministic export artifact for a
// SystemVersion: a canonical manifest, a content hash, and a byte-stable
// ZIP bundling the manifest, evidence index, completeness report, DOCX
// rendering, and optional diff report (spec §4.3). Inserting the Export
// row is what makes an approved version immutable (spec §4.1).
package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/mapping"
	"github.com/annexops/registry/internal/sections"
	"github.com/annexops/registry/internal/systems"
	"github.com/annexops/registry/internal/versions"
	"github.com/annexops/registry/pkg/canonicalize"
	"github.com/annexops/registry/pkg/evidence"
	"github.com/annexops/registry/pkg/scoring"
	"github.com/annexops/registry/pkg/storage"
)

// AssessmentReader is the narrow read used to populate a manifest's
// high_risk_assessment field. Satisfied by *internal/assessment.Service;
// kept as an interface here so export doesn't need to import assessment's
// mutation surface.
type AssessmentReader interface {
	Latest(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID) (*domain.HighRiskAssessment, error)
}

// Service orchestrates the read side of every other service package into
// one export artifact.
type Service struct {
	audit      audit.Logger
	store      storage.Store
	systems    *systems.Service
	versions   *versions.Service
	sections   *sections.Service
	mapping    *mapping.Service
	evidence   *evidence.Service
	assessment AssessmentReader
}

// NewService wires an export Service from its sibling service
// collaborators and the object store used for artifact upload/download.
func NewService(
	logger audit.Logger,
	store storage.Store,
	systemsSvc *systems.Service,
	versionsSvc *versions.Service,
	sectionsSvc *sections.Service,
	mappingSvc *mapping.Service,
	evidenceSvc *evidence.Service,
	assessmentReader AssessmentReader,
) *Service {
	return &Service{
		audit: logger, store: store,
		systems: systemsSvc, versions: versionsSvc, sections: sectionsSvc,
		mapping: mappingSvc, evidence: evidenceSvc, assessment: assessmentReader,
	}
}

// CreateRequest carries the optional compare target for a diff export.
type CreateRequest struct {
	CompareVersionID *uuid.UUID
	IncludeDiff      bool
}

// Create snapshots aiSystemID/versionID into a full export artifact,
// uploads it, and inserts the Export row. For an approved version, the
// insert is the statement that makes it immutable (spec §4.1, §4.3).
func (s *Service) Create(ctx context.Context, tx *sql.Tx, orgID, aiSystemID, versionID uuid.UUID, req CreateRequest) (*domain.Export, error) {
	system, err := s.systems.Get(ctx, tx, orgID, aiSystemID)
	if err != nil {
		return nil, err
	}
	version, err := s.versions.Get(ctx, tx, orgID, aiSystemID, versionID)
	if err != nil {
		return nil, err
	}

	var orgName string
	if err := tx.QueryRowContext(ctx, `SELECT name FROM organizations WHERE id = $1`, orgID).Scan(&orgName); err != nil {
		return nil, fmt.Errorf("export: load org: %w", err)
	}

	secs, err := s.sections.List(ctx, tx, orgID, versionID)
	if err != nil {
		return nil, err
	}
	mappings, err := s.mapping.List(ctx, tx, orgID, versionID, mapping.ListFilter{})
	if err != nil {
		return nil, err
	}

	evidenceIDs := collectEvidenceIDs(secs, mappings)
	evidenceByID := make(map[uuid.UUID]*domain.EvidenceItem, len(evidenceIDs))
	for _, id := range evidenceIDs {
		ev, err := s.evidence.Get(ctx, tx, orgID, id)
		if err != nil {
			return nil, err
		}
		evidenceByID[id] = ev
	}

	var assessment *domain.HighRiskAssessment
	if s.assessment != nil {
		if assessment, err = s.assessment.Latest(ctx, tx, orgID, versionID); err != nil {
			return nil, err
		}
	}

	mappingEntities := make([]*domain.EvidenceMapping, len(mappings))
	for i, m := range mappings {
		em := m.EvidenceMapping
		mappingEntities[i] = &em
	}

	generatedAt := time.Now().UTC()
	manifest, err := buildManifest(manifestInput{
		OrgID: orgID, OrgName: orgName, System: system, Version: version,
		Assessment: assessment, Sections: secs, Evidence: evidenceByID,
		Mappings: mappingEntities, GeneratedAt: generatedAt,
	})
	if err != nil {
		return nil, err
	}
	snapshotHash := manifest["snapshot_hash"].(string)

	sectionScores := make(map[domain.AnnexSectionKey]float64, len(secs))
	var gaps []scoring.Gap
	for _, sec := range secs {
		sectionScores[sec.SectionKey] = sec.CompletenessScore
		gaps = append(gaps, scoring.DetectGaps(sec.SectionKey, sec.Content, len(sec.EvidenceRefs))...)
	}
	completenessReport := map[string]interface{}{
		"version_score":  scoring.VersionScore(sectionScores),
		"section_scores": sectionScores,
		"gaps":           gaps,
	}

	files := map[string][]byte{}

	manifestJSON, err := canonicalize.JCS(manifest)
	if err != nil {
		return nil, fmt.Errorf("export: encode manifest: %w", err)
	}
	files["SystemManifest.json"] = manifestJSON

	evidenceIndexJSON, err := canonicalize.JCS(manifest["evidence_index"])
	if err != nil {
		return nil, fmt.Errorf("export: encode evidence index: %w", err)
	}
	files["EvidenceIndex.json"] = evidenceIndexJSON
	files["EvidenceIndex.csv"] = buildEvidenceIndexCSV(evidenceByID)

	completenessJSON, err := canonicalize.JCS(completenessReport)
	if err != nil {
		return nil, fmt.Errorf("export: encode completeness report: %w", err)
	}
	files["CompletenessReport.json"] = completenessJSON

	docx, err := buildAnnexDocx(system, version, secs, evidenceByID)
	if err != nil {
		return nil, err
	}
	files["AnnexIV.docx"] = docx

	if req.IncludeDiff && req.CompareVersionID != nil {
		compareSecs, err := s.sections.List(ctx, tx, orgID, *req.CompareVersionID)
		if err != nil {
			return nil, err
		}
		compareMappings, err := s.mapping.List(ctx, tx, orgID, *req.CompareVersionID, mapping.ListFilter{})
		if err != nil {
			return nil, err
		}
		report := buildDiffReport(versionID, *req.CompareVersionID, secs, compareSecs,
			evidenceIDs, collectEvidenceIDs(compareSecs, compareMappings))
		diffMap, err := canonicalDiffJSON(report)
		if err != nil {
			return nil, err
		}
		diffJSON, err := canonicalize.JCS(diffMap)
		if err != nil {
			return nil, fmt.Errorf("export: encode diff report: %w", err)
		}
		files["DiffReport.json"] = diffJSON
	}

	zipBytes, err := buildZIP(files)
	if err != nil {
		return nil, err
	}

	exportID := uuid.New()
	storageKey := fmt.Sprintf("exports/%s/%s/%s/%s.zip", orgID, aiSystemID, versionID, exportID)
	if _, err := s.store.Put(ctx, storageKey, bytes.NewReader(zipBytes), int64(len(zipBytes)), "application/zip"); err != nil {
		return nil, api.NewError(api.KindDependencyUnavailable, fmt.Sprintf("upload export artifact: %v", err))
	}

	record := &domain.Export{
		ID:                exportID,
		VersionID:         versionID,
		ExportType:        domain.ExportFull,
		SnapshotHash:      snapshotHash,
		StorageURI:        storageKey,
		FileSize:          int64(len(zipBytes)),
		CompareVersionID:  req.CompareVersionID,
		CompletenessScore: scoring.VersionScore(sectionScores),
		CreatedAt:         generatedAt,
	}
	if req.IncludeDiff && req.CompareVersionID != nil {
		record.ExportType = domain.ExportDiff
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO exports (id, version_id, export_type, snapshot_hash, storage_uri, file_size, compare_version_id, completeness_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, record.VersionID, record.ExportType, record.SnapshotHash, record.StorageURI,
		record.FileSize, record.CompareVersionID, record.CompletenessScore, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("export: insert: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionExportCreate, "export", record.ID, map[string]any{
		"snapshot_hash": record.SnapshotHash,
		"export_type":   record.ExportType,
	}); err != nil {
		return nil, fmt.Errorf("export: audit: %w", err)
	}
	return record, nil
}

// Download issues a time-limited presigned URL for an existing export
// artifact (spec §4.3 "Download"). ttl <= 0 defaults to one hour.
func (s *Service) Download(ctx context.Context, storageURI string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	url, err := s.store.PresignDownload(ctx, storageURI, ttl)
	if err != nil {
		return "", api.NewError(api.KindDependencyUnavailable, fmt.Sprintf("presign export download: %v", err))
	}
	return url, nil
}

func collectEvidenceIDs(secs []*domain.AnnexSection, mappings []*mapping.EvidenceMappingView) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, sec := range secs {
		for _, id := range sec.EvidenceRefs {
			add(id)
		}
	}
	for _, m := range mappings {
		add(m.EvidenceID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func buildEvidenceIndexCSV(evidenceByID map[uuid.UUID]*domain.EvidenceItem) []byte {
	ids := make([]uuid.UUID, 0, len(evidenceByID))
	for id := range evidenceByID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "title", "type", "classification"})
	for _, id := range ids {
		ev := evidenceByID[id]
		_ = w.Write([]string{id.String(), ev.Title, string(ev.Type), string(ev.Classification)})
	}
	w.Flush()
	return buf.Bytes()
}

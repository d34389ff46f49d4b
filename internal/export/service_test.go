package export

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/mapping"
	"github.com/annexops/registry/internal/sections"
	"github.com/annexops/registry/internal/systems"
	"github.com/annexops/registry/internal/versions"
	"github.com/annexops/registry/pkg/evidence"
)

func TestBuildManifest_DeterministicAcrossIdenticalInput(t *testing.T) {
	orgID, sysID, verID := uuid.New(), uuid.New(), uuid.New()
	system := &domain.AISystem{ID: sysID, Name: "Resume Screener"}
	version := &domain.SystemVersion{ID: verID, Label: "v1", Status: domain.VersionDraft}
	sec := &domain.AnnexSection{
		SectionKey:   domain.SectionGeneral,
		Content:      map[string]interface{}{"system_name": "Resume Screener"},
		EvidenceRefs: []uuid.UUID{},
	}

	in := manifestInput{
		OrgID: orgID, OrgName: "Acme Robotics", System: system, Version: version,
		Sections: []*domain.AnnexSection{sec}, Evidence: map[uuid.UUID]*domain.EvidenceItem{},
		GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	m1, err := buildManifest(in)
	require.NoError(t, err)

	in.GeneratedAt = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	m2, err := buildManifest(in)
	require.NoError(t, err)

	assert.Equal(t, m1["snapshot_hash"], m2["snapshot_hash"])
	assert.Len(t, m1["snapshot_hash"].(string), 64)
}

func TestBuildZIP_DeterministicEntryOrderAndTimestamp(t *testing.T) {
	files := map[string][]byte{
		"b.json": []byte(`{"b":1}`),
		"a.json": []byte(`{"a":1}`),
	}
	z1, err := buildZIP(files)
	require.NoError(t, err)
	z2, err := buildZIP(files)
	require.NoError(t, err)
	assert.Equal(t, z1, z2)
}

func TestBuildDiffReport_EvidenceSetDifference(t *testing.T) {
	currentVer, compareVer := uuid.New(), uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	report := buildDiffReport(currentVer, compareVer, nil, nil, []uuid.UUID{a, b}, []uuid.UUID{b, c})
	assert.Equal(t, []string{a.String()}, report.EvidenceAdded)
	assert.Equal(t, []string{c.String()}, report.EvidenceRemoved)
}

func TestBuildDiffReport_FlagsChangedSectionContent(t *testing.T) {
	verID := uuid.New()
	current := []*domain.AnnexSection{{SectionKey: domain.SectionGeneral, Content: map[string]interface{}{"system_name": "New"}}}
	compare := []*domain.AnnexSection{{SectionKey: domain.SectionGeneral, Content: map[string]interface{}{"system_name": "Old"}}}

	report := buildDiffReport(verID, uuid.New(), current, compare, nil, nil)
	require.Len(t, report.Sections, 1)
	assert.True(t, report.Sections[0].Changed)
}

func testExportCtx(orgID uuid.UUID) context.Context {
	return authn.WithPrincipal(context.Background(), &authn.BasePrincipal{
		UserID: uuid.New().String(), OrgID: orgID.String(), Role: domain.RoleAdmin,
	})
}

// TestService_Create_EndToEnd exercises the full read -> manifest ->
// package -> upload -> insert path against an empty version (no sections
// content beyond initialization, no mappings, no assessment).
func TestService_Create_EndToEnd(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, sysID, verID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()

	mock.ExpectQuery("FROM ai_systems").
		WithArgs(sysID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "name", "intended_purpose", "hr_use_case_type", "deployment_type", "decision_influence",
			"owner_user_id", "version", "created_at", "updated_at",
		}).AddRow(sysID, orgID, "Resume Screener", "screen", "hiring", "saas", "decisive", nil, 1, now, now))

	mock.ExpectQuery("FROM system_versions").
		WithArgs(verID, sysID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "ai_system_id", "label", "status", "notes", "release_date", "approved_by", "approved_at", "created_at", "updated_at",
		}).AddRow(verID, sysID, "v1", domain.VersionDraft, "", nil, nil, nil, now, now))

	mock.ExpectQuery("SELECT name FROM organizations").
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Acme Robotics"))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(verID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	for range domain.AllSectionKeys {
		mock.ExpectExec("INSERT INTO annex_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	cols := []string{"id", "version_id", "section_key", "content", "evidence_refs", "completeness_score", "llm_assisted", "last_edited_by", "updated_at"}
	rows := sqlmock.NewRows(cols)
	for _, key := range domain.AllSectionKeys {
		rows.AddRow(uuid.New(), verID, key, []byte("{}"), "{}", 0.0, false, nil, now)
	}
	mock.ExpectQuery("FROM annex_sections WHERE version_id").WillReturnRows(rows)

	mock.ExpectQuery("FROM evidence_mappings").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "evidence_id", "version_id", "target_type", "target_key", "strength", "notes", "created_at",
			"e_id", "org_id", "type", "title", "description", "tags", "classification", "type_metadata", "e_created_at", "e_updated_at",
		}))

	mock.ExpectExec("INSERT INTO exports").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger(), &noopStore{}, systems.NewService(audit.NewLogger()),
		versions.NewService(audit.NewLogger()),
		sections.NewService(audit.NewLogger(), versions.NewService(audit.NewLogger())),
		mapping.NewService(audit.NewLogger()), evidence.NewService(audit.NewLogger(), &noopStore{}), nil)

	rec, err := svc.Create(testExportCtx(orgID), tx, orgID, sysID, verID, CreateRequest{})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, domain.ExportFull, rec.ExportType)
	assert.Len(t, rec.SnapshotHash, 64)
	require.NoError(t, mock.ExpectationsWereMet())
}

type noopStore struct{}

func (n *noopStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	return "deadbeef", nil
}
func (n *noopStore) Open(ctx context.Context, key string) (io.ReadCloser, error) { return nil, nil }
func (n *noopStore) Exists(ctx context.Context, key string) (bool, error)        { return false, nil }
func (n *noopStore) Delete(ctx context.Context, key string) error               { return nil }
func (n *noopStore) PresignUpload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://example.test/upload", nil
}
func (n *noopStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://example.test/download", nil
}

package llmdraft

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
	"github.com/annexops/registry/internal/sections"
	"github.com/annexops/registry/pkg/evidence"
	"github.com/annexops/registry/pkg/llm"
)

func testCtx(orgID uuid.UUID) context.Context {
	p := &authn.BasePrincipal{UserID: uuid.New().String(), OrgID: orgID.String(), Role: domain.RoleEditor}
	return authn.WithPrincipal(context.Background(), p)
}

type fakeChatClient struct {
	resp *llm.Response
	err  error
}

func (f *fakeChatClient) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, options *llm.SamplingOptions) (*llm.Response, error) {
	return f.resp, f.err
}

type noopStore struct{}

func (n *noopStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	return "deadbeef", nil
}
func (n *noopStore) Open(ctx context.Context, key string) (io.ReadCloser, error) { return nil, nil }
func (n *noopStore) Exists(ctx context.Context, key string) (bool, error)        { return false, nil }
func (n *noopStore) Delete(ctx context.Context, key string) error                { return nil }
func (n *noopStore) PresignUpload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://example.test/upload", nil
}
func (n *noopStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://example.test/download", nil
}

func expectSectionGet(mock sqlmock.Sqlmock, orgID, versionID uuid.UUID, key domain.AnnexSectionKey) {
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	for range domain.AllSectionKeys {
		mock.ExpectExec("INSERT INTO annex_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectQuery("FROM annex_sections WHERE version_id = \\$1 AND section_key = \\$2").
		WithArgs(versionID, key).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "version_id", "section_key", "content", "evidence_refs", "completeness_score", "llm_assisted", "last_edited_by", "updated_at",
		}).AddRow(uuid.New(), versionID, key, []byte("{}"), "{}", 0.0, false, nil, time.Now()))
}

func TestGenerate_StrictModeNoEvidenceNeverCallsLLM(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	versionID, orgID, userID := uuid.New(), uuid.New(), uuid.New()
	mock.ExpectBegin()
	expectSectionGet(mock, orgID, versionID, domain.SectionGeneral)
	mock.ExpectExec("INSERT INTO llm_interactions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	client := &fakeChatClient{err: assert.AnError}
	svc := NewService(audit.NewLogger(),
		sections.NewService(audit.NewLogger(), nil),
		evidence.NewService(audit.NewLogger(), &noopStore{}),
		client)

	result, err := svc.Generate(testCtx(orgID), tx, orgID, versionID, userID, GenerateRequest{SectionKey: domain.SectionGeneral})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.True(t, result.StrictMode)
	assert.Equal(t, NeedsEvidencePlaceholder, result.DraftText)
	assert.Contains(t, result.Warnings, "strict_mode_activated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_CitesOnlySelectedEvidence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	versionID, orgID, userID := uuid.New(), uuid.New(), uuid.New()
	evidenceID, strayID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectSectionGet(mock, orgID, versionID, domain.SectionGeneral)
	mock.ExpectQuery("FROM evidence_items").
		WithArgs(evidenceID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "type", "title", "description", "tags", "classification", "type_metadata", "created_at", "updated_at", "count",
		}).AddRow(evidenceID, orgID, domain.EvidenceNote, "Policy note", "", "{}", domain.ClassificationInternal, []byte(`{"content":"we use a human reviewer"}`), time.Now(), time.Now(), 0))
	mock.ExpectExec("INSERT INTO llm_interactions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	client := &fakeChatClient{resp: &llm.Response{
		Content:      "A human reviewer confirms every decision [Evidence: " + evidenceID.String() + "] and also [Evidence: " + strayID.String() + "].",
		InputTokens:  42,
		OutputTokens: 17,
	}}
	svc := NewService(audit.NewLogger(),
		sections.NewService(audit.NewLogger(), nil),
		evidence.NewService(audit.NewLogger(), &noopStore{}),
		client)

	result, err := svc.Generate(testCtx(orgID), tx, orgID, versionID, userID, GenerateRequest{
		SectionKey: domain.SectionGeneral, SelectedEvidenceIDs: []uuid.UUID{evidenceID},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.False(t, result.StrictMode)
	assert.Equal(t, []uuid.UUID{evidenceID}, result.CitedEvidenceIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_LLMUnavailableDegradesGracefully(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	versionID, orgID, userID := uuid.New(), uuid.New(), uuid.New()
	evidenceID := uuid.New()

	mock.ExpectBegin()
	expectSectionGet(mock, orgID, versionID, domain.SectionGeneral)
	mock.ExpectQuery("FROM evidence_items").
		WithArgs(evidenceID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "type", "title", "description", "tags", "classification", "type_metadata", "created_at", "updated_at", "count",
		}).AddRow(evidenceID, orgID, domain.EvidenceNote, "Note", "", "{}", domain.ClassificationInternal, []byte(`{"content":"x"}`), time.Now(), time.Now(), 0))
	mock.ExpectExec("INSERT INTO llm_interactions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger(),
		sections.NewService(audit.NewLogger(), nil),
		evidence.NewService(audit.NewLogger(), &noopStore{}),
		llm.UnavailableClient{})

	result, err := svc.Generate(testCtx(orgID), tx, orgID, versionID, userID, GenerateRequest{
		SectionKey: domain.SectionGeneral, SelectedEvidenceIDs: []uuid.UUID{evidenceID},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, LLMUnavailablePlaceholder, result.DraftText)
	assert.Contains(t, result.Warnings, "llm_unavailable")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExtractCitedEvidenceIDs_IgnoresMalformedCitations(t *testing.T) {
	valid := uuid.New()
	text := "Cites [Evidence: " + valid.String() + "] and garbage [Evidence: not-a-uuid]."
	ids := extractCitedEvidenceIDs(text)
	require.Len(t, ids, 1)
	assert.Equal(t, valid, ids[0])
}

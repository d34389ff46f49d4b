package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/domain"
)

func testCtx(orgID uuid.UUID) context.Context {
	p := &authn.BasePrincipal{UserID: uuid.New().String(), OrgID: orgID.String(), Role: domain.RoleEditor}
	return authn.WithPrincipal(context.Background(), p)
}

func TestService_Create_Note(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID := uuid.New()
	ctx := testCtx(orgID)
	raw, _ := json.Marshal(NoteMetadata{Content: "reviewed by legal"})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO evidence_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger(), nil)
	item, err := svc.Create(ctx, tx, orgID, CreateRequest{
		Type:           domain.EvidenceNote,
		Title:          "Legal review",
		Classification: domain.ClassificationInternal,
		TypeMetadata:   raw,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "Legal review", item.Title)
	assert.Nil(t, item.DuplicateOf)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Create_UploadFindsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID := uuid.New()
	ctx := testCtx(orgID)
	docID := uuid.New()
	existingID := uuid.New()
	checksum := "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678901234567890123456789012"
	raw, _ := json.Marshal(UploadMetadata{
		StorageURI:       "evidence/" + orgID.String() + "/2026/07/" + docID.String() + ".pdf",
		ChecksumSHA256:   checksum,
		FileSize:         4096,
		MimeType:         "application/pdf",
		OriginalFilename: "policy.pdf",
	})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM evidence_items").
		WithArgs(orgID, checksum).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existingID))
	mock.ExpectExec("INSERT INTO evidence_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger(), nil)
	item, err := svc.Create(ctx, tx, orgID, CreateRequest{
		Type:           domain.EvidenceUpload,
		Title:          "Data Policy",
		Classification: domain.ClassificationConfidential,
		TypeMetadata:   raw,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NotNil(t, item.DuplicateOf)
	assert.Equal(t, existingID, *item.DuplicateOf)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Delete_ConflictWithoutForce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID := uuid.New()
	ctx := testCtx(orgID)
	id := uuid.New()
	raw, _ := json.Marshal(NoteMetadata{Content: "note"})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM evidence_items").
		WithArgs(id, orgID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "type", "title", "description", "tags", "classification", "type_metadata", "created_at", "updated_at", "count",
		}).AddRow(id, orgID, domain.EvidenceNote, "Note", "", "{}", domain.ClassificationInternal, raw, time.Now().UTC(), time.Now().UTC(), 2))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	svc := NewService(audit.NewLogger(), nil)
	err = svc.Delete(ctx, tx, orgID, id, false)
	require.Error(t, err)

	var re *api.RegistryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindConflict, re.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

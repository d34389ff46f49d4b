package mapping

import (
	"context"
	"errors"
	"testing"

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

func TestService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID := uuid.New()
	ctx := testCtx(orgID)
	evidenceID, versionID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM evidence_items").
		WithArgs(evidenceID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS\\(").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO evidence_mappings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger())
	m, err := svc.Create(ctx, tx, orgID, CreateRequest{
		EvidenceID: evidenceID,
		VersionID:  versionID,
		TargetType: domain.TargetSection,
		TargetKey:  "ANNEX4.RISK_MANAGEMENT",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, domain.TargetSection, m.TargetType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Create_EvidenceNotInOrg(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID := uuid.New()
	ctx := testCtx(orgID)
	evidenceID, versionID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM evidence_items").
		WithArgs(evidenceID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	svc := NewService(audit.NewLogger())
	_, err = svc.Create(ctx, tx, orgID, CreateRequest{
		EvidenceID: evidenceID,
		VersionID:  versionID,
		TargetType: domain.TargetSection,
		TargetKey:  "ANNEX4.RISK_MANAGEMENT",
	})
	require.Error(t, err)

	var re *api.RegistryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindNotFound, re.Kind)
}

func TestService_Delete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, id := uuid.New(), uuid.New()
	ctx := testCtx(orgID)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM evidence_mappings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	svc := NewService(audit.NewLogger())
	err = svc.Delete(ctx, tx, orgID, id)
	require.Error(t, err)

	var re *api.RegistryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindNotFound, re.Kind)
}

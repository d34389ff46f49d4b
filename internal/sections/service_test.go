package sections

import (
	"context"
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
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
)

type fakeImmutabilityChecker struct {
	immutable bool
}

func (f *fakeImmutabilityChecker) IsImmutable(ctx context.Context, q database.Querier, versionID uuid.UUID) (bool, error) {
	return f.immutable, nil
}

func testCtx() context.Context {
	p := &authn.BasePrincipal{UserID: uuid.New().String(), OrgID: uuid.New().String(), Role: domain.RoleEditor}
	return authn.WithPrincipal(context.Background(), p)
}

func TestService_EnsureInitialized_InsertsAllTwelve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	versionID := uuid.New()
	mock.ExpectBegin()
	for range domain.AllSectionKeys {
		mock.ExpectExec("INSERT INTO annex_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger(), &fakeImmutabilityChecker{})
	require.NoError(t, svc.EnsureInitialized(context.Background(), tx, versionID))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Update_RejectsWhenImmutable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, versionID := uuid.New(), uuid.New()
	ctx := testCtx()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	svc := NewService(audit.NewLogger(), &fakeImmutabilityChecker{immutable: true})
	_, err = svc.Update(ctx, tx, orgID, versionID, domain.SectionGeneral, UpdateRequest{EditedBy: uuid.New()})
	require.Error(t, err)

	var re *api.RegistryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindConflict, re.Kind)
}

func TestService_Update_RecomputesScore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, versionID, sectionID, editor := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	ctx := testCtx()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	for range domain.AllSectionKeys {
		mock.ExpectExec("INSERT INTO annex_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectQuery("SELECT (.+) FROM annex_sections WHERE version_id .* AND section_key").
		WithArgs(versionID, domain.SectionGeneral).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "version_id", "section_key", "content", "evidence_refs", "completeness_score", "llm_assisted", "last_edited_by", "updated_at",
		}).AddRow(sectionID, versionID, domain.SectionGeneral, []byte("{}"), "{}", 0.0, false, nil, now))
	mock.ExpectExec("UPDATE annex_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger(), &fakeImmutabilityChecker{})
	sec, err := svc.Update(ctx, tx, orgID, versionID, domain.SectionGeneral, UpdateRequest{
		Content:  map[string]interface{}{"system_name": "Resume Screener"},
		EditedBy: editor,
	})
	require.NoError(t, err)
	assert.Greater(t, sec.CompletenessScore, 0.0)
	require.NoError(t, mock.ExpectationsWereMet())
}

package versions

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
	"github.com/annexops/registry/internal/domain"
)

func testCtx(orgID uuid.UUID, role domain.Role) context.Context {
	p := &authn.BasePrincipal{UserID: uuid.New().String(), OrgID: orgID.String(), Role: role}
	return authn.WithPrincipal(context.Background(), p)
}

func TestService_Create_RejectsInvalidLabel(t *testing.T) {
	svc := NewService(audit.NewLogger())
	_, err := svc.Create(context.Background(), nil, uuid.New(), CreateRequest{Label: "bad label!"})
	require.Error(t, err)
	var re *api.RegistryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindValidationFailed, re.Kind)
}

func TestService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	aiSystemID := uuid.New()
	ctx := testCtx(uuid.New(), domain.RoleEditor)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO system_versions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger())
	v, err := svc.Create(ctx, tx, aiSystemID, CreateRequest{Label: "v1.0.0"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "v1.0.0", v.Label)
	assert.Equal(t, domain.VersionDraft, v.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func versionCols() []string {
	return []string{"id", "ai_system_id", "label", "status", "notes", "release_date", "approved_by", "approved_at", "created_at", "updated_at"}
}

func TestService_Transition_EditorDraftToReview(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, aiSystemID, id := uuid.New(), uuid.New(), uuid.New()
	ctx := testCtx(orgID, domain.RoleEditor)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM system_versions").
		WithArgs(id, aiSystemID, orgID).
		WillReturnRows(sqlmock.NewRows(versionCols()).AddRow(id, aiSystemID, "v1", domain.VersionDraft, "", nil, nil, nil, now, now))
	mock.ExpectExec("UPDATE system_versions SET status").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger())
	v, err := svc.Transition(ctx, tx, orgID, aiSystemID, id, domain.RoleEditor, uuid.New(), domain.VersionReview)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, domain.VersionReview, v.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Transition_EditorCannotApprove(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, aiSystemID, id := uuid.New(), uuid.New(), uuid.New()
	ctx := testCtx(orgID, domain.RoleEditor)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM system_versions").
		WithArgs(id, aiSystemID, orgID).
		WillReturnRows(sqlmock.NewRows(versionCols()).AddRow(id, aiSystemID, "v1", domain.VersionReview, "", nil, nil, nil, now, now))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	svc := NewService(audit.NewLogger())
	_, err = svc.Transition(ctx, tx, orgID, aiSystemID, id, domain.RoleEditor, uuid.New(), domain.VersionApproved)
	require.Error(t, err)

	var re *api.RegistryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindForbidden, re.Kind)
}

func TestService_Update_RejectsWhenImmutable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, aiSystemID, id := uuid.New(), uuid.New(), uuid.New()
	ctx := testCtx(orgID, domain.RoleEditor)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM system_versions").
		WithArgs(id, aiSystemID, orgID).
		WillReturnRows(sqlmock.NewRows(versionCols()).AddRow(id, aiSystemID, "v1", domain.VersionApproved, "", nil, nil, nil, now, now))
	mock.ExpectQuery("SELECT count").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	notes := "updated notes"
	svc := NewService(audit.NewLogger())
	_, err = svc.Update(ctx, tx, orgID, aiSystemID, id, UpdateRequest{Notes: &notes})
	require.Error(t, err)

	var re *api.RegistryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindConflict, re.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeDiff(t *testing.T) {
	aiSystemID := uuid.New()
	a := &domain.SystemVersion{AISystemID: aiSystemID, Label: "v1", Status: domain.VersionDraft, Notes: "first"}
	b := &domain.SystemVersion{AISystemID: aiSystemID, Label: "v1", Status: domain.VersionReview, Notes: "first"}

	result, err := ComputeDiff(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 0, result.Removed)
	assert.Equal(t, 1, result.Modified)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "status", result.Changes[0].Field)
}

func TestComputeDiff_RejectsCrossSystem(t *testing.T) {
	a := &domain.SystemVersion{AISystemID: uuid.New(), Label: "v1"}
	b := &domain.SystemVersion{AISystemID: uuid.New(), Label: "v1"}

	_, err := ComputeDiff(a, b)
	require.Error(t, err)
	var re *api.RegistryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindBadRequest, re.Kind)
}

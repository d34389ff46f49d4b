package audit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/domain"
)

func TestPostgresLogger_RecordInsertsWithinTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	principal := &authn.BasePrincipal{
		UserID: uuid.New().String(),
		OrgID:  uuid.New().String(),
		Role:   domain.RoleEditor,
	}
	ctx := authn.WithPrincipal(context.Background(), principal)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	l := NewLogger()
	err = l.Record(ctx, tx, domain.ActionVersionCreate, "system_version", uuid.New(), map[string]string{"label": "v1"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogger_RecordRequiresPrincipal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	l := NewLogger()
	err = l.Record(context.Background(), tx, domain.ActionVersionCreate, "system_version", uuid.New(), nil)
	require.Error(t, err)
}

package orgs

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresProvisioner_Bootstrap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organizations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p := NewPostgresProvisioner(db)
	result, err := p.Bootstrap(context.Background(), BootstrapRequest{
		OrgName:       "Acme Robotics",
		AdminEmail:    "admin@acme.test",
		AdminPassword: "correct horse battery staple",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Robotics", result.Organization.Name)
	assert.Equal(t, "admin@acme.test", result.AdminUser.Email)
	assert.True(t, result.AdminUser.Active)
	assert.NotEmpty(t, result.AdminUser.PasswordHash)
	assert.NotEqual(t, "correct horse battery staple", result.AdminUser.PasswordHash)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProvisioner_BootstrapRollsBackOnUserInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organizations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	p := NewPostgresProvisioner(db)
	_, err = p.Bootstrap(context.Background(), BootstrapRequest{
		OrgName:       "Acme Robotics",
		AdminEmail:    "admin@acme.test",
		AdminPassword: "correct horse battery staple",
	})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

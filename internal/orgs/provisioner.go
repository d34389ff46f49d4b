package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/annexops/registry/internal/domain"
)

// Provisioner bootstraps a brand new Organization and its first admin User.
type Provisioner interface {
	Bootstrap(ctx context.Context, req BootstrapRequest) (*BootstrapResult, error)
	GetByAdminEmail(ctx context.Context, email string) (*domain.Organization, error)
}

// PostgresProvisioner implements Provisioner against PostgreSQL.
type PostgresProvisioner struct {
	db *sql.DB
}

// NewPostgresProvisioner creates a new PostgreSQL-backed provisioner.
func NewPostgresProvisioner(db *sql.DB) *PostgresProvisioner {
	return &PostgresProvisioner{db: db}
}

// Bootstrap creates the organization and its first admin user atomically.
// A unique-constraint violation on users.email is returned as a wrapped
// database error, not a Conflict; the bootstrap handler checks
// GetByAdminEmail first to report an existing organization.
func (p *PostgresProvisioner) Bootstrap(ctx context.Context, req BootstrapRequest) (*BootstrapResult, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("orgs: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	org := &domain.Organization{
		ID:        uuid.New(),
		Name:      req.OrgName,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_at)
		VALUES ($1, $2, $3)
	`, org.ID, org.Name, org.CreatedAt); err != nil {
		return nil, fmt.Errorf("orgs: insert organization: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("orgs: hash admin password: %w", err)
	}

	admin := &domain.User{
		ID:           uuid.New(),
		OrgID:        org.ID,
		Email:        req.AdminEmail,
		PasswordHash: string(passwordHash),
		Role:         domain.RoleAdmin,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, org_id, email, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, admin.ID, admin.OrgID, admin.Email, admin.PasswordHash, admin.Role, admin.Active, admin.CreatedAt); err != nil {
		return nil, fmt.Errorf("orgs: insert admin user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("orgs: commit: %w", err)
	}

	return &BootstrapResult{Organization: org, AdminUser: admin}, nil
}

// GetByAdminEmail looks up the organization owning the user with the given
// email, used by the bootstrap handler to return a friendly 409 instead of a
// raw constraint-violation message.
func (p *PostgresProvisioner) GetByAdminEmail(ctx context.Context, email string) (*domain.Organization, error) {
	var org domain.Organization
	err := p.db.QueryRowContext(ctx, `
		SELECT o.id, o.name, o.created_at
		FROM organizations o
		JOIN users u ON u.org_id = o.id
		WHERE u.email = $1
	`, email).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("orgs: not found")
		}
		return nil, fmt.Errorf("orgs: get by admin email: %w", err)
	}
	return &org, nil
}

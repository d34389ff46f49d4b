// Package audit records append-only AuditEvent rows. Every Record call must
// run on the same *sql.Tx as the mutation it describes, so a rolled-back
// change never leaves an orphaned audit row (spec §3, §8 property 6).
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/domain"
)

// Logger records audit events within a caller-supplied transaction.
type Logger interface {
	Record(ctx context.Context, tx *sql.Tx, action domain.AuditAction, entityType string, entityID uuid.UUID, diff interface{}) error
}

// PostgresLogger is the only Logger implementation; audit rows live in the
// same database as everything else and are never batched or buffered.
type PostgresLogger struct{}

// NewLogger creates a PostgresLogger.
func NewLogger() *PostgresLogger {
	return &PostgresLogger{}
}

// Record inserts one AuditEvent row. The actor and organization are pulled
// from the request's authn.Principal; diff may be nil for events with no
// meaningful before/after payload (e.g. system.delete).
func (l *PostgresLogger) Record(ctx context.Context, tx *sql.Tx, action domain.AuditAction, entityType string, entityID uuid.UUID, diff interface{}) error {
	principal, err := authn.GetPrincipal(ctx)
	if err != nil {
		return fmt.Errorf("audit: no principal in context: %w", err)
	}

	var diffJSON []byte
	if diff != nil {
		diffJSON, err = json.Marshal(diff)
		if err != nil {
			return fmt.Errorf("audit: marshal diff: %w", err)
		}
	}

	event := domain.AuditEvent{
		ID:         uuid.New(),
		OrgID:      uuid.MustParse(principal.GetOrgID()),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		DiffJSON:   diffJSON,
		CreatedAt:  time.Now().UTC(),
	}
	userID := uuid.MustParse(principal.GetUserID())
	event.UserID = &userID

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events (id, org_id, user_id, action, entity_type, entity_id, diff_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.OrgID, event.UserID, event.Action, event.EntityType, event.EntityID, event.DiffJSON, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

package decisionlog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
)

// Service is the transaction-bound collaborator for decision-log API-key
// lifecycle and event ingestion (spec §4.5).
type Service struct {
	audit audit.Logger
}

// NewService creates a Service using the given audit logger.
func NewService(logger audit.Logger) *Service {
	return &Service{audit: logger}
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ensureVersionInOrg confirms versionID is reachable from orgID through
// ai_systems before any mutation or listing touches it (spec §3).
func ensureVersionInOrg(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID) error {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM system_versions v
			JOIN ai_systems a ON a.id = v.ai_system_id
			WHERE v.id = $1 AND a.org_id = $2
		)
	`, versionID, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("decisionlog: check version: %w", err)
	}
	if !exists {
		return api.NewError(api.KindNotFound, "system version not found")
	}
	return nil
}

// ensureKeyInOrg confirms keyID's owning version is reachable from orgID.
func ensureKeyInOrg(ctx context.Context, q database.Querier, orgID, keyID uuid.UUID) error {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM log_api_keys k
			JOIN system_versions v ON v.id = k.version_id
			JOIN ai_systems a ON a.id = v.ai_system_id
			WHERE k.id = $1 AND a.org_id = $2
		)
	`, keyID, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("decisionlog: check key: %w", err)
	}
	if !exists {
		return api.NewError(api.KindNotFound, "logging key not found")
	}
	return nil
}

// EnableLogging generates a random 32-byte URL-safe key, stores only its
// SHA-256 hash, and returns the plaintext key once. Scoped to one version.
func (s *Service) EnableLogging(ctx context.Context, tx *sql.Tx, orgID, versionID uuid.UUID, name string, allowRawPII bool) (*domain.LogApiKey, string, error) {
	if err := ensureVersionInOrg(ctx, tx, orgID, versionID); err != nil {
		return nil, "", err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("decisionlog: generate key: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(raw)

	key := &domain.LogApiKey{
		ID:          uuid.New(),
		VersionID:   versionID,
		Name:        name,
		KeyHash:     hashKey(plaintext),
		AllowRawPII: allowRawPII,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO log_api_keys (id, version_id, name, key_hash, allow_raw_pii, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, key.ID, key.VersionID, key.Name, key.KeyHash, key.AllowRawPII, key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("decisionlog: insert key: %w", err)
	}

	if err := s.audit.Record(ctx, tx, domain.ActionLoggingKeyEnable, "log_api_key", key.ID, map[string]any{"name": name}); err != nil {
		return nil, "", fmt.Errorf("decisionlog: audit: %w", err)
	}
	return key, plaintext, nil
}

// Revoke sets revoked_at on an active key; subsequent ingestion with it is
// rejected with 401 (spec §4.5).
func (s *Service) Revoke(ctx context.Context, tx *sql.Tx, orgID, keyID uuid.UUID) error {
	if err := ensureKeyInOrg(ctx, tx, orgID, keyID); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE log_api_keys SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, now, keyID)
	if err != nil {
		return fmt.Errorf("decisionlog: revoke: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decisionlog: revoke rows affected: %w", err)
	}
	if n == 0 {
		return api.NewError(api.KindNotFound, "logging key not found or already revoked")
	}
	return s.audit.Record(ctx, tx, domain.ActionLoggingKeyRevoke, "log_api_key", keyID, nil)
}

// Authenticate hashes the presented plaintext key, looks up an un-revoked
// LogApiKey, and stamps last_used_at (spec §4.5 steps 1 and 5).
func (s *Service) Authenticate(ctx context.Context, tx *sql.Tx, presentedKey string) (*domain.LogApiKey, error) {
	var key domain.LogApiKey
	err := tx.QueryRowContext(ctx, `
		SELECT id, version_id, name, key_hash, allow_raw_pii, revoked_at, last_used_at, created_at
		FROM log_api_keys WHERE key_hash = $1 AND revoked_at IS NULL
	`, hashKey(presentedKey)).Scan(
		&key.ID, &key.VersionID, &key.Name, &key.KeyHash, &key.AllowRawPII, &key.RevokedAt, &key.LastUsedAt, &key.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, api.NewError(api.KindUnauthenticated, "invalid or revoked API key")
		}
		return nil, fmt.Errorf("decisionlog: authenticate: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE log_api_keys SET last_used_at = $1 WHERE id = $2`, now, key.ID); err != nil {
		return nil, fmt.Errorf("decisionlog: touch last_used_at: %w", err)
	}
	key.LastUsedAt = &now
	return &key, nil
}

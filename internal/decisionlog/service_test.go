package decisionlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/domain"
)

func testCtx(orgID uuid.UUID) context.Context {
	p := &authn.BasePrincipal{UserID: uuid.New().String(), OrgID: orgID.String(), Role: domain.RoleAdmin}
	return authn.WithPrincipal(context.Background(), p)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sampleEvent(eventID string) json.RawMessage {
	body, _ := json.Marshal(map[string]interface{}{
		"event_id":   eventID,
		"event_time": time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"actor":      "resume-screener-svc",
		"subject":    map[string]interface{}{"subject_type": "applicant", "subject_id": "applicant-42"},
		"model":      map[string]interface{}{"model_id": "screener-v3", "model_version": "2026.02"},
		"input":      map[string]interface{}{"input_hash": "sha256:abc"},
		"output":     map[string]interface{}{"decision": "reject", "score": 0.12, "output_hash": "sha256:def"},
	})
	return body
}

func TestService_EnableLogging(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, versionID := uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO log_api_keys").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger())
	key, plaintext, err := svc.EnableLogging(testCtx(orgID), tx, orgID, versionID, "prod ingest", false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NotEmpty(t, plaintext)
	assert.Equal(t, versionID, key.VersionID)
	assert.False(t, key.AllowRawPII)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Revoke_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, keyID := uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(keyID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE log_api_keys SET revoked_at").WillReturnResult(sqlmock.NewResult(0, 0))
	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger())
	err = svc.Revoke(context.Background(), tx, orgID, keyID)
	require.Error(t, err)
	var regErr *api.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, api.KindNotFound, regErr.Kind)
	_ = tx.Rollback()
}

func TestService_Ingest_PIIMinimization(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(audit.NewLogger())
	versionID := uuid.New()
	key := &domain.LogApiKey{ID: uuid.New(), VersionID: versionID, AllowRawPII: false}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO decision_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	tx, err := db.Begin()
	require.NoError(t, err)

	log, err := svc.Ingest(context.Background(), tx, key, sampleEvent("evt-1"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var stored Event
	require.NoError(t, json.Unmarshal(log.EventJSON, &stored))
	assert.Empty(t, stored.Subject.SubjectID)
	assert.Equal(t, "sha256:"+sha256Hex("applicant-42"), stored.Subject.SubjectIDHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Ingest_AllowRawPIIKeepsSubjectID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(audit.NewLogger())
	key := &domain.LogApiKey{ID: uuid.New(), VersionID: uuid.New(), AllowRawPII: true}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO decision_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	tx, err := db.Begin()
	require.NoError(t, err)

	log, err := svc.Ingest(context.Background(), tx, key, sampleEvent("evt-2"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var stored Event
	require.NoError(t, json.Unmarshal(log.EventJSON, &stored))
	assert.Equal(t, "applicant-42", stored.Subject.SubjectID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Ingest_DuplicateEventIDConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(audit.NewLogger())
	key := &domain.LogApiKey{ID: uuid.New(), VersionID: uuid.New(), AllowRawPII: true}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO decision_logs").WillReturnError(&pq.Error{Code: "23505"})
	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), tx, key, sampleEvent("evt-dup"))
	require.Error(t, err)
	var regErr *api.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, api.KindConflict, regErr.Kind)
	_ = tx.Rollback()
}

func TestService_Ingest_RejectsMalformedEvent(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(audit.NewLogger())
	key := &domain.LogApiKey{ID: uuid.New(), VersionID: uuid.New(), AllowRawPII: true}

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), tx, key, json.RawMessage(`{"actor": "x"}`))
	require.Error(t, err)
	var regErr *api.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, api.KindIngestSchemaInvalid, regErr.Kind)
	_ = tx.Rollback()
}

func TestService_Authenticate_RevokedOrUnknownKeyRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(audit.NewLogger())
	mock.ExpectBegin()
	mock.ExpectQuery("FROM log_api_keys").
		WithArgs(hashKey("revoked-key")).
		WillReturnError(sql.ErrNoRows)
	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), tx, "revoked-key")
	require.Error(t, err)
	var regErr *api.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, api.KindUnauthenticated, regErr.Kind)
	_ = tx.Rollback()
}

func TestService_List_OrdersByEventTimeDescending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, versionID := uuid.New(), uuid.New()
	older := sampleEvent("evt-older")
	newer := sampleEvent("evt-newer")

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM decision_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "event_time", "event_json", "ingested_at"}).
			AddRow(uuid.New(), "evt-newer", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), newer, time.Now()).
			AddRow(uuid.New(), "evt-older", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), older, time.Now()))

	svc := NewService(audit.NewLogger())
	out, err := svc.List(context.Background(), db, orgID, versionID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "evt-newer", out[0].EventID)
	assert.Equal(t, "evt-older", out[1].EventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ExportCSV_StableColumnOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, versionID := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM decision_logs").
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "event_time", "event_json", "ingested_at"}).
			AddRow("evt-1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), sampleEvent("evt-1"), time.Now()))

	svc := NewService(audit.NewLogger())
	out, err := svc.ExportCSV(context.Background(), db, orgID, versionID, ListFilter{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "event_id,event_time,actor,decision,score,reviewer_id,override,ingested_at")
	assert.Contains(t, string(out), "evt-1")
	require.NoError(t, mock.ExpectationsWereMet())
}

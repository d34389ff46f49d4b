// Package decisionlog implements API-key-scoped decision-event ingestion,
// listing, and export for a SystemVersion (spec §4.5).
package decisionlog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
)

// Ingest validates and persists one decision event against key's version.
// Idempotent per (version_id, event_id): a repeat event_id is rejected
// with 409, not silently accepted (spec §4.5, invariant 8).
func (s *Service) Ingest(ctx context.Context, tx *sql.Tx, key *domain.LogApiKey, raw json.RawMessage) (*domain.DecisionLog, error) {
	ev, err := parseEvent(raw)
	if err != nil {
		return nil, err
	}

	if !key.AllowRawPII && ev.Subject.SubjectID != "" && ev.Subject.SubjectIDHash == "" {
		sum := sha256.Sum256([]byte(ev.Subject.SubjectID))
		ev.Subject.SubjectIDHash = "sha256:" + hex.EncodeToString(sum[:])
		ev.Subject.SubjectID = ""
	}

	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: encode event: %w", err)
	}

	log := &domain.DecisionLog{
		ID:         uuid.New(),
		VersionID:  key.VersionID,
		EventID:    ev.EventID,
		EventTime:  ev.EventTime.UTC(),
		EventJSON:  eventJSON,
		IngestedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decision_logs (id, version_id, event_id, event_time, event_json, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, log.ID, log.VersionID, log.EventID, log.EventTime, log.EventJSON, log.IngestedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, api.NewError(api.KindConflict, fmt.Sprintf("event_id %q already ingested for this version", ev.EventID))
		}
		return nil, fmt.Errorf("decisionlog: insert: %w", err)
	}
	return log, nil
}

// Summary is the listing row shape (spec §4.5 "Listing").
type Summary struct {
	ID         uuid.UUID `json:"id"`
	EventID    string    `json:"event_id"`
	EventTime  time.Time `json:"event_time"`
	Actor      string    `json:"actor"`
	Decision   string    `json:"decision"`
	IngestedAt time.Time `json:"ingested_at"`
}

// ListFilter narrows a decision-log listing to an inclusive event_time
// range, with pagination (spec §4.5).
type ListFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// List returns decision-log summaries for versionID ordered by
// event_time DESC.
func (s *Service) List(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID, filter ListFilter) ([]*Summary, error) {
	if err := ensureVersionInOrg(ctx, q, orgID, versionID); err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	conditions := []string{"version_id = $1"}
	args := []interface{}{versionID}
	if filter.StartTime != nil {
		args = append(args, *filter.StartTime)
		conditions = append(conditions, "event_time >= $"+strconv.Itoa(len(args)))
	}
	if filter.EndTime != nil {
		args = append(args, *filter.EndTime)
		conditions = append(conditions, "event_time <= $"+strconv.Itoa(len(args)))
	}
	args = append(args, limit, filter.Offset)

	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, event_id, event_time, event_json, ingested_at
		FROM decision_logs
		WHERE %s
		ORDER BY event_time DESC
		LIMIT $%d OFFSET $%d
	`, joinAND(conditions), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: list: %w", err)
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var id uuid.UUID
		var eventID string
		var eventTime, ingestedAt time.Time
		var eventJSON json.RawMessage
		if err := rows.Scan(&id, &eventID, &eventTime, &eventJSON, &ingestedAt); err != nil {
			return nil, fmt.Errorf("decisionlog: scan: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(eventJSON, &ev); err != nil {
			return nil, fmt.Errorf("decisionlog: decode event: %w", err)
		}
		out = append(out, &Summary{
			ID: id, EventID: eventID, EventTime: eventTime, Actor: ev.Actor,
			Decision: ev.Output.Decision, IngestedAt: ingestedAt,
		})
	}
	return out, rows.Err()
}

func joinAND(conditions []string) string {
	out := conditions[0]
	for _, c := range conditions[1:] {
		out += " AND " + c
	}
	return out
}

// exportRow is the flattened record behind both JSON and CSV export.
type exportRow struct {
	EventID    string    `json:"event_id"`
	EventTime  time.Time `json:"event_time"`
	Actor      string    `json:"actor"`
	Decision   string    `json:"decision"`
	Score      *float64  `json:"score,omitempty"`
	ReviewerID string    `json:"reviewer_id,omitempty"`
	Override   *bool     `json:"override,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

func (s *Service) exportRows(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID, filter ListFilter) ([]exportRow, error) {
	if err := ensureVersionInOrg(ctx, q, orgID, versionID); err != nil {
		return nil, err
	}
	conditions := []string{"version_id = $1"}
	args := []interface{}{versionID}
	if filter.StartTime != nil {
		args = append(args, *filter.StartTime)
		conditions = append(conditions, "event_time >= $"+strconv.Itoa(len(args)))
	}
	if filter.EndTime != nil {
		args = append(args, *filter.EndTime)
		conditions = append(conditions, "event_time <= $"+strconv.Itoa(len(args)))
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT event_id, event_time, event_json, ingested_at
		FROM decision_logs WHERE %s ORDER BY event_time DESC
	`, joinAND(conditions)), args...)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: export query: %w", err)
	}
	defer rows.Close()

	var out []exportRow
	for rows.Next() {
		var eventID string
		var eventTime, ingestedAt time.Time
		var eventJSON json.RawMessage
		if err := rows.Scan(&eventID, &eventTime, &eventJSON, &ingestedAt); err != nil {
			return nil, fmt.Errorf("decisionlog: export scan: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(eventJSON, &ev); err != nil {
			return nil, fmt.Errorf("decisionlog: export decode: %w", err)
		}
		row := exportRow{EventID: eventID, EventTime: eventTime, Actor: ev.Actor, Decision: ev.Output.Decision, Score: ev.Output.Score, IngestedAt: ingestedAt}
		if ev.Human != nil {
			row.ReviewerID = ev.Human.ReviewerID
			row.Override = ev.Human.Override
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ExportJSON returns the canonical-JSON-serializable export payload (spec
// §4.5 "Export").
func (s *Service) ExportJSON(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID, filter ListFilter) ([]exportRow, error) {
	return s.exportRows(ctx, q, orgID, versionID, filter)
}

// ExportCSV renders the export as CSV with the stable column order from
// spec §4.5.
func (s *Service) ExportCSV(ctx context.Context, q database.Querier, orgID, versionID uuid.UUID, filter ListFilter) ([]byte, error) {
	rows, err := s.exportRows(ctx, q, orgID, versionID, filter)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"event_id", "event_time", "actor", "decision", "score", "reviewer_id", "override", "ingested_at"})
	for _, r := range rows {
		score, override := "", ""
		if r.Score != nil {
			score = strconv.FormatFloat(*r.Score, 'f', -1, 64)
		}
		if r.Override != nil {
			override = strconv.FormatBool(*r.Override)
		}
		_ = w.Write([]string{
			r.EventID, r.EventTime.Format(time.RFC3339), r.Actor, r.Decision,
			score, r.ReviewerID, override, r.IngestedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

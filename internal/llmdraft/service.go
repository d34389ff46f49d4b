// Package llmdraft generates evidence-grounded section drafts with a
// strict-mode guardrail: no selected evidence means no LLM call, ever
// (spec §7; supplemented persistence grounded on
// original_source/.../draft_service.py's LlmInteraction audit trail).
package llmdraft

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/internal/sections"
	"github.com/annexops/registry/pkg/evidence"
	"github.com/annexops/registry/pkg/llm"
)

const (
	maxEvidenceTokensPerItem = 500
	maxEvidenceTokensTotal   = 4000
	maxPromptTokens          = 8000
	maxOutputTokens          = 1024
)

var citationPattern = regexp.MustCompile(`\[Evidence:\s*([0-9a-fA-F-]{36})\]`)

// Service orchestrates strict-mode-guarded LLM draft generation and
// persists every call, including refusals and degraded responses, as an
// LlmInteraction row.
type Service struct {
	audit    audit.Logger
	sections *sections.Service
	evidence *evidence.Service
	client   llm.Client
}

// NewService wires a Service from its collaborators. client is typically
// an llm.UnavailableClient when no provider is configured.
func NewService(logger audit.Logger, sectionsSvc *sections.Service, evidenceSvc *evidence.Service, client llm.Client) *Service {
	return &Service{audit: logger, sections: sectionsSvc, evidence: evidenceSvc, client: client}
}

// GenerateRequest carries the caller's evidence selection and optional
// free-text instructions for one section draft.
type GenerateRequest struct {
	SectionKey          domain.AnnexSectionKey
	SelectedEvidenceIDs []uuid.UUID
	Instructions        string
}

// GenerateResult is returned alongside the persisted LlmInteraction.
type GenerateResult struct {
	DraftText        string
	CitedEvidenceIDs []uuid.UUID
	Warnings         []string
	StrictMode       bool
	Interaction      *domain.LlmInteraction
}

// Generate enforces the strict-mode guardrail before ever touching the
// LLM client: zero selected evidence means the call never happens and a
// placeholder response is persisted and returned instead (spec §7).
func (s *Service) Generate(ctx context.Context, tx *sql.Tx, orgID, versionID, userID uuid.UUID, req GenerateRequest) (*GenerateResult, error) {
	if _, err := s.sections.Get(ctx, tx, orgID, versionID, req.SectionKey); err != nil {
		return nil, err
	}

	if len(req.SelectedEvidenceIDs) == 0 {
		return s.persistDegraded(ctx, tx, versionID, req.SectionKey, userID, nil,
			fmt.Sprintf("[STRICT MODE] No evidence selected for section %s", req.SectionKey),
			NeedsEvidencePlaceholder, true, []string{"strict_mode_activated"})
	}

	evidenceItems := make([]*domain.EvidenceItem, 0, len(req.SelectedEvidenceIDs))
	for _, id := range req.SelectedEvidenceIDs {
		item, err := s.evidence.Get(ctx, tx, orgID, id)
		if err != nil {
			return nil, err
		}
		evidenceItems = append(evidenceItems, item)
	}

	blocks := make([]string, len(evidenceItems))
	for i, item := range evidenceItems {
		blocks[i] = truncateToTokens(evidenceToPromptText(item), maxEvidenceTokensPerItem)
	}
	blocks = capTotalTokens(blocks, maxEvidenceTokensTotal)

	userPrompt := buildUserPrompt(req.SectionKey, blocks, req.Instructions)
	fullPrompt := SystemPrompt + "\n\n" + userPrompt
	if countTokens(fullPrompt) > maxPromptTokens {
		return nil, api.NewError(api.KindPayloadTooLarge, "evidence selection too large for the LLM context window")
	}

	start := time.Now()
	resp, err := s.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: userPrompt},
	}, nil, &llm.SamplingOptions{Temperature: 0.2, TopP: 1})
	if err != nil {
		return s.persistDegraded(ctx, tx, versionID, req.SectionKey, userID, req.SelectedEvidenceIDs,
			"[OFFLINE MODE] LLM unavailable; draft not generated", LLMUnavailablePlaceholder, false, []string{"llm_unavailable"})
	}
	duration := time.Since(start).Milliseconds()

	cited := filterCitedIDs(extractCitedEvidenceIDs(resp.Content), req.SelectedEvidenceIDs)

	interaction := &domain.LlmInteraction{
		ID: uuid.New(), VersionID: versionID, SectionKey: req.SectionKey, UserID: userID,
		SelectedEvidenceIDs: req.SelectedEvidenceIDs, Prompt: fullPrompt, Response: resp.Content,
		CitedEvidenceIDs: cited, InputTokens: resp.InputTokens,
		OutputTokens: resp.OutputTokens, StrictMode: false, DurationMS: duration, CreatedAt: time.Now().UTC(),
	}
	if err := s.insertInteraction(ctx, tx, interaction); err != nil {
		return nil, err
	}

	return &GenerateResult{
		DraftText: resp.Content, CitedEvidenceIDs: cited, Warnings: nil,
		StrictMode: false, Interaction: interaction,
	}, nil
}

func (s *Service) persistDegraded(ctx context.Context, tx *sql.Tx, versionID uuid.UUID, sectionKey domain.AnnexSectionKey,
	userID uuid.UUID, selected []uuid.UUID, prompt, response string, strictMode bool, warnings []string) (*GenerateResult, error) {
	interaction := &domain.LlmInteraction{
		ID: uuid.New(), VersionID: versionID, SectionKey: sectionKey, UserID: userID,
		SelectedEvidenceIDs: selected, Prompt: prompt, Response: response,
		CitedEvidenceIDs: nil, StrictMode: strictMode, CreatedAt: time.Now().UTC(),
	}
	if err := s.insertInteraction(ctx, tx, interaction); err != nil {
		return nil, err
	}
	return &GenerateResult{
		DraftText: response, CitedEvidenceIDs: nil, Warnings: warnings,
		StrictMode: strictMode, Interaction: interaction,
	}, nil
}

func (s *Service) insertInteraction(ctx context.Context, tx *sql.Tx, in *domain.LlmInteraction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO llm_interactions (id, version_id, section_key, user_id, selected_evidence_ids, prompt, response,
			cited_evidence_ids, model, input_tokens, output_tokens, strict_mode, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, in.ID, in.VersionID, in.SectionKey, in.UserID, pq.Array(uuidStrings(in.SelectedEvidenceIDs)), in.Prompt, in.Response,
		pq.Array(uuidStrings(in.CitedEvidenceIDs)), in.Model, in.InputTokens, in.OutputTokens, in.StrictMode, in.DurationMS, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("llmdraft: insert interaction: %w", err)
	}
	return s.audit.Record(ctx, tx, domain.ActionDraftGenerate, "llm_interaction", in.ID, map[string]any{
		"section_key": in.SectionKey,
		"strict_mode": in.StrictMode,
	})
}

// List returns the interaction history for versionID, newest first.
func (s *Service) List(ctx context.Context, q database.Querier, versionID uuid.UUID) ([]*domain.LlmInteraction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, version_id, section_key, user_id, selected_evidence_ids, prompt, response, cited_evidence_ids,
			model, input_tokens, output_tokens, strict_mode, duration_ms, created_at
		FROM llm_interactions WHERE version_id = $1 ORDER BY created_at DESC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("llmdraft: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.LlmInteraction
	for rows.Next() {
		var in domain.LlmInteraction
		var selected, cited pq.StringArray
		if err := rows.Scan(&in.ID, &in.VersionID, &in.SectionKey, &in.UserID, &selected, &in.Prompt, &in.Response,
			&cited, &in.Model, &in.InputTokens, &in.OutputTokens, &in.StrictMode, &in.DurationMS, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("llmdraft: scan: %w", err)
		}
		var err error
		if in.SelectedEvidenceIDs, err = parseUUIDs(selected); err != nil {
			return nil, fmt.Errorf("llmdraft: decode selected_evidence_ids: %w", err)
		}
		if in.CitedEvidenceIDs, err = parseUUIDs(cited); err != nil {
			return nil, fmt.Errorf("llmdraft: decode cited_evidence_ids: %w", err)
		}
		out = append(out, &in)
	}
	return out, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw pq.StringArray) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func extractCitedEvidenceIDs(text string) []uuid.UUID {
	var out []uuid.UUID
	seen := map[uuid.UUID]struct{}{}
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		id, err := uuid.Parse(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func filterCitedIDs(cited, selected []uuid.UUID) []uuid.UUID {
	allowed := map[uuid.UUID]struct{}{}
	for _, id := range selected {
		allowed[id] = struct{}{}
	}
	var out []uuid.UUID
	for _, id := range cited {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func capTotalTokens(blocks []string, budget int) []string {
	remaining := budget
	out := make([]string, len(blocks))
	for i, b := range blocks {
		if remaining <= 0 {
			out[i] = ""
			continue
		}
		truncated := truncateToTokens(b, remaining)
		remaining -= countTokens(truncated)
		out[i] = truncated
	}
	return out
}

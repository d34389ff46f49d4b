package llmdraft

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/annexops/registry/internal/domain"
)

// SystemPrompt is the fixed system message every draft generation call
// opens with. It is part of the persisted prompt, not secret.
const SystemPrompt = "You are drafting a section of an EU AI Act Annex IV technical documentation file. " +
	"Use ONLY the evidence items provided. Cite every factual claim inline as [Evidence: <uuid>]. " +
	"Never state a fact that is not traceable to one of the supplied evidence items."

// NeedsEvidencePlaceholder is persisted and returned verbatim whenever
// strict mode refuses a call for lack of selected evidence.
const NeedsEvidencePlaceholder = "[NEEDS EVIDENCE: select at least one evidence item before generating a draft for this section.]"

// LLMUnavailablePlaceholder is persisted and returned when the provider is
// unconfigured or unreachable; the caller edits the section manually.
const LLMUnavailablePlaceholder = "[LLM UNAVAILABLE: LLM features are disabled. Please edit this section manually.]"

func evidenceToPromptText(item *domain.EvidenceItem) string {
	var meta map[string]interface{}
	_ = json.Unmarshal(item.TypeMetadata, &meta)
	str := func(key string) string {
		v, _ := meta[key].(string)
		return v
	}

	var content string
	switch item.Type {
	case domain.EvidenceNote:
		content = str("content")
	case domain.EvidenceURL:
		content = fmt.Sprintf("URL: %s", str("url"))
	case domain.EvidenceGit:
		content = fmt.Sprintf("Repo: %s\nFile: %s\nCommit: %s", str("repo_url"), str("file_path"), str("commit_hash"))
	case domain.EvidenceTicket:
		content = fmt.Sprintf("Ticket: %s\nURL: %s", str("ticket_id"), str("ticket_url"))
	case domain.EvidenceUpload:
		content = fmt.Sprintf("File: %s\nMIME: %s", str("original_filename"), str("mime_type"))
	}

	return strings.TrimSpace(fmt.Sprintf(
		"Evidence ID: %s\nTitle: %s\nType: %s\nClassification: %s\nContent:\n%s",
		item.ID, item.Title, item.Type, item.Classification, content,
	))
}

func buildUserPrompt(sectionKey domain.AnnexSectionKey, evidenceBlocks []string, instructions string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section: %s\n", sectionKey)
	b.WriteString("Evidence items (use ONLY these; cite as [Evidence: <ID>]):\n")
	for _, block := range evidenceBlocks {
		if block == "" {
			continue
		}
		fmt.Fprintf(&b, "\n---\n%s\n", block)
	}
	if instructions != "" {
		fmt.Fprintf(&b, "\nUser instructions: %s\n", instructions)
	}
	b.WriteString("\nOutput markdown text with inline citations, and end with a list of cited evidence IDs.")
	return strings.TrimSpace(b.String())
}

// Package evidence validates the type-dependent metadata shape of an
// EvidenceItem and enforces the storage-URI contract for uploads (spec
// §3, §4.2, §9 tagged-variant design note).
package evidence

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/domain"
)

// AllowedUploadMIMETypes is the closed allow-list for upload evidence (spec
// §4.2).
var AllowedUploadMIMETypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"image/png":        true,
	"image/jpeg":       true,
	"text/plain":       true,
	"text/markdown":    true,
	"application/json":  true,
}

const maxUploadBytes = 50 * 1024 * 1024

var (
	checksumPattern   = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	commitHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	storageURIPattern = regexp.MustCompile(`^evidence/([^/]+)/(\d{4})/(\d{2})/([^/.]+)\.([A-Za-z0-9]{1,16})$`)
)

// UploadMetadata is the type_metadata shape for EvidenceUpload.
type UploadMetadata struct {
	StorageURI       string `json:"storage_uri"`
	ChecksumSHA256   string `json:"checksum_sha256"`
	FileSize         int64  `json:"file_size"`
	MimeType         string `json:"mime_type"`
	OriginalFilename string `json:"original_filename"`
}

// URLMetadata is the type_metadata shape for EvidenceURL.
type URLMetadata struct {
	URL        string `json:"url"`
	AccessedAt string `json:"accessed_at,omitempty"`
}

// GitMetadata is the type_metadata shape for EvidenceGit.
type GitMetadata struct {
	RepoURL    string `json:"repo_url"`
	CommitHash string `json:"commit_hash"`
	Branch     string `json:"branch,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
}

// TicketMetadata is the type_metadata shape for EvidenceTicket.
type TicketMetadata struct {
	TicketID     string `json:"ticket_id"`
	TicketSystem string `json:"ticket_system"`
	TicketURL    string `json:"ticket_url,omitempty"`
}

// NoteMetadata is the type_metadata shape for EvidenceNote.
type NoteMetadata struct {
	Content string `json:"content"`
}

// ValidationError reports a single metadata validation failure; callers map
// it to an unprocessable-entity RegistryError.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

const (
	maxTags   = 20
	minTagLen = 1
	maxTagLen = 50
)

// ValidateTags enforces the tag-count and per-tag-length limits from spec
// §3: at most 20 tags, each 1-50 characters.
func ValidateTags(tags []string) error {
	if len(tags) > maxTags {
		return &ValidationError{Field: "tags", Reason: fmt.Sprintf("must have at most %d tags", maxTags)}
	}
	for _, t := range tags {
		if len(t) < minTagLen || len(t) > maxTagLen {
			return &ValidationError{Field: "tags", Reason: fmt.Sprintf("each tag must be %d-%d characters", minTagLen, maxTagLen)}
		}
	}
	return nil
}

// Validate checks raw against the schema for typ, returning the normalized
// JSON (e.g. commit hashes lowercased) on success.
func Validate(typ domain.EvidenceType, orgID uuid.UUID, raw json.RawMessage) (json.RawMessage, error) {
	switch typ {
	case domain.EvidenceUpload:
		return validateUpload(orgID, raw)
	case domain.EvidenceURL:
		return validateURL(raw)
	case domain.EvidenceGit:
		return validateGit(raw)
	case domain.EvidenceTicket:
		return validateTicket(raw)
	case domain.EvidenceNote:
		return validateNote(raw)
	default:
		return nil, &ValidationError{Field: "type", Reason: "unknown evidence type"}
	}
}

func validateUpload(orgID uuid.UUID, raw json.RawMessage) (json.RawMessage, error) {
	var m UploadMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Field: "type_metadata", Reason: "invalid JSON for upload evidence"}
	}
	if m.ChecksumSHA256 == "" || !checksumPattern.MatchString(m.ChecksumSHA256) {
		return nil, &ValidationError{Field: "checksum_sha256", Reason: "must be 64 hex characters"}
	}
	if m.FileSize < 1 || m.FileSize > maxUploadBytes {
		return nil, &ValidationError{Field: "file_size", Reason: "must be between 1 and 50MiB"}
	}
	if !AllowedUploadMIMETypes[m.MimeType] {
		return nil, &ValidationError{Field: "mime_type", Reason: "not in the allowed upload MIME types"}
	}
	if m.OriginalFilename == "" {
		return nil, &ValidationError{Field: "original_filename", Reason: "required"}
	}
	if err := validateStorageURI(orgID, m.StorageURI); err != nil {
		return nil, err
	}
	m.ChecksumSHA256 = strings.ToLower(m.ChecksumSHA256)
	return json.Marshal(m)
}

// validateStorageURI enforces evidence/{org_id}/{yyyy}/{mm}/{uuid}.{ext}
// (spec §4.2).
func validateStorageURI(orgID uuid.UUID, uri string) error {
	if len(uri) == 0 || len(uri) > 500 {
		return &ValidationError{Field: "storage_uri", Reason: "length must be 1..500"}
	}
	if strings.Contains(uri, "\\") || strings.HasPrefix(uri, "/") {
		return &ValidationError{Field: "storage_uri", Reason: "must not contain backslashes or a leading slash"}
	}
	match := storageURIPattern.FindStringSubmatch(uri)
	if match == nil {
		return &ValidationError{Field: "storage_uri", Reason: "must match evidence/{org_id}/{yyyy}/{mm}/{uuid}.{ext}"}
	}
	if match[1] != orgID.String() {
		return &ValidationError{Field: "storage_uri", Reason: "org_id segment does not match the caller's organization"}
	}
	mm := match[3]
	if mm < "01" || mm > "12" {
		return &ValidationError{Field: "storage_uri", Reason: "month segment must be 01-12"}
	}
	if _, err := uuid.Parse(match[4]); err != nil {
		return &ValidationError{Field: "storage_uri", Reason: "uuid segment does not parse as a UUID"}
	}
	return nil
}

func validateURL(raw json.RawMessage) (json.RawMessage, error) {
	var m URLMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Field: "type_metadata", Reason: "invalid JSON for url evidence"}
	}
	if !isAbsoluteURL(m.URL) {
		return nil, &ValidationError{Field: "url", Reason: "must be a valid absolute URL"}
	}
	return json.Marshal(m)
}

func validateGit(raw json.RawMessage) (json.RawMessage, error) {
	var m GitMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Field: "type_metadata", Reason: "invalid JSON for git evidence"}
	}
	if !isAbsoluteURL(m.RepoURL) {
		return nil, &ValidationError{Field: "repo_url", Reason: "must be a valid absolute URL"}
	}
	if !commitHashPattern.MatchString(m.CommitHash) {
		return nil, &ValidationError{Field: "commit_hash", Reason: "must be exactly 40 hex characters"}
	}
	m.CommitHash = strings.ToLower(m.CommitHash)
	return json.Marshal(m)
}

func validateTicket(raw json.RawMessage) (json.RawMessage, error) {
	var m TicketMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Field: "type_metadata", Reason: "invalid JSON for ticket evidence"}
	}
	if m.TicketID == "" {
		return nil, &ValidationError{Field: "ticket_id", Reason: "required"}
	}
	if m.TicketSystem == "" {
		return nil, &ValidationError{Field: "ticket_system", Reason: "required"}
	}
	return json.Marshal(m)
}

func validateNote(raw json.RawMessage) (json.RawMessage, error) {
	var m NoteMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Field: "type_metadata", Reason: "invalid JSON for note evidence"}
	}
	if m.Content == "" {
		return nil, &ValidationError{Field: "content", Reason: "required"}
	}
	return json.Marshal(m)
}

func isAbsoluteURL(s string) bool {
	if s == "" {
		return false
	}
	idx := strings.Index(s, "://")
	return idx > 0 && idx < 20 && len(s) > idx+3
}

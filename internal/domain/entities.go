// Package domain holds the entity types and closed enumerations shared by
// every service package: Organization, User, AISystem, SystemVersion,
// AnnexSection, EvidenceItem, EvidenceMapping, Export, LogApiKey,
// DecisionLog, AuditEvent, plus the supplemented HighRiskAssessment and
// LlmInteraction entities (spec §3; SPEC_FULL.md "Supplemented features").
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant root. All other entities are reachable from
// exactly one Organization; no query ever crosses this boundary.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User belongs to exactly one Organization.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	OrgID               uuid.UUID  `json:"org_id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	Active              bool       `json:"active"`
	CreatedAt           time.Time  `json:"created_at"`
}

// AISystem is a catalogued AI system under an Organization. Version is a
// monotonically increasing row-revision counter used for optimistic
// concurrency (distinct from SystemVersion's own status lifecycle).
type AISystem struct {
	ID                 uuid.UUID  `json:"id"`
	OrgID              uuid.UUID  `json:"org_id"`
	Name               string     `json:"name"`
	IntendedPurpose    string     `json:"intended_purpose"`
	HRUseCaseType      string     `json:"hr_use_case_type"`
	DeploymentType     string     `json:"deployment_type"`
	DecisionInfluence  string     `json:"decision_influence"`
	OwnerUserID        *uuid.UUID `json:"owner_user_id,omitempty"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SystemVersion is an immutable-once-approved-and-exported snapshot of an AISystem's
// Annex IV documentation (spec §4.1).
type SystemVersion struct {
	ID          uuid.UUID     `json:"id"`
	AISystemID  uuid.UUID     `json:"ai_system_id"`
	Label       string        `json:"label"`
	Status      VersionStatus `json:"status"`
	Notes       string        `json:"notes"`
	ReleaseDate *time.Time    `json:"release_date,omitempty"`
	ApprovedBy  *uuid.UUID    `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time    `json:"approved_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// AnnexSection holds the content for one of the twelve fixed sections of a
// SystemVersion's documentation.
type AnnexSection struct {
	ID                uuid.UUID              `json:"id"`
	VersionID         uuid.UUID              `json:"version_id"`
	SectionKey        AnnexSectionKey        `json:"section_key"`
	Content           map[string]interface{} `json:"content"`
	EvidenceRefs      []uuid.UUID            `json:"evidence_refs"`
	CompletenessScore float64                `json:"completeness_score"`
	LLMAssisted       bool                   `json:"llm_assisted"`
	LastEditedBy      *uuid.UUID             `json:"last_edited_by,omitempty"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// EvidenceItem is an org-scoped piece of supporting evidence with a
// type-dependent metadata shape (spec §4.2, §9 tagged-variant design note).
type EvidenceItem struct {
	ID             uuid.UUID       `json:"id"`
	OrgID          uuid.UUID       `json:"org_id"`
	Type           EvidenceType    `json:"type"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Tags           []string        `json:"tags"`
	Classification Classification  `json:"classification"`
	TypeMetadata   json.RawMessage `json:"type_metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Populated by the listing/create paths, not persisted columns.
	UsageCount  int        `json:"usage_count,omitempty"`
	DuplicateOf *uuid.UUID `json:"duplicate_of,omitempty"`
}

// EvidenceMapping links an EvidenceItem to a sub-target of a SystemVersion.
type EvidenceMapping struct {
	ID         uuid.UUID       `json:"id"`
	EvidenceID uuid.UUID       `json:"evidence_id"`
	VersionID  uuid.UUID       `json:"version_id"`
	TargetType TargetType      `json:"target_type"`
	TargetKey  string          `json:"target_key"`
	Strength   MappingStrength `json:"strength,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Export is an immutable, version-scoped export artifact (spec §4.3).
type Export struct {
	ID                uuid.UUID  `json:"id"`
	VersionID         uuid.UUID  `json:"version_id"`
	ExportType        ExportType `json:"export_type"`
	SnapshotHash      string     `json:"snapshot_hash"`
	StorageURI        string     `json:"storage_uri"`
	FileSize          int64      `json:"file_size"`
	CompareVersionID  *uuid.UUID `json:"compare_version_id,omitempty"`
	CompletenessScore float64    `json:"completeness_score"`
	CreatedAt         time.Time  `json:"created_at"`
}

// LogApiKey authenticates decision-log ingestion for one SystemVersion.
type LogApiKey struct {
	ID           uuid.UUID  `json:"id"`
	VersionID    uuid.UUID  `json:"version_id"`
	Name         string     `json:"name"`
	KeyHash      string     `json:"-"`
	AllowRawPII  bool       `json:"allow_raw_pii"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DecisionLog is a single ingested decision event (spec §4.5).
type DecisionLog struct {
	ID         uuid.UUID       `json:"id"`
	VersionID  uuid.UUID       `json:"version_id"`
	EventID    string          `json:"event_id"`
	EventTime  time.Time       `json:"event_time"`
	EventJSON  json.RawMessage `json:"event_json"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// AuditEvent is an append-only audit trail row (spec §3, §8 property 6).
type AuditEvent struct {
	ID         uuid.UUID       `json:"id"`
	OrgID      uuid.UUID       `json:"org_id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	Action     AuditAction     `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	DiffJSON   json.RawMessage `json:"diff_json,omitempty"`
	IP         string          `json:"ip,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// HighRiskAssessment is a heuristic wizard score for a SystemVersion
// (supplemented from original_source/.../assessment_service.py; populates
// the manifest's high_risk_assessment field, spec §4.3).
type HighRiskAssessment struct {
	ID         uuid.UUID              `json:"id"`
	VersionID  uuid.UUID              `json:"version_id"`
	Answers    map[string]interface{} `json:"answers"`
	Score      float64                `json:"score"`
	IsHighRisk bool                   `json:"is_high_risk"`
	Rationale  []string               `json:"rationale"`
	CreatedBy  uuid.UUID              `json:"created_by"`
	CreatedAt  time.Time              `json:"created_at"`
}

// LlmInteraction persists every draft-generation call, including
// strict-mode refusals and offline-degraded responses (supplemented from
// original_source/.../draft_service.py's LlmInteraction model).
type LlmInteraction struct {
	ID                  uuid.UUID   `json:"id"`
	VersionID           uuid.UUID   `json:"version_id"`
	SectionKey          AnnexSectionKey `json:"section_key"`
	UserID              uuid.UUID   `json:"user_id"`
	SelectedEvidenceIDs []uuid.UUID `json:"selected_evidence_ids"`
	Prompt              string      `json:"prompt"`
	Response            string      `json:"response"`
	CitedEvidenceIDs    []uuid.UUID `json:"cited_evidence_ids"`
	Model               string      `json:"model"`
	InputTokens         int         `json:"input_tokens"`
	OutputTokens        int         `json:"output_tokens"`
	StrictMode          bool        `json:"strict_mode"`
	DurationMS          int64       `json:"duration_ms"`
	CreatedAt           time.Time   `json:"created_at"`
}

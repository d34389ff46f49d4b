package domain

// Role is a user's permission level within an organization. Roles are
// totally ordered for RBAC gate checks: Admin > Editor > Reviewer > Viewer.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleReviewer Role = "reviewer"
	RoleViewer   Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer:   0,
	RoleReviewer: 1,
	RoleEditor:   2,
	RoleAdmin:    3,
}

// AtLeast reports whether r grants at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// VersionStatus is the SystemVersion lifecycle state (spec §4.1).
type VersionStatus string

const (
	VersionDraft    VersionStatus = "draft"
	VersionReview   VersionStatus = "review"
	VersionApproved VersionStatus = "approved"
)

func (s VersionStatus) Valid() bool {
	switch s {
	case VersionDraft, VersionReview, VersionApproved:
		return true
	}
	return false
}

// EvidenceType is the closed set of evidence kinds (spec §3, §4.2).
type EvidenceType string

const (
	EvidenceUpload EvidenceType = "upload"
	EvidenceURL    EvidenceType = "url"
	EvidenceGit    EvidenceType = "git"
	EvidenceTicket EvidenceType = "ticket"
	EvidenceNote   EvidenceType = "note"
)

func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceUpload, EvidenceURL, EvidenceGit, EvidenceTicket, EvidenceNote:
		return true
	}
	return false
}

// Classification is the evidence sensitivity tag.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
)

func (c Classification) Valid() bool {
	switch c {
	case ClassificationPublic, ClassificationInternal, ClassificationConfidential:
		return true
	}
	return false
}

// TargetType is the closed set of EvidenceMapping sub-targets (spec §3, §4.2).
type TargetType string

const (
	TargetSection     TargetType = "section"
	TargetField       TargetType = "field"
	TargetRequirement TargetType = "requirement"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetSection, TargetField, TargetRequirement:
		return true
	}
	return false
}

// MappingStrength is optional confidence metadata on an EvidenceMapping.
type MappingStrength string

const (
	StrengthWeak   MappingStrength = "weak"
	StrengthMedium MappingStrength = "medium"
	StrengthStrong MappingStrength = "strong"
)

func (s MappingStrength) Valid() bool {
	switch s {
	case "", StrengthWeak, StrengthMedium, StrengthStrong:
		return true
	}
	return false
}

// ExportType distinguishes a full snapshot export from a diff-only export.
type ExportType string

const (
	ExportFull ExportType = "full"
	ExportDiff ExportType = "diff"
)

// AnnexSectionKey is the closed enumeration of the twelve Annex IV
// documentation sections (spec §3, §4.4).
type AnnexSectionKey string

const (
	SectionGeneral                    AnnexSectionKey = "ANNEX4.GENERAL"
	SectionIntendedPurpose             AnnexSectionKey = "ANNEX4.INTENDED_PURPOSE"
	SectionSystemDescription           AnnexSectionKey = "ANNEX4.SYSTEM_DESCRIPTION"
	SectionRiskManagement              AnnexSectionKey = "ANNEX4.RISK_MANAGEMENT"
	SectionDataGovernance              AnnexSectionKey = "ANNEX4.DATA_GOVERNANCE"
	SectionModelTechnical              AnnexSectionKey = "ANNEX4.MODEL_TECHNICAL"
	SectionPerformance                 AnnexSectionKey = "ANNEX4.PERFORMANCE"
	SectionHumanOversight              AnnexSectionKey = "ANNEX4.HUMAN_OVERSIGHT"
	SectionLogging                     AnnexSectionKey = "ANNEX4.LOGGING"
	SectionAccuracyRobustnessCybersec  AnnexSectionKey = "ANNEX4.ACCURACY_ROBUSTNESS_CYBERSEC"
	SectionPostMarketMonitoring        AnnexSectionKey = "ANNEX4.POST_MARKET_MONITORING"
	SectionChangeManagement            AnnexSectionKey = "ANNEX4.CHANGE_MANAGEMENT"
)

// AllSectionKeys is the fixed, ordered set of the twelve sections.
var AllSectionKeys = []AnnexSectionKey{
	SectionGeneral,
	SectionIntendedPurpose,
	SectionSystemDescription,
	SectionRiskManagement,
	SectionDataGovernance,
	SectionModelTechnical,
	SectionPerformance,
	SectionHumanOversight,
	SectionLogging,
	SectionAccuracyRobustnessCybersec,
	SectionPostMarketMonitoring,
	SectionChangeManagement,
}

// SectionTitles is the human-readable title for each section key.
var SectionTitles = map[AnnexSectionKey]string{
	SectionGeneral:                    "General Information",
	SectionIntendedPurpose:            "Intended Purpose",
	SectionSystemDescription:          "System Description",
	SectionRiskManagement:             "Risk Management System",
	SectionDataGovernance:             "Data Governance",
	SectionModelTechnical:             "Model & Technical Documentation",
	SectionPerformance:                "Performance Metrics",
	SectionHumanOversight:             "Human Oversight",
	SectionLogging:                    "Logging & Traceability",
	SectionAccuracyRobustnessCybersec: "Accuracy, Robustness & Cybersecurity",
	SectionPostMarketMonitoring:       "Post-Market Monitoring",
	SectionChangeManagement:           "Change Management",
}

func (k AnnexSectionKey) Valid() bool {
	_, ok := SectionTitles[k]
	return ok
}

// AuditAction is the closed enum of audit event kinds (spec §3, §8 property 6).
type AuditAction string

const (
	ActionOrgCreate            AuditAction = "org.create"
	ActionUserCreate           AuditAction = "user.create"
	ActionUserUpdate           AuditAction = "user.update"
	ActionUserDelete           AuditAction = "user.delete"
	ActionSystemCreate         AuditAction = "system.create"
	ActionSystemUpdate         AuditAction = "system.update"
	ActionSystemDelete         AuditAction = "system.delete"
	ActionVersionCreate        AuditAction = "version.create"
	ActionVersionUpdate        AuditAction = "version.update"
	ActionVersionStatusChange  AuditAction = "version.status_change"
	ActionVersionClone         AuditAction = "version.clone"
	ActionVersionDelete        AuditAction = "version.delete"
	ActionSectionUpdate        AuditAction = "section.update"
	ActionEvidenceCreate       AuditAction = "evidence.create"
	ActionEvidenceUpdate       AuditAction = "evidence.update"
	ActionEvidenceDelete       AuditAction = "evidence.delete"
	ActionMappingCreate        AuditAction = "mapping.create"
	ActionMappingDelete        AuditAction = "mapping.delete"
	ActionExportCreate         AuditAction = "export.create"
	ActionLoggingKeyEnable     AuditAction = "logging.key_enable"
	ActionLoggingKeyRevoke     AuditAction = "logging.key_revoke"
	ActionDecisionLogIngest    AuditAction = "decisionlog.ingest"
	ActionAssessmentSubmit     AuditAction = "assessment.submit"
	ActionDraftGenerate        AuditAction = "draft.generate"
)

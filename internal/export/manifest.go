package export

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/domain"
	"github.com/annexops/registry/pkg/canonicalize"
)

// manifestInput gathers every read needed to build a manifest for one
// version snapshot (spec §4.3).
type manifestInput struct {
	OrgID       uuid.UUID
	OrgName     string
	System      *domain.AISystem
	Version     *domain.SystemVersion
	Assessment  *domain.HighRiskAssessment
	Sections    []*domain.AnnexSection
	Evidence    map[uuid.UUID]*domain.EvidenceItem
	Mappings    []*domain.EvidenceMapping
	GeneratedAt time.Time
}

// buildManifest assembles the canonical manifest map and fills
// snapshot_hash by hashing the map with generated_at and snapshot_hash
// itself excluded from the hash input (spec §4.3).
func buildManifest(in manifestInput) (map[string]interface{}, error) {
	sections := make(map[string]interface{}, len(in.Sections))
	for _, sec := range in.Sections {
		refs := make([]string, len(sec.EvidenceRefs))
		for i, r := range sec.EvidenceRefs {
			refs[i] = r.String()
		}
		sort.Strings(refs)
		sections[string(sec.SectionKey)] = map[string]interface{}{
			"content":       sec.Content,
			"evidence_refs": refs,
		}
	}

	evidenceIndex := make(map[string]interface{}, len(in.Evidence))
	for id, ev := range in.Evidence {
		entry := map[string]interface{}{
			"title":          ev.Title,
			"type":           string(ev.Type),
			"classification": string(ev.Classification),
		}
		if checksum := extractChecksum(ev.TypeMetadata); checksum != "" {
			entry["checksum"] = checksum
		}
		evidenceIndex[id.String()] = entry
	}

	mappings := make([]map[string]interface{}, 0, len(in.Mappings))
	for _, m := range in.Mappings {
		entry := map[string]interface{}{
			"evidence_id": m.EvidenceID.String(),
			"target_type": string(m.TargetType),
			"target_key":  m.TargetKey,
		}
		if m.Strength != "" {
			entry["strength"] = string(m.Strength)
		}
		mappings = append(mappings, entry)
	}
	sort.Slice(mappings, func(i, j int) bool {
		a, b := mappings[i], mappings[j]
		if a["evidence_id"] != b["evidence_id"] {
			return a["evidence_id"].(string) < b["evidence_id"].(string)
		}
		if a["target_type"] != b["target_type"] {
			return a["target_type"].(string) < b["target_type"].(string)
		}
		return a["target_key"].(string) < b["target_key"].(string)
	})

	var assessment interface{}
	if in.Assessment != nil {
		assessment = map[string]interface{}{
			"score":        in.Assessment.Score,
			"is_high_risk": in.Assessment.IsHighRisk,
			"rationale":    in.Assessment.Rationale,
			"created_at":   in.Assessment.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	var releaseDate interface{}
	if in.Version.ReleaseDate != nil {
		releaseDate = in.Version.ReleaseDate.UTC().Format("2006-01-02")
	}

	manifest := map[string]interface{}{
		"manifest_version": "1.0",
		"generated_at":     in.GeneratedAt.UTC().Format(time.RFC3339),
		"org": map[string]interface{}{
			"id":   in.OrgID.String(),
			"name": in.OrgName,
		},
		"ai_system": map[string]interface{}{
			"id":                 in.System.ID.String(),
			"name":               in.System.Name,
			"hr_use_case_type":   in.System.HRUseCaseType,
			"intended_purpose":   in.System.IntendedPurpose,
			"deployment_type":    in.System.DeploymentType,
			"decision_influence": in.System.DecisionInfluence,
		},
		"system_version": map[string]interface{}{
			"id":           in.Version.ID.String(),
			"label":        in.Version.Label,
			"status":       string(in.Version.Status),
			"release_date": releaseDate,
		},
		"high_risk_assessment": assessment,
		"annex_sections":       sections,
		"evidence_index":       evidenceIndex,
		"mappings":             mappings,
		"snapshot_hash":        "",
	}

	hash, err := hashManifest(manifest)
	if err != nil {
		return nil, err
	}
	manifest["snapshot_hash"] = hash
	return manifest, nil
}

// hashManifest computes the snapshot hash over the manifest with
// generated_at and snapshot_hash removed, per spec §4.3.
func hashManifest(manifest map[string]interface{}) (string, error) {
	hashable := make(map[string]interface{}, len(manifest))
	for k, v := range manifest {
		if k == "generated_at" || k == "snapshot_hash" {
			continue
		}
		hashable[k] = v
	}
	return canonicalize.Hash(hashable)
}

// extractChecksum pulls the "checksum_sha256" field out of an evidence
// item's type_metadata blob when present (upload evidence only).
func extractChecksum(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	if v, ok := m["checksum_sha256"].(string); ok {
		return v
	}
	return ""
}

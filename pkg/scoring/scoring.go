// Package scoring computes per-section and per-version completeness scores
// and detects documentation gaps for Annex IV sections (spec §4.4).
package scoring

import (
	"math"

	"github.com/annexops/registry/internal/domain"
)

// SectionSchemas is the fixed per-section dictionary of required field
// names maintained alongside the code (spec §4.4: "a fixed per-key
// dictionary maintained alongside the code").
var SectionSchemas = map[domain.AnnexSectionKey][]string{
	domain.SectionGeneral: {
		"system_name", "provider_name", "provider_contact", "version_label", "documentation_date",
	},
	domain.SectionIntendedPurpose: {
		"intended_purpose", "deployment_context", "target_users",
	},
	domain.SectionSystemDescription: {
		"system_overview", "architecture_summary", "key_components",
	},
	domain.SectionRiskManagement: {
		"risk_management_process", "identified_risks", "mitigation_measures",
	},
	domain.SectionDataGovernance: {
		"training_data_description", "data_quality_measures", "data_governance_process",
	},
	domain.SectionModelTechnical: {
		"model_architecture", "training_methodology", "validation_methodology",
	},
	domain.SectionPerformance: {
		"accuracy_metrics", "performance_benchmarks",
	},
	domain.SectionHumanOversight: {
		"oversight_measures", "human_intervention_points",
	},
	domain.SectionLogging: {
		"logging_capabilities", "log_retention_policy",
	},
	domain.SectionAccuracyRobustnessCybersec: {
		"robustness_measures", "cybersecurity_measures", "accuracy_validation",
	},
	domain.SectionPostMarketMonitoring: {
		"monitoring_plan", "incident_reporting_process",
	},
	domain.SectionChangeManagement: {
		"change_control_process", "version_history_summary",
	},
}

// SectionWeights is the fixed per-section weights table used to compute a
// version's overall completeness score (spec §4.4). Every section carries
// equal weight; sections absent from a version still contribute their full
// weight to the denominator.
var SectionWeights = map[domain.AnnexSectionKey]float64{
	domain.SectionGeneral:                    1,
	domain.SectionIntendedPurpose:            1,
	domain.SectionSystemDescription:          1,
	domain.SectionRiskManagement:             1,
	domain.SectionDataGovernance:              1,
	domain.SectionModelTechnical:              1,
	domain.SectionPerformance:                 1,
	domain.SectionHumanOversight:              1,
	domain.SectionLogging:                     1,
	domain.SectionAccuracyRobustnessCybersec:  1,
	domain.SectionPostMarketMonitoring:        1,
	domain.SectionChangeManagement:            1,
}

// SectionScore computes the completeness score of one section using the
// spec §4.4 formula: 50% from required fields filled, 50% from evidence
// count (capped at 3). A section with no required fields scores purely on
// evidence, out of the full 100.
func SectionScore(key domain.AnnexSectionKey, content map[string]interface{}, evidenceRefCount int) float64 {
	required := SectionSchemas[key]
	if len(required) == 0 {
		return round2(min(float64(evidenceRefCount), 3) / 3 * 100)
	}

	filled := 0
	for _, field := range required {
		if isFilled(content[field]) {
			filled++
		}
	}
	fieldScore := float64(filled) / float64(len(required)) * 50
	evidenceScore := min(float64(evidenceRefCount), 3) / 3 * 50
	return round2(fieldScore + evidenceScore)
}

func isFilled(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	default:
		return true
	}
}

// VersionScore computes the weighted mean of a set of section scores over
// the fixed SectionWeights table. Sections absent from scores contribute 0
// to the numerator but their full weight still counts in the denominator.
func VersionScore(scores map[domain.AnnexSectionKey]float64) float64 {
	var totalScore, totalWeight float64
	for key, weight := range SectionWeights {
		totalWeight += weight
		if score, ok := scores[key]; ok {
			totalScore += score * weight
		}
	}
	if totalWeight == 0 {
		return 0
	}
	return round2(totalScore / totalWeight)
}

// Gap is a single documentation gap surfaced by the completeness report.
type Gap struct {
	SectionKey  domain.AnnexSectionKey `json:"section_key"`
	GapType     string                 `json:"gap_type"` // "required_field" | "no_evidence"
	Description string                 `json:"description"`
}

// DetectGaps emits a required_field gap for each unfilled required field of
// the section, plus a single no_evidence gap when evidenceRefCount is 0
// (spec §4.4).
func DetectGaps(key domain.AnnexSectionKey, content map[string]interface{}, evidenceRefCount int) []Gap {
	var gaps []Gap
	for _, field := range SectionSchemas[key] {
		if !isFilled(content[field]) {
			gaps = append(gaps, Gap{
				SectionKey:  key,
				GapType:     "required_field",
				Description: "missing required field: " + field,
			})
		}
	}
	if evidenceRefCount == 0 {
		gaps = append(gaps, Gap{
			SectionKey:  key,
			GapType:     "no_evidence",
			Description: "no evidence items mapped to this section",
		})
	}
	return gaps
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

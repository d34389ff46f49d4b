package export

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/google/uuid"

	"github.com/annexops/registry/internal/domain"
)

// SectionDiff reports whether one section's content differs between the
// current and compare versions (spec §4.3 "Diff report").
type SectionDiff struct {
	SectionKey domain.AnnexSectionKey `json:"section_key"`
	Changed    bool                   `json:"changed"`
	Before     map[string]interface{} `json:"before,omitempty"`
	After      map[string]interface{} `json:"after,omitempty"`
}

// DiffReport is the DiffReport.json payload emitted when a caller requests
// include_diff=true against a compare_version_id (spec §4.3).
type DiffReport struct {
	CurrentVersionID uuid.UUID      `json:"current_version_id"`
	CompareVersionID uuid.UUID      `json:"compare_version_id"`
	Sections         []SectionDiff  `json:"sections"`
	EvidenceAdded    []string       `json:"evidence_added"`
	EvidenceRemoved  []string       `json:"evidence_removed"`
}

// buildDiffReport computes section content diffs and the evidence-set
// difference between the current version and a compare version. added =
// current \ compare, removed = compare \ current, each sorted by id.
func buildDiffReport(currentVersionID, compareVersionID uuid.UUID, current, compare []*domain.AnnexSection, currentEvidenceIDs, compareEvidenceIDs []uuid.UUID) *DiffReport {
	compareByKey := make(map[domain.AnnexSectionKey]*domain.AnnexSection, len(compare))
	for _, sec := range compare {
		compareByKey[sec.SectionKey] = sec
	}

	sections := make([]SectionDiff, 0, len(current))
	for _, sec := range current {
		other := compareByKey[sec.SectionKey]
		var before map[string]interface{}
		changed := other == nil
		if other != nil {
			before = other.Content
			changed = !reflect.DeepEqual(before, sec.Content)
		}
		if changed {
			sections = append(sections, SectionDiff{
				SectionKey: sec.SectionKey,
				Changed:    true,
				Before:     before,
				After:      sec.Content,
			})
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].SectionKey < sections[j].SectionKey })

	added, removed := diffIDSets(currentEvidenceIDs, compareEvidenceIDs)

	return &DiffReport{
		CurrentVersionID: currentVersionID,
		CompareVersionID: compareVersionID,
		Sections:         sections,
		EvidenceAdded:    added,
		EvidenceRemoved:  removed,
	}
}

func diffIDSets(current, compare []uuid.UUID) (added, removed []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id.String()] = struct{}{}
	}
	compareSet := make(map[string]struct{}, len(compare))
	for _, id := range compare {
		compareSet[id.String()] = struct{}{}
	}

	for id := range currentSet {
		if _, ok := compareSet[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range compareSet {
		if _, ok := currentSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// canonicalDiffJSON marshals a DiffReport the same canonical way as every
// other export artifact, so DiffReport.json is byte-stable too.
func canonicalDiffJSON(r *DiffReport) (map[string]interface{}, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

package similarity

import (
	"github.com/patient-similarity-server/internal/domain"
)

// Group partitions records by variant key (chromosome, start, end, ref, alt).
// Groups are returned in order of the first occurrence of their key and records
// keep their input order within a group. Sample IDs are collected in first-seen
// order without duplicates.
func Group(records []domain.MutationRecord) []domain.MutationGroup {
	groups := make([]domain.MutationGroup, 0, len(records))
	index := make(map[domain.VariantKey]int, len(records))
	seen := make(map[domain.VariantKey]map[string]bool, len(records))

	for _, r := range records {
		key := r.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			seen[key] = make(map[string]bool)
			groups = append(groups, domain.MutationGroup{})
		}
		groups[i].Records = append(groups[i].Records, r)
		if !seen[key][r.SampleID] {
			seen[key][r.SampleID] = true
			groups[i].SampleIDs = append(groups[i].SampleIDs, r.SampleID)
		}
	}
	return groups
}

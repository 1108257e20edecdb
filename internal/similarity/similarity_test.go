package similarity

import (
	"github.com/patient-similarity-server/internal/domain"
)

func rec(gene, chr string, start, end int64, ref, alt, protein, sample string) domain.MutationRecord {
	return domain.MutationRecord{
		GeneID:          gene,
		Chromosome:      chr,
		StartPosition:   start,
		EndPosition:     end,
		ReferenceAllele: ref,
		VariantAllele:   alt,
		ProteinChange:   protein,
		SampleID:        sample,
	}
}

func group(records ...domain.MutationRecord) domain.MutationGroup {
	g := domain.MutationGroup{Records: records}
	seen := map[string]bool{}
	for _, r := range records {
		if !seen[r.SampleID] {
			seen[r.SampleID] = true
			g.SampleIDs = append(g.SampleIDs, r.SampleID)
		}
	}
	return g
}

func permutations(groups []domain.MutationGroup) [][]domain.MutationGroup {
	if len(groups) <= 1 {
		return [][]domain.MutationGroup{append([]domain.MutationGroup(nil), groups...)}
	}
	var out [][]domain.MutationGroup
	for i := range groups {
		rest := make([]domain.MutationGroup, 0, len(groups)-1)
		rest = append(rest, groups[:i]...)
		rest = append(rest, groups[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]domain.MutationGroup{groups[i]}, p...))
		}
	}
	return out
}

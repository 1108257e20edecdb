package similarity

import (
	"github.com/patient-similarity-server/internal/domain"
)

// Filter keeps the matches whose tag is in allowed, preserving order. An empty
// allowed set yields an empty result.
func Filter(matches []domain.SimilarityMatch, allowed []domain.SimilarityTag) []domain.SimilarityMatch {
	out := make([]domain.SimilarityMatch, 0, len(matches))
	if len(allowed) == 0 {
		return out
	}
	set := make(map[domain.SimilarityTag]bool, len(allowed))
	for _, t := range allowed {
		set[t] = true
	}
	for _, m := range matches {
		if set[m.Tag] {
			out = append(out, m)
		}
	}
	return out
}

// TagCounts counts matches per tag.
func TagCounts(matches []domain.SimilarityMatch) map[domain.SimilarityTag]int {
	counts := make(map[domain.SimilarityTag]int, len(domain.AllMatchTags()))
	for _, m := range matches {
		counts[m.Tag]++
	}
	return counts
}

// Score sums the ladder scores of the matches.
func Score(matches []domain.SimilarityMatch) int {
	total := 0
	for _, m := range matches {
		total += m.Score()
	}
	return total
}

// CommonVariants returns the comparison records whose exact locus also occurs in
// the reference records, in comparison order.
func CommonVariants(reference, comparison []domain.MutationRecord) []domain.MutationRecord {
	loci := make(map[domain.LocusKey]bool, len(reference))
	for _, r := range reference {
		loci[r.Locus()] = true
	}
	common := make([]domain.MutationRecord, 0)
	for _, c := range comparison {
		if loci[c.Locus()] {
			common = append(common, c)
		}
	}
	return common
}

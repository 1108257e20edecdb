package similarity

import (
	"github.com/patient-similarity-server/internal/domain"
)

// Classify returns the highest ladder category that holds between two records,
// or TagUnequal when none does.
func Classify(ref, cmp domain.MutationRecord) domain.SimilarityTag {
	switch {
	case ref.Locus() == cmp.Locus():
		return domain.TagEqual
	case ref.GeneID == cmp.GeneID && ref.ProteinChange != "" && ref.ProteinChange == cmp.ProteinChange:
		return domain.TagProteinChange
	case ref.GeneID == cmp.GeneID:
		return domain.TagGene
	default:
		return domain.TagUnequal
	}
}

// best is the running result of scanning comparison groups for one reference group.
type best struct {
	score int
	index int
	tag   domain.SimilarityTag
}

func bestMatch(ref domain.MutationRecord, comparison []domain.MutationGroup) best {
	acc := best{score: domain.ScoreNone, index: -1, tag: domain.TagUnequal}
	for j := range comparison {
		tag := Classify(ref, comparison[j].Representative())
		if tag.Score() > acc.score {
			acc = best{score: tag.Score(), index: j, tag: tag}
		}
		if acc.score == domain.ScoreEqual {
			break
		}
	}
	return acc
}

// Match classifies every reference group against the comparison groups.
//
// For each reference group the comparison groups are scanned in order and the
// best match so far is replaced only by a strictly higher score, so the first
// comparison group wins among equals. Scanning stops at an exact match.
// Reference groups with no qualifying comparison group are omitted; the result
// never contains TagUnequal.
func Match(reference, comparison []domain.MutationGroup) []domain.SimilarityMatch {
	matches := make([]domain.SimilarityMatch, 0, len(reference))
	for _, ref := range reference {
		b := bestMatch(ref.Representative(), comparison)
		if b.score <= domain.ScoreNone {
			continue
		}
		cmp := comparison[b.index]
		matches = append(matches, domain.SimilarityMatch{
			Reference:  ref,
			Comparison: &cmp,
			Tag:        b.tag,
		})
	}
	return matches
}

package similarity

import (
	"sort"

	"github.com/patient-similarity-server/internal/domain"
)

// Candidate is a comparison patient with its already filtered matches against
// the reference patient.
type Candidate struct {
	Patient domain.Patient
	Matches []domain.SimilarityMatch
	Common  []domain.MutationRecord
}

// RankOptions control Rank.
type RankOptions struct {
	// DropEmpty removes candidates without any match.
	DropEmpty bool
	// Limit truncates the ranking; zero or negative keeps everything.
	Limit int
}

// Rank orders candidates by total score, then number of matches, then number of
// exact matches, all descending. Ties keep input order. Ranks are 1-based.
func Rank(candidates []Candidate, opts RankOptions) []domain.RankedPatient {
	ranked := make([]domain.RankedPatient, 0, len(candidates))
	for _, c := range candidates {
		if opts.DropEmpty && len(c.Matches) == 0 {
			continue
		}
		ranked = append(ranked, domain.RankedPatient{
			Patient:    c.Patient,
			Matches:    c.Matches,
			TagCounts:  TagCounts(c.Matches),
			Score:      Score(c.Matches),
			CommonVars: c.Common,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Matches) != len(b.Matches) {
			return len(a.Matches) > len(b.Matches)
		}
		return a.EqualCount() > b.EqualCount()
	})

	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

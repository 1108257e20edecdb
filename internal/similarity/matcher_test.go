package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-similarity-server/internal/domain"
)

func TestClassify(t *testing.T) {
	ref := rec("TP53", "17", 100, 100, "C", "T", "R175H", "S1")

	tests := []struct {
		name     string
		cmp      domain.MutationRecord
		expected domain.SimilarityTag
	}{
		{"same locus", rec("TP53", "17", 100, 100, "C", "T", "R175H", "S9"), domain.TagEqual},
		{"same locus different end", rec("TP53", "17", 100, 105, "C", "T", "", "S9"), domain.TagEqual},
		{"same locus different gene", rec("OTHER", "17", 100, 100, "C", "T", "", "S9"), domain.TagEqual},
		{"same protein change", rec("TP53", "17", 300, 300, "G", "A", "R175H", "S9"), domain.TagProteinChange},
		{"same gene", rec("TP53", "17", 300, 300, "G", "A", "R248Q", "S9"), domain.TagGene},
		{"protein change in other gene", rec("BRAF", "7", 300, 300, "G", "A", "R175H", "S9"), domain.TagUnequal},
		{"nothing shared", rec("BRAF", "7", 300, 300, "G", "A", "V600E", "S9"), domain.TagUnequal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(ref, tt.cmp))
		})
	}
}

func TestClassify_EmptyProteinChangeIsNotAProteinMatch(t *testing.T) {
	ref := rec("TP53", "17", 100, 100, "C", "T", "", "S1")
	cmp := rec("TP53", "17", 300, 300, "G", "A", "", "S2")

	assert.Equal(t, domain.TagGene, Classify(ref, cmp))
}

func TestClassify_EmptyGeneIDsCompareLiterally(t *testing.T) {
	ref := rec("", "1", 100, 100, "C", "T", "", "S1")
	cmp := rec("", "2", 300, 300, "G", "A", "", "S2")

	assert.Equal(t, domain.TagGene, Classify(ref, cmp))
}

func TestMatch_EndToEndExample(t *testing.T) {
	g1 := group(rec("TP53", "chr1", 100, 100, "A", "T", "R175H", "R1"))
	g2 := group(rec("KRAS", "chr2", 50, 50, "C", "G", "G12D", "R1"))
	c1 := group(rec("TP53", "chr1", 100, 100, "A", "T", "R175H", "C1"))
	c2 := group(rec("KRAS", "chr5", 1, 1, "G", "C", "Q61H", "C1"))

	matches := Match([]domain.MutationGroup{g1, g2}, []domain.MutationGroup{c1, c2})

	require.Len(t, matches, 2)
	assert.Equal(t, g1, matches[0].Reference)
	require.NotNil(t, matches[0].Comparison)
	assert.Equal(t, c1, *matches[0].Comparison)
	assert.Equal(t, domain.TagEqual, matches[0].Tag)

	assert.Equal(t, g2, matches[1].Reference)
	require.NotNil(t, matches[1].Comparison)
	assert.Equal(t, c2, *matches[1].Comparison)
	assert.Equal(t, domain.TagGene, matches[1].Tag)
}

func TestMatch_HighestRankWinsInEveryOrder(t *testing.T) {
	ref := group(rec("TP53", "17", 100, 100, "C", "T", "R175H", "R1"))
	equal := group(rec("TP53", "17", 100, 100, "C", "T", "R175H", "E1"))
	phgvs := group(rec("TP53", "17", 200, 200, "G", "A", "R175H", "P1"))
	gene := group(rec("TP53", "17", 300, 300, "A", "G", "R248Q", "G1"))

	for _, perm := range permutations([]domain.MutationGroup{equal, phgvs, gene}) {
		matches := Match([]domain.MutationGroup{ref}, perm)

		require.Len(t, matches, 1)
		assert.Equal(t, domain.TagEqual, matches[0].Tag)
		require.NotNil(t, matches[0].Comparison)
		assert.Equal(t, equal, *matches[0].Comparison)
	}
}

func TestMatch_ProteinChangeBeatsGeneInEveryOrder(t *testing.T) {
	ref := group(rec("TP53", "17", 100, 100, "C", "T", "R175H", "R1"))
	phgvs := group(rec("TP53", "17", 200, 200, "G", "A", "R175H", "P1"))
	gene := group(rec("TP53", "17", 300, 300, "A", "G", "R248Q", "G1"))
	other := group(rec("BRAF", "7", 400, 400, "T", "A", "V600E", "O1"))

	for _, perm := range permutations([]domain.MutationGroup{phgvs, gene, other}) {
		matches := Match([]domain.MutationGroup{ref}, perm)

		require.Len(t, matches, 1)
		assert.Equal(t, domain.TagProteinChange, matches[0].Tag)
		assert.Equal(t, phgvs, *matches[0].Comparison)
	}
}

func TestMatch_FirstEqualWins(t *testing.T) {
	ref := group(rec("TP53", "17", 100, 100, "C", "T", "R175H", "R1"))
	first := group(rec("TP53", "17", 100, 100, "C", "T", "R175H", "FIRST"))
	second := group(rec("TP53", "17", 100, 101, "C", "T", "R175H", "SECOND"))
	gene := group(rec("TP53", "17", 300, 300, "A", "G", "R248Q", "G1"))

	matches := Match([]domain.MutationGroup{ref}, []domain.MutationGroup{gene, first, second})

	require.Len(t, matches, 1)
	assert.Equal(t, domain.TagEqual, matches[0].Tag)
	assert.Equal(t, []string{"FIRST"}, matches[0].Comparison.SampleIDs)
}

func TestMatch_FirstWinsWithinRank(t *testing.T) {
	ref := group(rec("KRAS", "12", 100, 100, "C", "T", "G12D", "R1"))
	geneA := group(rec("KRAS", "12", 200, 200, "G", "A", "Q61H", "A"))
	geneB := group(rec("KRAS", "12", 300, 300, "G", "A", "G13D", "B"))

	matches := Match([]domain.MutationGroup{ref}, []domain.MutationGroup{geneA, geneB})

	require.Len(t, matches, 1)
	assert.Equal(t, domain.TagGene, matches[0].Tag)
	assert.Equal(t, []string{"A"}, matches[0].Comparison.SampleIDs)
}

// Dropping unmatched reference groups instead of tagging them unequal is the
// intended current behaviour, not a bug to fix.
func TestMatch_UnmatchedReferenceIsDropped(t *testing.T) {
	matched := group(rec("TP53", "17", 100, 100, "C", "T", "R175H", "R1"))
	unmatched := group(rec("EGFR", "7", 55, 55, "T", "G", "L858R", "R1"))
	cmp := group(rec("TP53", "17", 100, 100, "C", "T", "R175H", "C1"))

	matches := Match([]domain.MutationGroup{matched, unmatched}, []domain.MutationGroup{cmp})

	require.Len(t, matches, 1)
	for _, m := range matches {
		assert.NotEqual(t, unmatched, m.Reference)
		assert.NotEqual(t, domain.TagUnequal, m.Tag)
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	some := []domain.MutationGroup{group(rec("TP53", "17", 100, 100, "C", "T", "R175H", "R1"))}

	assert.Empty(t, Match(nil, some))
	assert.Empty(t, Match(some, nil))
	assert.Empty(t, Match(nil, nil))
}

func TestMatch_OutputFollowsReferenceOrder(t *testing.T) {
	refs := []domain.MutationGroup{
		group(rec("KRAS", "12", 1, 1, "C", "T", "", "R1")),
		group(rec("TP53", "17", 2, 2, "C", "T", "", "R1")),
		group(rec("BRAF", "7", 3, 3, "C", "T", "", "R1")),
	}
	cmps := []domain.MutationGroup{
		group(rec("BRAF", "7", 9, 9, "G", "A", "", "C1")),
		group(rec("TP53", "17", 9, 9, "G", "A", "", "C1")),
		group(rec("KRAS", "12", 9, 9, "G", "A", "", "C1")),
	}

	matches := Match(refs, cmps)

	require.Len(t, matches, 3)
	for i := range refs {
		assert.Equal(t, refs[i], matches[i].Reference)
		assert.Equal(t, refs[i].Representative().GeneID, matches[i].Comparison.Representative().GeneID)
	}
}

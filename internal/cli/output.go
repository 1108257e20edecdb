package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/service"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	return table
}

func renderMatches(w io.Writer, c *service.Comparison) {
	table := newTable(w, []string{"Tag", "Score", "Reference", "Reference samples", "Comparison", "Comparison samples"})
	for _, m := range c.Matches {
		row := []string{m.Tag.String(), strconv.Itoa(m.Score()), variantLabel(m.Reference), strings.Join(m.Reference.SampleIDs, ",")}
		if m.Comparison != nil {
			row = append(row, variantLabel(*m.Comparison), strings.Join(m.Comparison.SampleIDs, ","))
		} else {
			row = append(row, "", "")
		}
		table.Append(row)
	}
	table.Render()
	fmt.Fprintf(w, "%d matches, score %d, %d reference groups, %d comparison groups\n",
		len(c.Matches), c.Score, len(c.ReferenceGroups), len(c.ComparisonGroups))
}

func renderGroups(w io.Writer, groups []domain.MutationGroup) {
	table := newTable(w, []string{"Variant", "Key", "Records", "Samples"})
	for _, g := range groups {
		table.Append([]string{
			variantLabel(g),
			g.Key().String(),
			strconv.Itoa(len(g.Records)),
			strings.Join(g.SampleIDs, ","),
		})
	}
	table.Render()
}

func renderRanked(w io.Writer, result *service.SimilarityResult) {
	table := newTable(w, []string{"Rank", "Study", "Patient", "Cancer type", "Score", "Equal", "Phgvs", "Gene", "Common variants"})
	for _, p := range result.Patients {
		table.Append([]string{
			strconv.Itoa(p.Rank),
			p.Patient.StudyID,
			p.Patient.PatientID,
			p.Patient.CancerType,
			strconv.Itoa(p.Score),
			strconv.Itoa(p.TagCounts[domain.TagEqual]),
			strconv.Itoa(p.TagCounts[domain.TagProteinChange]),
			strconv.Itoa(p.TagCounts[domain.TagGene]),
			strconv.Itoa(len(p.CommonVars)),
		})
	}
	table.Render()
	fmt.Fprintf(w, "%d candidates scanned in %s\n", result.CandidatesCount, result.ProcessingTime)
}

func renderPatients(w io.Writer, patients []*domain.Patient) {
	table := newTable(w, []string{"Study", "Patient", "Name", "Cancer type", "Samples", "Mutations"})
	for _, p := range patients {
		table.Append([]string{
			p.StudyID,
			p.PatientID,
			p.Name,
			p.CancerType,
			strconv.Itoa(len(p.SampleIDs)),
			strconv.Itoa(len(p.Mutations)),
		})
	}
	table.Render()
}

func variantLabel(g domain.MutationGroup) string {
	return g.Representative().Label()
}

// readRecords reads a JSON array of mutation records; "-" reads stdin.
func readRecords(path string, stdin io.Reader) ([]domain.MutationRecord, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var records []domain.MutationRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-similarity-server/internal/cohort"
	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/service"
	"github.com/patient-similarity-server/internal/setup"
)

var (
	tp53 = domain.MutationRecord{GeneID: "TP53", Chromosome: "17", StartPosition: 7578406, EndPosition: 7578406, ReferenceAllele: "C", VariantAllele: "T", ProteinChange: "R175H", SampleID: "S1"}
	kras = domain.MutationRecord{GeneID: "KRAS", Chromosome: "12", StartPosition: 25398284, EndPosition: 25398284, ReferenceAllele: "C", VariantAllele: "T", ProteinChange: "G12D", SampleID: "S1"}
	q61h = domain.MutationRecord{GeneID: "KRAS", Chromosome: "12", StartPosition: 25380275, EndPosition: 25380275, ReferenceAllele: "T", VariantAllele: "G", ProteinChange: "Q61H", SampleID: "S2"}
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func writeCohort(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "cohort.json", cohort.Export{
		Version: cohort.ExportVersion,
		Count:   3,
		Patients: []*domain.Patient{
			{StudyID: "study", PatientID: "REF", Mutations: []domain.MutationRecord{tp53, kras}},
			{StudyID: "study", PatientID: "TWIN", CancerType: "Lung", Mutations: []domain.MutationRecord{tp53, kras}},
			{StudyID: "study", PatientID: "COUSIN", Mutations: []domain.MutationRecord{q61h}},
		},
	})
}

func TestMatchCommand(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.json", []domain.MutationRecord{tp53, kras})
	cmp := writeFile(t, dir, "cmp.json", []domain.MutationRecord{q61h, tp53})

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "match", "--data-dir", dir, "-r", ref, "-c", cmp)
		require.NoError(t, err)
		assert.Contains(t, out, "TP53 R175H")
		assert.Contains(t, out, "equal")
		assert.Contains(t, out, "gene")
		assert.Contains(t, out, "2 matches, score 70, 2 reference groups, 2 comparison groups")
		assert.NotContains(t, out, "MATCHES")
	})

	t.Run("json with filter", func(t *testing.T) {
		out, err := execute(t, "match", "--data-dir", dir, "-r", ref, "-c", cmp, "--tags", "gene", "--format", "json")
		require.NoError(t, err)

		var result service.Comparison
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		require.Len(t, result.Matches, 1)
		assert.Equal(t, domain.TagGene, result.Matches[0].Tag)
		assert.Equal(t, 20, result.Score)
	})

	t.Run("fusion call", func(t *testing.T) {
		fusion := domain.MutationRecord{GeneID: "EML4-ALK", Chromosome: "2", StartPosition: 42522656, EndPosition: 42522656, ReferenceAllele: "NA", VariantAllele: "NA", ProteinChange: "EML4-ALK Fusion", SampleID: "S1"}
		fusions := writeFile(t, dir, "fusion.json", []domain.MutationRecord{fusion})

		out, err := execute(t, "match", "--data-dir", dir, "-r", fusions, "-c", fusions, "--format", "json")
		require.NoError(t, err)

		var result service.Comparison
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		require.Len(t, result.Matches, 1)
		assert.Equal(t, domain.TagEqual, result.Matches[0].Tag)
	})

	t.Run("unknown tag", func(t *testing.T) {
		_, err := execute(t, "match", "--data-dir", dir, "-r", ref, "-c", cmp, "--tags", "pathway")
		assert.ErrorIs(t, err, domain.ErrInvalidSimilarityTag)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "match", "--data-dir", dir, "-r", filepath.Join(dir, "nope.json"), "-c", cmp)
		assert.Error(t, err)
	})
}

func TestGroupCommand(t *testing.T) {
	dir := t.TempDir()
	dup := tp53
	dup.SampleID = "S2"
	input := writeFile(t, dir, "records.json", []domain.MutationRecord{tp53, kras, dup})

	out, err := execute(t, "group", input, "--data-dir", dir, "-f", "json")
	require.NoError(t, err)

	var groups []domain.MutationGroup
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"S1", "S2"}, groups[0].SampleIDs)
	assert.Equal(t, "KRAS", groups[1].Representative().GeneID)
}

func TestCohortWorkflow(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	input := writeCohort(t, dir)

	out, err := execute(t, "cohort", "import", input, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 patients, skipped 0")

	out, err = execute(t, "cohort", "import", input, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 patients, skipped 3")

	out, err = execute(t, "cohort", "list", "--data-dir", dataDir, "-f", "json")
	require.NoError(t, err)
	var patients []*domain.Patient
	require.NoError(t, json.Unmarshal([]byte(out), &patients))
	assert.Len(t, patients, 3)

	out, err = execute(t, "similar", "--data-dir", dataDir, "-s", "study", "-p", "REF", "-f", "json")
	require.NoError(t, err)
	var result service.SimilarityResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Patients, 2)
	assert.Equal(t, "TWIN", result.Patients[0].Patient.PatientID)
	assert.Equal(t, "COUSIN", result.Patients[1].Patient.PatientID)

	out, err = execute(t, "similar", "--data-dir", dataDir, "-s", "study", "-p", "REF")
	require.NoError(t, err)
	assert.Contains(t, out, "TWIN")
	assert.Contains(t, out, "2 candidates scanned")

	out, err = execute(t, "compare", "--data-dir", dataDir,
		"--ref-study", "study", "--ref-patient", "REF",
		"--cmp-study", "study", "--cmp-patient", "COUSIN", "-f", "json")
	require.NoError(t, err)
	var comparison service.PatientComparison
	require.NoError(t, json.Unmarshal([]byte(out), &comparison))
	require.Len(t, comparison.Matches, 1)
	assert.Equal(t, domain.TagGene, comparison.Matches[0].Tag)

	exportPath := filepath.Join(dir, "export.json")
	out, err = execute(t, "cohort", "export", exportPath, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 3 patients")

	out, err = execute(t, "cohort", "delete", "TWIN", "--study", "study", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted study:TWIN")

	out, err = execute(t, "cohort", "export", "-", "--data-dir", dataDir)
	require.NoError(t, err)
	var export cohort.Export
	require.NoError(t, json.Unmarshal([]byte(out), &export))
	assert.Equal(t, 2, export.Count)
}

func TestCohortFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/studies/luad/patients/P9/samples", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"sampleId":"P9-T","patientId":"P9","studyId":"luad"}]`))
	})
	mux.HandleFunc("/api/studies/luad/molecular-profiles", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"molecularProfileId":"luad_mutations","molecularAlterationType":"MUTATION_EXTENDED","studyId":"luad"}]`))
	})
	mux.HandleFunc("/api/molecular-profiles/luad_mutations/mutations/fetch", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"chr":"chr12","startPosition":25398284,"endPosition":25398284,"referenceAllele":"C","variantAllele":"T",
			"proteinChange":"p.Gly12Asp","sampleId":"P9-T","gene":{"hugoGeneSymbol":"KRAS","entrezGeneId":3845}}]`))
	})
	mux.HandleFunc("/api/studies/luad/patients/P9/clinical-data", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"clinicalAttributeId":"CANCER_TYPE","value":"Non-Small Cell Lung Cancer"}]`))
	})
	portal := httptest.NewServer(mux)
	defer portal.Close()

	dataDir := t.TempDir()

	_, err := execute(t, "cohort", "fetch", "P9", "--study", "luad", "--data-dir", dataDir)
	if os.Getenv("PSIM_CBIOPORTAL_URL") == "" {
		assert.Error(t, err)
	}

	out, err := execute(t, "cohort", "fetch", "P9", "--study", "luad", "--data-dir", dataDir, "--cbioportal-url", portal.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved luad:P9 with 1 mutations")

	store, err := cohort.NewSQLiteStore(filepath.Join(dataDir, "cohort.db"))
	require.NoError(t, err)
	defer store.Close()

	patient, err := store.Get(context.Background(), "luad", "P9")
	require.NoError(t, err)
	require.NotNil(t, patient)
	assert.Equal(t, "Non-Small Cell Lung Cancer", patient.CancerType)
	require.Len(t, patient.Mutations, 1)
	assert.Equal(t, "12", patient.Mutations[0].Chromosome)
	assert.Equal(t, "G12D", patient.Mutations[0].ProteinChange)
}

func TestSetupCommands(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "client.json")
	binary := filepath.Join(dir, "mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	out, err := execute(t, "setup", "desktop", "--config", configPath, "--binary", binary, "--data-dir", filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.Contains(t, out, configPath)

	config, err := setup.LoadDesktopConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, binary, config.MCPServers[setup.ServerName].Command)

	out, err = execute(t, "setup", "status", "--config", configPath, "-f", "json")
	require.NoError(t, err)
	var status setup.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Configured)
	assert.True(t, status.BinaryExists)
	assert.Equal(t, filepath.Join(dir, "data"), status.DataDir)
}

func TestInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.json", []domain.MutationRecord{tp53})

	_, err := execute(t, "match", "--data-dir", dir, "-r", ref, "-c", ref, "-f", "xml")
	assert.Error(t, err)
}

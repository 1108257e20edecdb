package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/service"
)

// Tool names
const (
	ToolMatchMutations      = "match_mutations"
	ToolFindSimilarPatients = "find_similar_patients"
	ToolComparePatients     = "compare_patients"
)

// MutationParams is one mutation call as accepted and returned by the tools.
type MutationParams struct {
	GeneID          string `json:"geneId,omitempty" jsonschema:"gene symbol or identifier"`
	Chromosome      string `json:"chromosome" jsonschema:"chromosome, with or without the chr prefix"`
	StartPosition   int64  `json:"startPosition" jsonschema:"1-based start position"`
	EndPosition     int64  `json:"endPosition,omitempty" jsonschema:"end position, defaults to the start position"`
	ReferenceAllele string `json:"referenceAllele" jsonschema:"reference allele"`
	VariantAllele   string `json:"variantAllele" jsonschema:"variant allele"`
	ProteinChange   string `json:"proteinChange,omitempty" jsonschema:"protein change such as R175H or p.Arg175His"`
	SampleID        string `json:"sampleId,omitempty" jsonschema:"sample carrying the call"`
}

// MatchMutationsParams defines parameters for the match_mutations tool
type MatchMutationsParams struct {
	Reference  []MutationParams `json:"reference" jsonschema:"mutation calls of the reference patient"`
	Comparison []MutationParams `json:"comparison" jsonschema:"mutation calls of the comparison patient"`
	Tags       []string         `json:"tags,omitempty" jsonschema:"similarity tags to keep: equal, phgvs, gene"`
}

// FindSimilarPatientsParams defines parameters for the find_similar_patients tool
type FindSimilarPatientsParams struct {
	StudyID          string   `json:"study_id" jsonschema:"study of the reference patient"`
	PatientID        string   `json:"patient_id" jsonschema:"reference patient"`
	Tags             []string `json:"tags,omitempty" jsonschema:"similarity tags to keep: equal, phgvs, gene"`
	CandidateStudyID string   `json:"candidate_study_id,omitempty" jsonschema:"restrict candidates to one study"`
	Limit            int      `json:"limit,omitempty" jsonschema:"maximum number of ranked patients"`
}

// ComparePatientsParams defines parameters for the compare_patients tool
type ComparePatientsParams struct {
	ReferenceStudyID    string   `json:"reference_study_id" jsonschema:"study of the reference patient"`
	ReferencePatientID  string   `json:"reference_patient_id" jsonschema:"reference patient"`
	ComparisonStudyID   string   `json:"comparison_study_id" jsonschema:"study of the comparison patient"`
	ComparisonPatientID string   `json:"comparison_patient_id" jsonschema:"comparison patient"`
	Tags                []string `json:"tags,omitempty" jsonschema:"similarity tags to keep: equal, phgvs, gene"`
}

// MatchResult is one matched reference variant.
type MatchResult struct {
	Tag               string         `json:"tag"`
	Score             int            `json:"score"`
	Reference         MutationParams `json:"reference"`
	ReferenceSamples  []string       `json:"reference_samples"`
	Comparison        MutationParams `json:"comparison"`
	ComparisonSamples []string       `json:"comparison_samples"`
}

// MatchMutationsResult defines the result structure for the match_mutations tool
type MatchMutationsResult struct {
	Matches          []MatchResult    `json:"matches"`
	TagCounts        map[string]int   `json:"tag_counts"`
	Score            int              `json:"score"`
	ReferenceGroups  int              `json:"reference_groups"`
	ComparisonGroups int              `json:"comparison_groups"`
	CommonVariants   []MutationParams `json:"common_variants"`
}

// RankedPatientResult is one ranked candidate of find_similar_patients.
type RankedPatientResult struct {
	Rank           int              `json:"rank"`
	StudyID        string           `json:"study_id"`
	PatientID      string           `json:"patient_id"`
	Name           string           `json:"name,omitempty"`
	Age            int              `json:"age,omitempty"`
	Gender         string           `json:"gender,omitempty"`
	CancerType     string           `json:"cancer_type,omitempty"`
	Score          int              `json:"score"`
	TagCounts      map[string]int   `json:"tag_counts"`
	Matches        []MatchResult    `json:"matches"`
	CommonVariants []MutationParams `json:"common_variants"`
}

// FindSimilarPatientsResult defines the result structure for the find_similar_patients tool
type FindSimilarPatientsResult struct {
	StudyID          string                `json:"study_id"`
	PatientID        string                `json:"patient_id"`
	Tags             []string              `json:"tags"`
	CandidatesCount  int                   `json:"candidates_count"`
	Patients         []RankedPatientResult `json:"patients"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
}

// ComparePatientsResult defines the result structure for the compare_patients tool
type ComparePatientsResult struct {
	ReferenceStudyID    string               `json:"reference_study_id"`
	ReferencePatientID  string               `json:"reference_patient_id"`
	ComparisonStudyID   string               `json:"comparison_study_id"`
	ComparisonPatientID string               `json:"comparison_patient_id"`
	RunID               string               `json:"run_id,omitempty"`
	Comparison          MatchMutationsResult `json:"comparison"`
}

// registerTools registers the similarity tools with the MCP SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolMatchMutations,
		Description: "Compare two mutation sets. Every distinct reference variant is matched against the comparison " +
			"variants as equal (same genomic change), phgvs (same gene and protein change) or gene (same gene).",
	}, s.handleMatchMutations)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolFindSimilarPatients,
		Description: "Rank the cohort patients by mutation similarity to a reference patient.",
	}, s.handleFindSimilarPatients)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolComparePatients,
		Description: "Compare the mutations of two patients identified by study and patient id.",
	}, s.handleComparePatients)

	s.logger.WithField("tool_count", 3).Info("Registered MCP tools")
}

func (s *Server) handleMatchMutations(ctx context.Context, req *mcp.CallToolRequest, params MatchMutationsParams) (*mcp.CallToolResult, MatchMutationsResult, error) {
	done := s.track(ToolMatchMutations)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tags, err := domain.ParseSimilarityTags(params.Tags)
	if err != nil {
		done(err)
		return nil, MatchMutationsResult{}, err
	}

	result, err := s.similarity.CompareRecords(ctx, toRecords(params.Reference), toRecords(params.Comparison), tags)
	if err != nil {
		done(err)
		return nil, MatchMutationsResult{}, err
	}

	done(nil)
	return nil, toMatchMutationsResult(result), nil
}

func (s *Server) handleFindSimilarPatients(ctx context.Context, req *mcp.CallToolRequest, params FindSimilarPatientsParams) (*mcp.CallToolResult, FindSimilarPatientsResult, error) {
	done := s.track(ToolFindSimilarPatients)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tags, err := domain.ParseSimilarityTags(params.Tags)
	if err != nil {
		done(err)
		return nil, FindSimilarPatientsResult{}, err
	}

	result, err := s.similarity.FindSimilarPatients(ctx, service.FindRequest{
		StudyID:          params.StudyID,
		PatientID:        params.PatientID,
		Tags:             tags,
		CandidateStudyID: params.CandidateStudyID,
		Limit:            params.Limit,
	})
	if err != nil {
		done(err)
		return nil, FindSimilarPatientsResult{}, err
	}

	out := FindSimilarPatientsResult{
		StudyID:          result.StudyID,
		PatientID:        result.PatientID,
		Tags:             tagStrings(result.Tags),
		CandidatesCount:  result.CandidatesCount,
		Patients:         make([]RankedPatientResult, 0, len(result.Patients)),
		ProcessingTimeMs: result.ProcessingTime.Milliseconds(),
	}
	for _, p := range result.Patients {
		out.Patients = append(out.Patients, RankedPatientResult{
			Rank:           p.Rank,
			StudyID:        p.Patient.StudyID,
			PatientID:      p.Patient.PatientID,
			Name:           p.Patient.Name,
			Age:            p.Patient.Age,
			Gender:         p.Patient.Gender,
			CancerType:     p.Patient.CancerType,
			Score:          p.Score,
			TagCounts:      tagCounts(p.TagCounts),
			Matches:        toMatchResults(p.Matches),
			CommonVariants: toParams(p.CommonVars),
		})
	}

	done(nil)
	return nil, out, nil
}

func (s *Server) handleComparePatients(ctx context.Context, req *mcp.CallToolRequest, params ComparePatientsParams) (*mcp.CallToolResult, ComparePatientsResult, error) {
	done := s.track(ToolComparePatients)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tags, err := domain.ParseSimilarityTags(params.Tags)
	if err != nil {
		done(err)
		return nil, ComparePatientsResult{}, err
	}

	result, err := s.similarity.ComparePatients(ctx,
		params.ReferenceStudyID, params.ReferencePatientID,
		params.ComparisonStudyID, params.ComparisonPatientID,
		tags,
	)
	if err != nil {
		done(err)
		return nil, ComparePatientsResult{}, err
	}

	done(nil)
	return nil, ComparePatientsResult{
		ReferenceStudyID:    result.ReferenceStudyID,
		ReferencePatientID:  result.ReferencePatientID,
		ComparisonStudyID:   result.ComparisonStudyID,
		ComparisonPatientID: result.ComparisonPatientID,
		RunID:               result.RunID,
		Comparison:          toMatchMutationsResult(result.Comparison),
	}, nil
}

// track logs and counts one tool invocation; the returned func records its outcome.
func (s *Server) track(tool string) func(error) {
	start := time.Now()
	s.logger.WithField("tool", tool).Debug("Tool invoked")

	return func(err error) {
		duration := time.Since(start)
		toolDuration.WithLabelValues(tool).Observe(duration.Seconds())

		fields := logrus.Fields{"tool": tool, "duration_ms": duration.Milliseconds()}
		if err != nil {
			toolCallsTotal.WithLabelValues(tool, "error").Inc()
			fields["code"] = domain.ErrorCode(err)
			s.logger.WithFields(fields).WithError(err).Warn("Tool call failed")
			return
		}
		toolCallsTotal.WithLabelValues(tool, "success").Inc()
		s.logger.WithFields(fields).Info("Tool call completed")
	}
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.RequestTimeout)
}

func toRecords(params []MutationParams) []domain.MutationRecord {
	records := make([]domain.MutationRecord, 0, len(params))
	for _, p := range params {
		end := p.EndPosition
		if end == 0 {
			end = p.StartPosition
		}
		records = append(records, domain.MutationRecord{
			GeneID:          p.GeneID,
			Chromosome:      p.Chromosome,
			StartPosition:   p.StartPosition,
			EndPosition:     end,
			ReferenceAllele: p.ReferenceAllele,
			VariantAllele:   p.VariantAllele,
			ProteinChange:   p.ProteinChange,
			SampleID:        p.SampleID,
		})
	}
	return records
}

func toParam(r domain.MutationRecord) MutationParams {
	return MutationParams{
		GeneID:          r.GeneID,
		Chromosome:      r.Chromosome,
		StartPosition:   r.StartPosition,
		EndPosition:     r.EndPosition,
		ReferenceAllele: r.ReferenceAllele,
		VariantAllele:   r.VariantAllele,
		ProteinChange:   r.ProteinChange,
		SampleID:        r.SampleID,
	}
}

func toParams(records []domain.MutationRecord) []MutationParams {
	out := make([]MutationParams, 0, len(records))
	for _, r := range records {
		out = append(out, toParam(r))
	}
	return out
}

func toMatchResults(matches []domain.SimilarityMatch) []MatchResult {
	out := make([]MatchResult, 0, len(matches))
	for _, m := range matches {
		mr := MatchResult{
			Tag:               m.Tag.String(),
			Score:             m.Score(),
			Reference:         toParam(m.Reference.Representative()),
			ReferenceSamples:  nonNil(m.Reference.SampleIDs),
			ComparisonSamples: []string{},
		}
		if m.Comparison != nil {
			mr.Comparison = toParam(m.Comparison.Representative())
			mr.ComparisonSamples = nonNil(m.Comparison.SampleIDs)
		}
		out = append(out, mr)
	}
	return out
}

func toMatchMutationsResult(c *service.Comparison) MatchMutationsResult {
	return MatchMutationsResult{
		Matches:          toMatchResults(c.Matches),
		TagCounts:        tagCounts(c.TagCounts),
		Score:            c.Score,
		ReferenceGroups:  len(c.ReferenceGroups),
		ComparisonGroups: len(c.ComparisonGroups),
		CommonVariants:   toParams(c.CommonVariants),
	}
}

func tagCounts(counts map[domain.SimilarityTag]int) map[string]int {
	out := make(map[string]int, len(counts))
	for tag, n := range counts {
		out[tag.String()] = n
	}
	return out
}

func tagStrings(tags []domain.SimilarityTag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

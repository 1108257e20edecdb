package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/patient-similarity-server/internal/cache"
	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/similarity"
	"github.com/patient-similarity-server/pkg/hgvs"
)

const (
	defaultLimit          = 10
	defaultMaxConcurrency = 8
	cohortPageSize        = 500
)

// PatientStore is the read side of the cohort store.
type PatientStore interface {
	Get(ctx context.Context, studyID, patientID string) (*domain.Patient, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Patient, error)
	ListByStudy(ctx context.Context, studyID string) ([]*domain.Patient, error)
}

// RunRecorder persists patient comparisons.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *domain.MatchRun) error
}

// Comparison is the result of matching a reference mutation set against a comparison set.
type Comparison struct {
	Matches          []domain.SimilarityMatch     `json:"matches"`
	TagCounts        map[domain.SimilarityTag]int `json:"tag_counts"`
	Score            int                          `json:"score"`
	ReferenceGroups  []domain.MutationGroup       `json:"reference_groups"`
	ComparisonGroups []domain.MutationGroup       `json:"comparison_groups"`
	CommonVariants   []domain.MutationRecord      `json:"common_variants"`
}

// PatientComparison is a Comparison between two stored or fetched patients.
type PatientComparison struct {
	ReferenceStudyID    string `json:"reference_study_id"`
	ReferencePatientID  string `json:"reference_patient_id"`
	ComparisonStudyID   string `json:"comparison_study_id"`
	ComparisonPatientID string `json:"comparison_patient_id"`
	*Comparison
	RunID string `json:"run_id,omitempty"`
}

// FindRequest describes a cohort search.
type FindRequest struct {
	StudyID   string
	PatientID string
	Tags      []domain.SimilarityTag
	// CandidateStudyID restricts candidates to one study; empty searches the whole cohort.
	CandidateStudyID string
	// Limit caps the ranking; zero uses the configured default.
	Limit int
}

// Validate checks the reference identifiers.
func (r FindRequest) Validate() error {
	if strings.TrimSpace(r.StudyID) == "" {
		return domain.NewValidationError("study_id", "study id is required", r.StudyID)
	}
	if strings.TrimSpace(r.PatientID) == "" {
		return domain.NewValidationError("patient_id", "patient id is required", r.PatientID)
	}
	if r.Limit < 0 {
		return domain.NewValidationError("limit", "limit must not be negative", r.Limit)
	}
	return nil
}

// SimilarityResult is a ranked cohort search.
type SimilarityResult struct {
	StudyID         string                 `json:"study_id"`
	PatientID       string                 `json:"patient_id"`
	Tags            []domain.SimilarityTag `json:"tags"`
	CandidatesCount int                    `json:"candidates_count"`
	Patients        []domain.RankedPatient `json:"patients"`
	ProcessingTime  time.Duration          `json:"processing_time"`
}

// SimilarityService orchestrates grouping, matching and ranking for the API, MCP and CLI surfaces.
type SimilarityService struct {
	logger    *logrus.Logger
	store     PatientStore
	source    domain.MutationSource
	cache     *cache.MemoryCache
	recorder  RunRecorder
	validator *hgvs.Validator

	defaultTags    []domain.SimilarityTag
	defaultLimit   int
	maxConcurrency int
	dropEmpty      bool
}

// NewSimilarityService creates a new similarity service. store, source, memCache
// and recorder are optional; operations needing a missing collaborator fail.
func NewSimilarityService(
	config domain.SimilarityConfig,
	store PatientStore,
	source domain.MutationSource,
	memCache *cache.MemoryCache,
	recorder RunRecorder,
	logger *logrus.Logger,
) (*SimilarityService, error) {
	tags, err := domain.ParseSimilarityTags(config.DefaultTags)
	if err != nil {
		return nil, fmt.Errorf("invalid default tags: %w", err)
	}
	if len(tags) == 0 {
		tags = domain.AllMatchTags()
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &SimilarityService{
		logger:         logger,
		store:          store,
		source:         source,
		cache:          memCache,
		recorder:       recorder,
		validator:      hgvs.NewValidator(),
		defaultTags:    tags,
		defaultLimit:   config.DefaultLimit,
		maxConcurrency: config.MaxConcurrency,
		dropEmpty:      config.DropEmpty,
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = defaultLimit
	}
	if s.maxConcurrency <= 0 {
		s.maxConcurrency = defaultMaxConcurrency
	}
	return s, nil
}

// DefaultTags returns the tags used when a request names none.
func (s *SimilarityService) DefaultTags() []domain.SimilarityTag {
	return append([]domain.SimilarityTag(nil), s.defaultTags...)
}

// GroupRecords normalizes, validates and groups one mutation set.
func (s *SimilarityService) GroupRecords(records []domain.MutationRecord) ([]domain.MutationGroup, error) {
	normalized, err := s.prepare(records)
	if err != nil {
		return nil, err
	}
	return similarity.Group(normalized), nil
}

// CompareRecords groups both mutation sets, matches every reference group
// against the comparison groups and keeps the matches whose tag is in tags.
// Empty tags select the configured defaults.
func (s *SimilarityService) CompareRecords(ctx context.Context, reference, comparison []domain.MutationRecord, tags []domain.SimilarityTag) (*Comparison, error) {
	start := time.Now()

	ref, err := s.prepare(reference)
	if err != nil {
		comparisonsTotal.WithLabelValues("records", "error").Inc()
		return nil, fmt.Errorf("reference: %w", err)
	}
	cmp, err := s.prepare(comparison)
	if err != nil {
		comparisonsTotal.WithLabelValues("records", "error").Inc()
		return nil, fmt.Errorf("comparison: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := s.compare(ref, cmp, s.tagsOrDefault(tags))

	comparisonsTotal.WithLabelValues("records", "success").Inc()
	matchDuration.WithLabelValues("records").Observe(time.Since(start).Seconds())
	s.logger.WithFields(logrus.Fields{
		"reference_records":  len(reference),
		"comparison_records": len(comparison),
		"matches":            len(result.Matches),
		"score":              result.Score,
	}).Debug("Compared mutation sets")

	return result, nil
}

// ComparePatients loads both patients' mutations concurrently and compares them.
// The run is recorded when a recorder is configured.
func (s *SimilarityService) ComparePatients(ctx context.Context, refStudy, refPatient, cmpStudy, cmpPatient string, tags []domain.SimilarityTag) (*PatientComparison, error) {
	start := time.Now()
	tags = s.tagsOrDefault(tags)

	var ref, cmp []domain.MutationRecord
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ref, err = s.loadMutations(gCtx, refStudy, refPatient)
		return err
	})
	g.Go(func() error {
		var err error
		cmp, err = s.loadMutations(gCtx, cmpStudy, cmpPatient)
		return err
	})
	if err := g.Wait(); err != nil {
		comparisonsTotal.WithLabelValues("patients", "error").Inc()
		return nil, err
	}

	result := s.compare(ref, cmp, tags)
	elapsed := time.Since(start)

	out := &PatientComparison{
		ReferenceStudyID:    refStudy,
		ReferencePatientID:  refPatient,
		ComparisonStudyID:   cmpStudy,
		ComparisonPatientID: cmpPatient,
		Comparison:          result,
	}

	if s.recorder != nil {
		run := &domain.MatchRun{
			ReferenceStudyID:    refStudy,
			ReferencePatientID:  refPatient,
			ComparisonStudyID:   cmpStudy,
			ComparisonPatientID: cmpPatient,
			Tags:                tagStrings(tags),
			MatchCount:          len(result.Matches),
			TagCounts:           tagCountStrings(result.TagCounts),
			DurationMs:          elapsed.Milliseconds(),
		}
		if err := s.recorder.RecordRun(ctx, run); err != nil {
			s.logger.WithError(err).Warn("Failed to record match run")
		} else {
			out.RunID = run.ID.String()
		}
	}

	comparisonsTotal.WithLabelValues("patients", "success").Inc()
	matchDuration.WithLabelValues("patients").Observe(elapsed.Seconds())
	s.logger.WithFields(logrus.Fields{
		"reference":  refStudy + ":" + refPatient,
		"comparison": cmpStudy + ":" + cmpPatient,
		"matches":    len(result.Matches),
		"score":      result.Score,
		"duration":   elapsed,
	}).Info("Compared patients")

	return out, nil
}

// FindSimilarPatients compares the reference patient with every cohort
// candidate and returns the ranked candidates.
func (s *SimilarityService) FindSimilarPatients(ctx context.Context, req FindRequest) (*SimilarityResult, error) {
	start := time.Now()

	result, err := s.findSimilar(ctx, req)
	if err != nil {
		comparisonsTotal.WithLabelValues("similar", "error").Inc()
		return nil, err
	}
	result.ProcessingTime = time.Since(start)

	comparisonsTotal.WithLabelValues("similar", "success").Inc()
	matchDuration.WithLabelValues("similar").Observe(result.ProcessingTime.Seconds())
	s.logger.WithFields(logrus.Fields{
		"reference":       req.StudyID + ":" + req.PatientID,
		"candidate_study": req.CandidateStudyID,
		"candidates":      result.CandidatesCount,
		"ranked":          len(result.Patients),
		"processing_time": result.ProcessingTime,
	}).Info("Similar patient search completed")

	return result, nil
}

// StreamSimilarPatients runs FindSimilarPatients and hands each ranked patient
// to fn in rank order. It stops at the first error returned by fn.
func (s *SimilarityService) StreamSimilarPatients(ctx context.Context, req FindRequest, fn func(domain.RankedPatient) error) (*SimilarityResult, error) {
	result, err := s.FindSimilarPatients(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, p := range result.Patients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := fn(p); err != nil {
			return nil, fmt.Errorf("stream patient %s: %w", p.Patient.Ref(), err)
		}
	}
	return result, nil
}

func (s *SimilarityService) findSimilar(ctx context.Context, req FindRequest) (*SimilarityResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, errors.New("no cohort store configured")
	}
	tags := s.tagsOrDefault(req.Tags)
	limit := req.Limit
	if limit == 0 {
		limit = s.defaultLimit
	}

	reference, err := s.loadMutations(ctx, req.StudyID, req.PatientID)
	if err != nil {
		return nil, err
	}
	refGroups := similarity.Group(reference)

	candidates, err := s.loadCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	scored := make([]similarity.Candidate, len(candidates))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for i, patient := range candidates {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			records := hgvs.NormalizeRecords(patient.Mutations)
			matches := similarity.Filter(similarity.Match(refGroups, similarity.Group(records)), tags)
			scored[i] = similarity.Candidate{
				Patient: *patient,
				Matches: matches,
				Common:  similarity.CommonVariants(reference, records),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	candidatesScanned.Add(float64(len(candidates)))

	ranked := similarity.Rank(scored, similarity.RankOptions{DropEmpty: s.dropEmpty, Limit: limit})
	for _, r := range ranked {
		countMatches(r.Matches)
	}

	return &SimilarityResult{
		StudyID:         req.StudyID,
		PatientID:       req.PatientID,
		Tags:            tags,
		CandidatesCount: len(candidates),
		Patients:        ranked,
	}, nil
}

// loadCandidates returns cohort patients other than the reference.
func (s *SimilarityService) loadCandidates(ctx context.Context, req FindRequest) ([]*domain.Patient, error) {
	var all []*domain.Patient
	if req.CandidateStudyID != "" {
		patients, err := s.store.ListByStudy(ctx, req.CandidateStudyID)
		if err != nil {
			return nil, fmt.Errorf("failed to list candidates of study %s: %w", req.CandidateStudyID, err)
		}
		all = patients
	} else {
		for offset := 0; ; offset += cohortPageSize {
			page, err := s.store.List(ctx, cohortPageSize, offset)
			if err != nil {
				return nil, fmt.Errorf("failed to list candidates: %w", err)
			}
			all = append(all, page...)
			if len(page) < cohortPageSize {
				break
			}
		}
	}

	candidates := make([]*domain.Patient, 0, len(all))
	for _, p := range all {
		if p.StudyID == req.StudyID && p.PatientID == req.PatientID {
			continue
		}
		candidates = append(candidates, p)
	}
	return candidates, nil
}

// InvalidatePatient drops the memoized mutations of a patient after it changed in the cohort.
func (s *SimilarityService) InvalidatePatient(studyID, patientID string) {
	if s.cache != nil {
		s.cache.Delete(mutationsKey(studyID, patientID))
	}
}

func mutationsKey(studyID, patientID string) string {
	return "mutations:" + studyID + ":" + patientID
}

// loadMutations resolves a patient's normalized mutations from the memory
// cache, then the cohort store, then the mutation source.
func (s *SimilarityService) loadMutations(ctx context.Context, studyID, patientID string) ([]domain.MutationRecord, error) {
	key := mutationsKey(studyID, patientID)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.([]domain.MutationRecord), nil
		}
	}

	records, err := s.fetchMutations(ctx, studyID, patientID)
	if err != nil {
		return nil, err
	}
	records = hgvs.NormalizeRecords(records)

	if s.cache != nil {
		s.cache.Set(key, records)
	}
	return records, nil
}

func (s *SimilarityService) fetchMutations(ctx context.Context, studyID, patientID string) ([]domain.MutationRecord, error) {
	if s.store != nil {
		patient, err := s.store.Get(ctx, studyID, patientID)
		if err != nil {
			return nil, fmt.Errorf("failed to load patient %s:%s: %w", studyID, patientID, err)
		}
		if patient != nil {
			return patient.Mutations, nil
		}
	}
	if s.source == nil {
		return nil, fmt.Errorf("patient %s:%s: %w", studyID, patientID, domain.ErrNotFound)
	}
	records, err := s.source.FetchPatientMutations(ctx, studyID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mutations of %s:%s: %w", studyID, patientID, err)
	}
	return records, nil
}

// prepare normalizes records and rejects the ones missing fields the core keys
// on. Unrecognized notation is only logged.
func (s *SimilarityService) prepare(records []domain.MutationRecord) ([]domain.MutationRecord, error) {
	normalized := hgvs.NormalizeRecords(records)
	for i, r := range normalized {
		if err := s.validator.ValidateRecord(r); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", domain.ErrInvalidMutation, i, err)
		}
		if issues := s.validator.NotationIssues(r); len(issues) > 0 {
			s.logger.WithError(errors.Join(issues...)).WithFields(logrus.Fields{
				"record":  i,
				"variant": r.Key().String(),
			}).Debug("Unrecognized mutation notation")
		}
	}
	return normalized, nil
}

func (s *SimilarityService) compare(ref, cmp []domain.MutationRecord, tags []domain.SimilarityTag) *Comparison {
	refGroups := similarity.Group(ref)
	cmpGroups := similarity.Group(cmp)
	matches := similarity.Filter(similarity.Match(refGroups, cmpGroups), tags)
	countMatches(matches)

	return &Comparison{
		Matches:          matches,
		TagCounts:        similarity.TagCounts(matches),
		Score:            similarity.Score(matches),
		ReferenceGroups:  refGroups,
		ComparisonGroups: cmpGroups,
		CommonVariants:   similarity.CommonVariants(ref, cmp),
	}
}

func (s *SimilarityService) tagsOrDefault(tags []domain.SimilarityTag) []domain.SimilarityTag {
	if len(tags) == 0 {
		return s.DefaultTags()
	}
	return tags
}

func countMatches(matches []domain.SimilarityMatch) {
	for _, m := range matches {
		matchesByTag.WithLabelValues(m.Tag.String()).Inc()
	}
}

func tagStrings(tags []domain.SimilarityTag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}

func tagCountStrings(counts map[domain.SimilarityTag]int) map[string]int {
	out := make(map[string]int, len(counts))
	for t, n := range counts {
		out[t.String()] = n
	}
	return out
}

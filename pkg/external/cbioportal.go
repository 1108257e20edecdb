package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/patient-similarity-server/internal/domain"
)

const (
	defaultCBioPortalURL = "https://www.cbioportal.org"

	// MolecularProfileMutations is the alteration type of a study's mutation profile.
	MolecularProfileMutations = "MUTATION_EXTENDED"
)

// ErrNoMutationProfile is returned when a study carries no mutation profile.
var ErrNoMutationProfile = errors.New("study has no mutation profile")

// CBioPortalClient fetches patients and their mutation calls from a cBioPortal REST API.
type CBioPortalClient struct {
	baseURL    string
	apiToken   string
	retryCount int
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// molecularProfile is one entry of /api/studies/{study}/molecular-profiles.
type molecularProfile struct {
	MolecularProfileID      string `json:"molecularProfileId"`
	MolecularAlterationType string `json:"molecularAlterationType"`
	StudyID                 string `json:"studyId"`
}

type sample struct {
	SampleID  string `json:"sampleId"`
	PatientID string `json:"patientId"`
	StudyID   string `json:"studyId"`
}

type clinicalDatum struct {
	ClinicalAttributeID string `json:"clinicalAttributeId"`
	Value               string `json:"value"`
}

// cbioMutation is the DETAILED projection of a cBioPortal mutation.
type cbioMutation struct {
	Chr             string `json:"chr"`
	StartPosition   int64  `json:"startPosition"`
	EndPosition     int64  `json:"endPosition"`
	ReferenceAllele string `json:"referenceAllele"`
	VariantAllele   string `json:"variantAllele"`
	ProteinChange   string `json:"proteinChange"`
	SampleID        string `json:"sampleId"`
	EntrezGeneID    int    `json:"entrezGeneId"`
	Gene            *struct {
		HugoGeneSymbol string `json:"hugoGeneSymbol"`
		EntrezGeneID   int    `json:"entrezGeneId"`
	} `json:"gene"`
}

func (m cbioMutation) record() domain.MutationRecord {
	geneID := ""
	if m.Gene != nil && m.Gene.HugoGeneSymbol != "" {
		geneID = m.Gene.HugoGeneSymbol
	} else if m.EntrezGeneID != 0 {
		geneID = strconv.Itoa(m.EntrezGeneID)
	}
	return domain.MutationRecord{
		GeneID:          geneID,
		Chromosome:      m.Chr,
		StartPosition:   m.StartPosition,
		EndPosition:     m.EndPosition,
		ReferenceAllele: m.ReferenceAllele,
		VariantAllele:   m.VariantAllele,
		ProteinChange:   m.ProteinChange,
		SampleID:        m.SampleID,
	}
}

// NewCBioPortalClient creates a new cBioPortal API client
func NewCBioPortalClient(config domain.CBioPortalConfig) *CBioPortalClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultCBioPortalURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}

	return &CBioPortalClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiToken:   config.APIToken,
		retryCount: config.RetryCount,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// FetchPatientMutations returns the mutation calls of every sample of a patient.
func (c *CBioPortalClient) FetchPatientMutations(ctx context.Context, studyID, patientID string) ([]domain.MutationRecord, error) {
	if strings.TrimSpace(studyID) == "" || strings.TrimSpace(patientID) == "" {
		return nil, domain.NewValidationError("patientId", "study id and patient id are required", studyID+":"+patientID)
	}

	samples, err := c.patientSamples(ctx, studyID, patientID)
	if err != nil {
		return nil, err
	}
	return c.mutationsForSamples(ctx, studyID, sampleIDs(samples))
}

// FetchPatient returns a patient with its clinical attributes, samples and mutation calls.
func (c *CBioPortalClient) FetchPatient(ctx context.Context, studyID, patientID string) (*domain.Patient, error) {
	if strings.TrimSpace(studyID) == "" || strings.TrimSpace(patientID) == "" {
		return nil, domain.NewValidationError("patientId", "study id and patient id are required", studyID+":"+patientID)
	}

	samples, err := c.patientSamples(ctx, studyID, patientID)
	if err != nil {
		return nil, err
	}
	ids := sampleIDs(samples)

	mutations, err := c.mutationsForSamples(ctx, studyID, ids)
	if err != nil {
		return nil, err
	}

	var clinical []clinicalDatum
	path := fmt.Sprintf("/api/studies/%s/patients/%s/clinical-data", url.PathEscape(studyID), url.PathEscape(patientID))
	if err := c.do(ctx, http.MethodGet, path, nil, &clinical); err != nil {
		return nil, fmt.Errorf("failed to fetch clinical data for %s:%s: %w", studyID, patientID, err)
	}

	patient := &domain.Patient{
		StudyID:   studyID,
		PatientID: patientID,
		SampleIDs: ids,
		Mutations: mutations,
	}
	applyClinicalData(patient, clinical)
	return patient, nil
}

func applyClinicalData(p *domain.Patient, data []clinicalDatum) {
	for _, d := range data {
		switch strings.ToUpper(d.ClinicalAttributeID) {
		case "AGE":
			if age, err := strconv.ParseFloat(d.Value, 64); err == nil && age >= 0 {
				p.Age = int(age)
			}
		case "SEX", "GENDER":
			p.Gender = d.Value
		case "CANCER_TYPE":
			p.CancerType = d.Value
		case "CANCER_TYPE_DETAILED":
			if p.CancerType == "" {
				p.CancerType = d.Value
			}
		case "PATIENT_DISPLAY_NAME":
			p.Name = d.Value
		}
	}
}

func sampleIDs(samples []sample) []string {
	ids := make([]string, 0, len(samples))
	for _, s := range samples {
		ids = append(ids, s.SampleID)
	}
	return ids
}

func (c *CBioPortalClient) patientSamples(ctx context.Context, studyID, patientID string) ([]sample, error) {
	var samples []sample
	path := fmt.Sprintf("/api/studies/%s/patients/%s/samples", url.PathEscape(studyID), url.PathEscape(patientID))
	if err := c.do(ctx, http.MethodGet, path, nil, &samples); err != nil {
		return nil, fmt.Errorf("failed to fetch samples for %s:%s: %w", studyID, patientID, err)
	}
	return samples, nil
}

func (c *CBioPortalClient) mutationProfile(ctx context.Context, studyID string) (string, error) {
	var profiles []molecularProfile
	path := fmt.Sprintf("/api/studies/%s/molecular-profiles", url.PathEscape(studyID))
	if err := c.do(ctx, http.MethodGet, path, nil, &profiles); err != nil {
		return "", fmt.Errorf("failed to fetch molecular profiles for %s: %w", studyID, err)
	}
	for _, p := range profiles {
		if p.MolecularAlterationType == MolecularProfileMutations {
			return p.MolecularProfileID, nil
		}
	}
	return "", fmt.Errorf("%s: %w", studyID, ErrNoMutationProfile)
}

func (c *CBioPortalClient) mutationsForSamples(ctx context.Context, studyID string, ids []string) ([]domain.MutationRecord, error) {
	if len(ids) == 0 {
		return []domain.MutationRecord{}, nil
	}

	profileID, err := c.mutationProfile(ctx, studyID)
	if err != nil {
		return nil, err
	}

	body := map[string][]string{"sampleIds": ids}
	var raw []cbioMutation
	path := fmt.Sprintf("/api/molecular-profiles/%s/mutations/fetch?projection=DETAILED", url.PathEscape(profileID))
	if err := c.do(ctx, http.MethodPost, path, body, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch mutations for profile %s: %w", profileID, err)
	}

	records := make([]domain.MutationRecord, 0, len(raw))
	for _, m := range raw {
		records = append(records, m.record())
	}
	return records, nil
}

// do issues one API call, retrying transport failures and 5xx responses.
func (c *CBioPortalClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		retry, err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (c *CBioPortalClient) doOnce(ctx context.Context, method, path string, body []byte, out interface{}) (bool, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limit wait failed: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, domain.ErrNotFound
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("cBioPortal API returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("cBioPortal API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}

package cohort

import (
	"github.com/patient-similarity-server/internal/domain"
)

func testPatient(studyID, patientID string) *domain.Patient {
	return &domain.Patient{
		StudyID:    studyID,
		PatientID:  patientID,
		Name:       "Patient " + patientID,
		Age:        54,
		Gender:     "female",
		CancerType: "Breast Invasive Ductal Carcinoma",
		SampleIDs:  []string{patientID + "-T1"},
		Mutations: []domain.MutationRecord{
			{
				GeneID: "TP53", Chromosome: "17", StartPosition: 7578406, EndPosition: 7578406,
				ReferenceAllele: "C", VariantAllele: "T", ProteinChange: "R175H", SampleID: patientID + "-T1",
			},
			{
				GeneID: "PIK3CA", Chromosome: "3", StartPosition: 178952085, EndPosition: 178952085,
				ReferenceAllele: "A", VariantAllele: "G", ProteinChange: "H1047R", SampleID: patientID + "-T1",
			},
		},
	}
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/patient-similarity-server/internal/service"
)

func newSimilarCmd(a *app) *cobra.Command {
	var (
		studyID          string
		patientID        string
		tags             string
		candidateStudyID string
		limit            int
	)

	cmd := &cobra.Command{
		Use:     "similar",
		Short:   "Rank cohort patients by similarity to a reference patient",
		Example: "  simctl similar --study msk_impact_2017 --patient P-0000004 --tags equal,phgvs --limit 20",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := parseTags(tags)
			if err != nil {
				return err
			}
			if err := a.open(true); err != nil {
				return err
			}

			result, err := a.similarity.FindSimilarPatients(cmd.Context(), service.FindRequest{
				StudyID:          studyID,
				PatientID:        patientID,
				Tags:             selected,
				CandidateStudyID: candidateStudyID,
				Limit:            limit,
			})
			if err != nil {
				return err
			}

			if a.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			renderRanked(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&studyID, "study", "s", "", "study of the reference patient")
	cmd.Flags().StringVarP(&patientID, "patient", "p", "", "reference patient")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "comma separated tags to keep (default equal,phgvs,gene)")
	cmd.Flags().StringVar(&candidateStudyID, "candidate-study", "", "restrict candidates to one study")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of ranked patients (default from PSIM_DEFAULT_LIMIT)")
	cobra.CheckErr(cmd.MarkFlagRequired("study"))
	cobra.CheckErr(cmd.MarkFlagRequired("patient"))

	return cmd
}

func newCompareCmd(a *app) *cobra.Command {
	var (
		refStudy, refPatient string
		cmpStudy, cmpPatient string
		tags                 string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two patients from the cohort or the mutation source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := parseTags(tags)
			if err != nil {
				return err
			}
			if err := a.open(true); err != nil {
				return err
			}

			result, err := a.similarity.ComparePatients(cmd.Context(), refStudy, refPatient, cmpStudy, cmpPatient, selected)
			if err != nil {
				return err
			}

			if a.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			renderMatches(cmd.OutOrStdout(), result.Comparison)
			return nil
		},
	}

	cmd.Flags().StringVar(&refStudy, "ref-study", "", "study of the reference patient")
	cmd.Flags().StringVar(&refPatient, "ref-patient", "", "reference patient")
	cmd.Flags().StringVar(&cmpStudy, "cmp-study", "", "study of the comparison patient")
	cmd.Flags().StringVar(&cmpPatient, "cmp-patient", "", "comparison patient")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "comma separated tags to keep (default equal,phgvs,gene)")
	for _, name := range []string{"ref-study", "ref-patient", "cmp-study", "cmp-patient"} {
		cobra.CheckErr(cmd.MarkFlagRequired(name))
	}

	return cmd
}

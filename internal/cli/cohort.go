package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/pkg/hgvs"
)

func newCohortCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cohort",
		Short: "Manage the local patient cohort",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newCohortImportCmd(a),
		newCohortExportCmd(a),
		newCohortListCmd(a),
		newCohortFetchCmd(a),
		newCohortDeleteCmd(a),
	)
	return cmd
}

func newCohortImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import patients from a cohort export; existing patients are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(true); err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			imported, skipped, err := a.store.ImportJSON(cmd.Context(), r)
			if err != nil {
				return err
			}
			cmd.Printf("Imported %d patients, skipped %d\n", imported, skipped)
			return nil
		},
	}
}

func newCohortExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export the cohort as JSON; \"-\" writes stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(true); err != nil {
				return err
			}

			if args[0] == "-" {
				return a.store.ExportJSON(cmd.Context(), cmd.OutOrStdout())
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			if err := a.store.ExportJSON(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			count, err := a.store.Count(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Exported %d patients to %s\n", count, args[0])
			return nil
		},
	}
}

func newCohortListCmd(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cohort patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(true); err != nil {
				return err
			}

			patients, err := a.store.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if patients == nil {
				patients = []*domain.Patient{}
			}

			if a.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), patients)
			}
			renderPatients(cmd.OutOrStdout(), patients)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of patients")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of patients to skip")
	return cmd
}

func newCohortFetchCmd(a *app) *cobra.Command {
	var studyID string

	cmd := &cobra.Command{
		Use:     "fetch <patient>...",
		Short:   "Fetch patients from cBioPortal and save them to the cohort",
		Example: "  simctl cohort fetch --study msk_impact_2017 --cbioportal-url https://www.cbioportal.org P-0000004 P-0000015",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(true); err != nil {
				return err
			}
			if a.source == nil {
				return errors.New("no mutation source configured: set --cbioportal-url or PSIM_CBIOPORTAL_URL")
			}

			for _, patientID := range args {
				patient, err := a.source.FetchPatient(cmd.Context(), studyID, patientID)
				if err != nil {
					return fmt.Errorf("failed to fetch %s:%s: %w", studyID, patientID, err)
				}
				patient.Mutations = hgvs.NormalizeRecords(patient.Mutations)
				if err := patient.Validate(); err != nil {
					return err
				}
				if err := a.store.Save(cmd.Context(), patient); err != nil {
					return err
				}
				a.similarity.InvalidatePatient(studyID, patientID)
				cmd.Printf("Saved %s with %d mutations\n", patient.Ref(), len(patient.Mutations))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&studyID, "study", "s", "", "cBioPortal study id")
	cobra.CheckErr(cmd.MarkFlagRequired("study"))
	return cmd
}

func newCohortDeleteCmd(a *app) *cobra.Command {
	var studyID string

	cmd := &cobra.Command{
		Use:   "delete <patient>...",
		Short: "Remove patients from the cohort",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(true); err != nil {
				return err
			}
			for _, patientID := range args {
				if err := a.store.Delete(cmd.Context(), studyID, patientID); err != nil {
					return err
				}
				cmd.Printf("Deleted %s:%s\n", studyID, patientID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&studyID, "study", "s", "", "study id")
	cobra.CheckErr(cmd.MarkFlagRequired("study"))
	return cmd
}

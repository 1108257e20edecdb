package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMatchCmd(a *app) *cobra.Command {
	var (
		referencePath  string
		comparisonPath string
		tags           string
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Compare two mutation files",
		Long: `Compare the mutation calls of a reference file against a comparison file.
Both files hold a JSON array of mutation records; "-" reads stdin.`,
		Example: "  simctl match --reference ref.json --comparison cmp.json --tags equal,phgvs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if referencePath == "-" && comparisonPath == "-" {
				return fmt.Errorf("only one of --reference and --comparison may read stdin")
			}
			selected, err := parseTags(tags)
			if err != nil {
				return err
			}
			reference, err := readRecords(referencePath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			comparison, err := readRecords(comparisonPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := a.open(false); err != nil {
				return err
			}

			result, err := a.similarity.CompareRecords(cmd.Context(), reference, comparison, selected)
			if err != nil {
				return err
			}

			if a.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			renderMatches(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&referencePath, "reference", "r", "", "reference mutation file")
	cmd.Flags().StringVarP(&comparisonPath, "comparison", "c", "", "comparison mutation file")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "comma separated tags to keep (default equal,phgvs,gene)")
	cobra.CheckErr(cmd.MarkFlagRequired("reference"))
	cobra.CheckErr(cmd.MarkFlagRequired("comparison"))

	return cmd
}

func newGroupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group <file>",
		Short: "Group mutation calls into canonical variants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := a.open(false); err != nil {
				return err
			}

			groups, err := a.similarity.GroupRecords(records)
			if err != nil {
				return err
			}

			if a.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), groups)
			}
			renderGroups(cmd.OutOrStdout(), groups)
			return nil
		},
	}
	return cmd
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/patient-similarity-server/internal/setup"
)

func newSetupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with a desktop MCP client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var configPath, binaryPath string
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "client configuration file (default: platform location)")

	desktop := &cobra.Command{
		Use:   "desktop",
		Short: "Add or update the server entry in the client configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			written, err := setup.Configure(setup.Options{
				ConfigPath:    configPath,
				BinaryPath:    binaryPath,
				DataDir:       cfg.DataDir,
				CBioPortalURL: cfg.CBioPortalURL,
			})
			if err != nil {
				return err
			}
			cmd.Printf("Configured %q in %s\n", setup.ServerName, written)
			cmd.Println("Restart the client to load the new configuration.")
			return nil
		},
	}
	desktop.Flags().StringVar(&binaryPath, "binary", "", "path to the mcp-server binary (default: search PATH)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the client registration and data directory status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			st, err := setup.GetStatus(configPath, cfg.DataDir)
			if err != nil {
				return err
			}
			if a.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}

			cmd.Printf("Config file:  %s\n", st.ConfigPath)
			cmd.Printf("Configured:   %t\n", st.Configured)
			if st.Configured {
				cmd.Printf("Server:       %s (exists: %t)\n", st.ServerPath, st.BinaryExists)
			}
			cmd.Printf("Data dir:     %s (cohort: %t)\n", st.DataDir, st.CohortExists)
			for _, issue := range st.Issues {
				cmd.Printf("  ! %s\n", issue)
			}
			return nil
		},
	}

	cmd.AddCommand(desktop, status)
	return cmd
}

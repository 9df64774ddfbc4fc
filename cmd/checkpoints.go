package cmd

import (
	"fmt"

	"github.com/killallgit/podgraph/internal/services/checkpoints"
	"github.com/killallgit/podgraph/pkg/config"
	"github.com/spf13/cobra"
)

// checkpointsCmd groups checkpoint maintenance subcommands
var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and maintain episode checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List episodes with incomplete checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := checkpointManager()
		if err != nil {
			return err
		}
		incomplete, err := manager.GetIncompleteEpisodes()
		if err != nil {
			return err
		}
		if len(incomplete) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No incomplete episodes")
			return nil
		}
		for _, id := range incomplete {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var checkpointsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove checkpoints older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.GetConfig()
		if err != nil {
			return err
		}
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			days = cfg.Checkpoints.RetentionDays
		}
		manager, err := checkpointManager()
		if err != nil {
			return err
		}
		removed, err := manager.CleanOldCheckpoints(days)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d checkpoint files older than %d days\n", removed, days)
		return nil
	},
}

var checkpointsExportCmd = &cobra.Command{
	Use:   "export <archive.zip> [episode-id...]",
	Short: "Export checkpoints to a zip archive",
	Long: `Export checkpoints to a zip archive for transfer to another machine.
Without episode IDs the whole checkpoint directory is exported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := checkpointManager()
		if err != nil {
			return err
		}
		if err := manager.ExportCheckpoints(args[0], args[1:]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported checkpoints to %s\n", args[0])
		return nil
	},
}

var checkpointsImportCmd = &cobra.Command{
	Use:   "import <archive.zip>",
	Short: "Import checkpoints from a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := checkpointManager()
		if err != nil {
			return err
		}
		if err := manager.ImportCheckpoints(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported checkpoints from %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsCleanCmd)
	checkpointsCmd.AddCommand(checkpointsExportCmd)
	checkpointsCmd.AddCommand(checkpointsImportCmd)
	checkpointsCleanCmd.Flags().Int("days", 0, "retention in days (defaults to checkpoints.retention_days)")
}

func checkpointManager() (*checkpoints.Manager, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}
	return checkpoints.NewManager(checkpoints.Options{
		Dir:               cfg.Checkpoints.Dir,
		CompressThreshold: cfg.Checkpoints.CompressThreshold,
		MaxAge:            cfg.Checkpoints.MaxAge,
	})
}

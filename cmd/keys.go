package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/keys"
	"github.com/killallgit/podgraph/pkg/config"
	"github.com/spf13/cobra"
)

// keysCmd represents the keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show API key rotation state",
	Long: `Display the rotation state of the configured Gemini API keys: status,
usage counters, and consecutive failures. State is read from the
persisted key-state file, so this reflects the last run.`,
	RunE: runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	apiKeys := config.APIKeys()
	if len(apiKeys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No API keys configured")
		return nil
	}

	limits := make(map[string]models.ModelLimits, len(cfg.Keys.Limits))
	for name, spec := range cfg.Keys.Limits {
		limits[name] = models.ModelLimits{RPM: spec.RPM, TPM: spec.TPM, RPD: spec.RPD, TPD: spec.TPD}
	}
	manager, err := keys.NewManager(apiKeys, keys.Options{
		StatePath:              cfg.Keys.StatePath,
		MaxConsecutiveFailures: cfg.Keys.MaxConsecutiveFailures,
		Limits:                 limits,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATUS\tREQ/DAY\tTOKENS/DAY\tFAILURES\tLAST USED")
	for _, ks := range manager.Snapshot() {
		lastUsed := "never"
		if !ks.LastUsed.IsZero() {
			lastUsed = ks.LastUsed.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			ks.KeyName, ks.Status, ks.RequestsToday, ks.TokensToday, ks.ConsecutiveFailures, lastUsed)
	}
	return w.Flush()
}

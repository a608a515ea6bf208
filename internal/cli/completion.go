package cli

import (
	"os"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/upsert"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for geosync.

To load completions:

Bash:
  $ source <(geosync completion bash)

Zsh:
  $ source <(geosync completion zsh)

Fish:
  $ geosync completion fish | source
`,
		ValidArgs:             []string{"bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		DisableFlagsInUseLine: true,
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				rootCmd.GenFishCompletion(os.Stdout, true)
			}
		},
	})

	for _, cmd := range []*cobra.Command{importCmd, upsertCmd, deleteCmd, showCmd, changesCmd} {
		_ = cmd.RegisterFlagCompletionFunc("kind", completeKinds)
	}
	_ = importCmd.RegisterFlagCompletionFunc("sweep", fixedCompletion(
		string(upsert.SweepNone), string(upsert.SweepDisable), string(upsert.SweepDelete)))
	_ = importCmd.RegisterFlagCompletionFunc("srid", fixedCompletion("4326", "3857"))
}

func completeKinds(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	names := make([]string, 0, len(models.Kinds))
	for _, k := range models.Kinds {
		names = append(names, string(k))
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/labelsync/internal/render"
	"github.com/lherron/labelsync/internal/visited"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Displays version, commit, and build date information.`,
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		output := map[string]any{
			"version":    Version,
			"commit":     GitCommit,
			"build_date": BuildDate,
			"supported_commands": []string{
				"run", "cache count", "cache list", "cache has", "doctor", "version",
			},
			"supported_formats": []string{
				"table", "json", "ndjson", "yaml", "tsv",
			},
			"cache_backends": []string{
				string(visited.BackendSQLite), string(visited.BackendBadger), string(visited.BackendMemory),
			},
		}
		return render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: render.FormatJSON}).RenderJSON(output)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "labelsync version %s\n", Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", BuildDate)

	return nil
}

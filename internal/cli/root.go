package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "labelsync",
		Short: "Rewrite page labels across a content space tree",
		Long: `labelsync walks the page tree under a root page and rewrites every page's
labels so that each page carries its parent's current labels plus a label
derived from its own title.

Progress is recorded in a visited cache: a run that stops early resumes from
where it left off the next time it is started. Running labelsync without a
subcommand is the same as "labelsync run".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSync,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file (overrides LABELSYNC_CONFIG)")
	rootCmd.PersistentFlags().String("db", "", "Path to visited cache (overrides LABELSYNC_DB)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	addRunFlags(rootCmd)

	rootCmd.AddCommand(
		newRunCmd(),
		newCacheCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Logged && exitErr.Err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitGeneral
}

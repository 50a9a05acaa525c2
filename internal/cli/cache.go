package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/labelsync/internal/cli/appctx"
	"github.com/lherron/labelsync/internal/render"
	"github.com/lherron/labelsync/internal/visited"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the visited cache",
		Long:  `Inspect the pages that earlier runs have fully relabeled.`,
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of cached pages",
		Args:  cobra.NoArgs,
		RunE:  appctx.WithApp(appctx.CacheOnly(), runCacheCount),
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached pages in visit order",
		Args:  cobra.NoArgs,
		RunE:  appctx.WithApp(appctx.CacheOnly(), runCacheList),
	}
	listCmd.Flags().StringP("output", "o", "table", "Output format: table, json, ndjson, yaml, tsv")
	listCmd.Flags().Bool("porcelain", false, "Stable machine-readable output")

	hasCmd := &cobra.Command{
		Use:   "has <page-id>",
		Short: "Report whether a page id is cached",
		Long: `Has prints whether the page id is in the visited cache. It exits with
status 1 when the id is not cached, so it can be used in shell conditions.`,
		Args: cobra.ExactArgs(1),
		RunE: appctx.WithApp(appctx.CacheOnly(), runCacheHas),
	}

	cacheCmd.AddCommand(countCmd, listCmd, hasCmd)
	return cacheCmd
}

func runCacheCount(app *appctx.App, cmd *cobra.Command, args []string) error {
	n, err := app.Cache.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

func runCacheList(app *appctx.App, cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(cmd.Flag("output").Value.String())
	if err != nil {
		return exitError(2, err)
	}
	porcelain, _ := cmd.Flags().GetBool("porcelain")

	entries, err := app.Cache.List(cmd.Context())
	if err != nil {
		return err
	}

	r := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format, Porcelain: porcelain})
	return r.Render(entryRows(entries))
}

func runCacheHas(app *appctx.App, cmd *cobra.Command, args []string) error {
	id := args[0]
	ok, err := app.Cache.Has(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: not cached\n", id)
		return &ExitError{Code: ExitGeneral, Logged: true}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: cached\n", id)
	return nil
}

// entryRows adapts cache entries to render.Dataset.
type entryRows []visited.Entry

func (e entryRows) Headers() []string {
	return []string{"ID", "TITLE", "RUN", "VISITED"}
}

func (e entryRows) Rows() [][]string {
	rows := make([][]string, len(e))
	for i, entry := range e {
		rows[i] = []string{entry.ID, entry.Title, entry.RunID, entry.VisitedAt.Format(time.RFC3339)}
	}
	return rows
}

func (e entryRows) Items() []any {
	items := make([]any, len(e))
	for i, entry := range e {
		items[i] = entry
	}
	return items
}

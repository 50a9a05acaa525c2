package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lherron/labelsync/internal/config"
	"github.com/lherron/labelsync/internal/confluence"
	"github.com/lherron/labelsync/internal/db"
	"github.com/lherron/labelsync/internal/remote"
	"github.com/lherron/labelsync/internal/render"
	"github.com/lherron/labelsync/internal/visited"
)

type checkResult struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "ok", "warning", "error"
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

type doctorReport struct {
	Version       string        `json:"version"`
	ConfigPath    string        `json:"config_path"`
	CachePath     string        `json:"cache_path"`
	Checks        []checkResult `json:"checks"`
	Warnings      int           `json:"warnings"`
	Errors        int           `json:"errors"`
	OverallStatus string        `json:"overall_status"`
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, visited cache and API access",
		Long: `Doctor validates the configuration, inspects the visited cache and looks up
the root page with a single request. It changes nothing.`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
	cmd.Flags().Bool("json", false, "Output JSON")
	cmd.Flags().Bool("verbose", false, "Verbose output")
	cmd.Flags().Bool("offline", false, "Skip the API check")
	return cmd
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagValue(cmd, "config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath := flagValue(cmd, "db"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	report := &doctorReport{
		Version:       Version,
		ConfigPath:    cfg.Source,
		CachePath:     cfg.DBPath,
		Checks:        []checkResult{},
		OverallStatus: "ok",
	}

	configErrors := checkConfig(cfg)
	report.Checks = append(report.Checks, configErrors...)
	report.Checks = append(report.Checks, checkCache(cfg)...)

	offline, _ := cmd.Flags().GetBool("offline")
	if !offline && !hasErrors(configErrors) {
		report.Checks = append(report.Checks, checkRemote(cmd.Context(), cfg))
	}

	for _, check := range report.Checks {
		if check.Status == "warning" {
			report.Warnings++
		} else if check.Status == "error" {
			report.Errors++
			report.OverallStatus = "error"
		}
	}
	if report.Warnings > 0 && report.OverallStatus == "ok" {
		report.OverallStatus = "warning"
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if err := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: render.FormatJSON}).RenderJSON(report); err != nil {
			return err
		}
	} else {
		verbose, _ := cmd.Flags().GetBool("verbose")
		printHumanReport(cmd, report, verbose)
	}

	if report.Errors > 0 {
		return &ExitError{Code: ExitGeneral, Logged: true}
	}
	return nil
}

func checkConfig(cfg *config.Config) []checkResult {
	var results []checkResult

	source := cfg.Source
	if source == "" {
		source = "environment only"
	}
	if err := cfg.Validate(); err != nil {
		results = append(results, checkResult{
			Name:    "config_valid",
			Status:  "error",
			Message: fmt.Sprintf("Configuration incomplete: %v", err),
			Details: []string{"Config source: " + source},
		})
		return results
	}
	results = append(results, checkResult{
		Name:    "config_valid",
		Status:  "ok",
		Message: fmt.Sprintf("Configuration complete (%s)", source),
	})

	if cfg.DryRun {
		results = append(results, checkResult{
			Name:    "dry_run",
			Status:  "warning",
			Message: "dry_run is enabled, runs will not change labels",
		})
	}
	if cfg.RetryInterval.Duration() <= 0 {
		results = append(results, checkResult{
			Name:    "retry_interval",
			Status:  "warning",
			Message: "retry_interval is zero, failed requests are retried without pause",
		})
	}
	return results
}

func checkCache(cfg *config.Config) []checkResult {
	backend := visited.Backend(cfg.CacheBackend)
	switch backend {
	case "", visited.BackendSQLite:
		return checkSQLiteCache(cfg.DBPath)
	case visited.BackendBadger:
		return checkBadgerCache(cfg.DBPath)
	case visited.BackendMemory:
		return []checkResult{{
			Name:    "cache_backend",
			Status:  "warning",
			Message: "Memory cache: progress is lost when a run stops",
		}}
	default:
		return []checkResult{{
			Name:    "cache_backend",
			Status:  "error",
			Message: fmt.Sprintf("Unknown cache backend %q", cfg.CacheBackend),
		}}
	}
}

func checkSQLiteCache(dbPath string) []checkResult {
	var results []checkResult

	info, err := os.Stat(dbPath)
	if err != nil {
		results = append(results, checkResult{
			Name:    "cache_file_exists",
			Status:  "warning",
			Message: fmt.Sprintf("Cache file not found: %s", dbPath),
			Details: []string{"It is created by the first run"},
		})
		return results
	}
	results = append(results, checkResult{
		Name:    "cache_file_exists",
		Status:  "ok",
		Message: fmt.Sprintf("Cache file: %s (%.1f MB)", dbPath, float64(info.Size())/(1024*1024)),
	})

	f, err := os.OpenFile(dbPath, os.O_RDWR, 0)
	if err != nil {
		results = append(results, checkResult{
			Name:    "cache_file_permissions",
			Status:  "error",
			Message: fmt.Sprintf("Cache file not writable: %v", err),
		})
		return results
	}
	f.Close()
	results = append(results, checkResult{
		Name:    "cache_file_permissions",
		Status:  "ok",
		Message: "Cache file is readable and writable",
	})

	database, err := db.Open(dbPath)
	if err != nil {
		results = append(results, checkResult{
			Name:    "cache_open",
			Status:  "error",
			Message: fmt.Sprintf("Failed to open cache: %v", err),
		})
		return results
	}
	defer database.Close()

	var integrity string
	database.QueryRow("PRAGMA integrity_check").Scan(&integrity)
	if integrity == "ok" {
		results = append(results, checkResult{
			Name:    "integrity_check",
			Status:  "ok",
			Message: "Cache integrity check passed",
		})
	} else {
		results = append(results, checkResult{
			Name:    "integrity_check",
			Status:  "error",
			Message: fmt.Sprintf("Cache integrity check failed: %s", integrity),
			Details: []string{"Delete the cache file to start over; every page will be relabeled again"},
		})
	}

	_, pending, err := database.MigrationStatus()
	switch {
	case err != nil:
		results = append(results, checkResult{
			Name:    "cache_schema",
			Status:  "error",
			Message: fmt.Sprintf("Failed to read schema status: %v", err),
		})
	case len(pending) > 0:
		results = append(results, checkResult{
			Name:    "cache_schema",
			Status:  "warning",
			Message: fmt.Sprintf("%d pending schema migration(s)", len(pending)),
			Details: append([]string{"Applied automatically by the next run:"}, pending...),
		})
	default:
		var count int
		database.QueryRow("SELECT COUNT(*) FROM visited_pages").Scan(&count)
		results = append(results, checkResult{
			Name:    "cache_schema",
			Status:  "ok",
			Message: fmt.Sprintf("Schema up to date, %d cached page(s)", count),
		})
	}

	return results
}

func checkBadgerCache(dir string) []checkResult {
	info, err := os.Stat(dir)
	if err != nil {
		return []checkResult{{
			Name:    "cache_file_exists",
			Status:  "warning",
			Message: fmt.Sprintf("Cache directory not found: %s", dir),
			Details: []string{"It is created by the first run"},
		}}
	}
	if !info.IsDir() {
		return []checkResult{{
			Name:    "cache_file_exists",
			Status:  "error",
			Message: fmt.Sprintf("Badger cache path is not a directory: %s", dir),
		}}
	}

	cache, err := visited.OpenBadger(dir)
	if err != nil {
		return []checkResult{{
			Name:    "cache_open",
			Status:  "error",
			Message: fmt.Sprintf("Failed to open cache: %v", err),
			Details: []string{"Another run may be holding the directory lock"},
		}}
	}
	defer cache.Close()

	count, err := cache.Count(context.Background())
	if err != nil {
		return []checkResult{{
			Name:    "cache_open",
			Status:  "error",
			Message: fmt.Sprintf("Failed to read cache: %v", err),
		}}
	}
	return []checkResult{{
		Name:    "cache_open",
		Status:  "ok",
		Message: fmt.Sprintf("Badger cache: %s, %d cached page(s)", dir, count),
	}}
}

// checkRemote looks up the root page with one attempt and no retries.
func checkRemote(ctx context.Context, cfg *config.Config) checkResult {
	exec := remote.NewExecutor(remote.Options{
		Host:        cfg.Host,
		Username:    cfg.Username,
		Password:    cfg.Password,
		MaxAttempts: 1,
		Timeout:     cfg.RequestTimeout.Duration(),
		Logger:      zerolog.Nop(),
	})
	client := confluence.NewClient(exec, confluence.Options{SpaceKey: cfg.SpaceKey, Logger: zerolog.Nop()})

	page, err := client.LookupPage(ctx, cfg.RootPage)
	switch {
	case err == nil:
		return checkResult{
			Name:    "root_page",
			Status:  "ok",
			Message: fmt.Sprintf("Root page %q found in %s (id %s)", page.Title, cfg.SpaceKey, page.ID),
		}
	case remote.IsKind(err, remote.KindNotFound):
		return checkResult{
			Name:    "root_page",
			Status:  "error",
			Message: fmt.Sprintf("Root page %q not found in space %s", cfg.RootPage, cfg.SpaceKey),
		}
	default:
		return checkResult{
			Name:    "root_page",
			Status:  "error",
			Message: fmt.Sprintf("API request to %s failed", exec.Host()),
			Details: []string{err.Error()},
		}
	}
}

func hasErrors(results []checkResult) bool {
	for _, r := range results {
		if r.Status == "error" {
			return true
		}
	}
	return false
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func printHumanReport(cmd *cobra.Command, report *doctorReport, verbose bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "labelsync doctor %s\n\n", report.Version)
	fmt.Fprintf(out, "Cache: %s\n\n", report.CachePath)

	categories := map[string][]checkResult{}
	for _, check := range report.Checks {
		var category string
		switch check.Name {
		case "config_valid", "dry_run", "retry_interval":
			category = "Configuration"
		case "root_page":
			category = "API"
		default:
			category = "Visited Cache"
		}
		categories[category] = append(categories[category], check)
	}

	for _, category := range []string{"Configuration", "Visited Cache", "API"} {
		checks := categories[category]
		if len(checks) == 0 {
			continue
		}

		fmt.Fprintf(out, "%s\n", category)
		for _, check := range checks {
			icon := "✓"
			if check.Status == "warning" {
				icon = "⚠"
			} else if check.Status == "error" {
				icon = "✗"
			}

			fmt.Fprintf(out, "  %s %s\n", icon, check.Message)

			if verbose {
				for _, detail := range check.Details {
					fmt.Fprintf(out, "      %s\n", detail)
				}
			}
		}
		fmt.Fprintln(out)
	}

	if report.Errors > 0 {
		fmt.Fprintf(out, "Summary: %d error(s), %d warning(s)\n", report.Errors, report.Warnings)
	} else if report.Warnings > 0 {
		fmt.Fprintf(out, "Summary: %d warning(s)\n", report.Warnings)
	} else {
		fmt.Fprintf(out, "Summary: All checks passed ✓\n")
	}

	if !verbose && (report.Warnings > 0 || report.Errors > 0) {
		fmt.Fprintf(out, "\nRun with --verbose for detailed information\n")
	}
}

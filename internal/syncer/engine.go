// Package syncer walks a page tree depth-first and rewrites each page's
// labels to its parent's current labels plus a label derived from its title.
package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"

	"github.com/lherron/labelsync/internal/confluence"
	"github.com/lherron/labelsync/internal/labels"
	"github.com/lherron/labelsync/internal/metrics"
	"github.com/lherron/labelsync/internal/visited"
)

// Pages is the remote surface the engine needs.
type Pages interface {
	LookupPage(ctx context.Context, title string) (confluence.Page, error)
	ListChildren(ctx context.Context, childrenRef string) ([]confluence.Page, error)
	HasAttachments(ctx context.Context, childrenRef string) (bool, error)
	GetLabels(ctx context.Context, pageID string) ([]string, error)
	ClearLabels(ctx context.Context, pageID string) ([]string, error)
	ApplyLabels(ctx context.Context, pageID string, labels []string) error
}

// Options configures an Engine.
type Options struct {
	Cache   visited.Cache
	Logger  zerolog.Logger
	Metrics *metrics.Recorder
	RunID   string
	// DryRun leaves the visited cache untouched so a later real run still
	// processes every page.
	DryRun bool
}

// Stats summarizes one run.
type Stats struct {
	Pages         int `json:"pages"`
	Relabeled     int `json:"relabeled"`
	Cached        int `json:"cached"`
	Files         int `json:"files"`
	LabelsRemoved int `json:"labels_removed"`
	LabelsAdded   int `json:"labels_added"`
}

// Engine drives the label synchronization. It is single-use per run and not
// safe for concurrent use.
type Engine struct {
	pages   Pages
	cache   visited.Cache
	log     zerolog.Logger
	metrics *metrics.Recorder
	runID   string
	dryRun  bool
	stats   Stats
}

// New creates an Engine.
func New(pages Pages, opts Options) *Engine {
	return &Engine{
		pages:   pages,
		cache:   opts.Cache,
		log:     opts.Logger,
		metrics: opts.Metrics,
		runID:   opts.RunID,
		dryRun:  opts.DryRun,
	}
}

// Run synchronizes the tree rooted at the page titled rootTitle. The returned
// stats cover the work done up to the point of any error.
func (e *Engine) Run(ctx context.Context, rootTitle string) (Stats, error) {
	e.stats = Stats{}
	err := e.visit(ctx, rootTitle, "")
	return e.stats, err
}

// visit processes one page and then its children. parentID is empty for the
// root.
func (e *Engine) visit(ctx context.Context, title, parentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.log.Info().Str("page", title).Msgf("Starting to work on: %q", title)

	page, err := e.pages.LookupPage(ctx, title)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", title, err)
	}
	e.stats.Pages++

	cached, err := e.cache.Has(ctx, page.ID)
	if err != nil {
		return fmt.Errorf("check cache for %q: %w", title, err)
	}

	if cached {
		e.log.Info().Str("page", title).Str("page_id", page.ID).Msg("Page already cached, skipping...")
		e.stats.Cached++
		e.metrics.ObservePage(metrics.PageCached)
	} else {
		done, err := e.relabel(ctx, page, parentID)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		e.log.Info().Str("page", title).Msgf("Finished working on: %q, fetching children.", title)
	}

	children, err := e.pages.ListChildren(ctx, page.ChildrenRef)
	if err != nil {
		return fmt.Errorf("list children of %q: %w", title, err)
	}
	for _, child := range children {
		e.log.Info().Str("from", title).Str("to", child.Title).Msgf("Going deeper from: %q to: %q", title, child.Title)
		if err := e.visit(ctx, child.Title, page.ID); err != nil {
			return err
		}
	}
	return nil
}

// relabel rewrites a page's labels. It returns false when the page is a file
// node, which ends the walk on this branch.
func (e *Engine) relabel(ctx context.Context, page confluence.Page, parentID string) (bool, error) {
	removed, err := e.pages.ClearLabels(ctx, page.ID)
	e.stats.LabelsRemoved += len(removed)
	if err != nil {
		return false, fmt.Errorf("clear labels on %q: %w", page.Title, err)
	}

	var applied []string
	if parentID != "" {
		e.log.Info().Str("page", page.Title).Str("parent_id", parentID).Msg("Loading parent labels.")
		inherited, err := e.pages.GetLabels(ctx, parentID)
		if err != nil {
			return false, fmt.Errorf("load parent labels for %q: %w", page.Title, err)
		}
		if err := e.apply(ctx, page, inherited); err != nil {
			return false, err
		}
		applied = append(applied, inherited...)
	}

	isFile, err := e.pages.HasAttachments(ctx, page.ChildrenRef)
	if err != nil {
		return false, fmt.Errorf("check attachments on %q: %w", page.Title, err)
	}
	if isFile {
		e.log.Info().Str("page", page.Title).Msgf("%q is a file, no need to add additional label or go deeper.", page.Title)
		e.stats.Files++
		e.metrics.ObservePage(metrics.PageFile)
		e.logDiff(page, removed, applied)
		return false, nil
	}

	derived := labels.Normalize(page.Title)
	e.log.Info().Str("page", page.Title).Msgf("Generating label for current page: %q", derived)
	if labels.IsEnumerated(page.Title) {
		derived = labels.Derive(page.Title)
		e.log.Info().Str("page", page.Title).Msgf("Page title is enumerated, regenerating label: %q", derived)
	}

	if derived == "" {
		e.log.Warn().Str("page", page.Title).Msg("Title produces an empty label, nothing to add.")
	} else {
		if err := e.apply(ctx, page, []string{derived}); err != nil {
			return false, err
		}
		applied = append(applied, derived)
	}
	e.logDiff(page, removed, applied)

	if !e.dryRun {
		e.log.Info().Str("page", page.Title).Str("page_id", page.ID).Msgf("Caching page %q", page.Title)
		if err := e.cache.Add(ctx, visited.Entry{ID: page.ID, Title: page.Title, RunID: e.runID}); err != nil {
			return false, fmt.Errorf("cache %q: %w", page.Title, err)
		}
	}
	e.stats.Relabeled++
	e.metrics.ObservePage(metrics.PageRelabeled)
	return true, nil
}

func (e *Engine) apply(ctx context.Context, page confluence.Page, names []string) error {
	if err := e.pages.ApplyLabels(ctx, page.ID, names); err != nil {
		return fmt.Errorf("add labels to %q: %w", page.Title, err)
	}
	e.stats.LabelsAdded += len(names)
	return nil
}

// logDiff emits a unified diff of a page's labels before and after the
// rewrite at debug level.
func (e *Engine) logDiff(page confluence.Page, before, after []string) {
	if e.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        labelLines(before),
		B:        labelLines(after),
		FromFile: page.Title + " (before)",
		ToFile:   page.Title + " (after)",
		Context:  len(before) + len(after),
	})
	if err != nil || diff == "" {
		return
	}
	e.log.Debug().Str("page", page.Title).Str("diff", strings.TrimRight(diff, "\n")).Msg("Label changes")
}

func labelLines(names []string) []string {
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = n + "\n"
	}
	return lines
}

// Package confluence reads and relabels pages through the content REST API.
package confluence

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lherron/labelsync/internal/metrics"
	"github.com/lherron/labelsync/internal/remote"
)

// Executor performs one logical remote call.
type Executor interface {
	Execute(ctx context.Context, req remote.Request, out any) error
}

// Page is a node in the content tree.
type Page struct {
	ID    string
	Title string
	// ChildrenRef is the unresolved "_expandable.children" link used to list
	// child pages and attachments.
	ChildrenRef string
}

// Options configures a Client.
type Options struct {
	SpaceKey string
	// DryRun logs label mutations instead of sending them.
	DryRun  bool
	Logger  zerolog.Logger
	Metrics *metrics.Recorder
}

// Client is the page accessor and label mutator.
type Client struct {
	exec     Executor
	spaceKey string
	dryRun   bool
	log      zerolog.Logger
	metrics  *metrics.Recorder
}

// NewClient creates a Client on top of exec.
func NewClient(exec Executor, opts Options) *Client {
	return &Client{
		exec:     exec,
		spaceKey: opts.SpaceKey,
		dryRun:   opts.DryRun,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

type expandable struct {
	Children string `json:"children"`
}

type content struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Expandable expandable `json:"_expandable"`
}

type contentList struct {
	Results []content         `json:"results"`
	Links   map[string]string `json:"_links"`
}

type label struct {
	Name string `json:"name"`
}

type labelList struct {
	Results []label `json:"results"`
}

func (c content) page() Page {
	return Page{ID: c.ID, Title: c.Title, ChildrenRef: c.Expandable.Children}
}

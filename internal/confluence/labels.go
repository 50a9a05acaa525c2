package confluence

import (
	"context"
	"net/http"
	"net/url"

	"github.com/lherron/labelsync/internal/metrics"
	"github.com/lherron/labelsync/internal/remote"
)

var jsonHeaders = map[string]string{
	"Accept":       "application/json",
	"Content-Type": "application/json",
}

// ClearLabels deletes every label on a page, one DELETE per label, and
// returns the names it removed.
func (c *Client) ClearLabels(ctx context.Context, pageID string) ([]string, error) {
	current, err := c.GetLabels(ctx, pageID)
	if err != nil {
		return nil, err
	}

	c.log.Info().Str("page_id", pageID).Int("count", len(current)).Msg("Deleting page's labels before adding new ones.")

	removed := make([]string, 0, len(current))
	for _, name := range current {
		if c.dryRun {
			c.log.Info().Str("page_id", pageID).Str("label", name).Msgf("[dry-run] Would delete label: %q", name)
			removed = append(removed, name)
			continue
		}

		c.log.Debug().Str("page_id", pageID).Str("label", name).Msgf("Deleting label: %q", name)
		err := c.exec.Execute(ctx, remote.Request{
			Method: http.MethodDelete,
			Path:   labelPath(pageID),
			Query:  url.Values{"name": {name}},
		}, nil)
		if err != nil {
			return removed, err
		}
		removed = append(removed, name)
		c.metrics.ObserveLabels(metrics.LabelRemoved, 1)
	}
	return removed, nil
}

// ApplyLabels adds labels to a page in order, one POST per label. Duplicates
// are sent as given.
func (c *Client) ApplyLabels(ctx context.Context, pageID string, labels []string) error {
	for _, name := range labels {
		if c.dryRun {
			c.log.Info().Str("page_id", pageID).Str("label", name).Msgf("[dry-run] Would add label: %q", name)
			continue
		}

		c.log.Info().Str("page_id", pageID).Str("label", name).Msgf("Adding label: %q", name)
		err := c.exec.Execute(ctx, remote.Request{
			Method:  http.MethodPost,
			Path:    labelPath(pageID),
			Body:    []label{{Name: name}},
			Headers: jsonHeaders,
		}, nil)
		if err != nil {
			return err
		}
		c.metrics.ObserveLabels(metrics.LabelAdded, 1)
	}
	return nil
}

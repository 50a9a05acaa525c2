package confluence

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lherron/labelsync/internal/cursor"
	"github.com/lherron/labelsync/internal/remote"
)

// LookupPage finds a page in the configured space by exact title and returns
// the first match. No match is a KindNotFound error.
func (c *Client) LookupPage(ctx context.Context, title string) (Page, error) {
	req := remote.Request{
		Method: http.MethodGet,
		Path:   "rest/api/content",
		Query: url.Values{
			"type":     {"page"},
			"spaceKey": {c.spaceKey},
			"title":    {title},
		},
	}

	var out contentList
	if err := c.exec.Execute(ctx, req, &out); err != nil {
		return Page{}, err
	}
	if len(out.Results) == 0 {
		return Page{}, &remote.Error{
			Kind:   remote.KindNotFound,
			Method: req.Method,
			URL:    req.Path,
			Err:    fmt.Errorf("no page titled %q in space %s", title, c.spaceKey),
		}
	}
	return out.Results[0].page(), nil
}

// ListChildren returns every child page under childrenRef, following
// _links.next until the listing has no next page. Results keep server order.
func (c *Client) ListChildren(ctx context.Context, childrenRef string) ([]Page, error) {
	next, err := cursor.Child(childrenRef, "page")
	if err != nil {
		return nil, fmt.Errorf("children reference: %w", err)
	}

	var children []Page
	for next != nil {
		var out contentList
		req := remote.Request{Method: http.MethodGet, Path: next.Path, Query: next.Query}
		if err := c.exec.Execute(ctx, req, &out); err != nil {
			return nil, err
		}
		for _, r := range out.Results {
			children = append(children, r.page())
		}

		next, err = cursor.Next(out.Links)
		if err != nil {
			return nil, fmt.Errorf("children pagination: %w", err)
		}
	}
	return children, nil
}

// HasAttachments reports whether the node under childrenRef has at least one
// attachment.
func (c *Client) HasAttachments(ctx context.Context, childrenRef string) (bool, error) {
	ref, err := cursor.Child(childrenRef, "attachment")
	if err != nil {
		return false, fmt.Errorf("attachment reference: %w", err)
	}

	var out contentList
	if err := c.exec.Execute(ctx, remote.Request{Method: http.MethodGet, Path: ref.Path, Query: ref.Query}, &out); err != nil {
		return false, err
	}
	return len(out.Results) != 0, nil
}

// GetLabels returns the names of the labels currently on a page.
func (c *Client) GetLabels(ctx context.Context, pageID string) ([]string, error) {
	var out labelList
	if err := c.exec.Execute(ctx, remote.Request{Method: http.MethodGet, Path: labelPath(pageID)}, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Results))
	for _, l := range out.Results {
		names = append(names, l.Name)
	}
	return names, nil
}

func labelPath(pageID string) string {
	return "rest/api/content/" + url.PathEscape(pageID) + "/label"
}

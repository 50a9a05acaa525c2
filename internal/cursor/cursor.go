package cursor

import (
	"fmt"
	"net/url"
	"strings"
)

// Cursor is a position in a paginated listing, expressed as a path relative
// to the API host plus the query that selects the next page.
type Cursor struct {
	Path  string
	Query url.Values
}

// Encode serializes the cursor back into a relative link
func (c *Cursor) Encode() string {
	if len(c.Query) == 0 {
		return c.Path
	}
	return c.Path + "?" + c.Query.Encode()
}

// Decode parses a relative link as returned in a listing's _links.next.
// A leading slash is dropped so the result can be joined to a host that
// already ends with one. Absolute links keep only their path and query.
func Decode(link string) (*Cursor, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("empty cursor link")
	}

	parsed, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor link %q: %w", link, err)
	}

	path := strings.TrimLeft(parsed.Path, "/")
	if path == "" {
		return nil, fmt.Errorf("cursor link %q has no path", link)
	}

	return &Cursor{
		Path:  path,
		Query: parsed.Query(),
	}, nil
}

// Next returns the cursor for the page after the current one, or nil when
// the listing carries no next link.
func Next(links map[string]string) (*Cursor, error) {
	next, ok := links["next"]
	if !ok || strings.TrimSpace(next) == "" {
		return nil, nil
	}
	return Decode(next)
}

// Child builds the cursor for the first page of a sub-listing under a
// content node's expandable reference, e.g. "/rest/api/content/42/child"
// plus "page" or "attachment".
func Child(ref, kind string) (*Cursor, error) {
	base, err := Decode(ref)
	if err != nil {
		return nil, err
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.Trim(kind, "/")
	return base, nil
}

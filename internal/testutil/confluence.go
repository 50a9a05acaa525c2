package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// FakePage is a page held by FakeConfluence.
type FakePage struct {
	ID          string
	Title       string
	ParentID    string
	Labels      []string
	Attachments int
}

// Call is one request received by FakeConfluence.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
}

// FailFunc decides whether a call should fail. A non-zero status makes the
// fake answer with that status and body instead of serving the call.
type FailFunc func(call Call) (status int, body string)

// FakeConfluence is an in-memory content API served over httptest.
type FakeConfluence struct {
	Server   *httptest.Server
	SpaceKey string
	// PageSize bounds child listings; 0 returns all children at once.
	PageSize int
	Fail     FailFunc

	mu    sync.Mutex
	pages map[string]*FakePage
	order []string
	calls []Call
}

// NewFakeConfluence starts a fake API for spaceKey. The server is closed
// when the test ends.
func NewFakeConfluence(t *testing.T, spaceKey string) *FakeConfluence {
	t.Helper()
	fc := &FakeConfluence{
		SpaceKey: spaceKey,
		pages:    make(map[string]*FakePage),
	}
	fc.Server = httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(fc.Server.Close)
	return fc
}

// URL returns the base URL of the fake.
func (fc *FakeConfluence) URL() string {
	return fc.Server.URL
}

// AddPage registers a page under parentID ("" for a root).
func (fc *FakeConfluence) AddPage(id, title, parentID string, labels ...string) *FakePage {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	p := &FakePage{ID: id, Title: title, ParentID: parentID, Labels: append([]string(nil), labels...)}
	fc.pages[id] = p
	fc.order = append(fc.order, id)
	return p
}

// SetAttachments sets the number of attachments on a page.
func (fc *FakeConfluence) SetAttachments(id string, n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.pages[id].Attachments = n
}

// Labels returns a copy of a page's labels.
func (fc *FakeConfluence) Labels(id string) []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.pages[id].Labels...)
}

// Calls returns a copy of every call received so far.
func (fc *FakeConfluence) Calls() []Call {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]Call(nil), fc.calls...)
}

// ResetCalls forgets recorded calls.
func (fc *FakeConfluence) ResetCalls() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.calls = nil
}

// CountCalls counts calls with method whose path ends with suffix.
func (fc *FakeConfluence) CountCalls(method, suffix string) int {
	n := 0
	for _, c := range fc.Calls() {
		if c.Method == method && strings.HasSuffix(c.Path, suffix) {
			n++
		}
	}
	return n
}

func (fc *FakeConfluence) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	call := Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: string(body)}

	fc.mu.Lock()
	fc.calls = append(fc.calls, call)
	fail := fc.Fail
	fc.mu.Unlock()

	if fail != nil {
		if status, msg := fail(call); status != 0 {
			w.WriteHeader(status)
			io.WriteString(w, msg)
			return
		}
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/rest/api/content")
	if path == "" || path == "/" {
		fc.serveLookup(w, call)
		return
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	page, ok := fc.pages[parts[0]]
	if !ok {
		http.Error(w, `{"message":"No content found"}`, http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 3 && parts[1] == "child" && parts[2] == "page" && r.Method == http.MethodGet:
		fc.serveChildren(w, page, call)
	case len(parts) == 3 && parts[1] == "child" && parts[2] == "attachment" && r.Method == http.MethodGet:
		fc.serveAttachments(w, page)
	case len(parts) == 2 && parts[1] == "label":
		fc.serveLabels(w, page, call)
	default:
		http.Error(w, "unsupported", http.StatusNotFound)
	}
}

func (fc *FakeConfluence) content(p *FakePage) map[string]any {
	return map[string]any{
		"id":    p.ID,
		"type":  "page",
		"title": p.Title,
		"_expandable": map[string]any{
			"children": "/rest/api/content/" + p.ID + "/child",
		},
	}
}

func (fc *FakeConfluence) serveLookup(w http.ResponseWriter, call Call) {
	results := []map[string]any{}
	if call.Query.Get("type") == "page" && call.Query.Get("spaceKey") == fc.SpaceKey {
		for _, id := range fc.order {
			if p := fc.pages[id]; p.Title == call.Query.Get("title") {
				results = append(results, fc.content(p))
			}
		}
	}
	writeJSON(w, map[string]any{"results": results, "_links": map[string]string{"base": fc.Server.URL}})
}

func (fc *FakeConfluence) serveChildren(w http.ResponseWriter, parent *FakePage, call Call) {
	var children []*FakePage
	for _, id := range fc.order {
		if p := fc.pages[id]; p.ParentID == parent.ID {
			children = append(children, p)
		}
	}

	start, _ := strconv.Atoi(call.Query.Get("start"))
	end := len(children)
	if fc.PageSize > 0 && start+fc.PageSize < end {
		end = start + fc.PageSize
	}
	if start > end {
		start = end
	}

	results := []map[string]any{}
	for _, p := range children[start:end] {
		results = append(results, fc.content(p))
	}

	links := map[string]string{"self": call.Path}
	if end < len(children) {
		links["next"] = "/rest/api/content/" + parent.ID + "/child/page?limit=" + strconv.Itoa(fc.PageSize) + "&start=" + strconv.Itoa(end)
	}
	writeJSON(w, map[string]any{"results": results, "start": start, "size": len(results), "_links": links})
}

func (fc *FakeConfluence) serveAttachments(w http.ResponseWriter, page *FakePage) {
	results := []map[string]any{}
	for i := 0; i < page.Attachments; i++ {
		results = append(results, map[string]any{
			"id":    "att" + page.ID + "-" + strconv.Itoa(i),
			"type":  "attachment",
			"title": "file-" + strconv.Itoa(i) + ".pdf",
		})
	}
	writeJSON(w, map[string]any{"results": results, "_links": map[string]string{}})
}

func (fc *FakeConfluence) serveLabels(w http.ResponseWriter, page *FakePage, call Call) {
	switch call.Method {
	case http.MethodGet:
		results := []map[string]string{}
		for _, l := range page.Labels {
			results = append(results, map[string]string{"prefix": "global", "name": l})
		}
		writeJSON(w, map[string]any{"results": results})
	case http.MethodDelete:
		name := call.Query.Get("name")
		for i, l := range page.Labels {
			if l == name {
				page.Labels = append(page.Labels[:i], page.Labels[i+1:]...)
				break
			}
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		var added []struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(call.Body), &added); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, a := range added {
			if !containsLabel(page.Labels, a.Name) {
				page.Labels = append(page.Labels, a.Name)
			}
		}
		writeJSON(w, map[string]any{"results": added})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func containsLabel(labels []string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/lherron/labelsync/internal/metrics"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func newTestExecutor(t *testing.T, srv *httptest.Server, maxAttempts int) (*Executor, *sleepRecorder, *bytes.Buffer, *metrics.Recorder) {
	t.Helper()
	var logs bytes.Buffer
	sleeper := &sleepRecorder{}
	rec := metrics.New()
	exec := NewExecutor(Options{
		Host:          srv.URL,
		Username:      "bot",
		Password:      "secret",
		HTTPClient:    srv.Client(),
		MaxAttempts:   maxAttempts,
		RetryInterval: time.Minute,
		Logger:        zerolog.New(&logs),
		Metrics:       rec,
		Sleep:         sleeper.sleep,
	})
	return exec, sleeper, &logs, rec
}

func TestExecuteDecodesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bot" || pass != "secret" {
			t.Errorf("basic auth = %q/%q/%v, want bot/secret", user, pass, ok)
		}
		if r.URL.Path != "/rest/api/content" {
			t.Errorf("path = %q, want /rest/api/content", r.URL.Path)
		}
		if r.URL.Query().Get("title") != "Team Plans" {
			t.Errorf("title query = %q, want Team Plans", r.URL.Query().Get("title"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results":[{"id":"7"}]}`)
	}))
	defer srv.Close()

	exec, sleeper, _, rec := newTestExecutor(t, srv, 3)

	var out struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	err := exec.Execute(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/rest/api/content",
		Query:  url.Values{"title": {"Team Plans"}},
	}, &out)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].ID != "7" {
		t.Errorf("decoded = %+v, want one result with id 7", out)
	}
	if len(sleeper.calls) != 0 {
		t.Errorf("slept %d times on success, want 0", len(sleeper.calls))
	}
	if got := testutil.ToFloat64(rec.RequestsTotal.WithLabelValues("GET", metrics.OutcomeSuccess)); got != 1 {
		t.Errorf("success requests = %v, want 1", got)
	}
}

func TestExecuteNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	exec, _, _, _ := newTestExecutor(t, srv, 3)

	out := map[string]any{"untouched": true}
	if err := exec.Execute(context.Background(), Request{Method: http.MethodDelete, Path: "rest/api/content/1/label"}, &out); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out["untouched"] != true {
		t.Errorf("204 response modified output: %v", out)
	}
}

func TestExecuteSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if accept := r.Header.Get("Accept"); accept != "application/json" {
			t.Errorf("Accept = %q, want application/json", accept)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `[{"name":"Team_Plans"}]` {
			t.Errorf("body = %s", body)
		}
		io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	exec, _, _, _ := newTestExecutor(t, srv, 1)

	err := exec.Execute(context.Background(), Request{
		Method:  http.MethodPost,
		Path:    "rest/api/content/1/label",
		Body:    []map[string]string{{"name": "Team_Plans"}},
		Headers: map[string]string{"Accept": "application/json", "Content-Type": "application/json"},
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	exec, sleeper, logs, rec := newTestExecutor(t, srv, 5)

	var out struct {
		OK bool `json:"ok"`
	}
	if err := exec.Execute(context.Background(), Request{Method: http.MethodGet, Path: "rest/api/content"}, &out); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !out.OK {
		t.Error("expected decoded ok=true")
	}
	if calls != 3 {
		t.Errorf("server saw %d calls, want 3", calls)
	}
	if len(sleeper.calls) != 2 {
		t.Fatalf("slept %d times, want 2", len(sleeper.calls))
	}
	for _, d := range sleeper.calls {
		if d != time.Minute {
			t.Errorf("sleep interval = %v, want fixed 1m", d)
		}
	}
	if n := strings.Count(logs.String(), "Request failed"); n != 2 {
		t.Errorf("logged %d failures, want one per failed attempt (2)", n)
	}
	if !strings.Contains(logs.String(), "attempt 2 out of 5") {
		t.Errorf("missing retry log line: %s", logs.String())
	}
	if got := testutil.ToFloat64(rec.RetriesTotal); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
}

func TestExecuteRetriesUndecodableBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			io.WriteString(w, `<html>maintenance</html>`)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	exec, sleeper, _, _ := newTestExecutor(t, srv, 3)

	var out struct {
		OK bool `json:"ok"`
	}
	if err := exec.Execute(context.Background(), Request{Method: http.MethodGet, Path: "x"}, &out); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if calls != 2 || len(sleeper.calls) != 1 {
		t.Errorf("calls=%d sleeps=%d, want 2 and 1", calls, len(sleeper.calls))
	}
}

func TestExecuteConflictIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"message":"A page with this title already exists: Team Plans"}`)
	}))
	defer srv.Close()

	exec, sleeper, _, rec := newTestExecutor(t, srv, 300)

	err := exec.Execute(context.Background(), Request{Method: http.MethodPost, Path: "rest/api/content"}, nil)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if !IsKind(err, KindConflict) {
		t.Errorf("error kind = %v, want conflict (%v)", err, KindConflict)
	}
	var re *Error
	if !errors.As(err, &re) || re.StatusCode != http.StatusBadRequest || re.Attempts != 1 {
		t.Errorf("error = %+v, want status 400 on attempt 1", re)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want exactly 1", calls)
	}
	if len(sleeper.calls) != 0 {
		t.Errorf("slept %d times, want 0", len(sleeper.calls))
	}
	if got := testutil.ToFloat64(rec.RequestsTotal.WithLabelValues("POST", metrics.OutcomeConflict)); got != 1 {
		t.Errorf("conflict requests = %v, want 1", got)
	}
}

func TestExecuteRetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec, sleeper, logs, _ := newTestExecutor(t, srv, 4)

	err := exec.Execute(context.Background(), Request{Method: http.MethodGet, Path: "rest/api/content"}, nil)
	if !IsKind(err, KindRetriesExhausted) {
		t.Fatalf("error = %v, want retries exhausted", err)
	}
	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("error is not *Error: %T", err)
	}
	if re.Attempts != 4 || re.StatusCode != http.StatusInternalServerError {
		t.Errorf("error = %+v, want 4 attempts and status 500", re)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Error("expected last StatusError in chain")
	}
	if calls != 4 {
		t.Errorf("server saw %d calls, want 4", calls)
	}
	if len(sleeper.calls) != 3 {
		t.Errorf("slept %d times, want 3", len(sleeper.calls))
	}
	if !strings.Contains(logs.String(), "Max retries reached, in the next run the system will try to run from this point on") {
		t.Errorf("missing exhaustion log: %s", logs.String())
	}
}

func TestExecuteNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	exec, sleeper, _, _ := newTestExecutor(t, srv, 2)
	srv.Close()

	err := exec.Execute(context.Background(), Request{Method: http.MethodGet, Path: "x"}, nil)
	if !IsKind(err, KindRetriesExhausted) {
		t.Fatalf("error = %v, want retries exhausted", err)
	}
	if len(sleeper.calls) != 1 {
		t.Errorf("slept %d times, want 1", len(sleeper.calls))
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	exec := NewExecutor(Options{
		Host:          srv.URL,
		HTTPClient:    srv.Client(),
		MaxAttempts:   10,
		RetryInterval: time.Hour,
		Logger:        zerolog.Nop(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	err := exec.Execute(ctx, Request{Method: http.MethodGet, Path: "x"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDefaultClientSkipsTLSVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	exec := NewExecutor(Options{
		Host:        srv.URL,
		MaxAttempts: 1,
		Logger:      zerolog.Nop(),
	})
	if err := exec.Execute(context.Background(), Request{Method: http.MethodGet, Path: "rest/api/content"}, nil); err != nil {
		t.Fatalf("Execute against self-signed server failed: %v", err)
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := map[string]string{
		"https://wiki.example.com":       "https://wiki.example.com/",
		"https://wiki.example.com/":      "https://wiki.example.com/",
		" https://wiki.example.com/ctx ": "https://wiki.example.com/ctx/",
		"":                               "",
	}
	for in, want := range tests {
		if got := NormalizeHost(in); got != want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildURL(t *testing.T) {
	exec := NewExecutor(Options{Host: "https://wiki.example.com", Logger: zerolog.Nop()})

	got := exec.buildURL(Request{Path: "/rest/api/content/1/label", Query: url.Values{"name": {"a b"}}})
	if got != "https://wiki.example.com/rest/api/content/1/label?name=a+b" {
		t.Errorf("buildURL = %q", got)
	}

	got = exec.buildURL(Request{Path: "rest/api/content/1/child/page?start=25", Query: url.Values{"limit": {"25"}}})
	if got != "https://wiki.example.com/rest/api/content/1/child/page?start=25&limit=25" {
		t.Errorf("buildURL with existing query = %q", got)
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindTransient:        "transient",
		KindConflict:         "conflict",
		KindRetriesExhausted: "retries_exhausted",
		KindNotFound:         "not_found",
	} {
		if kind.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(kind), kind.String(), want)
		}
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf(plain error) reported a kind")
	}
}

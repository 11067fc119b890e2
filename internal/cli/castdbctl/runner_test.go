package castdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type capturedRequest struct {
	method string
	path   string
	apiKey string
	body   map[string]any
}

func newCaptureServer(t *testing.T, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.apiKey = r.Header.Get("X-API-Key")
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &captured.body); err != nil {
				t.Errorf("request body is not JSON: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestRunExercisesCommand(t *testing.T) {
	srv, captured := newCaptureServer(t, `{"exercises":[]}`)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"exercises",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if captured.method != http.MethodGet || captured.path != "/v1/exercises" {
		t.Fatalf("request = %s %s", captured.method, captured.path)
	}
	if captured.apiKey != "k1" {
		t.Fatalf("api key = %q", captured.apiKey)
	}
	if stdout.Len() == 0 {
		t.Fatal("expected command output")
	}
}

func TestRunExerciseCommandSendsArgs(t *testing.T) {
	srv, captured := newCaptureServer(t, `{"columns":["title"],"rows":[["Star Wars"]]}`)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-row-limit", "5",
		"run", "fordFilms", "actor=Harrison Ford",
	}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if captured.method != http.MethodPost || captured.path != "/v1/exercises/fordFilms" {
		t.Fatalf("request = %s %s", captured.method, captured.path)
	}
	args := captured.body["args"].(map[string]any)
	if args["actor"] != "Harrison Ford" {
		t.Fatalf("args = %v", args)
	}
	if captured.body["row_limit"] != float64(5) {
		t.Fatalf("row_limit = %v", captured.body["row_limit"])
	}
}

func TestRunQueryCommandSendsParams(t *testing.T) {
	srv, captured := newCaptureServer(t, `{"columns":["title","yr"],"rows":[["Dr. No",1962],["Lawrence of Arabia",null]]}`)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-format", "table",
		"query", "SELECT title, yr FROM movies WHERE yr = $1 AND title <> $2", "1962", "Goldfinger",
	}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if captured.path != "/v1/query" {
		t.Fatalf("path = %s", captured.path)
	}
	params := captured.body["params"].([]any)
	if len(params) != 2 || params[0] != float64(1962) || params[1] != "Goldfinger" {
		t.Fatalf("params = %v", params)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("table output = %q", stdout.String())
	}
	if !strings.HasPrefix(lines[0], "title") || !strings.Contains(lines[2], "NULL") {
		t.Fatalf("table output = %q", stdout.String())
	}
}

func TestRunTableFormatFallsBackToJSON(t *testing.T) {
	srv, _ := newCaptureServer(t, `{"status":"ok"}`)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-format", "table", "health"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunIntegrityCommand(t *testing.T) {
	srv, captured := newCaptureServer(t, `{"status":"completed"}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "integrity-run"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if captured.method != http.MethodPost || captured.path != "/v1/integrity/run" {
		t.Fatalf("request = %s %s", captured.method, captured.path)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error_code":"STORE_UNAVAILABLE"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ready"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "STORE_UNAVAILABLE") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunRejectsBadInvocations(t *testing.T) {
	cases := [][]string{
		{},
		{"unknown"},
		{"run"},
		{"run", "fordFilms", "no-equals-sign"},
		{"query"},
		{"-format", "xml", "health"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
			t.Fatalf("Run(%v) exit code = %d, want 2", args, code)
		}
	}
}

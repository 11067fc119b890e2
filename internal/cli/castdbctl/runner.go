package castdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/castdb/castdb/internal/movies"
)

const (
	FormatJSON  = "json"
	FormatTable = "table"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("castdbctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "castdb API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	rowLimit := fs.Int("row-limit", 0, "maximum rows to return for run/query (0 = no limit)")
	format := fs.String("format", FormatJSON, "output format: json|table")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if *format != FormatJSON && *format != FormatTable {
		_, _ = fmt.Fprintf(stderr, "invalid -format %q\n", *format)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	req, err := buildRequest(fs.Args(), *rowLimit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req, endpoint, *apiKey)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if *format == FormatTable {
		if err := writeTable(stdout, responseBody); err == nil {
			return 0
		}
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(args []string, rowLimit int) (request, error) {
	command := strings.TrimSpace(args[0])
	rest := args[1:]
	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/v1/ready"}, nil
	case "exercises":
		return request{method: http.MethodGet, path: "/v1/exercises"}, nil
	case "integrity-run":
		return request{method: http.MethodPost, path: "/v1/integrity/run"}, nil
	case "run":
		if len(rest) < 1 {
			return request{}, fmt.Errorf("run requires an exercise name")
		}
		exerciseArgs, err := movies.ParseArgs(rest[1:])
		if err != nil {
			return request{}, err
		}
		return request{
			method: http.MethodPost,
			path:   "/v1/exercises/" + url.PathEscape(rest[0]),
			body:   map[string]any{"args": exerciseArgs, "row_limit": rowLimit},
		}, nil
	case "query":
		if len(rest) < 1 || strings.TrimSpace(rest[0]) == "" {
			return request{}, fmt.Errorf("query requires a SQL statement")
		}
		return request{
			method: http.MethodPost,
			path:   "/v1/query",
			body:   map[string]any{"sql": rest[0], "params": parseParams(rest[1:]), "row_limit": rowLimit},
		}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

// parseParams binds integers as numbers and everything else as text.
func parseParams(raw []string) []any {
	params := make([]any, 0, len(raw))
	for _, value := range raw {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			params = append(params, n)
			continue
		}
		params = append(params, value)
	}
	return params
}

func doRequest(ctx context.Context, client *http.Client, r request, endpoint, apiKey string) (int, []byte, error) {
	var body io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

// writeTable renders a {columns, rows} response as aligned text. Responses
// without columns return an error so the caller falls back to JSON.
func writeTable(w io.Writer, raw []byte) error {
	var result struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	if len(result.Columns) == 0 {
		return fmt.Errorf("response has no columns")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			if value == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(value)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: castdbctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                  GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                   GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  exercises               GET /v1/exercises")
	_, _ = fmt.Fprintln(w, "  run NAME [key=value..]  POST /v1/exercises/NAME")
	_, _ = fmt.Fprintln(w, "  query SQL [param..]     POST /v1/query")
	_, _ = fmt.Fprintln(w, "  integrity-run           POST /v1/integrity/run")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

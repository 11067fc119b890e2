package observability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/castdb/castdb/internal/config"
	"github.com/castdb/castdb/internal/query"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if len(rr.Header().Get(traceHeader)) != 36 {
		t.Fatalf("X-Trace-ID = %q, want a uuid", rr.Header().Get(traceHeader))
	}
}

func TestLoggingMiddlewareWritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if !strings.Contains(buf.String(), `"status":202`) {
		t.Fatalf("log line = %s", buf.String())
	}
}

func TestMetricsMiddlewareLabelsByRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/exercises/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := MetricsMiddleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "POST /v1/exercises/{name}", "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/exercises/fordFilms", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "POST /v1/exercises/{name}", "200"))

	if after-before != 1 {
		t.Fatalf("request counter delta = %v, want 1", after-before)
	}
}

func TestObserveExerciseCountsOutcome(t *testing.T) {
	before := testutil.ToFloat64(exerciseRunsTotal.WithLabelValues("fordFilms", OutcomeDatabaseError))
	ObserveExercise("fordFilms", OutcomeDatabaseError, 0, time.Millisecond)
	after := testutil.ToFloat64(exerciseRunsTotal.WithLabelValues("fordFilms", OutcomeDatabaseError))
	if after-before != 1 {
		t.Fatalf("exercise counter delta = %v, want 1", after-before)
	}
}

func TestOutcomeFor(t *testing.T) {
	cases := map[string]error{
		OutcomeOK:              nil,
		OutcomeCanceled:        fmt.Errorf("run: %w", context.DeadlineExceeded),
		OutcomeConnectionError: &query.ConnectionError{Op: "ping", Err: errors.New("refused")},
		OutcomeDatabaseError:   &query.DatabaseError{Code: "42P01"},
	}
	for want, err := range cases {
		if got := OutcomeFor(err); got != want {
			t.Fatalf("OutcomeFor(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("TraceIDFromContext() = %q, want empty", got)
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	cfg, err := config.Load("castdb-api", func(key string) (string, bool) {
		if key == "CASTDB_LOG_LEVEL" {
			return "warn", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("log output = %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"service":"castdb-api"`) {
		t.Fatalf("log output missing service attr: %s", buf.String())
	}

	NewLogger(cfg, nil).Info("discarded")
}

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antiplagiat/textcheck/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestSubmitCheck_SendsWireBody(t *testing.T) {
	var got map[string]interface{}
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/check" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"task_id":"abc123","status":"completed","estimated_time_seconds":5}`)
	})

	resp, err := c.SubmitCheck(context.Background(), &models.CheckRequest{
		Text:          "some text",
		Mode:          models.ModeFast,
		Lang:          models.LangAuto,
		ExcludeQuotes: true,
	})
	if err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}
	if resp.TaskID != "abc123" || resp.EstimatedTimeSeconds != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, ok := got["lang"]; ok {
		t.Fatalf("auto lang must not be sent, body=%v", got)
	}
	if got["text"] != "some text" || got["mode"] != "fast" || got["exclude_quotes"] != true || got["exclude_bibliography"] != false {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestSubmitCheck_DetailUsedVerbatim(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"detail":"Daily limit of 3 checks reached"}`)
	})

	_, err := c.SubmitCheck(context.Background(), &models.CheckRequest{Text: "x", Mode: models.ModeFast, Lang: models.LangRU})
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if rerr.Kind != KindHTTPStatus || rerr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected error %+v", rerr)
	}
	if rerr.Message != "Daily limit of 3 checks reached" {
		t.Fatalf("detail not used verbatim: %q", rerr.Message)
	}
	if !errors.Is(err, ErrHTTPStatus) {
		t.Fatalf("expected errors.Is ErrHTTPStatus")
	}
}

func TestSubmitCheck_ValidationDetailList(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":[{"loc":["body","text"],"msg":"String should have at least 100 characters"}]}`)
	})

	_, err := c.SubmitCheck(context.Background(), &models.CheckRequest{Text: "x", Mode: models.ModeFast})
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Message != "String should have at least 100 characters" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSubmitCheck_GenericMessageWithoutDetail(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `<html>bad gateway</html>`)
	})

	_, err := c.SubmitCheck(context.Background(), &models.CheckRequest{Text: "x", Mode: models.ModeFast})
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if rerr.Message != "The check service is unavailable" {
		t.Fatalf("unexpected message %q", rerr.Message)
	}
}

func TestSubmitCheck_NoRetry(t *testing.T) {
	calls := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, _ = c.SubmitCheck(context.Background(), &models.CheckRequest{Text: "x", Mode: models.ModeFast})
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}

func TestFetchResult_NotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Check not found"}`)
	})

	_, err := c.FetchResult(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if errors.Is(err, ErrHTTPStatus) {
		t.Fatalf("not found must be distinguishable from generic status errors")
	}
}

func TestFetchResult_PartialPayload(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/check/abc123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"task_id":"abc123","status":"completed","originality":87.5}`)
	})

	res, err := c.FetchResult(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FetchResult: %v", err)
	}
	if res.Matches == nil || res.Sources == nil {
		t.Fatalf("absent collections must be empty, not nil")
	}
	if res.Originality != 87.5 {
		t.Fatalf("originality = %v", res.Originality)
	}
}

func TestFetchResult_Malformed(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"task_id":`)
	})

	_, err := c.FetchResult(context.Background(), "abc")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestFetchResult_Network(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	_, err := c.FetchResult(context.Background(), "abc")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestDeleteCheck(t *testing.T) {
	var method string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_, _ = io.WriteString(w, `{"message":"Check deleted"}`)
	})

	if err := c.DeleteCheck(context.Background(), "abc"); err != nil {
		t.Fatalf("DeleteCheck: %v", err)
	}
	if method != http.MethodDelete {
		t.Fatalf("method = %s", method)
	}
}

func TestListSourcesAndHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sources":
			_, _ = io.WriteString(w, `{"sources":[{"id":1,"title":"Wiki","url":"https://w","domain":"w"}]}`)
		case "/health":
			_, _ = io.WriteString(w, `{"status":"healthy","timestamp":"2025-01-01T00:00:00","ai_enabled":true,"checks_in_memory":4}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	catalog, err := c.ListSources(context.Background())
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if catalog.Total != 1 || catalog.Sources[0].Title != "Wiki" {
		t.Fatalf("unexpected catalog %+v", catalog)
	}

	health, err := c.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if health.Status != "healthy" || !health.AIEnabled || health.ChecksInMemory != 4 {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchResult(ctx, "slow")
	if !errors.Is(err, ErrNetwork) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected network error wrapping deadline, got %v", err)
	}
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"task_id":"ok"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithMetrics(m))
	_, _ = c.FetchResult(context.Background(), "ok")
	_, _ = c.FetchResult(context.Background(), "gone")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "textcheck_remote_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			var endpoint, result string
			for _, lp := range metric.GetLabel() {
				switch lp.GetName() {
				case "endpoint":
					endpoint = lp.GetValue()
				case "outcome":
					result = lp.GetValue()
				}
			}
			counts[endpoint+"/"+result] = metric.GetCounter().GetValue()
		}
	}
	if counts["fetch/ok"] != 1 || counts["fetch/not_found"] != 1 {
		t.Fatalf("unexpected counters %v", counts)
	}
}

func TestWithRateLimit_RespectsContext(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"healthy"}`)
	})
	WithRateLimit(0.001, 1)(c)

	if _, err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.HealthCheck(ctx); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected throttled call to fail with network error, got %v", err)
	}
}

func TestWithTimeout_LeavesSharedClientAlone(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	shared := &http.Client{}
	orders := map[string][]ClientOption{
		"timeout after client":  {WithHTTPClient(shared), WithTimeout(20 * time.Millisecond)},
		"timeout before client": {WithTimeout(20 * time.Millisecond), WithHTTPClient(shared)},
	}
	for name, opts := range orders {
		c := NewClient(srv.URL, opts...)
		_, err := c.HealthCheck(context.Background())
		if !errors.Is(err, ErrNetwork) {
			t.Fatalf("%s: expected a timed out request, got %v", name, err)
		}
		if c.httpClient == shared {
			t.Fatalf("%s: shared client used directly", name)
		}
	}
	if shared.Timeout != 0 {
		t.Fatalf("shared client modified, timeout = %v", shared.Timeout)
	}
}

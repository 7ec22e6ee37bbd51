package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamagate/pkg/types"
)

func echoHandler(hits *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "llama")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
			"query":  r.URL.RawQuery,
			"body":   string(b),
		})
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var er types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er), "body=%s", w.Body.String())
	return er
}

func TestForwardedRequestRelaysChildResponse(t *testing.T) {
	h := newHarness(t, echoHandler(nil), DefaultOptions())
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?stream=false", strings.NewReader(`{"a":1}`))
	w := h.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "llama", w.Header().Get("X-Upstream"))
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "POST", got["method"])
	assert.Equal(t, "/v1/chat/completions", got["path"])
	assert.Equal(t, "stream=false", got["query"])
	assert.Equal(t, `{"a":1}`, got["body"])

	s := h.counters.Snapshot()
	assert.Equal(t, uint64(1), s.Processed)
	assert.Equal(t, uint64(0), s.Errors)
	assert.False(t, s.LastRequest.IsZero())
}

func TestPrefixIsLiteral(t *testing.T) {
	var hits atomic.Int64
	h := newHarness(t, echoHandler(&hits), DefaultOptions())

	for _, p := range []string{"/v1", "/v1/models", "/v1beta/anything"} {
		w := h.do(httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusOK, w.Code, p)
	}
	assert.Equal(t, int64(3), hits.Load())

	for _, p := range []string{"/", "/V1/models", "/api/v1/models", "/health"} {
		w := h.do(httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, p)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, http.StatusNotFound, decodeError(t, w).Code)
	}
	assert.Equal(t, int64(3), hits.Load())

	// Only the three forwarded requests were counted.
	s := h.counters.Snapshot()
	assert.Equal(t, uint64(3), s.Processed)
	assert.Equal(t, uint64(0), s.Errors)
}

func TestConcurrentForwardsDoNotLoseCounts(t *testing.T) {
	h := newHarness(t, echoHandler(nil), DefaultOptions())
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := `{"i":1}`
			if i%4 == 0 {
				body = "not json"
			}
			_ = h.do(httptest.NewRequest(http.MethodPost, "/v1/completions", strings.NewReader(body)))
		}(i)
	}
	wg.Wait()
	s := h.counters.Snapshot()
	assert.Equal(t, uint64(n), s.Processed+s.Errors)
	assert.Equal(t, uint64(25), s.Errors)
}

func TestPrefixWinsOverRoutes(t *testing.T) {
	var hits atomic.Int64
	opts := DefaultOptions()
	opts.StatusPath = "/v1/status"
	h := newHarness(t, echoHandler(&hits), opts)

	w := h.do(httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), hits.Load())
	assert.Contains(t, w.Body.String(), `"path":"/v1/status"`)
}

func TestStatusEndpoint(t *testing.T) {
	var hits atomic.Int64
	h := newHarness(t, echoHandler(&hits), DefaultOptions())

	w := h.do(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	var snap types.HealthSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, types.StatusHealthy, snap.Status)
	assert.Zero(t, hits.Load())

	// Status reads never touch the counters.
	s := h.counters.Snapshot()
	assert.Zero(t, s.Processed+s.Errors)
}

func TestStatusEndpoint_WrongMethod(t *testing.T) {
	h := newHarness(t, echoHandler(nil), DefaultOptions())
	w := h.do(httptest.NewRequest(http.MethodPost, "/ping", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.StatusMethodNotAllowed, decodeError(t, w).Code)
}

func TestInvalidJSONIs400AndCountsError(t *testing.T) {
	var hits atomic.Int64
	h := newHarness(t, echoHandler(&hits), DefaultOptions())

	w := h.do(httptest.NewRequest(http.MethodPost, "/v1/completions", strings.NewReader("{oops")))
	require.Equal(t, http.StatusBadRequest, w.Code)
	er := decodeError(t, w)
	assert.Equal(t, http.StatusBadRequest, er.Code)
	assert.NotEmpty(t, er.Error)
	assert.Zero(t, hits.Load())

	s := h.counters.Snapshot()
	assert.Equal(t, uint64(0), s.Processed)
	assert.Equal(t, uint64(1), s.Errors)
}

func TestChildErrorStatusIsRelayedAndCountedAsProcessed(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"Loading model"}}`))
	}), DefaultOptions())

	w := h.do(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":{"message":"Loading model"}}`, w.Body.String())
	s := h.counters.Snapshot()
	assert.Equal(t, uint64(1), s.Processed)
	assert.Equal(t, uint64(0), s.Errors)
}

func TestUnreachableChildIs500(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	h := newHarnessURL(t, srv, url, DefaultOptions())

	w := h.do(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeError(t, w).Error, "error communicating with llama.cpp server")
	s := h.counters.Snapshot()
	assert.Equal(t, uint64(1), s.Errors)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, echoHandler(nil), DefaultOptions())
	_ = h.do(httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	w := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "llamagate_forward_requests_total")
	assert.Contains(t, body, `llamagate_http_requests_total{method="GET",path="forward",status="200"}`)
}

func TestMetricsEndpointDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.MetricsPath = ""
	h := newHarness(t, echoHandler(nil), opts)
	w := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitRejectsWithoutCounting(t *testing.T) {
	opts := DefaultOptions()
	opts.RateLimit = RateLimitOptions{RPS: 0.001, Burst: 1}
	h := newHarness(t, echoHandler(nil), opts)

	w := h.do(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, http.StatusTooManyRequests, decodeError(t, w).Code)

	// Local endpoints are not limited.
	w = h.do(httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	s := h.counters.Snapshot()
	assert.Equal(t, uint64(1), s.Processed)
	assert.Equal(t, uint64(0), s.Errors)
}

func TestCORSOptIn(t *testing.T) {
	opts := DefaultOptions()
	opts.CORS = CORSOptions{Enabled: true, AllowedOrigins: []string{"https://app.example"}}
	h := newHarness(t, echoHandler(nil), opts)

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := h.do(req)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	off := newHarness(t, echoHandler(nil), DefaultOptions())
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	w = off.do(req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

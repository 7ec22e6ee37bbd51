package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llamagate/internal/forward"
	"llamagate/internal/stats"
	"llamagate/pkg/types"
)

type fakeHealth struct{ snap types.HealthSnapshot }

func (f fakeHealth) Snapshot(context.Context) types.HealthSnapshot { return f.snap }

type harness struct {
	handler  http.Handler
	counters *stats.Counters
	child    *httptest.Server
}

// newHarness wires the router to a real Forwarder pointed at child.
func newHarness(t *testing.T, child http.Handler, opts Options) *harness {
	t.Helper()
	srv := httptest.NewServer(child)
	t.Cleanup(srv.Close)
	return newHarnessURL(t, srv, srv.URL, opts)
}

func newHarnessURL(t *testing.T, srv *httptest.Server, url string, opts Options) *harness {
	t.Helper()
	counters := stats.NewCounters()
	fwd := forward.New(forward.Options{BaseURL: url, Timeout: 5 * time.Second}, zerolog.Nop())
	h := NewMux(Deps{
		Forwarder: fwd,
		Health:    fakeHealth{snap: types.HealthSnapshot{Status: types.StatusHealthy}},
		Counters:  counters,
		Log:       zerolog.Nop(),
	}, opts)
	return &harness{handler: h, counters: counters, child: srv}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

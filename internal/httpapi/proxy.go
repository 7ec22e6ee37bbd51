package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"llamagate/internal/forward"
)

// copyBufSize is the relay chunk size; each chunk is flushed for SSE.
const copyBufSize = 32 * 1024

type proxy struct {
	prefix   string
	fwd      Forwarder
	counters Recorder
	limiter  *rate.Limiter
	defLevel LogLevel
	log      zerolog.Logger
	opts     Options
}

// middleware intercepts every request whose path starts with the prefix,
// before routing, so the prefix wins over any registered route.
func (p *proxy) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, p.prefix) {
			next.ServeHTTP(w, r)
			return
		}
		if p.limiter != nil && !p.limiter.Allow() {
			IncrementBackpressure("rate_limit")
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		p.serve(w, r)
	})
}

func (p *proxy) serve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lvl := requestLogLevel(r, p.defLevel)
	log := reqLogger(p.log, r)
	if lvl >= LevelDebug {
		log.Debug().Str("query", r.URL.RawQuery).Msg("forward start")
	}

	ctx, cancel := joinContexts(p.opts.BaseContext, r.Context())
	defer cancel()

	resp, err := p.fwd.Forward(r.WithContext(ctx))
	if err != nil {
		p.counters.RecordError()
		forwardRequestsTotal.WithLabelValues(outcomeOf(err)).Inc()
		status := statusFor(err)
		if lvl >= LevelError {
			log.Error().Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("forward failed")
		}
		// Client already gone: nothing to write to.
		if r.Context().Err() != nil {
			return
		}
		writeJSONError(w, status, err.Error())
		return
	}
	defer resp.Body.Close()

	p.counters.RecordSuccess()
	forwardRequestsTotal.WithLabelValues(outcomeRelayed).Inc()
	forwardUpstreamDuration.Observe(time.Since(start).Seconds())

	dst := w.Header()
	for k, vv := range resp.Header {
		dst[k] = append([]string(nil), vv...)
	}
	w.WriteHeader(resp.StatusCode)
	n, cerr := copyAndFlush(w, resp.Body)

	if cerr != nil && lvl >= LevelError {
		log.Warn().Int("status", resp.StatusCode).Int64("bytes", n).Err(cerr).Msg("relay interrupted")
		return
	}
	if lvl >= LevelInfo {
		log.Info().Int("status", resp.StatusCode).Int64("bytes", n).Dur("dur", time.Since(start)).Msg("forward end")
	}
}

// copyAndFlush streams src to w, flushing after every chunk.
func copyAndFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, copyBufSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, rerr
		}
	}
}

func outcomeOf(err error) string {
	switch {
	case forward.IsBadRequest(err):
		return outcomeBadRequest
	case forward.IsGatewayTimeout(err):
		return outcomeTimeout
	default:
		return outcomeUpstreamErr
	}
}

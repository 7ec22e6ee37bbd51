// Package forward relays OpenAI-compatible requests to the supervised
// llama-server and hands the raw response back to the HTTP layer.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a whole forwarded exchange, body included.
	DefaultTimeout = 600 * time.Second
	// DefaultMaxBodyBytes caps inbound JSON bodies.
	DefaultMaxBodyBytes int64 = 32 << 20
)

// Options configures a Forwarder.
type Options struct {
	// BaseURL of the child, e.g. http://127.0.0.1:1234.
	BaseURL string
	// Timeout for the whole exchange. Zero disables it.
	Timeout time.Duration
	// MaxBodyBytes caps request bodies; zero selects DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// ConnectTimeout for dialing the child; zero selects 5s.
	ConnectTimeout time.Duration
}

// Spec is the outbound request derived from an inbound one.
type Spec struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// Forwarder performs one synchronous call per inbound request, with no retry.
type Forwarder struct {
	base    string
	timeout time.Duration
	maxBody int64
	client  *http.Client
	log     zerolog.Logger
}

// New constructs a Forwarder.
func New(opts Options, log zerolog.Logger) *Forwarder {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Timeout < 0 {
		opts.Timeout = 0
	}
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Relay bytes exactly as the child sent them.
		DisableCompression: true,
	}
	return &Forwarder{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		maxBody: opts.MaxBodyBytes,
		// Timeout stays 0: deadlines come from the request context.
		client: &http.Client{Transport: tr, Timeout: 0},
		log:    log.With().Str("component", "forward").Logger(),
	}
}

// BaseURL returns the child base URL.
func (f *Forwarder) BaseURL() string { return f.base }

// hasBody reports whether the method carries a JSON body to forward.
func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// BuildSpec derives the outbound request from r. For POST/PUT/PATCH the body
// is read (bounded) and must be valid JSON.
func (f *Forwarder) BuildSpec(r *http.Request) (Spec, error) {
	target := f.base + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	hdr := r.Header.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	hdr.Del("Host")

	spec := Spec{URL: target, Method: r.Method, Header: hdr}
	if !hasBody(r.Method) {
		hdr.Del("Content-Length")
		return spec, nil
	}

	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(io.LimitReader(r.Body, f.maxBody+1))
		if err != nil {
			return Spec{}, &BadRequestError{Msg: "failed to read request body"}
		}
		body = b
	}
	if int64(len(body)) > f.maxBody {
		return Spec{}, &BadRequestError{Msg: fmt.Sprintf("request body exceeds %d bytes", f.maxBody)}
	}
	if !json.Valid(body) {
		return Spec{}, &BadRequestError{Msg: "request body must be valid JSON"}
	}
	spec.Body = body
	if hdr.Get("Content-Type") == "" {
		hdr.Set("Content-Type", "application/json")
	}
	hdr.Del("Content-Length")
	return spec, nil
}

// Forward sends r to the child and returns its response unmodified. The
// caller must close the response body; closing it also releases the
// forward timeout. Any child status, including 4xx/5xx, is a success here.
func (f *Forwarder) Forward(r *http.Request) (*http.Response, error) {
	spec, err := f.BuildSpec(r)
	if err != nil {
		return nil, err
	}
	return f.Do(r.Context(), spec)
}

// Do executes spec.
func (f *Forwarder) Do(ctx context.Context, spec Spec) (*http.Response, error) {
	cancel := context.CancelFunc(func() {})
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
	}

	var body io.Reader
	if spec.Body != nil {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		cancel()
		return nil, &UpstreamError{Err: err}
	}
	req.Header = spec.Header

	f.log.Debug().Str("method", spec.Method).Str("url", spec.URL).Msg("forwarding request")
	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		if isTimeout(ctx, err) {
			return nil, &GatewayTimeoutError{Err: err}
		}
		return nil, &UpstreamError{Err: err}
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// cancelOnClose releases the per-request context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

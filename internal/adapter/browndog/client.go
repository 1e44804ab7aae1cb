// Package browndog is the HTTP client for the Brown Dog conversion (DAP) and
// extraction (DTS) APIs, including key and token management and the
// streaming result downloader.
package browndog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/observability"
	"github.com/fairyhunter13/browndog-tests/internal/config"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
	"github.com/fairyhunter13/browndog-tests/pkg/textx"
)

const (
	// DefaultChunkSize is the write size of the streaming downloader.
	DefaultChunkSize = 32 << 10
	maxBufferedBody  = 64 << 20
	maxErrorBody     = 512
)

// Options configures a Client.
type Options struct {
	Host     string
	Username string
	Password string
	Timeout  time.Duration
	// SlowTimeout applies to listings the service computes on demand (/dap/inputs).
	SlowTimeout time.Duration
	ChunkSize   int
	BlockSize   int
	HTTPClient  *http.Client
}

// Client talks to one Brown Dog deployment.
type Client struct {
	host        string
	username    string
	password    string
	timeout     time.Duration
	slowTimeout time.Duration
	chunkSize   int
	blockSize   int
	http        *http.Client
	obs         *obsctx.ObservableClient
}

// New constructs a Client. Requests are traced through an otelhttp transport
// unless a custom HTTPClient is supplied.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.SlowTimeout <= 0 {
		opts.SlowTimeout = opts.Timeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: observability.Transport(nil)}
	}
	host := strings.TrimRight(opts.Host, "/")
	return &Client{
		host:        host,
		username:    opts.Username,
		password:    opts.Password,
		timeout:     opts.Timeout,
		slowTimeout: opts.SlowTimeout,
		chunkSize:   opts.ChunkSize,
		blockSize:   opts.BlockSize,
		http:        hc,
		obs:         obsctx.NewObservableClient(obsctx.ConnectionTypeBrowndog, host, opts.Timeout),
	}
}

// NewFromConfig builds a Client from the harness configuration.
func NewFromConfig(cfg config.Config) *Client {
	return New(Options{
		Host:        cfg.Host,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Timeout:     cfg.RequestTimeout,
		SlowTimeout: cfg.ProcessingTimeout,
		ChunkSize:   cfg.DownloadChunkSize,
		BlockSize:   cfg.UploadBlockSize,
	})
}

// Host returns the API root without a trailing slash.
func (c *Client) Host() string { return c.host }

// Stats returns per-operation call statistics for this client.
func (c *Client) Stats() []obsctx.Stats { return c.obs.Stats.Snapshot() }

// Request is one API call.
type Request struct {
	// Operation names the call in metrics, spans and logs.
	Operation     string
	Method        string
	URL           string
	Header        http.Header
	Body          io.Reader
	ContentLength int64
	// Token is sent verbatim as the Authorization header.
	Token string
	// BasicAuth sends the configured username and password.
	BasicAuth bool
	// Stream leaves a 2xx body unread in Response.Stream.
	Stream bool
	// Timeout overrides the client's per-call timeout. For streams it bounds
	// the wait for headers and then each body read.
	Timeout time.Duration
}

// Response is the reply to a Request. Exactly one of Body or Stream is set
// for a 2xx reply; error replies always have Body.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Stream io.ReadCloser
}

// Text returns the trimmed body.
func (r *Response) Text() string { return strings.TrimSpace(string(r.Body)) }

// Do executes req. A reply outside 2xx is returned together with a
// *domain.ServiceError; failures below HTTP produce a *domain.TransportError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callTimeout := timeout
	if req.Stream {
		// the stream manages its own idle deadline past the call
		callTimeout = 0
	}

	var resp *Response
	start := time.Now()
	err := c.obs.ExecuteWithTimeout(ctx, req.Operation, callTimeout, func(ctx context.Context) error {
		var err error
		resp, err = c.roundTrip(ctx, req, timeout)
		return err
	})
	status := 0
	if resp != nil {
		status = resp.Status
	}
	observability.ObserveBrowndogCall(req.Operation, status, time.Since(start))
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	op := "browndog." + req.Operation
	ctx, cancel := context.WithCancel(ctx)
	var idle *idleTimer
	if req.Stream && timeout > 0 {
		idle = newIdleTimer(timeout, cancel)
	}
	release := func() {
		idle.stop()
		cancel()
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		release()
		return nil, fmt.Errorf("op=%s: %w: %v", op, domain.ErrInvalidArgument, err)
	}
	if req.ContentLength > 0 {
		hreq.ContentLength = req.ContentLength
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if req.Token != "" {
		hreq.Header.Set("Authorization", req.Token)
	}
	if req.BasicAuth {
		hreq.SetBasicAuth(c.username, c.password)
	}

	obsctx.LoggerFromContext(ctx).Debug("browndog request",
		"operation", req.Operation, "method", req.Method, "url", req.URL)

	res, err := c.http.Do(hreq)
	if err != nil {
		release()
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	out := &Response{Status: res.StatusCode, Header: res.Header}
	ok := res.StatusCode >= 200 && res.StatusCode < 300

	if req.Stream && ok {
		out.Stream = &streamBody{rc: res.Body, idle: idle, release: release}
		return out, nil
	}

	limit := int64(maxBufferedBody)
	if !ok {
		limit = 64 << 10
	}
	body, rerr := io.ReadAll(io.LimitReader(res.Body, limit))
	_ = res.Body.Close()
	release()
	if rerr != nil {
		return out, &domain.TransportError{Op: op, Err: rerr}
	}
	out.Body = body
	if !ok {
		return out, &domain.ServiceError{
			Method: req.Method,
			URL:    req.URL,
			Status: res.StatusCode,
			Body:   textx.Shorten(strings.TrimSpace(string(body)), maxErrorBody),
		}
	}
	return out, nil
}

// idleTimer cancels a stream when no read completes within d.
type idleTimer struct {
	d time.Duration
	t *time.Timer
}

func newIdleTimer(d time.Duration, fire func()) *idleTimer {
	return &idleTimer{d: d, t: time.AfterFunc(d, fire)}
}

func (w *idleTimer) touch() {
	if w != nil {
		w.t.Reset(w.d)
	}
}

func (w *idleTimer) stop() {
	if w != nil {
		w.t.Stop()
	}
}

type streamBody struct {
	rc      io.ReadCloser
	idle    *idleTimer
	release func()
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	s.idle.touch()
	return n, err
}

func (s *streamBody) Close() error {
	err := s.rc.Close()
	s.release()
	return err
}

// Fetch GETs an arbitrary URL without credentials and returns its body.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.Do(ctx, Request{Operation: "fetch", Method: http.MethodGet, URL: rawURL})
	if err != nil {
		return nil, fmt.Errorf("op=browndog.Fetch: %w", err)
	}
	return resp.Body, nil
}

func (c *Client) url(parts ...string) string {
	return c.host + strings.Join(parts, "")
}

func textHeader() http.Header {
	return http.Header{"Accept": []string{"text/plain"}}
}

func jsonHeader() http.Header {
	return http.Header{"Accept": []string{"application/json"}, "Content-Type": []string{"application/json"}}
}

func decodeJSON(op string, resp *Response, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("op=%s: decode: %w: %v", op, domain.ErrService, err)
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

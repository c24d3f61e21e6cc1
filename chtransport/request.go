package chtransport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// EndpointConfig is one entry of the configured endpoints list, per
// spec.md §6 "endpoints".
type EndpointConfig struct {
	URL  string
	Pool PoolConfig
}

// EngineConfig gathers everything the Request Engine needs beyond the
// per-endpoint pool settings, per spec.md §4.5/§6.
type EngineConfig struct {
	Auth                AuthConfig
	DefaultSettings     Settings
	DefaultHeaders      map[string]string
	ClientName          string
	MaxRetries          int
	RetryOnFailures     ClientFaultCause
	CompressRequest     CompressionCodec
	CompressResponse    CompressionCodec
	UseHTTPCompression  bool
	UnhealthyCooldown   time.Duration
}

type endpoint struct {
	url            string
	pool           *Pool
	mu             sync.Mutex
	unhealthyUntil time.Time
}

func (e *endpoint) markUnhealthy(cooldown time.Duration) {
	e.mu.Lock()
	e.unhealthyUntil = time.Now().Add(cooldown)
	e.mu.Unlock()
}

func (e *endpoint) healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Now().After(e.unhealthyUntil)
}

// Engine is the HTTP Request Engine of spec.md §4.5: round-robin endpoint
// selection over per-endpoint Pools, request construction, retry, and
// response classification.
type Engine struct {
	cfg       EngineConfig
	endpoints []*endpoint
	Stats     Stats
	Hook      RequestHook

	mu    sync.Mutex
	rrIdx int
}

// NewEngine builds an Engine with one Pool per configured endpoint.
func NewEngine(endpoints []EndpointConfig, cfg EngineConfig) (*Engine, error) {
	if len(endpoints) == 0 {
		return nil, &ConfigError{Option: "endpoints", Message: "at least one endpoint is required"}
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}
	eps := make([]*endpoint, 0, len(endpoints))
	for _, ec := range endpoints {
		p, err := NewPool(ec.URL, ec.Pool)
		if err != nil {
			return nil, err
		}
		eps = append(eps, &endpoint{url: ec.URL, pool: p})
	}
	cooldown := cfg.UnhealthyCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	cfg.UnhealthyCooldown = cooldown
	return &Engine{cfg: cfg, endpoints: eps}, nil
}

// Close closes every idle pooled connection across all configured
// endpoints. In-flight requests are unaffected.
func (e *Engine) Close() {
	for _, ep := range e.endpoints {
		ep.pool.Close()
	}
}

// selectEndpoint returns the next healthy endpoint in round-robin order,
// falling back to the whole list if every endpoint is presently marked
// unhealthy (a cooldown must not deadlock the client).
func (e *Engine) selectEndpoint() *endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.endpoints)
	for i := 0; i < n; i++ {
		idx := (e.rrIdx + i) % n
		if e.endpoints[idx].healthy() {
			e.rrIdx = (idx + 1) % n
			return e.endpoints[idx]
		}
	}
	idx := e.rrIdx
	e.rrIdx = (idx + 1) % n
	return e.endpoints[idx]
}

// Request describes one logical call to the server.
type Request struct {
	Query    string
	Format   string
	Body     io.Reader
	Settings Settings
	Headers  map[string]string
	QueryID  string
}

// Do executes r, retrying retryable transport faults up to max_retries
// times, per spec.md §4.5 step 6.
func (e *Engine) Do(ctx context.Context, r Request) (*Response, error) {
	e.Stats.recordRequest()
	attempts := e.cfg.MaxRetries + 1
	var lastErr error
	lastAttempt := 0
	var token HookToken
	if e.Hook != nil {
		ctx, token = e.Hook.OnRequestStart(ctx, RequestInfo{QueryID: r.QueryID})
	}
	for attempt := 0; attempt < attempts; attempt++ {
		lastAttempt = attempt
		ep := e.selectEndpoint()
		if attempt > 0 {
			e.Stats.recordRetry()
		}

		rec, err := ep.pool.Checkout(ctx)
		if err != nil {
			lastErr = err
			var te *TransportError
			if errors.As(err, &te) {
				if te.Kind != ConnectionRequestTimeout {
					ep.markUnhealthy(e.cfg.UnhealthyCooldown)
				}
				if te.Retryable(e.cfg.RetryOnFailures) {
					continue
				}
			}
			break
		}

		resp, err := e.attempt(ctx, ep, rec, r)
		if err == nil {
			if e.Hook != nil {
				e.Hook.OnRequestEnd(ctx, token, RequestInfo{Endpoint: ep.url, QueryID: r.QueryID, Attempt: attempt}, &RequestStats{Retries: attempt}, nil)
			}
			return resp, nil
		}

		lastErr = err
		var te *TransportError
		if errors.As(err, &te) {
			ep.markUnhealthy(e.cfg.UnhealthyCooldown)
			if te.Kind == NoResponse || te.Kind == ConnectionReset {
				ep.pool.Discard(rec)
			} else {
				ep.pool.Return(rec, false)
			}
			if te.Retryable(e.cfg.RetryOnFailures) {
				continue
			}
		}
		break
	}
	e.Stats.recordFailure()
	if e.Hook != nil {
		e.Hook.OnRequestEnd(ctx, token, RequestInfo{QueryID: r.QueryID}, &RequestStats{Retries: lastAttempt}, lastErr)
	}
	return nil, lastErr
}

// attempt performs a single request/response cycle over rec without
// retrying. On a *TransportError the caller is responsible for returning or
// discarding rec; on any other error rec has already been returned to the
// pool; on success ownership of rec passes to the Response.
func (e *Engine) attempt(ctx context.Context, ep *endpoint, rec *ConnRecord, r Request) (*Response, error) {
	httpReq, err := e.buildRequest(ctx, ep, r)
	if err != nil {
		ep.pool.Return(rec, true)
		return nil, err
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = rec.conn.SetDeadline(dl)
	} else if ep.pool.cfg.SocketTimeout > 0 {
		_ = rec.conn.SetDeadline(time.Now().Add(ep.pool.cfg.SocketTimeout))
	}

	if err := httpReq.Write(rec.conn); err != nil {
		return nil, classifyIOError(ep.url, err)
	}

	httpResp, err := http.ReadResponse(rec.reader, httpReq)
	if err != nil {
		return nil, classifyIOError(ep.url, err)
	}

	return e.classify(ep, rec, httpResp)
}

func (e *Engine) buildRequest(ctx context.Context, ep *endpoint, r Request) (*http.Request, error) {
	base, err := url.Parse(ep.url)
	if err != nil {
		return nil, &ConfigError{Option: "endpoints", Message: "invalid endpoint URL " + ep.url}
	}
	base.Path = "/"

	q := base.Query()
	if r.Query != "" {
		q.Set("query", r.Query)
	}
	if r.Format != "" {
		q.Set("default_format", r.Format)
	}
	merged := Merge(e.cfg.DefaultSettings, r.Settings)
	merged.ApplyQuery(q)
	base.RawQuery = q.Encode()

	body := r.Body
	if body == nil {
		body = http.NoBody
	}
	var rc io.ReadCloser
	if brc, ok := body.(io.ReadCloser); ok {
		rc = brc
	} else {
		rc = io.NopCloser(body)
	}

	if e.cfg.UseHTTPCompression && e.cfg.CompressRequest != CompressionNone {
		var buf bytes.Buffer
		cw, err := NewCompressWriter(&buf, e.cfg.CompressRequest)
		if err != nil {
			_ = rc.Close()
			return nil, &ConfigError{Option: "compress_client_request", Message: err.Error()}
		}
		if _, err := io.Copy(cw, rc); err != nil {
			_ = rc.Close()
			return nil, &ConfigError{Option: "compress_client_request", Message: err.Error()}
		}
		if err := rc.Close(); err != nil {
			return nil, &ConfigError{Option: "compress_client_request", Message: err.Error()}
		}
		if err := cw.Close(); err != nil {
			return nil, &ConfigError{Option: "compress_client_request", Message: err.Error()}
		}
		rc = io.NopCloser(&buf)
	}

	httpReq, err := http.NewRequest(http.MethodPost, base.String(), rc)
	if err != nil {
		return nil, &ConfigError{Option: "request", Message: err.Error()}
	}

	MergeHeaders(httpReq, e.cfg.DefaultHeaders, r.Headers)
	httpReq.Header.Set("User-Agent", UserAgent(e.cfg.ClientName))
	if r.QueryID != "" {
		httpReq.Header.Set("X-ClickHouse-Query-Id", r.QueryID)
	}
	e.cfg.Auth.Apply(httpReq)

	if e.cfg.UseHTTPCompression {
		if enc := e.cfg.CompressRequest.contentEncoding(); enc != "" {
			httpReq.Header.Set("Content-Encoding", enc)
		}
		if enc := e.cfg.CompressResponse.contentEncoding(); enc != "" {
			httpReq.Header.Set("Accept-Encoding", enc)
		}
	}
	httpReq.Header.Set("Connection", "keep-alive")

	if hi, ok := e.Hook.(HeaderInjector); ok {
		hi.InjectHeaders(ctx, httpReq.Header)
	}

	return httpReq, nil
}

// classify inspects the HTTP status and ClickHouse-specific headers and
// either returns a live streaming Response or an appropriately typed error,
// per spec.md §7 "Success with error" and §6 protocol headers.
func (e *Engine) classify(ep *endpoint, rec *ConnRecord, httpResp *http.Response) (*Response, error) {
	summary := Summary{}
	for k, vs := range httpResp.Header {
		if len(vs) > 0 && hasPrefixFold(k, "X-Clickhouse-Progress-") {
			mergeProgress(&summary, vs[0])
		}
	}
	if v := httpResp.Header.Get("X-ClickHouse-Summary"); v != "" {
		mergeProgress(&summary, v)
	}
	queryID := httpResp.Header.Get("X-ClickHouse-Query-Id")

	if excCode := httpResp.Header.Get("X-ClickHouse-Exception-Code"); excCode != "" {
		body, _ := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		ep.pool.Return(rec, true)
		code := parseIntOrZero(excCode)
		msg := exceptionMessage(body)
		if code == authFailedCode {
			return nil, &AuthError{Code: code, Message: msg}
		}
		return nil, &ServerError{Code: code, Message: msg}
	}

	if httpResp.StatusCode >= 400 {
		body, _ := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		ep.pool.Return(rec, true)
		msg := exceptionMessage(body)
		if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
			return nil, &AuthError{Code: httpResp.StatusCode, Message: msg}
		}
		return nil, &ServerError{Code: httpResp.StatusCode, Message: msg}
	}

	respBody := io.ReadCloser(httpResp.Body)
	if e.cfg.UseHTTPCompression && httpResp.Header.Get("Content-Encoding") != "" {
		codec := e.cfg.CompressResponse
		dr, err := NewDecompressReader(httpResp.Body, codec)
		if err == nil {
			respBody = dr
		}
	}

	return &Response{
		QueryID: queryID,
		Summary: summary,
		body:    respBody,
		pool:    ep.pool,
		rec:     rec,
		healthy: true,
	}, nil
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func parseIntOrZero(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// classifyIOError maps a low-level connection failure onto the transport
// fault taxonomy of spec.md §7.
func classifyIOError(endpoint string, err error) *TransportError {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &TransportError{Kind: NoResponse, Endpoint: endpoint, Cause: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: SocketTimeout, Endpoint: endpoint, Cause: err}
	}
	if isConnResetError(err) {
		return &TransportError{Kind: ConnectionReset, Endpoint: endpoint, Cause: err}
	}
	return &TransportError{Kind: NoResponse, Endpoint: endpoint, Cause: err}
}

func isConnResetError(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || strings.Contains(err.Error(), "reset by peer")
}

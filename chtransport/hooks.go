package chtransport

import (
	"context"
	"net/http"
	"sync/atomic"
)

// RequestHook provides observability callpoints around client requests,
// modeled on the dispatch-hook pattern used server-side elsewhere in this
// stack. Implementations must be safe for concurrent use.
type RequestHook interface {
	OnRequestStart(ctx context.Context, info RequestInfo) (context.Context, HookToken)
	OnRequestEnd(ctx context.Context, token HookToken, info RequestInfo, stats *RequestStats, err error)
}

// HeaderInjector is an optional interface a RequestHook may additionally
// implement to add outgoing request headers, e.g. distributed-trace
// propagation, once buildRequest has finished assembling the request but
// before it is written to the wire.
type HeaderInjector interface {
	InjectHeaders(ctx context.Context, headers http.Header)
}

// HookToken is an opaque value returned by OnRequestStart and passed back to
// OnRequestEnd. Only meaningful to the RequestHook that created it.
type HookToken interface{}

// RequestInfo carries call metadata passed to hooks.
type RequestInfo struct {
	Endpoint string
	QueryID  string
	Attempt  int
}

// RequestStats holds per-call transfer counters.
type RequestStats struct {
	BytesSent     int64
	BytesReceived int64
	Retries       int
}

// Stats accumulates one Engine's counters for Client.Stats(), analogous to
// the teacher stack's per-client CallStatistics but keyed by outcome rather
// than by input/output batch.
type Stats struct {
	requests   atomic.Int64
	retries    atomic.Int64
	failures   atomic.Int64
	activeConn atomic.Int64
}

func (s *Stats) recordRequest()  { s.requests.Add(1) }
func (s *Stats) recordRetry()    { s.retries.Add(1) }
func (s *Stats) recordFailure()  { s.failures.Add(1) }

// Snapshot is a point-in-time read of Stats.
type Snapshot struct {
	Requests int64
	Retries  int64
	Failures int64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Requests: s.requests.Load(),
		Retries:  s.retries.Load(),
		Failures: s.failures.Load(),
	}
}

package chtransport

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ReuseStrategy selects which idle connection a checkout returns first, per
// spec.md §4.5.
type ReuseStrategy int

const (
	// ReuseLIFO favors the most recently returned connection, for cache
	// locality on long-lived keep-alive.
	ReuseLIFO ReuseStrategy = iota
	// ReuseFIFO favors the least recently returned connection, spreading
	// load across many parallel backends.
	ReuseFIFO
)

// PoolConfig configures a single endpoint's connection pool.
type PoolConfig struct {
	MaxConnections           int
	ConnectionTTL            time.Duration
	KeepAlive                time.Duration
	ConnectionRequestTimeout time.Duration
	SocketTimeout            time.Duration
	ReuseStrategy            ReuseStrategy
	TLSConfig                *tls.Config
}

// Pool is the per-endpoint connection pool: an ordered container of idle
// Connection Records bounded by max_connections, per spec.md §4.5.
type Pool struct {
	endpoint string
	target   string // host:port dial target
	useTLS   bool
	cfg      PoolConfig

	sem *semaphore.Weighted

	mu   sync.Mutex
	idle []*ConnRecord
}

// NewPool builds a pool for one endpoint base URI.
func NewPool(endpointURL string, cfg PoolConfig) (*Pool, error) {
	u, err := url.Parse(endpointURL)
	if err != nil {
		return nil, &ConfigError{Option: "endpoints", Message: "invalid endpoint URL " + endpointURL}
	}
	useTLS := u.Scheme == "https"
	host := u.Host
	if u.Port() == "" {
		if useTLS {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	max := cfg.MaxConnections
	if max <= 0 {
		max = 1
	}
	return &Pool{
		endpoint: endpointURL,
		target:   host,
		useTLS:   useTLS,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(max)),
	}, nil
}

// Checkout acquires a Connection Record, dialing a fresh one when the pool
// has no usable idle connection and has not yet reached max_connections.
// The wait for a free slot is bounded by ConnectionRequestTimeout.
func (p *Pool) Checkout(ctx context.Context) (*ConnRecord, error) {
	now := time.Now()

	p.mu.Lock()
	for len(p.idle) > 0 {
		rec := p.popIdle()
		p.mu.Unlock()
		if rec.expired(now, p.cfg.ConnectionTTL, p.cfg.KeepAlive) {
			_ = rec.close()
			p.sem.Release(1)
			p.mu.Lock()
			continue
		}
		return rec, nil
	}
	p.mu.Unlock()

	acquireCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.ConnectionRequestTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectionRequestTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		return nil, &TransportError{Kind: ConnectionRequestTimeout, Endpoint: p.endpoint, Message: "no free connection slot", Cause: err}
	}

	conn, err := p.dial(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return newConnRecord(conn, time.Now()), nil
}

// popIdle removes and returns one record per the pool's reuse strategy.
// Caller must hold p.mu.
func (p *Pool) popIdle() *ConnRecord {
	n := len(p.idle)
	var rec *ConnRecord
	if p.cfg.ReuseStrategy == ReuseFIFO {
		rec = p.idle[0]
		p.idle = p.idle[1:]
	} else {
		rec = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	return rec
}

// Return hands a Connection Record back to the pool. healthy is false when
// the caller observed a connection-level error and the socket must not be
// reused. A record that has aged past TTL or keep-alive on return is closed
// rather than pooled, per spec.md §4.5 "Enforced on checkout and on return".
func (p *Pool) Return(rec *ConnRecord, healthy bool) {
	now := time.Now()
	if !healthy || rec.expired(now, p.cfg.ConnectionTTL, p.cfg.KeepAlive) {
		_ = rec.close()
		p.sem.Release(1)
		return
	}
	rec.lastUse = now
	p.mu.Lock()
	p.idle = append(p.idle, rec)
	p.mu.Unlock()
}

// Discard closes rec and releases its pool slot without attempting reuse,
// for NoResponse/ConnectionReset failures per spec.md §4.5 step 6.
func (p *Pool) Discard(rec *ConnRecord) {
	_ = rec.close()
	p.sem.Release(1)
}

func (p *Pool) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", p.target)
	if err != nil {
		return nil, &TransportError{Kind: NoResponse, Endpoint: p.endpoint, Cause: err}
	}
	if p.useTLS {
		tlsCfg := p.cfg.TLSConfig.Clone()
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		}
		if tlsCfg.ServerName == "" {
			if host, _, err := net.SplitHostPort(p.target); err == nil {
				tlsCfg.ServerName = host
			}
		}
		tlsConn := tls.Client(conn, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, &TransportError{Kind: NoResponse, Endpoint: p.endpoint, Cause: err}
		}
		return tlsConn, nil
	}
	return conn, nil
}

// Close closes every idle connection, releasing their slots. In-flight
// checked-out connections are unaffected; they release their slot via
// Return or Discard as usual.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, rec := range idle {
		_ = rec.close()
		p.sem.Release(1)
	}
}

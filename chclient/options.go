// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

package chclient

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"os"
	"time"

	"github.com/columnaris/rowbinary-go/chtransport"
)

// Config gathers the full configuration surface of spec.md §6. It is built
// by applying a sequence of Options over defaultConfig and validated once,
// eagerly, in NewClient — never at call time.
type Config struct {
	Endpoints []string

	Username    string
	Password    string
	AccessToken string
	SSLAuth     bool

	RootCert   string
	ClientCert string
	ClientKey  string

	MaxConnections           int
	ConnectionTTL            time.Duration
	KeepAlive                time.Duration
	ConnectionRequestTimeout time.Duration
	SocketTimeout            time.Duration
	ReuseStrategy            chtransport.ReuseStrategy

	MaxRetries        int
	RetryOnFailures   chtransport.ClientFaultCause
	UnhealthyCooldown time.Duration

	CompressClientRequest  bool
	CompressServerResponse bool
	UseHTTPCompression     bool

	ClientName     string
	HTTPHeaders    map[string]string
	ServerSettings chtransport.Settings

	Logger *slog.Logger
	Hook   chtransport.RequestHook
}

func defaultConfig() Config {
	return Config{
		MaxConnections:           10,
		ConnectionTTL:            0,
		KeepAlive:                0,
		ConnectionRequestTimeout: 10 * time.Second,
		SocketTimeout:            30 * time.Second,
		ReuseStrategy:            chtransport.ReuseLIFO,
		MaxRetries:               2,
		RetryOnFailures:          chtransport.DefaultRetryableFaults,
		UnhealthyCooldown:        30 * time.Second,
		Logger:                   slog.Default(),
	}
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithEndpoints sets the ordered list of base URIs the Engine round-robins
// across, per spec.md §6 "endpoints".
func WithEndpoints(urls ...string) Option {
	return func(c *Config) { c.Endpoints = urls }
}

// WithBasicAuth configures Basic authentication. Mutually exclusive with
// WithAccessToken and WithSSLAuth.
func WithBasicAuth(username, password string) Option {
	return func(c *Config) {
		c.Username = username
		c.Password = password
	}
}

// WithAccessToken configures Bearer authentication. Mutually exclusive with
// WithBasicAuth and WithSSLAuth.
func WithAccessToken(token string) Option {
	return func(c *Config) { c.AccessToken = token }
}

// WithSSLAuth configures client-certificate identity: the connection's TLS
// handshake carries the caller's identity and no Authorization header is
// sent. Mutually exclusive with WithBasicAuth and WithAccessToken.
func WithSSLAuth(clientCert, clientKey string) Option {
	return func(c *Config) {
		c.SSLAuth = true
		c.ClientCert = clientCert
		c.ClientKey = clientKey
	}
}

// WithRootCert sets a CA bundle path used to verify the server's
// certificate, independent of client authentication mode.
func WithRootCert(path string) Option {
	return func(c *Config) { c.RootCert = path }
}

// WithMaxConnections caps the per-endpoint connection pool.
func WithMaxConnections(n int) Option {
	return func(c *Config) { c.MaxConnections = n }
}

// WithConnectionTTL sets the hard cap on total connection age.
func WithConnectionTTL(d time.Duration) Option {
	return func(c *Config) { c.ConnectionTTL = d }
}

// WithKeepAlive sets the idle-age cap enforced on checkout.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) { c.KeepAlive = d }
}

// WithConnectionRequestTimeout bounds how long a checkout waits for a free
// pool slot.
func WithConnectionRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionRequestTimeout = d }
}

// WithSocketTimeout bounds a single read or write on the underlying socket.
func WithSocketTimeout(d time.Duration) Option {
	return func(c *Config) { c.SocketTimeout = d }
}

// WithReuseStrategy selects FIFO or LIFO idle-connection reuse.
func WithReuseStrategy(s chtransport.ReuseStrategy) Option {
	return func(c *Config) { c.ReuseStrategy = s }
}

// WithMaxRetries sets the maximum number of retries after the initial
// attempt, per spec.md §4.5 step 6.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithRetryOnFailures sets the caller-configurable retry set.
func WithRetryOnFailures(mask chtransport.ClientFaultCause) Option {
	return func(c *Config) { c.RetryOnFailures = mask }
}

// WithUnhealthyCooldown sets how long a failed endpoint is skipped by
// round-robin selection before being retried.
func WithUnhealthyCooldown(d time.Duration) Option {
	return func(c *Config) { c.UnhealthyCooldown = d }
}

// WithCompression enables gzip Content-Encoding compression of the request
// body, the response body, or both. The flags take effect only together with
// WithHTTPCompression(true); without it no compression is applied.
func WithCompression(clientRequest, serverResponse bool) Option {
	return func(c *Config) {
		c.CompressClientRequest = clientRequest
		c.CompressServerResponse = serverResponse
	}
}

// WithHTTPCompression selects HTTP Content-Encoding as the transport for
// whichever compression directions WithCompression enabled, per spec.md §6
// "use_http_compression". With enabled false, request and response bodies
// are sent uncompressed; no other compression framing is implemented.
func WithHTTPCompression(enabled bool) Option {
	return func(c *Config) { c.UseHTTPCompression = enabled }
}

// WithClientName sets the caller-identifying prefix of the User-Agent
// header.
func WithClientName(name string) Option {
	return func(c *Config) { c.ClientName = name }
}

// WithHTTPHeaders sets default custom headers, overridable per call.
func WithHTTPHeaders(headers map[string]string) Option {
	return func(c *Config) { c.HTTPHeaders = headers }
}

// WithServerSettings sets default query-string settings and roles,
// overridable per call.
func WithServerSettings(values map[string]string, roles []string) Option {
	return func(c *Config) {
		c.ServerSettings = chtransport.Settings{Values: values, Roles: roles}
	}
}

// WithLogger overrides the default (slog.Default()) logger. The client logs
// schema-cache invalidations on insert at Debug level; the request engine
// does not log connection lifecycle events or retries.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithRequestHook installs a hook invoked around every HTTP request and
// retry, e.g. chotel.InstrumentClient's hook.
func WithRequestHook(hook chtransport.RequestHook) Option {
	return func(c *Config) { c.Hook = hook }
}

// buildTLSConfig loads the configured certificate material, if any. A
// SSL-auth client without cert/key paths, or a config naming no TLS
// material at all, both yield a nil *tls.Config (plain HTTP or
// server-verification-only HTTPS).
func (c Config) buildTLSConfig() (*tls.Config, error) {
	if c.RootCert == "" && c.ClientCert == "" && c.ClientKey == "" {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if c.RootCert != "" {
		pem, err := os.ReadFile(c.RootCert)
		if err != nil {
			return nil, &chtransport.ConfigError{Option: "root_cert", Message: err.Error()}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &chtransport.ConfigError{Option: "root_cert", Message: "no certificates found in " + c.RootCert}
		}
		tlsCfg.RootCAs = pool
	}
	if c.ClientCert != "" || c.ClientKey != "" {
		if c.ClientCert == "" || c.ClientKey == "" {
			return nil, &chtransport.ConfigError{Option: "client_cert", Message: "client_cert and client_key must both be set"}
		}
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, &chtransport.ConfigError{Option: "client_cert", Message: err.Error()}
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

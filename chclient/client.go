// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

package chclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/columnaris/rowbinary-go/chschema"
	"github.com/columnaris/rowbinary-go/chtransport"
	"github.com/columnaris/rowbinary-go/chtype"
	"github.com/columnaris/rowbinary-go/chvalue"
	"github.com/columnaris/rowbinary-go/chwrite"
	"github.com/columnaris/rowbinary-go/rowbinary"
)

// describeColumns is the fixed, self-known schema of a DESCRIBE TABLE
// result set. Every column is a plain String; ClickHouse itself defines
// this shape, so it never needs resolving through the Schema Cache.
var describeColumns = func() []*chtype.Descriptor {
	names := []string{"name", "type", "default_type", "default_expression", "comment", "codec_expression", "ttl_expression"}
	cols := make([]*chtype.Descriptor, len(names))
	for i, n := range names {
		d, err := chtype.Parse("String")
		if err != nil {
			panic(err)
		}
		d.Name = n
		cols[i] = d
	}
	return cols
}()

// Client is the top-level entry point: query and insert operations layered
// over the HTTP Request Engine, Schema Cache, and RowBinary codec, per
// spec.md §2's data flow.
type Client struct {
	engine  *chtransport.Engine
	schemas *chschema.Cache
	logger  *slog.Logger
}

// NewClient builds a Client from the given Options, validating the
// configuration eagerly. Errors from an invalid configuration are always
// ConfigError, never surfaced later from a call.
func NewClient(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Endpoints) == 0 {
		return nil, &chtransport.ConfigError{Option: "endpoints", Message: "at least one endpoint is required"}
	}

	tlsCfg, err := cfg.buildTLSConfig()
	if err != nil {
		return nil, err
	}

	poolCfg := chtransport.PoolConfig{
		MaxConnections:           cfg.MaxConnections,
		ConnectionTTL:            cfg.ConnectionTTL,
		KeepAlive:                cfg.KeepAlive,
		ConnectionRequestTimeout: cfg.ConnectionRequestTimeout,
		SocketTimeout:            cfg.SocketTimeout,
		ReuseStrategy:            cfg.ReuseStrategy,
		TLSConfig:                tlsCfg,
	}
	endpoints := make([]chtransport.EndpointConfig, len(cfg.Endpoints))
	for i, u := range cfg.Endpoints {
		endpoints[i] = chtransport.EndpointConfig{URL: u, Pool: poolCfg}
	}

	engineCfg := chtransport.EngineConfig{
		Auth: chtransport.AuthConfig{
			Username:    cfg.Username,
			Password:    cfg.Password,
			AccessToken: cfg.AccessToken,
			SSLAuth:     cfg.SSLAuth,
		},
		DefaultSettings:    cfg.ServerSettings,
		DefaultHeaders:     cfg.HTTPHeaders,
		ClientName:         cfg.ClientName,
		MaxRetries:         cfg.MaxRetries,
		RetryOnFailures:    cfg.RetryOnFailures,
		CompressRequest:    compressionCodec(cfg.CompressClientRequest),
		CompressResponse:   compressionCodec(cfg.CompressServerResponse),
		UseHTTPCompression: cfg.UseHTTPCompression,
		UnhealthyCooldown:  cfg.UnhealthyCooldown,
	}
	engine, err := chtransport.NewEngine(endpoints, engineCfg)
	if err != nil {
		return nil, err
	}
	if cfg.Hook != nil {
		engine.Hook = cfg.Hook
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{engine: engine, logger: logger}
	c.schemas = chschema.NewCache(c.describeTable)
	return c, nil
}

// compressionCodec chooses gzip as the concrete stream filter for a
// boolean compress_client_request/compress_server_response setting.
// No Option selects zstd; it is available only to callers that build a
// chtransport.Engine directly with CompressionZstd.
func compressionCodec(enabled bool) chtransport.CompressionCodec {
	if enabled {
		return chtransport.CompressionGzip
	}
	return chtransport.CompressionNone
}

// Stats returns a snapshot of cumulative request/retry/failure counters.
func (c *Client) Stats() chtransport.Snapshot {
	return c.engine.Stats.Snapshot()
}

// Engine returns the underlying HTTP Request Engine, for callers that need
// to attach a chtransport.RequestHook after construction (e.g.
// chotel.InstrumentClient) instead of via WithRequestHook.
func (c *Client) Engine() *chtransport.Engine {
	return c.engine
}

// TableSchema resolves and caches table's column list via DESCRIBE TABLE,
// per spec.md §4.4.
func (c *Client) TableSchema(ctx context.Context, table string) (*chschema.TableSchema, error) {
	return c.schemas.Resolve(ctx, c.endpointKey(), table)
}

// InvalidateSchema evicts table's cached schema, e.g. after an ALTER TABLE.
func (c *Client) InvalidateSchema(table string) {
	c.schemas.Invalidate(c.endpointKey(), table)
}

// endpointKey is the Schema Cache's endpoint component of its (endpoint,
// table) key. The cache is per-Client rather than per-configured-endpoint:
// all endpoints in a client's list are members of one logical cluster and
// are expected to serve identical schemas.
func (c *Client) endpointKey() string { return "default" }

// describeTable issues "DESCRIBE TABLE" and decodes its fixed, well-known
// result shape into a TableSchema. It is the chschema.Resolver backing the
// Client's Schema Cache.
func (c *Client) describeTable(ctx context.Context, _ string, table string) (*chschema.TableSchema, error) {
	resp, err := c.engine.Do(ctx, chtransport.Request{
		Query:  "DESCRIBE TABLE " + table,
		Format: "RowBinary",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	dec := rowbinary.NewRowDecoder(resp, describeColumns, false)
	rec := chvalue.NewRecord([]string{"name", "type", "default_type", "default_expression", "comment", "codec_expression", "ttl_expression"})

	var cols []*chtype.Descriptor
	for {
		if err := dec.ReadRow(rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		name, _ := rec.At(0).AsString()
		typeSQL, _ := rec.At(1).AsString()
		defaultType, _ := rec.At(2).AsString()
		comment, _ := rec.At(4).AsString()

		d, err := chtype.Parse(typeSQL)
		if err != nil {
			return nil, &chtype.SchemaError{Kind: chtype.MalformedType, Table: table, Message: fmt.Sprintf("column %s: %v", name, err)}
		}
		d.Name = name
		d.Default = chtype.ParseDefaultKind(defaultType)
		d.Comment = comment
		cols = append(cols, d)
	}
	if len(cols) == 0 {
		return nil, &chtype.SchemaError{Kind: chtype.UnknownTable, Table: table, Message: "no columns returned for " + table}
	}
	return chschema.NewTableSchema(table, cols), nil
}

// QueryResult is a streaming, self-describing result set produced by Query.
// Its column list is decoded from the RowBinaryWithNamesAndTypes header, so
// no prior DESCRIBE TABLE round trip is required for ad hoc SQL.
type QueryResult struct {
	resp      *chtransport.Response
	decoder   *rowbinary.RowDecoder
	columns   []*chtype.Descriptor
	exhausted bool
}

// Columns returns the result set's column descriptors, in wire order.
func (qr *QueryResult) Columns() []*chtype.Descriptor { return qr.columns }

// Summary returns the query's read/write progress totals accumulated from
// X-ClickHouse-Progress-*/X-ClickHouse-Summary headers.
func (qr *QueryResult) Summary() chtransport.Summary { return qr.resp.Summary }

// Next decodes the next row into rec, which must have as many slots as
// Columns(). It returns io.EOF when the result set is exhausted.
func (qr *QueryResult) Next(rec *chvalue.Record) error {
	err := qr.decoder.ReadRow(rec)
	if err == io.EOF {
		qr.exhausted = true
	}
	return err
}

// Close returns the underlying connection to its pool if the result set was
// read to completion, and discards it otherwise: RowBinary framing has no
// resynchronization point, so a socket abandoned mid-stream can never be
// safely reused, per spec.md §5 "Cancellation".
func (qr *QueryResult) Close() error {
	if qr.exhausted {
		return qr.resp.Close()
	}
	return qr.resp.Discard()
}

// Query executes sql and returns a streaming, self-describing result set.
// The query text is sent with default_format=RowBinaryWithNamesAndTypes so
// the response carries its own column list.
func (c *Client) Query(ctx context.Context, sql string, opts ...QueryOption) (*QueryResult, error) {
	qo := queryOptions{}
	for _, o := range opts {
		o(&qo)
	}
	resp, err := c.engine.Do(ctx, chtransport.Request{
		Query:    sql,
		Format:   "RowBinaryWithNamesAndTypes",
		Settings: qo.settings,
		Headers:  qo.headers,
		QueryID:  qo.queryID,
	})
	if err != nil {
		return nil, err
	}
	cols, err := rowbinary.ReadNamesAndTypesHeader(resp)
	if err != nil {
		_ = resp.Close()
		return nil, err
	}
	return &QueryResult{
		resp:    resp,
		decoder: rowbinary.NewRowDecoder(resp, cols, false),
		columns: cols,
	}, nil
}

// Exec runs sql for its side effects and discards any result rows,
// returning the query's final progress summary.
func (c *Client) Exec(ctx context.Context, sql string, opts ...QueryOption) (chtransport.Summary, error) {
	qo := queryOptions{}
	for _, o := range opts {
		o(&qo)
	}
	resp, err := c.engine.Do(ctx, chtransport.Request{
		Query:    sql,
		Settings: qo.settings,
		Headers:  qo.headers,
		QueryID:  qo.queryID,
	})
	if err != nil {
		return chtransport.Summary{}, err
	}
	defer resp.Close()
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return resp.Summary, err
	}
	return resp.Summary, nil
}

// Inserter resolves table's schema and returns a RowBinaryInserter bound to
// it, per spec.md §4.6.
func (c *Client) Inserter(ctx context.Context, table string, withDefaults bool) (*chwrite.RowBinaryInserter, error) {
	schema, err := c.TableSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	return chwrite.NewRowBinaryInserter(schema, withDefaults), nil
}

// Insert flushes ins's staged rows to table via a single POST, returning
// the server's write summary. Per spec.md §7, a ServerError signaling
// schema drift invalidates table's cached schema so the next Inserter call
// re-resolves it.
func (c *Client) Insert(ctx context.Context, table string, ins *chwrite.RowBinaryInserter, opts ...QueryOption) (chtransport.Summary, error) {
	qo := queryOptions{}
	for _, o := range opts {
		o(&qo)
	}
	var buf bytes.Buffer
	if _, err := ins.Flush(&buf); err != nil {
		return chtransport.Summary{}, err
	}
	resp, err := c.engine.Do(ctx, chtransport.Request{
		Query:    "INSERT INTO " + table + " FORMAT RowBinary",
		Body:     &buf,
		Settings: qo.settings,
		Headers:  qo.headers,
		QueryID:  qo.queryID,
	})
	if err != nil {
		var se *chtransport.ServerError
		if errors.As(err, &se) && se.SignalsSchemaDrift() {
			c.logger.Debug("invalidating cached schema after drift signal", "table", table, "code", se.Code)
			c.InvalidateSchema(table)
		}
		return chtransport.Summary{}, err
	}
	defer resp.Close()
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return resp.Summary, err
	}
	return resp.Summary, nil
}

// QueryOption customizes a single Query, Exec, or Insert call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	settings chtransport.Settings
	headers  map[string]string
	queryID  string
}

// WithQuerySettings overrides server settings and roles for one call,
// winning over the Client's defaults per spec.md §4.5 step 2.
func WithQuerySettings(values map[string]string, roles []string) QueryOption {
	return func(o *queryOptions) { o.settings = chtransport.Settings{Values: values, Roles: roles} }
}

// WithQueryHeaders overrides custom headers for one call.
func WithQueryHeaders(headers map[string]string) QueryOption {
	return func(o *queryOptions) { o.headers = headers }
}

// WithQueryID sets X-ClickHouse-Query-Id for correlation.
func WithQueryID(id string) QueryOption {
	return func(o *queryOptions) { o.queryID = id }
}

// Close releases every idle pooled connection across all endpoints.
func (c *Client) Close() error {
	c.engine.Close()
	return nil
}

package chtransport

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
)

// Summary is the parsed counterpart of X-ClickHouse-Summary plus any
// streamed X-ClickHouse-Progress-* headers, per spec.md §4.5 "Response
// Envelope" / GLOSSARY "Summary".
type Summary struct {
	ReadRows      uint64
	ReadBytes     uint64
	WrittenRows   uint64
	WrittenBytes  uint64
	TotalRowsToRead uint64
}

type rawSummary struct {
	ReadRows        string `json:"read_rows"`
	ReadBytes       string `json:"read_bytes"`
	WrittenRows     string `json:"written_rows"`
	WrittenBytes    string `json:"written_bytes"`
	TotalRowsToRead string `json:"total_rows_to_read"`
}

func parseSummaryHeader(v string) Summary {
	if v == "" {
		return Summary{}
	}
	var raw rawSummary
	if err := json.Unmarshal([]byte(v), &raw); err != nil {
		return Summary{}
	}
	return Summary{
		ReadRows:        parseUintOrZero(raw.ReadRows),
		ReadBytes:       parseUintOrZero(raw.ReadBytes),
		WrittenRows:     parseUintOrZero(raw.WrittenRows),
		WrittenBytes:    parseUintOrZero(raw.WrittenBytes),
		TotalRowsToRead: parseUintOrZero(raw.TotalRowsToRead),
	}
}

func parseUintOrZero(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

// mergeProgress folds an X-ClickHouse-Progress-* header (same JSON shape as
// the summary trailer) into an accumulating Summary, per spec.md §4.5
// "accumulated into the response summary".
func mergeProgress(s *Summary, headerValue string) {
	p := parseSummaryHeader(headerValue)
	s.ReadRows += p.ReadRows
	s.ReadBytes += p.ReadBytes
	s.WrittenRows += p.WrittenRows
	s.WrittenBytes += p.WrittenBytes
	if p.TotalRowsToRead > s.TotalRowsToRead {
		s.TotalRowsToRead = p.TotalRowsToRead
	}
}

// Response is a streamed server response bound to a checked-out Connection
// Record. Close must always be called; it classifies the connection as
// healthy or not and returns or discards it to the owning Pool.
type Response struct {
	QueryID string
	Summary Summary

	body io.ReadCloser
	pool *Pool
	rec  *ConnRecord

	healthy bool
	closed  bool
}

// Read implements io.Reader over the (possibly decompressed) response body.
func (r *Response) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if err != nil && err != io.EOF {
		r.healthy = false
	}
	return n, err
}

// Close releases the underlying connection back to its pool, closing it
// instead of pooling it when the read encountered a connection-level error.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.body.Close()
	if r.pool != nil && r.rec != nil {
		r.pool.Return(r.rec, r.healthy)
	}
	return err
}

// Discard marks the connection unusable and closes rather than pools it,
// for a caller abandoning a stream before it reaches EOF (cancellation, or
// an early return from a row loop) — per spec.md §5 "Cancellation ... MUST
// close the underlying socket (it cannot be safely reused mid-stream)".
func (r *Response) Discard() error {
	r.healthy = false
	return r.Close()
}

// exceptionMessage collapses a multi-line server exception body to one line
// for compact logging, per spec.md §4.5 "potentially newline-folded".
func exceptionMessage(body []byte) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(string(body), "\n", " ")), " ")
}

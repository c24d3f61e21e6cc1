package conformance

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/columnaris/rowbinary-go/chtransport"
)

// startInsertRetryServer closes its first accepted connection immediately
// without writing any bytes (an EMPTY_RESPONSE per spec.md §8 S3) and
// answers every subsequent connection with a valid write summary.
func startInsertRetryServer(t *testing.T) (addr string, accepts *int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	accepts = new(int32)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if atomic.AddInt32(accepts, 1) == 1 {
				_ = conn.Close()
				continue
			}
			go serveConn(t, conn, func(t *testing.T, req *http.Request, w *bufio.Writer) {
				writeStatusOK(w, map[string]string{
					"X-ClickHouse-Summary": `{"written_rows":"3","written_bytes":"24"}`,
				}, nil)
			})
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String(), accepts
}

func TestS3InsertRetrySucceedsOnEmptyResponse(t *testing.T) {
	addr, accepts := startInsertRetryServer(t)
	engine, err := chtransport.NewEngine(
		[]chtransport.EndpointConfig{{URL: "http://" + addr, Pool: chtransport.PoolConfig{MaxConnections: 1}}},
		chtransport.EngineConfig{MaxRetries: 1, RetryOnFailures: chtransport.DefaultRetryableFaults},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	resp, err := engine.Do(context.Background(), chtransport.Request{Query: "INSERT INTO t FORMAT RowBinary"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Close()
	if resp.Summary.WrittenRows != 3 {
		t.Fatalf("WrittenRows = %d, want 3", resp.Summary.WrittenRows)
	}
	if got := atomic.LoadInt32(accepts); got != 2 {
		t.Fatalf("accepts = %d, want 2", got)
	}
}

func TestS3InsertFailsWithoutRetry(t *testing.T) {
	addr, _ := startInsertRetryServer(t)
	engine, err := chtransport.NewEngine(
		[]chtransport.EndpointConfig{{URL: "http://" + addr, Pool: chtransport.PoolConfig{MaxConnections: 1}}},
		chtransport.EngineConfig{MaxRetries: 0},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	_, err = engine.Do(context.Background(), chtransport.Request{Query: "INSERT INTO t FORMAT RowBinary"})
	if err == nil {
		t.Fatal("expected an error")
	}
	var te *chtransport.TransportError
	if !errors.As(err, &te) || te.Kind != chtransport.NoResponse {
		t.Fatalf("err = %v, want TransportError{no_response}", err)
	}
}

package conformance

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/columnaris/rowbinary-go/chtransport"
)

// TestRequestBodyIsCompressed asserts that with use_http_compression and
// compress_client_request both enabled, the bytes the server actually reads
// off the wire are gzip-compressed, not a plain body merely labeled as such,
// per spec.md §6 "compress_client_request".
func TestRequestBodyIsCompressed(t *testing.T) {
	const insertBody = "1\t2\t3\n4\t5\t6\n"
	seen := make(chan *http.Request, 1)
	addr, _ := startCountingServer(t, func(t *testing.T, req *http.Request, w *bufio.Writer) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("ReadAll(req.Body): %v", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(raw))
		select {
		case seen <- req:
		default:
		}
		writeStatusOK(w, nil, nil)
	})

	engine, err := chtransport.NewEngine(
		[]chtransport.EndpointConfig{{URL: "http://" + addr, Pool: chtransport.PoolConfig{MaxConnections: 1}}},
		chtransport.EngineConfig{
			UseHTTPCompression: true,
			CompressRequest:    chtransport.CompressionGzip,
		},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	resp, err := engine.Do(context.Background(), chtransport.Request{
		Query: "INSERT INTO t FORMAT TabSeparated",
		Body:  strings.NewReader(insertBody),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Close()

	req := <-seen
	if enc := req.Header.Get("Content-Encoding"); enc != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", enc)
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read captured body: %v", err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("body is not valid gzip: %v", err)
	}
	defer gr.Close()
	decoded, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("gunzip captured body: %v", err)
	}
	if string(decoded) != insertBody {
		t.Fatalf("decoded body = %q, want %q", decoded, insertBody)
	}
}

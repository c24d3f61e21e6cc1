package conformance

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/columnaris/rowbinary-go/chtransport"
)

func selectOneHandler(t *testing.T, req *http.Request, w *bufio.Writer) {
	writeStatusOK(w, nil, []byte("1"))
}

func newSelectOneEngine(t *testing.T, addr string, ttl, keepAlive time.Duration) *chtransport.Engine {
	t.Helper()
	engine, err := chtransport.NewEngine(
		[]chtransport.EndpointConfig{{
			URL: "http://" + addr,
			Pool: chtransport.PoolConfig{
				MaxConnections: 1,
				ConnectionTTL:  ttl,
				KeepAlive:      keepAlive,
			},
		}},
		chtransport.EngineConfig{},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func selectOne(t *testing.T, engine *chtransport.Engine) string {
	t.Helper()
	resp, err := engine.Do(context.Background(), chtransport.Request{Query: "SELECT 1"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Close()
	body, err := io.ReadAll(resp)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(body)
}

// TestS1PoolExpiresBeforeSecondCall issues two identical SELECT 1 calls one
// second apart against a pool with ttl=1000ms and unlimited keep_alive: the
// first checked-out connection must have aged out by the second call, so the
// proxy sees two socket opens.
func TestS1PoolExpiresBeforeSecondCall(t *testing.T) {
	addr, opens := startCountingServer(t, selectOneHandler)
	engine := newSelectOneEngine(t, addr, time.Second, 0)
	defer engine.Close()

	first := selectOne(t, engine)
	if first != "1" {
		t.Fatalf("first response = %q, want %q", first, "1")
	}
	time.Sleep(1100 * time.Millisecond)
	selectOne(t, engine)

	if got := *opens; got != 2 {
		t.Fatalf("opens = %d, want 2", got)
	}
}

// TestS2PoolSurvivesWithinTTL is S1 with a 2000ms ttl: the second call falls
// within the window, so the pooled connection is reused and only one socket
// is ever opened.
func TestS2PoolSurvivesWithinTTL(t *testing.T) {
	addr, opens := startCountingServer(t, selectOneHandler)
	engine := newSelectOneEngine(t, addr, 2*time.Second, 0)
	defer engine.Close()

	selectOne(t, engine)
	time.Sleep(1 * time.Second)
	selectOne(t, engine)

	if got := *opens; got != 1 {
		t.Fatalf("opens = %d, want 1", got)
	}
}

package chtransport

import (
	"context"
	"net"
	"testing"
	"time"
)

func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					_, _ = c.Write(buf[:n])
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String()
}

func TestPoolCheckoutReturnReuse(t *testing.T) {
	addr := startEchoServer(t)
	p, err := NewPool("http://"+addr, PoolConfig{MaxConnections: 2})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()

	rec1, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	p.Return(rec1, true)

	rec2, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if rec2 != rec1 {
		t.Fatal("expected idle connection to be reused")
	}
	p.Return(rec2, true)
}

func TestPoolMaxConnectionsBlocks(t *testing.T) {
	addr := startEchoServer(t)
	p, err := NewPool("http://"+addr, PoolConfig{MaxConnections: 1, ConnectionRequestTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()

	rec1, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("first Checkout: %v", err)
	}

	_, err = p.Checkout(ctx)
	if err == nil {
		t.Fatal("expected connection_request_timeout error")
	}
	var te *TransportError
	if !castTransportError(err, &te) || te.Kind != ConnectionRequestTimeout {
		t.Fatalf("err = %v, want ConnectionRequestTimeout", err)
	}

	p.Return(rec1, true)
}

func castTransportError(err error, out **TransportError) bool {
	te, ok := err.(*TransportError)
	if !ok {
		return false
	}
	*out = te
	return true
}

func TestPoolExpiredConnectionNotReused(t *testing.T) {
	addr := startEchoServer(t)
	p, err := NewPool("http://"+addr, PoolConfig{MaxConnections: 2, ConnectionTTL: time.Millisecond})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()

	rec1, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	p.Return(rec1, true)

	time.Sleep(5 * time.Millisecond)

	rec2, err := p.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout after TTL: %v", err)
	}
	if rec2 == rec1 {
		t.Fatal("expected a fresh connection after TTL expiry")
	}
	p.Return(rec2, true)
}

package chschema

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCacheSingleflight(t *testing.T) {
	var calls int32
	var wg sync.WaitGroup
	release := make(chan struct{})

	c := NewCache(func(ctx context.Context, endpoint, table string) (*TableSchema, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return NewTableSchema(table, nil), nil
	})

	const n = 10
	results := make([]*TableSchema, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s, err := c.Resolve(context.Background(), "http://a", "events")
			if err != nil {
				t.Errorf("Resolve: %v", err)
			}
			results[i] = s
		}(i)
	}
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("resolver called %d times, want 1", got)
	}
	for _, s := range results {
		if s != results[0] {
			t.Fatal("concurrent callers received different schema instances")
		}
	}
}

func TestCacheNegativeResultNotCached(t *testing.T) {
	var calls int32
	boom := errors.New("boom")
	c := NewCache(func(ctx context.Context, endpoint, table string) (*TableSchema, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	})
	if _, err := c.Resolve(context.Background(), "http://a", "events"); err != boom {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := c.Resolve(context.Background(), "http://a", "events"); err != boom {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("resolver called %d times, want 2 (negative result not cached)", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	var calls int32
	c := NewCache(func(ctx context.Context, endpoint, table string) (*TableSchema, error) {
		atomic.AddInt32(&calls, 1)
		return NewTableSchema(table, nil), nil
	})
	ctx := context.Background()
	if _, err := c.Resolve(ctx, "http://a", "events"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Resolve(ctx, "http://a", "events"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cached hit, resolver called %d times", got)
	}
	c.Invalidate("http://a", "events")
	if _, err := c.Resolve(ctx, "http://a", "events"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected resolve after invalidate, calls = %d", got)
	}
}

// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

// Command chbench drives concurrent inserts against a ClickHouse endpoint
// and reports throughput, standing in for the teacher's conformance/cmd
// harness but measuring the client's own request pipeline rather than a
// server under test.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/columnaris/rowbinary-go/chclient"
	"github.com/columnaris/rowbinary-go/chvalue"
)

func main() {
	var (
		endpoint    = flag.String("endpoint", "http://localhost:8123", "ClickHouse HTTP endpoint")
		username    = flag.String("user", "default", "basic auth username")
		password    = flag.String("password", "", "basic auth password")
		table       = flag.String("table", "chbench_events", "table to insert into")
		concurrency = flag.Int("concurrency", 4, "number of concurrent inserters")
		rowsPerBatch = flag.Int("batch", 1000, "rows staged per Insert call")
		duration    = flag.Duration("duration", 10*time.Second, "how long to run")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := chclient.NewClient(
		chclient.WithEndpoints(*endpoint),
		chclient.WithBasicAuth(*username, *password),
		chclient.WithClientName("chbench"),
		chclient.WithMaxConnections(*concurrency),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "new client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ddl := "CREATE TABLE IF NOT EXISTS " + *table +
		" (id UInt64, payload String) ENGINE = MergeTree ORDER BY id"
	if _, err := client.Exec(ctx, ddl); err != nil {
		fmt.Fprintf(os.Stderr, "create table: %v\n", err)
		os.Exit(1)
	}

	var rowsWritten, batchesWritten, errCount int64
	deadline := time.Now().Add(*duration)

	var wg sync.WaitGroup
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			var id uint64
			for time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return
				default:
				}
				ins, err := client.Inserter(ctx, *table, false)
				if err != nil {
					atomic.AddInt64(&errCount, 1)
					slog.Warn("inserter", "worker", worker, "err", err)
					continue
				}
				for i := 0; i < *rowsPerBatch; i++ {
					id++
					if err := ins.SetByName("id", chvalue.NewUInt64(id)); err != nil {
						atomic.AddInt64(&errCount, 1)
						continue
					}
					if err := ins.SetByName("payload", chvalue.NewString("chbench-row")); err != nil {
						atomic.AddInt64(&errCount, 1)
						continue
					}
					if err := ins.CommitRow(); err != nil {
						atomic.AddInt64(&errCount, 1)
						continue
					}
				}
				summary, err := client.Insert(ctx, *table, ins)
				if err != nil {
					atomic.AddInt64(&errCount, 1)
					slog.Warn("insert", "worker", worker, "err", err)
					continue
				}
				atomic.AddInt64(&rowsWritten, int64(summary.WrittenRows))
				atomic.AddInt64(&batchesWritten, 1)
			}
		}(w)
	}
	wg.Wait()

	stats := client.Stats()
	fmt.Printf("rows_written=%d batches=%d errors=%d requests=%d retries=%d failures=%d\n",
		rowsWritten, batchesWritten, errCount, stats.Requests, stats.Retries, stats.Failures)
}

// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/deltamem"
	"github.com/cockroachdb/deltamem/mvcc"
	"github.com/cockroachdb/deltamem/rowchange"
	"github.com/cockroachdb/deltamem/schema"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tokenbucket"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
)

type benchConfig struct {
	writers    int
	readers    int
	duration   time.Duration
	maxTxns    uint64
	rows       int
	rowsPerTxn int
	batchSize  int
	writeRate  float64
	options    string
	verify     bool
	plot       bool
	seed       uint64
}

func defaultBenchConfig() benchConfig {
	return benchConfig{
		writers:    4,
		readers:    2,
		duration:   10 * time.Second,
		rows:       100000,
		rowsPerTxn: 10,
		batchSize:  1024,
		seed:       1,
	}
}

var benchSchema = schema.MustNew([]schema.Column{
	{Name: "key", Type: schema.Uint64},
	{Name: "payload", Type: schema.String},
	{Name: "counter", Type: schema.Uint32},
}, 1)

const (
	payloadColumn schema.ColumnID = 1
	counterColumn schema.ColumnID = 2
)

type bench struct {
	cfg   benchConfig
	store *deltamem.DeltaMemStore
	mgr   *mvcc.Manager
	reg   *histogramRegistry

	claimed   atomic.Uint64
	numTxns   atomic.Uint64
	numDeltas atomic.Uint64
	numScans  atomic.Uint64

	limiter struct {
		sync.Mutex
		enabled bool
		tb      tokenbucket.TokenBucket
	}

	// Written only by the ticking goroutine.
	prevTxns   uint64
	txnsPerSec []float64
}

func newBench(cfg benchConfig) (*bench, error) {
	if cfg.rows <= 0 || cfg.rowsPerTxn <= 0 || cfg.batchSize <= 0 {
		return nil, errors.Newf("rows, rows-per-txn and batch must be positive")
	}
	if cfg.rowsPerTxn > cfg.rows {
		return nil, errors.Newf("rows-per-txn (%d) exceeds rows (%d)", cfg.rowsPerTxn, cfg.rows)
	}
	opts := &deltamem.Options{}
	if cfg.options != "" {
		if err := opts.Parse(cfg.options); err != nil {
			return nil, errors.Wrap(err, "parsing --options")
		}
	}
	b := &bench{
		cfg:   cfg,
		store: deltamem.New(benchSchema, opts),
		mgr:   mvcc.NewManager(),
		reg:   newHistogramRegistry(),
	}
	if cfg.writeRate > 0 {
		b.limiter.enabled = true
		b.limiter.tb.Init(tokenbucket.TokensPerSecond(cfg.writeRate), tokenbucket.Tokens(max(cfg.writeRate/10, 1)))
	}
	return b, nil
}

// pace blocks until the write rate limit admits another transaction.
func (b *bench) pace(ctx context.Context) error {
	if !b.limiter.enabled {
		return nil
	}
	for {
		b.limiter.Lock()
		ok, d := b.limiter.tb.TryToFulfill(1)
		b.limiter.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

func (b *bench) writer(ctx context.Context, seed uint64) error {
	hist := b.reg.Register("write")
	rng := rand.New(rand.NewPCG(b.cfg.seed, seed))
	var buf []byte
	enc := rowchange.NewEncoder(benchSchema, &buf)
	rows := make(map[uint32]struct{}, b.cfg.rowsPerTxn)
	var payload []byte

	for ctx.Err() == nil {
		if b.cfg.maxTxns > 0 && b.claimed.Add(1) > b.cfg.maxTxns {
			return nil
		}
		if err := b.pace(ctx); err != nil {
			return nil
		}
		start := time.Now()
		err := b.mgr.RunTxn(func(id mvcc.TxnID) error {
			clear(rows)
			for len(rows) < b.cfg.rowsPerTxn {
				row := uint32(rng.IntN(b.cfg.rows))
				if _, ok := rows[row]; ok {
					continue
				}
				rows[row] = struct{}{}
				enc.Reset()
				if err := enc.AddUint32(counterColumn, uint32(id)); err != nil {
					return err
				}
				payload = fmt.Appendf(payload[:0], "txn-%d-row-%d", id, row)
				if err := enc.AddString(payloadColumn, payload); err != nil {
					return err
				}
				if err := b.store.Update(id, row, enc.RowChangeList()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		hist.Record(time.Since(start))
		b.numTxns.Add(1)
		b.numDeltas.Add(uint64(b.cfg.rowsPerTxn))
	}
	return nil
}

// scan reads every row of the projected columns under snap and returns a
// checksum of the result.
func (b *bench) scan(snap *mvcc.Snapshot) (uint64, error) {
	projection, err := benchSchema.Project("payload", "counter")
	if err != nil {
		return 0, err
	}
	it, err := b.store.NewDeltaIterator(projection, snap)
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()
	if err := it.Init(); err != nil {
		return 0, err
	}
	if err := it.SeekToOrdinal(0); err != nil {
		return 0, err
	}

	h := xxhash.New()
	payloads := schema.NewColumnBlock(schema.String, b.cfg.batchSize)
	counters := schema.NewColumnBlock(schema.Uint32, b.cfg.batchSize)
	for start := 0; start < b.cfg.rows; start += b.cfg.batchSize {
		for i := 0; i < b.cfg.batchSize; i++ {
			payloads.SetCell(i, nil)
			counters.SetUint32(i, 0)
		}
		// Where the iterator runs out depends on deltas snap may not see, so
		// rows past that point still hash their base values.
		if !it.Exhausted() {
			if err := it.PrepareBatch(b.cfg.batchSize); err != nil {
				return 0, err
			}
		}
		if !it.Exhausted() {
			if err := it.ApplyUpdates(0, payloads); err != nil {
				return 0, err
			}
			if err := it.ApplyUpdates(1, counters); err != nil {
				return 0, err
			}
		}
		for i := 0; i < b.cfg.batchSize; i++ {
			_, _ = h.Write(payloads.Cell(i))
			_, _ = h.Write(counters.Cell(i))
		}
	}
	return h.Sum64(), nil
}

func (b *bench) reader(ctx context.Context) error {
	hist := b.reg.Register("scan")
	for ctx.Err() == nil {
		snap := b.mgr.TakeSnapshot()
		start := time.Now()
		sum, err := b.scan(snap)
		if err != nil {
			return err
		}
		hist.Record(time.Since(start))
		b.numScans.Add(1)

		if b.cfg.verify {
			again, err := b.scan(snap)
			if err != nil {
				return err
			}
			if again != sum {
				return errors.AssertionFailedf("scans under %s disagree: %016x != %016x", snap, sum, again)
			}
		}
	}
	return nil
}

func (b *bench) run(ctx context.Context, out io.Writer) error {
	if b.cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.duration)
		defer cancel()
	}
	fmt.Fprintf(out, "writers %d\nreaders %d\n%s", b.cfg.writers, b.cfg.readers, b.store.Metrics())

	g, gctx := errgroup.WithContext(ctx)
	writersDone := make(chan struct{})
	var writers errgroup.Group
	for i := 0; i < b.cfg.writers; i++ {
		seed := uint64(i)
		writers.Go(func() error { return b.writer(gctx, seed) })
	}
	g.Go(func() error {
		defer close(writersDone)
		return writers.Wait()
	})
	readCtx, stopReaders := context.WithCancel(gctx)
	defer stopReaders()
	for i := 0; i < b.cfg.readers; i++ {
		g.Go(func() error { return b.reader(readCtx) })
	}
	go func() {
		// Readers stop once there is nothing more to read.
		<-writersDone
		stopReaders()
	}()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	start := time.Now()
	for i := 0; ; i++ {
		select {
		case <-ticker.C:
			b.tick(out, time.Since(start), i)
		case err := <-done:
			b.done(out, time.Since(start))
			return err
		}
	}
}

func (b *bench) tick(out io.Writer, elapsed time.Duration, i int) {
	if i%20 == 0 {
		fmt.Fprintln(out, "____optype__elapsed____ops/sec_deltas(total)__p50(ms)__p95(ms)__p99(ms)_pMax(ms)")
	}
	b.reg.Tick(func(tick histogramTick) {
		h := tick.Hist
		fmt.Fprintf(out, "%10s %8s %10.1f %14d %8.3f %8.3f %8.3f %8.3f\n",
			tick.Name,
			time.Duration(elapsed.Seconds()+0.5)*time.Second,
			float64(h.TotalCount())/tick.Elapsed.Seconds(),
			b.store.Count(),
			time.Duration(h.ValueAtQuantile(50)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(95)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(99)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(100)).Seconds()*1000,
		)
	})
	txns := b.numTxns.Load()
	b.txnsPerSec = append(b.txnsPerSec, float64(txns-b.prevTxns))
	b.prevTxns = txns
}

func (b *bench) done(out io.Writer, elapsed time.Duration) {
	var buf strings.Builder
	tbl := tablewriter.NewWriter(&buf)
	tbl.SetHeader([]string{"op", "elapsed", "ops", "ops/sec", "avg(ms)", "p50(ms)", "p99(ms)", "pMax(ms)"})
	ms := func(v float64) string { return fmt.Sprintf("%.3f", time.Duration(v).Seconds()*1000) }
	b.reg.Tick(func(tick histogramTick) {
		h := tick.Cumulative
		tbl.Append([]string{
			tick.Name,
			fmt.Sprintf("%.1fs", elapsed.Seconds()),
			fmt.Sprintf("%d", h.TotalCount()),
			fmt.Sprintf("%.1f", float64(h.TotalCount())/elapsed.Seconds()),
			ms(h.Mean()),
			ms(float64(h.ValueAtQuantile(50))),
			ms(float64(h.ValueAtQuantile(99))),
			ms(float64(h.ValueAtQuantile(100))),
		})
	})
	tbl.Render()
	fmt.Fprintf(out, "\n%s\ntxns %d  deltas %d  scans %d\n%s", buf.String(),
		b.numTxns.Load(), b.numDeltas.Load(), b.numScans.Load(), b.store.Metrics())

	if b.cfg.plot && len(b.txnsPerSec) > 1 {
		fmt.Fprintf(out, "\ntxns/sec\n%s\n", asciigraph.Plot(b.txnsPerSec, asciigraph.Height(10)))
	}
}

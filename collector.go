// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package deltamem

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the Metrics of a DeltaMemStore to Prometheus. Values are
// read from the store on every scrape.
type Collector struct {
	store *DeltaMemStore

	count           *prometheus.Desc
	arenaSize       *prometheus.Desc
	arenaCapacity   *prometheus.Desc
	iteratorsOpened *prometheus.Desc
	batchesPrepared *prometheus.Desc
	deltasScanned   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for store. Every metric carries a
// "rowset" label holding the store ID.
func NewCollector(store *DeltaMemStore, namespace string) *Collector {
	labels := prometheus.Labels{"rowset": strconv.FormatInt(store.ID(), 10)}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "deltamem", name), help, nil, labels)
	}
	return &Collector{
		store:           store,
		count:           desc("deltas", "Number of deltas in the store."),
		arenaSize:       desc("arena_bytes", "Bytes allocated from the store arena."),
		arenaCapacity:   desc("arena_capacity_bytes", "Bytes reserved by the store arena."),
		iteratorsOpened: desc("iterators_opened_total", "Iterators created over the store."),
		batchesPrepared: desc("batches_prepared_total", "Batches prepared by store iterators."),
		deltasScanned:   desc("deltas_scanned_total", "Deltas buffered by prepared batches."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.arenaSize
	ch <- c.arenaCapacity
	ch <- c.iteratorsOpened
	ch <- c.batchesPrepared
	ch <- c.deltasScanned
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.store.Metrics()
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.count, m.Count)
	gauge(c.arenaSize, m.ArenaSize)
	gauge(c.arenaCapacity, m.ArenaCapacity)
	counter(c.iteratorsOpened, m.IteratorsOpened)
	counter(c.batchesPrepared, m.BatchesPrepared)
	counter(c.deltasScanned, m.DeltasScanned)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BufferStats provides the collector access to live buffer state.
type BufferStats interface {
	Sequence() uint64
	FirstSequence() uint64
}

// AssetStats provides the collector access to live asset store state.
type AssetStats interface {
	Count(all bool) int
}

// Collector implements prometheus.Collector to read live gauges at scrape
// time.
type Collector struct {
	buffer BufferStats
	assets AssetStats

	nextSequence  *prometheus.Desc
	firstSequence *prometheus.Desc
	bufferFill    *prometheus.Desc
	activeAssets  *prometheus.Desc
	totalAssets   *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Either source may be nil; its gauges are then not reported.
func NewCollector(buffer BufferStats, assets AssetStats) *Collector {
	return &Collector{
		buffer: buffer,
		assets: assets,
		nextSequence: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffer", "next_sequence"),
			"Next observation sequence number to be assigned.",
			nil, nil,
		),
		firstSequence: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffer", "first_sequence"),
			"Oldest observation sequence still retained.",
			nil, nil,
		),
		bufferFill: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffer", "observations"),
			"Observations currently retained in the circular buffer.",
			nil, nil,
		),
		activeAssets: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "assets", "active"),
			"Active (not removed) assets in the store.",
			nil, nil,
		),
		totalAssets: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "assets", "total"),
			"All assets in the store including removed.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.nextSequence
	ch <- c.firstSequence
	ch <- c.bufferFill
	ch <- c.activeAssets
	ch <- c.totalAssets
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.buffer != nil {
		next := c.buffer.Sequence()
		first := c.buffer.FirstSequence()
		ch <- prometheus.MustNewConstMetric(c.nextSequence, prometheus.GaugeValue, float64(next))
		ch <- prometheus.MustNewConstMetric(c.firstSequence, prometheus.GaugeValue, float64(first))
		ch <- prometheus.MustNewConstMetric(c.bufferFill, prometheus.GaugeValue, float64(next-first))
	}
	if c.assets != nil {
		ch <- prometheus.MustNewConstMetric(c.activeAssets, prometheus.GaugeValue, float64(c.assets.Count(false)))
		ch <- prometheus.MustNewConstMetric(c.totalAssets, prometheus.GaugeValue, float64(c.assets.Count(true)))
	}
}

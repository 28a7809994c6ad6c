// Package metrics exports pool statistics to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/fixedpool/pool"
)

// Source is anything that can report pool statistics; *pool.Pool satisfies it.
type Source interface {
	Stats() pool.Stats
}

// Collector is a prometheus.Collector that snapshots one or more pools on
// every scrape. Each pool is identified by the "pool" label.
type Collector struct {
	sources map[string]Source

	usedBytes      *prometheus.Desc
	peakBytes      *prometheus.Desc
	allocs         *prometheus.Desc
	failures       *prometheus.Desc
	frees          *prometheus.Desc
	reallocs       *prometheus.Desc
	predictHits    *prometheus.Desc
	predictMisses  *prometheus.Desc
	cursorHits     *prometheus.Desc
	cursorMisses   *prometheus.Desc
	merges         *prometheus.Desc
	splits         *prometheus.Desc
	classBlocks    *prometheus.Desc
	classFree      *prometheus.Desc
	classHighWater *prometheus.Desc
	nrFreeBytes    *prometheus.Desc
	nrLargestFree  *prometheus.Desc
	nrHeaders      *prometheus.Desc
}

// NewCollector returns a collector for the named sources. constLabels are
// attached to every metric.
func NewCollector(namespace string, constLabels prometheus.Labels, sources map[string]Source) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", name),
			help,
			append([]string{"pool"}, labels...),
			constLabels,
		)
	}
	return &Collector{
		sources: sources,

		usedBytes:      desc("used_bytes", "Payload capacity of live blocks."),
		peakBytes:      desc("peak_bytes", "High-water mark of used bytes."),
		allocs:         desc("allocs_total", "Successful allocations by chunk kind.", "kind"),
		failures:       desc("alloc_failures_total", "Allocations that found no free block."),
		frees:          desc("frees_total", "Blocks released."),
		reallocs:       desc("reallocs_total", "Resize requests by outcome.", "outcome"),
		predictHits:    desc("predict_hits_total", "Regular allocations served by the prediction stack."),
		predictMisses:  desc("predict_misses_total", "Regular allocations that fell back to a bitmap scan."),
		cursorHits:     desc("cursor_hits_total", "Non-regular searches started at the cursor."),
		cursorMisses:   desc("cursor_misses_total", "Non-regular searches started at the chunk start."),
		merges:         desc("merges_total", "Non-regular blocks coalesced, by mode.", "mode"),
		splits:         desc("splits_total", "Free remainders split off non-regular blocks."),
		classBlocks:    desc("class_blocks", "Blocks in a regular size class.", "size"),
		classFree:      desc("class_free_blocks", "Free blocks in a regular size class.", "size"),
		classHighWater: desc("class_high_water_blocks", "Most blocks of a size class in use at once.", "size"),
		nrFreeBytes:    desc("nonregular_free_bytes", "Free payload bytes in the non-regular chunk."),
		nrLargestFree:  desc("nonregular_largest_free_bytes", "Largest single free non-regular payload."),
		nrHeaders:      desc("nonregular_headers", "Blocks in the non-regular chunk, by state.", "state"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.usedBytes
	ch <- c.peakBytes
	ch <- c.allocs
	ch <- c.failures
	ch <- c.frees
	ch <- c.reallocs
	ch <- c.predictHits
	ch <- c.predictMisses
	ch <- c.cursorHits
	ch <- c.cursorMisses
	ch <- c.merges
	ch <- c.splits
	ch <- c.classBlocks
	ch <- c.classFree
	ch <- c.classHighWater
	ch <- c.nrFreeBytes
	ch <- c.nrLargestFree
	ch <- c.nrHeaders
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, src := range c.sources {
		s := src.Stats()

		gauge := func(d *prometheus.Desc, v float64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, append([]string{name}, labels...)...)
		}
		counter := func(d *prometheus.Desc, v uint64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), append([]string{name}, labels...)...)
		}

		gauge(c.usedBytes, float64(s.UsedBytes))
		gauge(c.peakBytes, float64(s.PeakBytes))
		counter(c.allocs, s.RegularAllocs, "regular")
		counter(c.allocs, s.NonRegularAllocs, "nonregular")
		counter(c.failures, s.Failures)
		counter(c.frees, s.Frees)
		counter(c.reallocs, s.ReallocsInPlace, "in_place")
		counter(c.reallocs, s.ReallocsMoved, "moved")
		counter(c.predictHits, s.PredictHits)
		counter(c.predictMisses, s.PredictMisses)
		counter(c.cursorHits, s.CursorHits)
		counter(c.cursorMisses, s.CursorMisses)
		counter(c.merges, s.EagerMerges, "eager")
		counter(c.merges, s.LazyMerges, "lazy")
		counter(c.splits, s.Splits)

		for _, cl := range s.Classes {
			size := strconv.Itoa(cl.Size)
			gauge(c.classBlocks, float64(cl.Blocks), size)
			gauge(c.classFree, float64(cl.Free), size)
			gauge(c.classHighWater, float64(cl.HighWater), size)
		}

		nr := s.NonRegular
		gauge(c.nrFreeBytes, float64(nr.FreeBytes))
		gauge(c.nrLargestFree, float64(nr.LargestFree))
		gauge(c.nrHeaders, float64(nr.FreeHeaders), "free")
		gauge(c.nrHeaders, float64(nr.Headers-nr.FreeHeaders), "used")
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/esr-receiver/internal/router"
	"github.com/rickgao/esr-receiver/internal/writer"
)

// RouterCollector exports router.Stats at scrape time.
type RouterCollector struct {
	stats func() router.Stats

	received   *prometheus.Desc
	dropped    *prometheus.Desc
	delivered  *prometheus.Desc
	sinkErrors *prometheus.Desc
	pending    *prometheus.Desc
	capacity   *prometheus.Desc
}

// NewRouterCollector creates a collector reading from stats, usually Router.Stats.
func NewRouterCollector(stats func() router.Stats) *RouterCollector {
	fq := func(name string) string {
		return prometheus.BuildFQName(namespace, "router", name)
	}
	return &RouterCollector{
		stats:      stats,
		received:   prometheus.NewDesc(fq("events_received_total"), "Events accepted from the receiver", nil, nil),
		dropped:    prometheus.NewDesc(fq("events_dropped_total"), "Events that arrived after the router stopped", nil, nil),
		delivered:  prometheus.NewDesc(fq("deliveries_total"), "Successful sink deliveries", nil, nil),
		sinkErrors: prometheus.NewDesc(fq("sink_errors_total"), "Failed sink deliveries", nil, nil),
		pending:    prometheus.NewDesc(fq("queue_length"), "Events waiting for dispatch", nil, nil),
		capacity:   prometheus.NewDesc(fq("queue_capacity"), "Current queue capacity", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *RouterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.dropped
	ch <- c.delivered
	ch <- c.sinkErrors
	ch <- c.pending
	ch <- c.capacity
}

// Collect implements prometheus.Collector.
func (c *RouterCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(s.Received))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(s.Delivered))
	ch <- prometheus.MustNewConstMetric(c.sinkErrors, prometheus.CounterValue, float64(s.SinkErrors))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.Buffer.Count))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Buffer.Capacity))
}

// WriterCollector exports writer.WriterMetrics at scrape time.
type WriterCollector struct {
	stats func() writer.WriterMetrics

	inserts   *prometheus.Desc
	conflicts *prometheus.Desc
	errors    *prometheus.Desc
	flushes   *prometheus.Desc
	pending   *prometheus.Desc
}

// NewWriterCollector creates a collector reading from stats, usually ScanWriter.Stats.
func NewWriterCollector(stats func() writer.WriterMetrics) *WriterCollector {
	fq := func(name string) string {
		return prometheus.BuildFQName(namespace, "history", name)
	}
	return &WriterCollector{
		stats:     stats,
		inserts:   prometheus.NewDesc(fq("inserts_total"), "Scan rows written", nil, nil),
		conflicts: prometheus.NewDesc(fq("conflicts_total"), "Scan rows skipped as duplicates", nil, nil),
		errors:    prometheus.NewDesc(fq("batch_errors_total"), "Failed insert batches", nil, nil),
		flushes:   prometheus.NewDesc(fq("flushes_total"), "Successful insert batches", nil, nil),
		pending:   prometheus.NewDesc(fq("pending_rows"), "Scan rows waiting for a flush", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *WriterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inserts
	ch <- c.conflicts
	ch <- c.errors
	ch <- c.flushes
	ch <- c.pending
}

// Collect implements prometheus.Collector.
func (c *WriterCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.inserts, prometheus.CounterValue, float64(s.Inserts))
	ch <- prometheus.MustNewConstMetric(c.conflicts, prometheus.CounterValue, float64(s.Conflicts))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors))
	ch <- prometheus.MustNewConstMetric(c.flushes, prometheus.CounterValue, float64(s.Flushes))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.Pending))
}

// RegisterRelayClients exports the relay's connected client count.
func RegisterRelayClients(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "clients",
		Help:      "Connected websocket clients",
	}, func() float64 { return float64(count()) }))
}

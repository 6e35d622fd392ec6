package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the per-node counters exposed at /metrics (SPEC_FULL §3
// ambient observability); newMetrics registers a fresh set for each
// State against the Registerer passed to New, so States sharing one
// process each need their own registry.
type metrics struct {
	puts      prometheus.Counter
	gets      prometheus.Counter
	destroys  prometheus.Counter
	putBytes  prometheus.Counter
	getBytes  prometheus.Counter
	reorgRuns prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hstore_puts_total", Help: "Completed blob put operations.",
		}),
		gets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hstore_gets_total", Help: "Completed blob get operations.",
		}),
		destroys: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hstore_destroys_total", Help: "Completed blob destroy operations.",
		}),
		putBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hstore_put_bytes_total", Help: "Bytes accepted by put operations.",
		}),
		getBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hstore_get_bytes_total", Help: "Bytes returned by get operations.",
		}),
		reorgRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hstore_reorganize_total", Help: "Blobs handed to the reorganizer.",
		}),
	}
	reg.MustRegister(m.puts, m.gets, m.destroys, m.putBytes, m.getBytes, m.reorgRuns)
	return m
}

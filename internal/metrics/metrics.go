// Package metrics defines the engine's Prometheus collectors (spec §5
// instrumentation referenced by testable property S2: "touches O(zones
// containing ts>=90000) not all zones"). Grounded on the teacher's
// stats/ package role and its prometheus/client_golang dependency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ZonesTouched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sneldb_zones_touched_total",
		Help: "Zones actually loaded and scanned by query execution.",
	})
	ZonesPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sneldb_zones_pruned_total",
		Help: "Zones eliminated by the filter or RLTE planners before loading.",
	})
	FlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sneldb_flush_duration_seconds",
		Help:    "Wall-clock time to flush one memtable into a segment.",
		Buckets: prometheus.DefBuckets,
	})
	MemtableRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sneldb_memtable_rotations_total",
		Help: "Number of times a shard rotated its active memtable to passive.",
	})
)

func init() {
	prometheus.MustRegister(ZonesTouched, ZonesPruned, FlushDuration, MemtableRotations)
}

// =============================================================================
// FETCH METRICS - FETCH ORDER AND PLAN INSTRUMENTATION
// =============================================================================
//
// WHAT IS MEASURED?
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │  tracked_partitions   gauge      partitions in the fetch order          │
//   │  rotations_total      counter    entries moved to the back, by kind     │
//   │                                  (served, skipped)                      │
//   │  assignments_total    counter    bulk replacements of the whole order   │
//   │  revocations_total    counter    partitions removed one by one          │
//   │  plan_partitions      histogram  partitions per planned fetch           │
//   │  plan_topic_blocks    histogram  topic runs per planned fetch           │
//   └─────────────────────────────────────────────────────────────────────────┘
//
// PROMQL:
//   # How fragmented are fetches? blocks/partitions close to 1 means
//   # rotation has scattered topics across the order.
//   rate(fetchq_fetch_plan_topic_blocks_sum[5m])
//     / rate(fetchq_fetch_plan_partitions_sum[5m])
//
// =============================================================================

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Rotation kinds.
const (
	RotationServed  = "served"
	RotationSkipped = "skipped"
)

// FetchMetrics instruments a fetch session.
//
// All methods are safe to call on a nil receiver or a disabled registry.
type FetchMetrics struct {
	registry *Registry

	TrackedPartitions prometheus.Gauge
	Rotations         *prometheus.CounterVec
	Assignments       prometheus.Counter
	Revocations       prometheus.Counter
	PlanPartitions    prometheus.Histogram
	PlanTopicBlocks   prometheus.Histogram
}

func newFetchMetrics(r *Registry) *FetchMetrics {
	m := &FetchMetrics{registry: r}

	m.TrackedPartitions = r.newGauge(prometheus.GaugeOpts{
		Subsystem: "fetch",
		Name:      "tracked_partitions",
		Help:      "Number of partitions in the fetch order",
	})

	m.Rotations = r.newCounterVec(prometheus.CounterOpts{
		Subsystem: "fetch",
		Name:      "rotations_total",
		Help:      "Partitions moved to the back of the fetch order",
	}, []string{"kind"})

	m.Assignments = r.newCounter(prometheus.CounterOpts{
		Subsystem: "fetch",
		Name:      "assignments_total",
		Help:      "Bulk replacements of the fetch order",
	})

	m.Revocations = r.newCounter(prometheus.CounterOpts{
		Subsystem: "fetch",
		Name:      "revocations_total",
		Help:      "Partitions removed from the fetch order",
	})

	m.PlanPartitions = r.newHistogram(prometheus.HistogramOpts{
		Subsystem: "fetch",
		Name:      "plan_partitions",
		Help:      "Partitions per planned fetch",
	})

	m.PlanTopicBlocks = r.newHistogram(prometheus.HistogramOpts{
		Subsystem: "fetch",
		Name:      "plan_topic_blocks",
		Help:      "Contiguous topic runs per planned fetch",
	})

	return m
}

func (m *FetchMetrics) active() bool {
	return m != nil && m.registry != nil && m.registry.enabled
}

// SetTrackedPartitions records the current fetch order size.
func (m *FetchMetrics) SetTrackedPartitions(n int) {
	if !m.active() {
		return
	}
	m.TrackedPartitions.Set(float64(n))
}

// RecordRotation counts one partition moved to the back.
func (m *FetchMetrics) RecordRotation(kind string) {
	if !m.active() {
		return
	}
	m.Rotations.WithLabelValues(kind).Inc()
}

// RecordAssignment counts a bulk replacement of n partitions.
func (m *FetchMetrics) RecordAssignment(n int) {
	if !m.active() {
		return
	}
	m.Assignments.Inc()
	m.TrackedPartitions.Set(float64(n))
}

// RecordRevocation counts one removed partition.
func (m *FetchMetrics) RecordRevocation() {
	if !m.active() {
		return
	}
	m.Revocations.Inc()
}

// RecordPlan observes the shape of a planned fetch.
func (m *FetchMetrics) RecordPlan(partitions, blocks int) {
	if !m.active() {
		return
	}
	m.PlanPartitions.Observe(float64(partitions))
	m.PlanTopicBlocks.Observe(float64(blocks))
}

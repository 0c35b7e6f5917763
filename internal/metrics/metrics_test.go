package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRegistry() *Registry {
	config := DefaultConfig()
	config.IncludeGoCollector = false
	config.IncludeProcessCollector = false
	return NewRegistry(config, nil)
}

func TestNewRegistry(t *testing.T) {
	registry := newTestRegistry()

	if registry == nil {
		t.Fatal("expected registry to be non-nil")
	}
	if registry.Fetch == nil {
		t.Error("expected Fetch metrics to be initialized")
	}
	if !registry.Enabled() {
		t.Error("expected registry to be enabled")
	}
}

func TestFetchMetrics_RecordRotation(t *testing.T) {
	registry := newTestRegistry()

	registry.Fetch.RecordRotation(RotationServed)
	registry.Fetch.RecordRotation(RotationServed)
	registry.Fetch.RecordRotation(RotationSkipped)

	served := testutil.ToFloat64(registry.Fetch.Rotations.WithLabelValues(RotationServed))
	if served != 2 {
		t.Errorf("Rotations served: expected 2, got %v", served)
	}
	skipped := testutil.ToFloat64(registry.Fetch.Rotations.WithLabelValues(RotationSkipped))
	if skipped != 1 {
		t.Errorf("Rotations skipped: expected 1, got %v", skipped)
	}
}

func TestFetchMetrics_RecordAssignment(t *testing.T) {
	registry := newTestRegistry()

	registry.Fetch.RecordAssignment(6)
	registry.Fetch.RecordAssignment(4)

	if got := testutil.ToFloat64(registry.Fetch.Assignments); got != 2 {
		t.Errorf("Assignments: expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(registry.Fetch.TrackedPartitions); got != 4 {
		t.Errorf("TrackedPartitions: expected 4, got %v", got)
	}

	registry.Fetch.RecordRevocation()
	registry.Fetch.SetTrackedPartitions(3)
	if got := testutil.ToFloat64(registry.Fetch.Revocations); got != 1 {
		t.Errorf("Revocations: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(registry.Fetch.TrackedPartitions); got != 3 {
		t.Errorf("TrackedPartitions: expected 3, got %v", got)
	}
}

func TestFetchMetrics_RecordPlan(t *testing.T) {
	registry := newTestRegistry()

	registry.Fetch.RecordPlan(8, 2)
	registry.Fetch.RecordPlan(4, 1)

	if n := testutil.CollectAndCount(registry.Fetch.PlanPartitions); n != 1 {
		t.Errorf("PlanPartitions: expected 1 series, got %d", n)
	}

	expected := `
# HELP fetchq_fetch_plan_topic_blocks Contiguous topic runs per planned fetch
# TYPE fetchq_fetch_plan_topic_blocks histogram
fetchq_fetch_plan_topic_blocks_bucket{le="1"} 1
fetchq_fetch_plan_topic_blocks_bucket{le="2"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="4"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="8"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="16"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="32"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="64"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="128"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="256"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="512"} 2
fetchq_fetch_plan_topic_blocks_bucket{le="+Inf"} 2
fetchq_fetch_plan_topic_blocks_sum 3
fetchq_fetch_plan_topic_blocks_count 2
`
	if err := testutil.CollectAndCompare(registry.Fetch.PlanTopicBlocks, strings.NewReader(expected)); err != nil {
		t.Errorf("PlanTopicBlocks mismatch: %v", err)
	}
}

func TestDisabledMetrics(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false
	registry := NewRegistry(config, nil)

	// Must not panic.
	registry.Fetch.RecordRotation(RotationServed)
	registry.Fetch.RecordAssignment(3)
	registry.Fetch.RecordPlan(1, 1)

	var nilMetrics *FetchMetrics
	nilMetrics.RecordRevocation()

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "Metrics disabled") {
		t.Errorf("expected disabled stub, got %q", rec.Body.String())
	}
}

func TestHandler(t *testing.T) {
	registry := newTestRegistry()
	registry.Fetch.RecordAssignment(5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, name := range []string{"fetchq_fetch_tracked_partitions", "fetchq_fetch_assignments_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in output", name)
		}
	}
}

package fetcher

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"fetchq/internal/metrics"
	"fetchq/pkg/fetchorder"
)

// =============================================================================
// FETCH SESSION TESTS
// =============================================================================

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func tp(topic string, partition int32) fetchorder.TopicPartition {
	return fetchorder.TopicPartition{Topic: topic, Partition: partition}
}

type testEnv struct {
	session *Session
	clock   *clockwork.FakeClock
	metrics *metrics.Registry
}

func setupSession(t *testing.T, maxPartitions int) *testEnv {
	t.Helper()

	mcfg := metrics.DefaultConfig()
	mcfg.IncludeGoCollector = false
	mcfg.IncludeProcessCollector = false
	reg := metrics.NewRegistry(mcfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	clock := clockwork.NewFakeClockAt(epoch)
	s, err := NewSession(Config{
		Logger:                  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:                   clock,
		Metrics:                 reg.Fetch,
		MaxPartitionsPerRequest: maxPartitions,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return &testEnv{session: s, clock: clock, metrics: reg}
}

func assign(t *testing.T, s *Session, tps ...fetchorder.TopicPartition) {
	t.Helper()
	a := fetchorder.NewAssignment[int64]()
	for _, k := range tps {
		a.Put(k, 0)
	}
	if err := s.Assign(a); err != nil {
		t.Fatalf("Assign: %v", err)
	}
}

func orderOf(s *Session) []fetchorder.TopicPartition {
	var out []fetchorder.TopicPartition
	for _, v := range s.Partitions() {
		out = append(out, tp(v.Topic, v.Partition))
	}
	return out
}

func TestNewSession_RejectsNegativeLimit(t *testing.T) {
	if _, err := NewSession(Config{MaxPartitionsPerRequest: -1}); err == nil {
		t.Fatal("expected error for negative limit")
	}

	s, err := NewSession(Config{})
	if err != nil {
		t.Fatalf("NewSession with defaults: %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("new session should be empty, got %d", s.Size())
	}
}

func TestSession_AssignGroupsByTopic(t *testing.T) {
	env := setupSession(t, 0)

	assign(t, env.session, tp("x", 0), tp("y", 0), tp("x", 1))

	want := []fetchorder.TopicPartition{tp("x", 0), tp("x", 1), tp("y", 0)}
	if diff := cmp.Diff(want, orderOf(env.session)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(env.metrics.Fetch.Assignments); got != 1 {
		t.Errorf("Assignments: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(env.metrics.Fetch.TrackedPartitions); got != 3 {
		t.Errorf("TrackedPartitions: expected 3, got %v", got)
	}
}

func TestSession_AssignRejectsBadInput(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("keep", 0))

	bad := fetchorder.NewAssignment[int64]().Put(tp("x", 0), -1)
	if err := env.session.Assign(bad); !errors.Is(err, ErrInvalidOffset) {
		t.Errorf("expected ErrInvalidOffset, got %v", err)
	}

	bad = fetchorder.NewAssignment[int64]().Put(tp("", 0), 0)
	if err := env.session.Assign(bad); !errors.Is(err, fetchorder.ErrInvalidPartition) {
		t.Errorf("expected ErrInvalidPartition, got %v", err)
	}

	if !env.session.Assigned(tp("keep", 0)) {
		t.Error("failed Assign must not change the session")
	}
}

func TestSession_AssignKeepsHistory(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0), tp("a", 1))

	if err := env.session.Served(tp("a", 0), 10); err != nil {
		t.Fatal(err)
	}

	a := fetchorder.NewAssignment[int64]().Put(tp("a", 0), 50).Put(tp("b", 0), 0)
	if err := env.session.Assign(a); err != nil {
		t.Fatal(err)
	}

	view, ok := env.session.Position(tp("a", 0))
	if !ok {
		t.Fatal("a-0 should still be assigned")
	}
	if view.Offset != 50 || view.FetchCount != 1 || !view.LastFetched.Equal(epoch) {
		t.Errorf("unexpected a-0 view: %+v", view)
	}
	if env.session.Assigned(tp("a", 1)) {
		t.Error("a-1 should have been dropped")
	}
}

func TestSession_ServedRotates(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0), tp("b", 0), tp("c", 0))

	env.clock.Advance(time.Minute)
	if err := env.session.Served(tp("a", 0), 42); err != nil {
		t.Fatal(err)
	}

	want := []fetchorder.TopicPartition{tp("b", 0), tp("c", 0), tp("a", 0)}
	if diff := cmp.Diff(want, orderOf(env.session)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	view, _ := env.session.Position(tp("a", 0))
	wantView := PartitionView{
		Topic:       "a",
		Partition:   0,
		Offset:      42,
		LastFetched: epoch.Add(time.Minute),
		FetchCount:  1,
	}
	if diff := cmp.Diff(wantView, view); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{0, 0, 42}, env.session.Offsets()); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(env.metrics.Fetch.Rotations.WithLabelValues(metrics.RotationServed)); got != 1 {
		t.Errorf("served rotations: expected 1, got %v", got)
	}
}

func TestSession_ServedErrors(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0))

	if err := env.session.Served(tp("z", 0), 1); !errors.Is(err, ErrNotAssigned) {
		t.Errorf("expected ErrNotAssigned, got %v", err)
	}
	if err := env.session.Served(tp("a", 0), -1); !errors.Is(err, ErrInvalidOffset) {
		t.Errorf("expected ErrInvalidOffset, got %v", err)
	}
	if err := env.session.Skip(tp("z", 0)); !errors.Is(err, ErrNotAssigned) {
		t.Errorf("expected ErrNotAssigned, got %v", err)
	}
}

func TestSession_SkipKeepsState(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0), tp("b", 0))

	if err := env.session.Skip(tp("a", 0)); err != nil {
		t.Fatal(err)
	}

	want := []fetchorder.TopicPartition{tp("b", 0), tp("a", 0)}
	if diff := cmp.Diff(want, orderOf(env.session)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	view, _ := env.session.Position(tp("a", 0))
	if view.FetchCount != 0 || !view.LastFetched.IsZero() {
		t.Errorf("Skip changed state: %+v", view)
	}
}

func TestSession_RevokeAndReset(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0), tp("b", 0))

	if !env.session.Revoke(tp("a", 0)) {
		t.Error("Revoke(a-0) should report true")
	}
	if env.session.Revoke(tp("a", 0)) {
		t.Error("second Revoke(a-0) should report false")
	}
	if diff := cmp.Diff([]fetchorder.TopicPartition{tp("b", 0)}, env.session.PartitionSet()); diff != "" {
		t.Errorf("PartitionSet mismatch (-want +got):\n%s", diff)
	}

	env.session.Reset()
	if env.session.Size() != 0 {
		t.Errorf("Size after Reset = %d", env.session.Size())
	}
	if got := testutil.ToFloat64(env.metrics.Fetch.TrackedPartitions); got != 0 {
		t.Errorf("TrackedPartitions after Reset: %v", got)
	}
	if got := testutil.ToFloat64(env.metrics.Fetch.Revocations); got != 1 {
		t.Errorf("Revocations: expected 1, got %v", got)
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0), tp("a", 1), tp("b", 0), tp("b", 1))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k := tp("a", int32(j%2))
				if i%2 == 0 {
					k = tp("b", int32(j%2))
				}
				_ = env.session.Served(k, int64(j))
				_ = env.session.Plan()
				_ = env.session.Partitions()
			}
		}(i)
	}
	wg.Wait()

	if env.session.Size() != 4 {
		t.Errorf("Size = %d, want 4", env.session.Size())
	}
}

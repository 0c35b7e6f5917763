package fetcher

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"fetchq/pkg/fetchorder"
)

func TestSession_PlanMergesAdjacentTopics(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0), tp("a", 1), tp("b", 0), tp("b", 1))

	if err := env.session.Served(tp("a", 0), 5); err != nil {
		t.Fatal(err)
	}

	want := FetchPlan{Blocks: []TopicBlock{
		{Topic: "a", Partitions: []PlannedPartition{{Partition: 1, Offset: 0}}},
		{Topic: "b", Partitions: []PlannedPartition{{Partition: 0, Offset: 0}, {Partition: 1, Offset: 0}}},
		{Topic: "a", Partitions: []PlannedPartition{{Partition: 0, Offset: 5}}},
	}}
	got := env.session.Plan()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	if got.Len() != 4 {
		t.Errorf("Len = %d, want 4", got.Len())
	}
	if n := testutil.CollectAndCount(env.metrics.Fetch.PlanPartitions); n != 1 {
		t.Errorf("expected plan histogram to be collected, got %d series", n)
	}
}

func TestSession_PlanRespectsLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  []fetchorder.TopicPartition
	}{
		{"unlimited", 0, []fetchorder.TopicPartition{tp("a", 0), tp("a", 1), tp("b", 0)}},
		{"two", 2, []fetchorder.TopicPartition{tp("a", 0), tp("a", 1)}},
		{"larger than order", 10, []fetchorder.TopicPartition{tp("a", 0), tp("a", 1), tp("b", 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupSession(t, tt.limit)
			assign(t, env.session, tp("a", 0), tp("a", 1), tp("b", 0))

			if diff := cmp.Diff(tt.want, env.session.Plan().TopicPartitions()); diff != "" {
				t.Errorf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSession_PlanEmpty(t *testing.T) {
	env := setupSession(t, 0)

	plan := env.session.Plan()
	if plan.Len() != 0 || len(plan.Blocks) != 0 {
		t.Errorf("expected empty plan, got %+v", plan)
	}

	plan, err := env.session.Cycle(func(FetchPlan) map[fetchorder.TopicPartition]int64 {
		t.Fatal("fetch must not be called for an empty plan")
		return nil
	})
	if err != nil || plan.Len() != 0 {
		t.Errorf("Cycle on empty session: plan=%+v err=%v", plan, err)
	}
}

func TestSession_CycleIsFair(t *testing.T) {
	env := setupSession(t, 2)
	assign(t, env.session, tp("a", 0), tp("a", 1), tp("b", 0), tp("b", 1))

	// Every planned partition returns one record.
	fetchAll := func(plan FetchPlan) map[fetchorder.TopicPartition]int64 {
		out := make(map[fetchorder.TopicPartition]int64)
		for _, b := range plan.Blocks {
			for _, p := range b.Partitions {
				out[tp(b.Topic, p.Partition)] = p.Offset + 1
			}
		}
		return out
	}

	var planned [][]fetchorder.TopicPartition
	for i := 0; i < 4; i++ {
		plan, err := env.session.Cycle(fetchAll)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		planned = append(planned, plan.TopicPartitions())
	}

	want := [][]fetchorder.TopicPartition{
		{tp("a", 0), tp("a", 1)},
		{tp("b", 0), tp("b", 1)},
		{tp("a", 0), tp("a", 1)},
		{tp("b", 0), tp("b", 1)},
	}
	if diff := cmp.Diff(want, planned); diff != "" {
		t.Errorf("cycle plans mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2, 2, 2, 2}, env.session.Offsets()); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_CycleEmptyPartitionsKeepPriorityOverServed(t *testing.T) {
	env := setupSession(t, 2)
	assign(t, env.session, tp("a", 0), tp("a", 1), tp("b", 0))

	// Only a-0 returns data.
	_, err := env.session.Cycle(func(FetchPlan) map[fetchorder.TopicPartition]int64 {
		return map[fetchorder.TopicPartition]int64{tp("a", 0): 7}
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []fetchorder.TopicPartition{tp("b", 0), tp("a", 1), tp("a", 0)}
	if diff := cmp.Diff(want, orderOf(env.session)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_CycleIgnoresRevokedPartitions(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0), tp("b", 0))

	_, err := env.session.Cycle(func(FetchPlan) map[fetchorder.TopicPartition]int64 {
		env.session.Revoke(tp("a", 0))
		return map[fetchorder.TopicPartition]int64{tp("a", 0): 3, tp("b", 0): 4}
	})
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	if diff := cmp.Diff([]fetchorder.TopicPartition{tp("b", 0)}, orderOf(env.session)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_CycleRejectsNegativeOffsetWithoutRotating(t *testing.T) {
	env := setupSession(t, 0)
	assign(t, env.session, tp("a", 0), tp("a", 1), tp("a", 2), tp("b", 0))

	_, err := env.session.Cycle(func(FetchPlan) map[fetchorder.TopicPartition]int64 {
		return map[fetchorder.TopicPartition]int64{tp("a", 0): 5, tp("a", 1): -1}
	})
	if !errors.Is(err, ErrInvalidOffset) {
		t.Fatalf("expected ErrInvalidOffset, got %v", err)
	}

	want := []fetchorder.TopicPartition{tp("a", 0), tp("a", 1), tp("a", 2), tp("b", 0)}
	if diff := cmp.Diff(want, orderOf(env.session)); diff != "" {
		t.Errorf("order changed after failed cycle (-want +got):\n%s", diff)
	}
	view, _ := env.session.Position(tp("a", 0))
	if view.Offset != 0 || view.FetchCount != 0 {
		t.Errorf("a-0 was served by a failed cycle: %+v", view)
	}
}

func TestSession_CyclePlansUnplannedBeforeServed(t *testing.T) {
	env := setupSession(t, 2)
	assign(t, env.session, tp("orders", 0), tp("orders", 1), tp("orders", 2), tp("payments", 0))

	_, err := env.session.Cycle(func(plan FetchPlan) map[fetchorder.TopicPartition]int64 {
		out := make(map[fetchorder.TopicPartition]int64)
		for _, k := range plan.TopicPartitions() {
			out[k] = 1
		}
		return out
	})
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	plan := env.session.Plan()
	want := []fetchorder.TopicPartition{tp("orders", 2), tp("payments", 0)}
	if diff := cmp.Diff(want, plan.TopicPartitions()); diff != "" {
		t.Errorf("second plan mismatch (-want +got):\n%s", diff)
	}
}

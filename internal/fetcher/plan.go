package fetcher

import (
	"errors"
	"fmt"

	"fetchq/pkg/fetchorder"
)

// =============================================================================
// FETCH PLANS
// =============================================================================
//
// A FetchPlan is the fetch order cut down to one request and folded into
// topic blocks. Only ADJACENT partitions of a topic share a block, so the
// plan keeps the exact priority order of the registry:
//
//   order:  a-1 b-0 b-1 a-0
//   plan:   [a: 1] [b: 0 1] [a: 0]      ← "a" appears twice
//
// =============================================================================

// PlannedPartition is one partition in a plan.
type PlannedPartition struct {
	Partition int32 `json:"partition" yaml:"partition"`
	Offset    int64 `json:"offset" yaml:"offset"`
}

// TopicBlock is a run of partitions of one topic.
type TopicBlock struct {
	Topic      string             `json:"topic" yaml:"topic"`
	Partitions []PlannedPartition `json:"partitions" yaml:"partitions"`
}

// FetchPlan is the next fetch, in priority order.
type FetchPlan struct {
	Blocks []TopicBlock `json:"blocks" yaml:"blocks"`
}

// Len returns the number of partitions in the plan.
func (p FetchPlan) Len() int {
	n := 0
	for _, b := range p.Blocks {
		n += len(b.Partitions)
	}
	return n
}

// TopicPartitions returns the planned partitions in order.
func (p FetchPlan) TopicPartitions() []fetchorder.TopicPartition {
	tps := make([]fetchorder.TopicPartition, 0, p.Len())
	for _, b := range p.Blocks {
		for _, pp := range b.Partitions {
			tps = append(tps, fetchorder.TopicPartition{Topic: b.Topic, Partition: pp.Partition})
		}
	}
	return tps
}

// Plan builds the next fetch from the front of the fetch order.
func (s *Session) Plan() FetchPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := s.cfg.MaxPartitionsPerRequest
	var plan FetchPlan
	n := 0
	s.order.Each(func(tp fetchorder.TopicPartition, st *PartitionFetchState) bool {
		if limit > 0 && n >= limit {
			return false
		}
		n++

		pp := PlannedPartition{Partition: tp.Partition, Offset: st.Offset}
		if last := len(plan.Blocks) - 1; last >= 0 && plan.Blocks[last].Topic == tp.Topic {
			plan.Blocks[last].Partitions = append(plan.Blocks[last].Partitions, pp)
			return true
		}
		plan.Blocks = append(plan.Blocks, TopicBlock{
			Topic:      tp.Topic,
			Partitions: []PlannedPartition{pp},
		})
		return true
	})

	s.cfg.Metrics.RecordPlan(n, len(plan.Blocks))
	return plan
}

// FetchFunc executes a plan and returns the next offset of every partition
// that returned data. Partitions left out are treated as empty.
type FetchFunc func(plan FetchPlan) map[fetchorder.TopicPartition]int64

// Cycle runs one fetch cycle: plan, fetch, then rotate. Planned partitions
// without data are skipped first and partitions that returned data are
// marked served after them, both in plan order. The next plan therefore
// starts with partitions that were not planned, then the empty ones, and
// the served ones come last. A negative offset in the results fails the
// cycle before anything is rotated.
func (s *Session) Cycle(fetch FetchFunc) (FetchPlan, error) {
	plan := s.Plan()
	if plan.Len() == 0 {
		return plan, nil
	}

	results := fetch(plan)

	planned := plan.TopicPartitions()
	var served []fetchorder.TopicPartition
	for _, tp := range planned {
		next, ok := results[tp]
		if !ok {
			continue
		}
		if next < 0 {
			return plan, fmt.Errorf("%w: %s offset %d", ErrInvalidOffset, tp, next)
		}
		served = append(served, tp)
	}

	for _, tp := range planned {
		if _, ok := results[tp]; ok {
			continue
		}
		// Revoked while the fetch was in flight.
		if err := s.Skip(tp); err != nil && !errors.Is(err, ErrNotAssigned) {
			return plan, err
		}
	}
	for _, tp := range served {
		err := s.Served(tp, results[tp])
		if errors.Is(err, ErrNotAssigned) {
			s.logger.Debug("dropping result for revoked partition", "partition", tp.String())
			continue
		}
		if err != nil {
			return plan, err
		}
	}

	s.logger.Debug("fetch cycle complete",
		"planned", plan.Len(),
		"served", len(served),
		"blocks", len(plan.Blocks),
	)
	return plan, nil
}

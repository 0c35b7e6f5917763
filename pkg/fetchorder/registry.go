// =============================================================================
// FETCH ORDER REGISTRY - ROUND-ROBIN PARTITION ORDERING FOR FETCH REQUESTS
// =============================================================================
//
// WHAT IS THIS?
// A consumer that fetches from many partitions at once has to decide, every
// fetch cycle, which partitions go into the next request and in what order.
// Brokers cap the size of a fetch response, so partitions near the front of
// the request get served first. If the order never changes, the same
// partitions win every cycle and the tail starves.
//
// The Registry keeps that order. After a partition is served it is moved to
// the back of the queue (round-robin), so every partition eventually reaches
// the front.
//
// DUAL STRUCTURE:
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │                              Registry[S]                                │
//   │                                                                         │
//   │   list (order)                        index (lookup)                    │
//   │   ┌────────┬────────┬────────┐        ┌──────────────────────┐          │
//   │   │ a-0:s1 │ b-0:s2 │ a-1:s3 │        │ a-0 → s1             │          │
//   │   └────────┴────────┴────────┘        │ b-0 → s2             │          │
//   │        ▲                              │ a-1 → s3             │          │
//   │        │ MoveToEnd(a-0)               └──────────────────────┘          │
//   │        ▼                                                                │
//   │   ┌────────┬────────┬────────┐                                          │
//   │   │ b-0:s2 │ a-1:s3 │ a-0:s1 │        (index unchanged)                 │
//   │   └────────┴────────┴────────┘                                          │
//   └─────────────────────────────────────────────────────────────────────────┘
//
//   - list is the source of truth for ORDER
//   - index answers Contains/StateValue in O(1)
//   - every mutating method updates both before returning
//
// TOPIC GROUPING:
// Fetch requests serialize partitions nested under their topic, so a request
// is smaller when partitions of one topic are contiguous. Set() rebuilds the
// order grouped by topic. Rotation afterwards works on single partitions, so
// over time a topic may show up in several runs again:
//
//   after Set:        a-0 a-1 b-0 b-1
//   MoveToEnd(a-0):   a-1 b-0 b-1 a-0     ← topic "a" now appears twice
//
// CONCURRENCY:
// A Registry is owned by one fetch loop and is NOT safe for concurrent use.
// Wrap it in a mutex if several goroutines need it.
//
// COMPARISON:
//   - Kafka Java consumer: PartitionStates (LinkedHashMap keyed by partition)
//   - franz-go: rotating start index over allConsumptions per broker source
//   - fetchq: Registry[S] with explicit ordered Assignment input
//
// =============================================================================

package fetchorder

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNilState is returned when a nil state value is stored. Registry
	// states are never absent once inserted.
	ErrNilState = errors.New("partition state must not be nil")

	// ErrInvalidPartition is returned for an empty topic or negative partition.
	ErrInvalidPartition = errors.New("invalid topic partition")
)

// =============================================================================
// TOPIC PARTITION
// =============================================================================

// TopicPartition identifies one partition of a topic. It is a comparable
// value and is used directly as a map key.
type TopicPartition struct {
	Topic     string `json:"topic" yaml:"topic"`
	Partition int32  `json:"partition" yaml:"partition"`
}

// NewTopicPartition builds a TopicPartition, rejecting empty topics and
// negative partition indexes.
func NewTopicPartition(topic string, partition int32) (TopicPartition, error) {
	tp := TopicPartition{Topic: topic, Partition: partition}
	if err := tp.Validate(); err != nil {
		return TopicPartition{}, err
	}
	return tp, nil
}

// Validate reports whether tp names a real partition.
func (tp TopicPartition) Validate() error {
	if tp.Topic == "" {
		return fmt.Errorf("%w: empty topic name", ErrInvalidPartition)
	}
	if tp.Partition < 0 {
		return fmt.Errorf("%w: %s has negative partition %d", ErrInvalidPartition, tp.Topic, tp.Partition)
	}
	return nil
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// =============================================================================
// PARTITION STATE
// =============================================================================

// PartitionState pairs a partition with its state value. Values are
// immutable once built; replace the entry to change the state.
type PartitionState[S any] struct {
	tp    TopicPartition
	value S
}

// NewPartitionState builds an entry. An invalid tp fails with
// ErrInvalidPartition; a nil value (nil pointer, map, slice, interface, func
// or chan) fails with ErrNilState.
func NewPartitionState[S any](tp TopicPartition, value S) (PartitionState[S], error) {
	if err := tp.Validate(); err != nil {
		return PartitionState[S]{}, err
	}
	if isNil(value) {
		return PartitionState[S]{}, fmt.Errorf("%w: %s", ErrNilState, tp)
	}
	return PartitionState[S]{tp: tp, value: value}, nil
}

// TopicPartition returns the entry's partition.
func (p PartitionState[S]) TopicPartition() TopicPartition { return p.tp }

// Value returns the entry's state.
func (p PartitionState[S]) Value() S { return p.value }

func (p PartitionState[S]) String() string {
	return fmt.Sprintf("PartitionState(%s=%v)", p.tp, p.value)
}

// isNil reports whether v holds a nil reference. Non-nillable kinds
// (structs, numbers, strings) are never nil, which makes the contract a
// compile-time property for those state types.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds partitions and their states in fetch order.
//
// INVARIANTS:
//   - list and index hold exactly the same partitions, each once in list
//   - index[tp] equals the value of tp's entry in list
//   - only MoveToEnd, UpdateAndMoveToEnd and Set change relative order
type Registry[S any] struct {
	list  []PartitionState[S]
	index map[TopicPartition]S
}

// New returns an empty Registry.
func New[S any]() *Registry[S] {
	return &Registry[S]{
		index: make(map[TopicPartition]S),
	}
}

// position returns tp's index in list, or -1.
func (r *Registry[S]) position(tp TopicPartition) int {
	return slices.IndexFunc(r.list, func(p PartitionState[S]) bool {
		return p.tp == tp
	})
}

// MoveToEnd moves tp to the back of the order, keeping its state. Unknown
// partitions are ignored.
func (r *Registry[S]) MoveToEnd(tp TopicPartition) {
	if _, ok := r.index[tp]; !ok {
		return
	}
	i := r.position(tp)
	if i < 0 || i == len(r.list)-1 {
		return
	}
	entry := r.list[i]
	r.list = append(r.list[:i], r.list[i+1:]...)
	r.list = append(r.list, entry)
}

// UpdateAndMoveToEnd stores value for tp and places tp at the back of the
// order. New partitions are appended; known ones are moved. An invalid tp
// fails with ErrInvalidPartition and a nil value with ErrNilState; either
// leaves the registry untouched.
func (r *Registry[S]) UpdateAndMoveToEnd(tp TopicPartition, value S) error {
	entry, err := NewPartitionState(tp, value)
	if err != nil {
		return err
	}

	if _, ok := r.index[tp]; ok {
		if i := r.position(tp); i >= 0 {
			r.list = append(r.list[:i], r.list[i+1:]...)
		}
	}
	r.index[tp] = value
	r.list = append(r.list, entry)
	return nil
}

// Remove drops tp. Unknown partitions are ignored.
func (r *Registry[S]) Remove(tp TopicPartition) {
	if _, ok := r.index[tp]; !ok {
		return
	}
	delete(r.index, tp)
	if i := r.position(tp); i >= 0 {
		r.list = slices.Delete(r.list, i, i+1)
	}
}

// Contains reports whether tp is tracked.
func (r *Registry[S]) Contains(tp TopicPartition) bool {
	_, ok := r.index[tp]
	return ok
}

// Clear removes every partition.
func (r *Registry[S]) Clear() {
	clear(r.index)
	r.list = nil
}

// Size returns the number of tracked partitions.
func (r *Registry[S]) Size() int {
	return len(r.index)
}

// PartitionSet returns the tracked partitions in no particular order.
func (r *Registry[S]) PartitionSet() map[TopicPartition]struct{} {
	set := make(map[TopicPartition]struct{}, len(r.index))
	for tp := range r.index {
		set[tp] = struct{}{}
	}
	return set
}

// PartitionStates returns the entries in fetch order. The slice is a copy;
// changing it does not affect the registry.
func (r *Registry[S]) PartitionStates() []PartitionState[S] {
	return slices.Clone(r.list)
}

// PartitionStateValues returns the state values in fetch order.
func (r *Registry[S]) PartitionStateValues() []S {
	values := make([]S, 0, len(r.list))
	for _, p := range r.list {
		values = append(values, p.value)
	}
	return values
}

// StateValue returns tp's state. The bool is false when tp is not tracked.
func (r *Registry[S]) StateValue(tp TopicPartition) (S, bool) {
	v, ok := r.index[tp]
	return v, ok
}

// Each calls fn for every entry in fetch order until fn returns false.
// fn must not mutate the registry.
func (r *Registry[S]) Each(fn func(tp TopicPartition, value S) bool) {
	for _, p := range r.list {
		if !fn(p.tp, p.value) {
			return
		}
	}
}

// Topics returns the distinct topics in the order they first appear in the
// fetch order.
func (r *Registry[S]) Topics() []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, p := range r.list {
		if _, ok := seen[p.tp.Topic]; ok {
			continue
		}
		seen[p.tp.Topic] = struct{}{}
		topics = append(topics, p.tp.Topic)
	}
	return topics
}

// =============================================================================
// BULK REPLACE
// =============================================================================
//
// Set replaces the whole registry with an assignment, batching partitions by
// topic. For topics a, b, c with two partitions each the result looks like:
//
//   a-0 a-1 b-1 b-0 c-0 c-1
//
// Topics are ordered by first appearance in the assignment; partitions keep
// their assignment order inside their topic.
//
// =============================================================================

// Set replaces the registry contents with assignment. Partitions missing
// from assignment are dropped. If any partition is invalid or any state is
// nil, Set fails and the registry keeps its previous contents.
func (r *Registry[S]) Set(assignment *Assignment[S]) error {
	if assignment == nil {
		r.Clear()
		return nil
	}

	groups := make(map[string][]PartitionState[S])
	var topics []string
	for _, p := range assignment.entries {
		if err := p.tp.Validate(); err != nil {
			return err
		}
		if isNil(p.value) {
			return fmt.Errorf("%w: %s", ErrNilState, p.tp)
		}
		if _, ok := groups[p.tp.Topic]; !ok {
			topics = append(topics, p.tp.Topic)
		}
		groups[p.tp.Topic] = append(groups[p.tp.Topic], p)
	}

	list := make([]PartitionState[S], 0, len(assignment.entries))
	index := make(map[TopicPartition]S, len(assignment.entries))
	for _, topic := range topics {
		for _, p := range groups[topic] {
			list = append(list, p)
			index[p.tp] = p.value
		}
	}

	r.list = list
	r.index = index
	return nil
}

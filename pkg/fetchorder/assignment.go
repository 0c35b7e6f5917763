package fetchorder

// Assignment is the complete desired contents of a Registry, in the order
// Set should encounter them.
//
// WHY NOT A PLAIN MAP?
// Go randomizes map iteration, so Set(map) would produce a different
// (still topic-grouped) order on every call. An Assignment makes the input
// order explicit: Put order is the iteration order. AssignmentFromMap takes
// whatever order the map yields, for callers that do not care.
//
// A nil *Assignment reads as empty. The zero value is ready to use.
type Assignment[S any] struct {
	entries []PartitionState[S]
	pos     map[TopicPartition]int
}

// NewAssignment returns an empty Assignment.
func NewAssignment[S any]() *Assignment[S] {
	return &Assignment[S]{pos: make(map[TopicPartition]int)}
}

// AssignmentFromMap builds an Assignment in m's iteration order.
func AssignmentFromMap[S any](m map[TopicPartition]S) *Assignment[S] {
	a := NewAssignment[S]()
	for tp, v := range m {
		a.Put(tp, v)
	}
	return a
}

// Put adds tp with value. Putting a known partition replaces its value and
// keeps its original position.
func (a *Assignment[S]) Put(tp TopicPartition, value S) *Assignment[S] {
	if i, ok := a.pos[tp]; ok {
		a.entries[i] = PartitionState[S]{tp: tp, value: value}
		return a
	}
	if a.pos == nil {
		a.pos = make(map[TopicPartition]int)
	}
	a.pos[tp] = len(a.entries)
	a.entries = append(a.entries, PartitionState[S]{tp: tp, value: value})
	return a
}

// Len returns the number of partitions.
func (a *Assignment[S]) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

// Get returns tp's value.
func (a *Assignment[S]) Get(tp TopicPartition) (S, bool) {
	if a == nil {
		var zero S
		return zero, false
	}
	i, ok := a.pos[tp]
	if !ok {
		var zero S
		return zero, false
	}
	return a.entries[i].value, true
}

// Partitions returns the partitions in Put order.
func (a *Assignment[S]) Partitions() []TopicPartition {
	if a == nil {
		return nil
	}
	tps := make([]TopicPartition, 0, len(a.entries))
	for _, p := range a.entries {
		tps = append(tps, p.tp)
	}
	return tps
}

// =============================================================================
// FETCH SESSION - ROUND-ROBIN FETCH PLANNING OVER A FETCH ORDER REGISTRY
// =============================================================================
//
// WHAT IS THIS?
// The Session is the consumer-side loop state that decides what the next
// fetch asks for. It owns a fetchorder.Registry keyed by partition, whose
// state is the next offset to fetch, and turns it into FetchPlans.
//
// FETCH CYCLE:
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │                                                                         │
//   │   rebalance ──► Assign()          (bulk replace, grouped by topic)      │
//   │                    │                                                    │
//   │                    ▼                                                    │
//   │               ┌─────────┐   Plan()   ┌──────────────────────────┐       │
//   │               │ Session │──────────►│ orders: [0 1]  pay: [0]  │       │
//   │               └─────────┘            └────────────┬─────────────┘       │
//   │                    ▲                              │ fetch (caller)      │
//   │                    │   Served(tp, next) / Skip()  │                     │
//   │                    └──────────────────────────────┘                     │
//   │                                                                         │
//   └─────────────────────────────────────────────────────────────────────────┘
//
//   Served partitions move to the back, so the next plan starts with the
//   ones that did NOT get data this time.
//
// CONCURRENCY:
// The registry itself is single-owner. Session adds a mutex so the HTTP API
// and the fetch loop can share it.
//
// =============================================================================

package fetcher

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"fetchq/internal/metrics"
	"fetchq/pkg/fetchorder"
)

var (
	// ErrNotAssigned is returned when acting on a partition the session
	// does not track.
	ErrNotAssigned = errors.New("partition not assigned")

	// ErrInvalidOffset is returned for negative fetch offsets.
	ErrInvalidOffset = errors.New("invalid fetch offset")
)

// PartitionFetchState is the per-partition state kept in the fetch order.
type PartitionFetchState struct {
	// Offset is the next offset to fetch.
	Offset int64

	// LastFetched is when the partition last returned data. Zero if never.
	LastFetched time.Time

	// FetchCount counts fetches that returned data.
	FetchCount uint64
}

// Config configures a Session.
type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Metrics *metrics.FetchMetrics

	// MaxPartitionsPerRequest caps a plan. 0 means no cap.
	MaxPartitionsPerRequest int
}

// Validate fills defaults and checks limits.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.MaxPartitionsPerRequest < 0 {
		return errors.New("max partitions per request must be >= 0")
	}
	return nil
}

// Session tracks the fetch order of the assigned partitions.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	order *fetchorder.Registry[*PartitionFetchState]
}

// NewSession creates an empty session.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "fetcher"),
		order:  fetchorder.New[*PartitionFetchState](),
	}, nil
}

// =============================================================================
// ASSIGNMENT
// =============================================================================

// Assign replaces the tracked partitions with assignment, each starting at
// its given offset. Partitions already tracked keep their fetch history but
// take the new offset.
func (s *Session) Assign(assignment *fetchorder.Assignment[int64]) error {
	states := fetchorder.NewAssignment[*PartitionFetchState]()
	for _, tp := range assignment.Partitions() {
		if err := tp.Validate(); err != nil {
			return err
		}
		offset, _ := assignment.Get(tp)
		if offset < 0 {
			return fmt.Errorf("%w: %s offset %d", ErrInvalidOffset, tp, offset)
		}
		states.Put(tp, &PartitionFetchState{Offset: offset})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tp := range states.Partitions() {
		prev, ok := s.order.StateValue(tp)
		if !ok {
			continue
		}
		next, _ := states.Get(tp)
		next.LastFetched = prev.LastFetched
		next.FetchCount = prev.FetchCount
	}

	if err := s.order.Set(states); err != nil {
		return err
	}

	s.cfg.Metrics.RecordAssignment(s.order.Size())
	s.logger.Info("assignment updated",
		"partitions", s.order.Size(),
		"topics", s.order.Topics(),
	)
	return nil
}

// AssignMap is Assign for callers that hold a plain map. Topic grouping
// still applies; the order of topics follows map iteration.
func (s *Session) AssignMap(offsets map[fetchorder.TopicPartition]int64) error {
	return s.Assign(fetchorder.AssignmentFromMap(offsets))
}

// Revoke stops tracking tp.
func (s *Session) Revoke(tp fetchorder.TopicPartition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.order.Contains(tp) {
		return false
	}
	s.order.Remove(tp)

	s.cfg.Metrics.RecordRevocation()
	s.cfg.Metrics.SetTrackedPartitions(s.order.Size())
	s.logger.Debug("partition revoked", "partition", tp.String())
	return true
}

// Reset drops every partition.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order.Clear()
	s.cfg.Metrics.SetTrackedPartitions(0)
	s.logger.Info("fetch order cleared")
}

// =============================================================================
// ROTATION
// =============================================================================

// Served records that tp returned data and the next fetch starts at
// nextOffset. tp moves to the back of the order.
func (s *Session) Served(tp fetchorder.TopicPartition, nextOffset int64) error {
	if nextOffset < 0 {
		return fmt.Errorf("%w: %s offset %d", ErrInvalidOffset, tp, nextOffset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.order.StateValue(tp)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAssigned, tp)
	}

	next := &PartitionFetchState{
		Offset:      nextOffset,
		LastFetched: s.cfg.Clock.Now(),
		FetchCount:  prev.FetchCount + 1,
	}
	if err := s.order.UpdateAndMoveToEnd(tp, next); err != nil {
		return err
	}

	s.cfg.Metrics.RecordRotation(metrics.RotationServed)
	return nil
}

// Skip moves tp to the back without changing its state.
func (s *Session) Skip(tp fetchorder.TopicPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.order.Contains(tp) {
		return fmt.Errorf("%w: %s", ErrNotAssigned, tp)
	}
	s.order.MoveToEnd(tp)

	s.cfg.Metrics.RecordRotation(metrics.RotationSkipped)
	return nil
}

// =============================================================================
// READS
// =============================================================================

// PartitionView is a read-only snapshot of one tracked partition.
type PartitionView struct {
	Topic       string    `json:"topic" yaml:"topic"`
	Partition   int32     `json:"partition" yaml:"partition"`
	Offset      int64     `json:"offset" yaml:"offset"`
	LastFetched time.Time `json:"last_fetched,omitempty" yaml:"last_fetched,omitempty"`
	FetchCount  uint64    `json:"fetch_count" yaml:"fetch_count"`
}

func newPartitionView(tp fetchorder.TopicPartition, st *PartitionFetchState) PartitionView {
	return PartitionView{
		Topic:       tp.Topic,
		Partition:   tp.Partition,
		Offset:      st.Offset,
		LastFetched: st.LastFetched,
		FetchCount:  st.FetchCount,
	}
}

// Partitions returns the tracked partitions in fetch order.
func (s *Session) Partitions() []PartitionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]PartitionView, 0, s.order.Size())
	for _, p := range s.order.PartitionStates() {
		views = append(views, newPartitionView(p.TopicPartition(), p.Value()))
	}
	return views
}

// PartitionSet returns the tracked partitions in no particular order.
func (s *Session) PartitionSet() []fetchorder.TopicPartition {
	s.mu.Lock()
	defer s.mu.Unlock()

	tps := make([]fetchorder.TopicPartition, 0, s.order.Size())
	for tp := range s.order.PartitionSet() {
		tps = append(tps, tp)
	}
	return tps
}

// Offsets returns the next fetch offsets in fetch order.
func (s *Session) Offsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	offsets := make([]int64, 0, s.order.Size())
	for _, st := range s.order.PartitionStateValues() {
		offsets = append(offsets, st.Offset)
	}
	return offsets
}

// Position returns tp's state.
func (s *Session) Position(tp fetchorder.TopicPartition) (PartitionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.order.StateValue(tp)
	if !ok {
		return PartitionView{}, false
	}
	return newPartitionView(tp, st), true
}

// Assigned reports whether tp is tracked.
func (s *Session) Assigned(tp fetchorder.TopicPartition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Contains(tp)
}

// Size returns the number of tracked partitions.
func (s *Session) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Size()
}

package routing

import "sync"

// RRKey groups round-robin fairness counters. Two tickets share a counter
// only when they land in the same office with the same segment class,
// category and language.
type RRKey struct {
	Office   string
	Segment  string
	Category string
	Language string
}

// FairnessState owns the two mutable counters of the routing core: the
// fallback-office toggle and the per-key round-robin counters. All access
// goes through the mutex, so a future concurrent pipeline only needs to
// share one state instance. Counters live as long as the state object;
// whether that is a process or a single run is the caller's choice.
type FairnessState struct {
	mu             sync.Mutex
	fallbackToggle int
	rotation       map[RRKey]int
}

func NewFairnessState() *FairnessState {
	return &FairnessState{rotation: map[RRKey]int{}}
}

// Reset clears the fallback toggle and every rotation counter. Used by
// deployments that want fairness scoped to a single run.
func (s *FairnessState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbackToggle = 0
	s.rotation = map[RRKey]int{}
}

// NextFallback returns the index of the fallback office to use and advances
// the toggle. Consecutive calls alternate strictly over n offices.
func (s *FairnessState) NextFallback(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.fallbackToggle % n
	s.fallbackToggle++
	return idx
}

// NextPick returns the position to pick from a candidate pool of the given
// size for the given key, and advances that key's counter.
func (s *FairnessState) NextPick(key RRKey, poolSize int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.rotation[key] % poolSize
	s.rotation[key]++
	return idx
}

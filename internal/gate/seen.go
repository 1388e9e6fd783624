package gate

// seenSet is a bounded set of processed event ids with FIFO eviction. The
// caller holds the gate mutex; no internal locking.
type seenSet struct {
	ids   map[string]struct{}
	order []string
	cap   int
	next  int
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &seenSet{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
		cap:   capacity,
	}
}

func (s *seenSet) has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) add(id string) {
	if s.has(id) {
		return
	}
	if evicted := s.order[s.next]; evicted != "" {
		delete(s.ids, evicted)
	}
	s.order[s.next] = id
	s.next = (s.next + 1) % s.cap
	s.ids[id] = struct{}{}
}

package store

import "sync"

// subscribers is the shared fan-out used by both stores. Listeners are
// invoked synchronously, outside the store's state lock, after a merge
// has been applied atomically. A listener registered with add receives
// every future change until its cancel func runs.
type subscribers[T any] struct {
	mu   sync.Mutex
	next int
	m    map[int]func(T)
}

func (s *subscribers[T]) add(fn func(T)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.m[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.m, id)
		s.mu.Unlock()
	}
}

func (s *subscribers[T]) notify(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.m))
	for _, fn := range s.m {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

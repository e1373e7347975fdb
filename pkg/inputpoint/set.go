package inputpoint

import (
	"slices"
	"sync"
)

// Set collects input points from concurrent producers. Add is an atomic
// insert-if-absent keyed by the set's KeyFunc.
type Set struct {
	key KeyFunc

	mu    sync.Mutex
	items map[string]InputPoint
	order []string
}

// NewSet returns an empty set. A nil key uses KeyURLMethod.
func NewSet(key KeyFunc) *Set {
	if key == nil {
		key = KeyURLMethod
	}
	return &Set{key: key, items: make(map[string]InputPoint)}
}

// Add stores ip unless a point with the same key exists. It reports
// whether ip was stored.
func (s *Set) Add(ip InputPoint) bool {
	k := s.key(ip)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = ip.Clone()
	s.order = append(s.order, k)
	return true
}

// Len returns the number of distinct points.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// HasMethod reports whether any stored point uses m.
func (s *Set) HasMethod(m Method) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ip := range s.items {
		if ip.Method == m {
			return true
		}
	}
	return false
}

// Items returns the points sorted by key.
func (s *Set) Items() []InputPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := slices.Clone(s.order)
	slices.Sort(keys)
	out := make([]InputPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.items[k].Clone())
	}
	return out
}

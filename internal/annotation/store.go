package annotation

import (
	"sort"
	"sync"
)

// Store persists annotations.
type Store interface {
	// Save records a for its page, replacing any annotation with the same ID.
	Save(a Annotation) error

	// ForPage returns the annotations of page in creation order.
	ForPage(page int) []Annotation

	// Delete removes the annotation with id. It reports whether one existed.
	Delete(id string) bool
}

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	byPage map[int][]Annotation
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byPage: make(map[int][]Annotation)}
}

// Save implements Store.
func (s *MemoryStore) Save(a Annotation) error {
	if len(a.Rects) == 0 {
		return ErrNoRects
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(a.ID)
	s.byPage[a.Page] = append(s.byPage[a.Page], a)
	return nil
}

// ForPage implements Store. The returned slice is a copy.
func (s *MemoryStore) ForPage(page int) []Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	as := s.byPage[page]
	if len(as) == 0 {
		return nil
	}
	out := make([]Annotation, len(as))
	copy(out, as)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Delete implements Store.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

// Len returns the number of stored annotations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, as := range s.byPage {
		n += len(as)
	}
	return n
}

func (s *MemoryStore) deleteLocked(id string) bool {
	for page, as := range s.byPage {
		for i, a := range as {
			if a.ID != id {
				continue
			}
			as = append(as[:i], as[i+1:]...)
			if len(as) == 0 {
				delete(s.byPage, page)
			} else {
				s.byPage[page] = as
			}
			return true
		}
	}
	return false
}

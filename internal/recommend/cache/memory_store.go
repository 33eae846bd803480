package cache

import (
	"container/list"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const defaultMaxEntries = 2048

type memEntry struct {
	key     string
	value   []byte
	tags    []string
	expires time.Time
	element *list.Element
}

// MemoryStore is an in-process LRU with per-entry TTL and a tag index.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*memEntry
	tags     map[string]map[string]struct{}
	order    *list.List
	now      func() time.Time
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMaxEntries
	}
	return &MemoryStore{
		capacity: capacity,
		items:    make(map[string]*memEntry, capacity),
		tags:     make(map[string]map[string]struct{}),
		order:    list.New(),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if !ent.expires.IsZero() && !s.now().Before(ent.expires) {
		s.removeEntry(ent)
		return nil, false, nil
	}
	s.order.MoveToFront(ent.element)
	return ent.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.items[key]; ok {
		s.removeEntry(ent)
	}
	if len(s.items) >= s.capacity {
		s.evictOldest()
	}

	ent := &memEntry{key: key, value: value, tags: append([]string(nil), tags...)}
	if ttl > 0 {
		ent.expires = s.now().Add(ttl)
	}
	ent.element = s.order.PushFront(key)
	s.items[key] = ent
	for _, t := range ent.tags {
		set, ok := s.tags[t]
		if !ok {
			set = make(map[string]struct{})
			s.tags[t] = set
		}
		set[key] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) InvalidateTag(_ context.Context, tag string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.tags[tag] {
		if ent, ok := s.items[key]; ok {
			s.removeEntry(ent)
			n++
		}
	}
	delete(s.tags, tag)
	return n, nil
}

// IncrBy stores counters as decimal text, the same representation redis uses, so Get
// reads them back the same way on both stores.
func (s *MemoryStore) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur int64
	var tags []string
	if ent, ok := s.items[key]; ok {
		if ent.expires.IsZero() || s.now().Before(ent.expires) {
			v, err := strconv.ParseInt(string(ent.value), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("memory incrby %s: value is not an integer", key)
			}
			cur = v
			tags = ent.tags
		}
		s.removeEntry(ent)
	}
	if len(s.items) >= s.capacity {
		s.evictOldest()
	}
	cur += delta
	ent := &memEntry{key: key, value: []byte(strconv.FormatInt(cur, 10)), tags: tags}
	if ttl > 0 {
		ent.expires = s.now().Add(ttl)
	}
	ent.element = s.order.PushFront(key)
	s.items[key] = ent
	for _, t := range tags {
		if s.tags[t] == nil {
			s.tags[t] = make(map[string]struct{})
		}
		s.tags[t][key] = struct{}{}
	}
	return cur, nil
}

// Len reports live and not-yet-swept entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) evictOldest() {
	elem := s.order.Back()
	if elem == nil {
		return
	}
	if ent, ok := s.items[elem.Value.(string)]; ok {
		s.removeEntry(ent)
	}
}

func (s *MemoryStore) removeEntry(ent *memEntry) {
	if ent.element != nil {
		s.order.Remove(ent.element)
	}
	delete(s.items, ent.key)
	for _, t := range ent.tags {
		if set, ok := s.tags[t]; ok {
			delete(set, ent.key)
			if len(set) == 0 {
				delete(s.tags, t)
			}
		}
	}
}

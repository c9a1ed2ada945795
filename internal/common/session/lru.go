package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/metrics"
)

type lruEntry struct {
	sc        *Context
	expiresAt time.Time
}

// LRUStore keeps at most maxSessions contexts in process, evicting the
// least recently used one and hiding entries older than ttl.
type LRUStore struct {
	mu          sync.Mutex
	maxSessions int
	ttl         time.Duration
	ll          *list.List
	items       map[string]*list.Element
	now         func() time.Time
}

func NewLRUStore(maxSessions int, ttl time.Duration) *LRUStore {
	if maxSessions <= 0 {
		maxSessions = 256
	}
	return &LRUStore{
		maxSessions: maxSessions,
		ttl:         ttl,
		ll:          list.New(),
		items:       make(map[string]*list.Element),
		now:         time.Now,
	}
}

func (s *LRUStore) Get(_ context.Context, id string) (*Context, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*lruEntry)
	if s.ttl > 0 && s.now().After(entry.expiresAt) {
		s.removeElement(el)
		return nil, false, nil
	}
	s.ll.MoveToFront(el)
	return entry.sc.clone(), true, nil
}

func (s *LRUStore) Put(_ context.Context, sc *Context) error {
	if sc == nil || sc.SessionID == "" {
		return errors.NewSessionStoreError("put", errors.NewValidationError("session_id", "session id is empty"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := sc.clone()
	stored.UpdatedAt = now
	entry := &lruEntry{sc: stored, expiresAt: now.Add(s.ttl)}

	if el, ok := s.items[sc.SessionID]; ok {
		el.Value = entry
		s.ll.MoveToFront(el)
	} else {
		s.items[sc.SessionID] = s.ll.PushFront(entry)
	}

	for s.ll.Len() > s.maxSessions {
		s.removeElement(s.ll.Back())
	}
	metrics.SessionContexts.WithLabelValues("memory").Set(float64(s.ll.Len()))
	return nil
}

func (s *LRUStore) Update(_ context.Context, id string, fn func(*Context)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		return false, nil
	}
	entry := el.Value.(*lruEntry)
	now := s.now()
	if s.ttl > 0 && now.After(entry.expiresAt) {
		s.removeElement(el)
		return false, nil
	}

	updated := entry.sc.clone()
	fn(updated)
	updated.SessionID = id
	updated.UpdatedAt = now
	el.Value = &lruEntry{sc: updated, expiresAt: now.Add(s.ttl)}
	s.ll.MoveToFront(el)
	return true, nil
}

func (s *LRUStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[id]; ok {
		s.removeElement(el)
	}
	return nil
}

// Len reports the number of stored contexts, expired ones included.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

func (s *LRUStore) removeElement(el *list.Element) {
	s.ll.Remove(el)
	delete(s.items, el.Value.(*lruEntry).sc.SessionID)
	metrics.SessionContexts.WithLabelValues("memory").Set(float64(s.ll.Len()))
}

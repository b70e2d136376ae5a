package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 与 RedisStore 同语义的进程内实现，单机部署和单测用。
// Clock 可注入（单测用）；nil => time.Now
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]*memoryDoc
	Clock func() time.Time
}

type memoryDoc struct {
	version  uint64
	members  []Entry
	expireAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memoryDoc)}
}

func (s *MemoryStore) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// live 取未过期文档；过期即删，模拟 redis 的被动过期
func (s *MemoryStore) live(contentID string) *memoryDoc {
	doc, ok := s.docs[contentID]
	if !ok {
		return nil
	}
	if !doc.expireAt.IsZero() && !s.now().Before(doc.expireAt) {
		delete(s.docs, contentID)
		return nil
	}
	return doc
}

func (s *MemoryStore) Get(_ context.Context, contentID string) (State, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.live(contentID)
	if doc == nil {
		return State{}, 0, nil
	}
	members := make([]Entry, len(doc.members))
	copy(members, doc.members)
	return State{Members: members}, doc.version, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, contentID string, expected uint64, st State, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.live(contentID)
	if doc == nil {
		if expected != 0 {
			return false, nil
		}
		doc = &memoryDoc{}
		s.docs[contentID] = doc
	} else if doc.version != expected {
		return false, nil
	}
	doc.version = expected + 1
	doc.members = make([]Entry, len(st.Members))
	copy(doc.members, st.Members)
	doc.expireAt = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, contentID string, expected uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.live(contentID)
	if doc == nil {
		return expected == 0, nil
	}
	if doc.version != expected {
		return false, nil
	}
	delete(s.docs, contentID)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, contentID)
	return nil
}

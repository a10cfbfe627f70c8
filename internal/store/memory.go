package store

import (
	"context"
	"sync"
)

// MemoryStore keeps room records in process memory. Overlays do not
// survive a restart; useful for tests and throwaway setups.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]RoomRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]RoomRecord)}
}

func (s *MemoryStore) GetRoom(_ context.Context, room string) (*RoomRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[room]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) PutRoom(_ context.Context, rec *RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[rec.Room] = *rec
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
	return nil
}

func (s *MemoryStore) ListRooms(_ context.Context) ([]*RoomRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RoomRecord, 0, len(s.rooms))
	for _, rec := range s.rooms {
		r := rec
		out = append(out, &r)
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)

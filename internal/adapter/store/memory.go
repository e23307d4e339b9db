package store

import (
	"context"
	"sync"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// MemoryStore is an in-process Storer for tests and single-node development.
type MemoryStore struct {
	mu          sync.Mutex
	connections map[string]model.ConnectionRecord
	rooms       map[string]map[string]struct{}
	counters    map[string]map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections: make(map[string]model.ConnectionRecord),
		rooms:       make(map[string]map[string]struct{}),
		counters:    make(map[string]map[string]int64),
	}
}

func (s *MemoryStore) SaveConnection(_ context.Context, rec model.ConnectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[rec.ConnectionID] = rec
	return nil
}

func (s *MemoryStore) DeleteConnection(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, connectionID)
	return nil
}

func (s *MemoryStore) AddRoomMember(_ context.Context, roomID, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[roomID] == nil {
		s.rooms[roomID] = make(map[string]struct{})
	}
	s.rooms[roomID][connectionID] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveRoomMember(_ context.Context, roomID, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members := s.rooms[roomID]; members != nil {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(s.rooms, roomID)
		}
	}
	return nil
}

func (s *MemoryStore) RoomMembers(_ context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]string, 0, len(s.rooms[roomID]))
	for id := range s.rooms[roomID] {
		members = append(members, id)
	}
	return members, nil
}

func (s *MemoryStore) IncrCounter(_ context.Context, key, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[key] == nil {
		s.counters[key] = make(map[string]int64)
	}
	s.counters[key][field] += delta
	return nil
}

// Connection returns the saved record, for test assertions.
func (s *MemoryStore) Connection(connectionID string) (model.ConnectionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.connections[connectionID]
	return rec, ok
}

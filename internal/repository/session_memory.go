package repository

import (
	"context"
	"sync"
	"time"

	"damdam/internal/model"
)

// MemorySessionStore is the in-process SessionStore. It backs tests and
// single-node runs without Redis, mirroring the local/OSS duality of the
// blob storage layer.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	logs     map[string][]model.ChatRecord
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]model.Session),
		logs:     make(map[string][]model.ChatRecord),
	}
}

// Get returns the session for a room.
func (s *MemorySessionStore) Get(ctx context.Context, roomID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[roomID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := session
	return &copied, nil
}

// CreateIfAbsent returns the existing session or initializes a new one.
func (s *MemorySessionStore) CreateIfAbsent(ctx context.Context, roomID, userID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[roomID]; ok {
		copied := session
		return &copied, nil
	}

	session := model.Session{
		RoomID:      roomID,
		UserID:      userID,
		TokenBudget: model.DefaultTokenBudget,
		CreatedAt:   time.Now().UTC(),
	}
	s.sessions[roomID] = session
	s.logs[roomID] = make([]model.ChatRecord, 0, 16)

	copied := session
	return &copied, nil
}

// Save overwrites the session record.
func (s *MemorySessionStore) Save(ctx context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.RoomID] = *session
	return nil
}

// AppendRecord appends to the room's log.
func (s *MemorySessionStore) AppendRecord(ctx context.Context, roomID string, record model.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[roomID] = append(s.logs[roomID], record)
	return nil
}

// PatchEmotion sets the emotion of the matching record in place.
func (s *MemorySessionStore) PatchEmotion(ctx context.Context, roomID string, order int, sender model.Sender, emotion model.EmotionVector) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[roomID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].MessageOrder == order && log[i].Sender == sender {
			e := emotion
			log[i].Emotion = &e
			return true, nil
		}
	}
	return false, nil
}

// ReadAll returns a copy of the room's log in append order.
func (s *MemorySessionStore) ReadAll(ctx context.Context, roomID string) ([]model.ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[roomID]
	records := make([]model.ChatRecord, len(log))
	copy(records, log)
	for i := range records {
		if err := records[i].Emotion.Validate(); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// DeleteRoom removes the session and its log.
func (s *MemorySessionStore) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, roomID)
	delete(s.logs, roomID)
	return nil
}

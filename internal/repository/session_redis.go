package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"damdam/internal/model"
	"damdam/internal/pkg/cache"
)

// RedisSessionStore keeps live sessions and message logs in Redis:
// one JSON value per session, one list per room log.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore wraps an established Redis connection.
func NewRedisSessionStore(rc *cache.RedisCache) *RedisSessionStore {
	return &RedisSessionStore{client: rc.Client()}
}

// Get returns the session for a room.
func (s *RedisSessionStore) Get(ctx context.Context, roomID string) (*model.Session, error) {
	data, err := s.client.Get(ctx, cache.SessionKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if err := session.LastEmotion.Validate(); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateIfAbsent returns the existing session or initializes a new one.
// SetNX keeps concurrent first messages from double-initializing.
func (s *RedisSessionStore) CreateIfAbsent(ctx context.Context, roomID, userID string) (*model.Session, error) {
	fresh := &model.Session{
		RoomID:      roomID,
		UserID:      userID,
		TokenBudget: model.DefaultTokenBudget,
		CreatedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	set, err := s.client.SetNX(ctx, cache.SessionKey(roomID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if set {
		return fresh, nil
	}
	return s.Get(ctx, roomID)
}

// Save overwrites the session record.
func (s *RedisSessionStore) Save(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, cache.SessionKey(session.RoomID), data, 0).Err()
}

// AppendRecord pushes a record onto the room's log.
func (s *RedisSessionStore) AppendRecord(ctx context.Context, roomID string, record model.ChatRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.client.RPush(ctx, cache.MessagesKey(roomID), data).Err()
}

// PatchEmotion rewrites the matching record with its emotion set. The
// list is scanned newest-first: voice correlation targets recent entries.
func (s *RedisSessionStore) PatchEmotion(ctx context.Context, roomID string, order int, sender model.Sender, emotion model.EmotionVector) (bool, error) {
	key := cache.MessagesKey(roomID)

	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("read log: %w", err)
	}

	for i := len(raw) - 1; i >= 0; i-- {
		var record model.ChatRecord
		if err := json.Unmarshal([]byte(raw[i]), &record); err != nil {
			return false, fmt.Errorf("decode record: %w", err)
		}
		if record.MessageOrder != order || record.Sender != sender {
			continue
		}

		record.Emotion = &emotion
		data, err := json.Marshal(record)
		if err != nil {
			return false, fmt.Errorf("encode record: %w", err)
		}
		if err := s.client.LSet(ctx, key, int64(i), data).Err(); err != nil {
			return false, fmt.Errorf("patch record: %w", err)
		}
		return true, nil
	}

	return false, nil
}

// ReadAll returns the room's log in append order.
func (s *RedisSessionStore) ReadAll(ctx context.Context, roomID string) ([]model.ChatRecord, error) {
	raw, err := s.client.LRange(ctx, cache.MessagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	records := make([]model.ChatRecord, 0, len(raw))
	for _, item := range raw {
		var record model.ChatRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		if err := record.Emotion.Validate(); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// DeleteRoom removes the session and its log.
func (s *RedisSessionStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, cache.SessionKey(roomID), cache.MessagesKey(roomID)).Err()
}

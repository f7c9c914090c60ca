package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"damdam/internal/ai"
	"damdam/internal/broadcast"
	"damdam/internal/model"
	"damdam/internal/repository"
)

var (
	// ErrMessageNotFound means a voice analysis request referenced a
	// message order with no matching user record in the room.
	ErrMessageNotFound = errors.New("message not found")

	// ErrMessageResolved means the voice message at that order was
	// already resolved; resolving twice would duplicate the AI reply
	// and spend the budget twice.
	ErrMessageResolved = errors.New("voice message already resolved")
)

// FallbackReply is emitted when reply generation fails. The conversation
// must never stall silently from the user's side.
const FallbackReply = "I'm sorry, I couldn't put together a proper reply just now. " +
	"I'm still here with you. Could you tell me a bit more about how you're feeling?"

// CounselService orchestrates the realtime counseling pipeline: it owns
// message ordering, the token budget, the analyze/generate chain, and
// session close/archive.
//
// Processing within one room is serialized by a per-room mutex held for
// the whole exchange; that is what keeps message orders gapless and the
// log free of interleaving. Distinct rooms proceed concurrently.
type CounselService struct {
	store   repository.SessionStore
	archive repository.TranscriptArchive
	users   repository.UserContextProvider
	gateway ai.Gateway
	hub     *broadcast.Hub

	mu    sync.Mutex
	rooms map[string]*sync.Mutex
}

// NewCounselService wires the orchestrator.
func NewCounselService(
	store repository.SessionStore,
	archive repository.TranscriptArchive,
	users repository.UserContextProvider,
	gateway ai.Gateway,
	hub *broadcast.Hub,
) *CounselService {
	return &CounselService{
		store:   store,
		archive: archive,
		users:   users,
		gateway: gateway,
		hub:     hub,
		rooms:   make(map[string]*sync.Mutex),
	}
}

// roomLock returns the serialization point for a room.
func (s *CounselService) roomLock(roomID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.rooms[roomID]
	if !ok {
		lock = &sync.Mutex{}
		s.rooms[roomID] = lock
	}
	return lock
}

// HandleTextMessage runs one full text exchange: append the user record,
// classify its emotion, generate the counselor reply, append the AI
// record at the same order, spend one token, and broadcast both events.
//
// The session is created lazily on the first message of a room.
func (s *CounselService) HandleTextMessage(ctx context.Context, roomID, userID, content string) (model.OutboundEvent, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.CreateIfAbsent(ctx, roomID, userID)
	if err != nil {
		return model.OutboundEvent{}, fmt.Errorf("load session: %w", err)
	}

	order := session.LastMessageOrder + 1
	now := time.Now().UTC()

	userRecord := model.ChatRecord{
		Sender:       model.SenderUser,
		MessageOrder: order,
		Content:      content,
		Timestamp:    now,
	}
	if err := s.store.AppendRecord(ctx, roomID, userRecord); err != nil {
		return model.OutboundEvent{}, fmt.Errorf("append user record: %w", err)
	}

	// The consumed order must be durable before anything else can fail:
	// a retried exchange has to claim a fresh order, never reuse one
	// that already has a user record.
	session.LastMessageOrder = order
	if err := s.store.Save(ctx, session); err != nil {
		return model.OutboundEvent{}, fmt.Errorf("save session: %w", err)
	}

	s.hub.Publish(roomID, model.OutboundEvent{
		Sender:       model.SenderUser,
		Message:      content,
		Timestamp:    now,
		TokenCount:   session.TokenBudget,
		MessageOrder: order,
	})

	// Emotion analysis failure is tolerable: the exchange proceeds with
	// no emotion rather than losing the user's message.
	var emotion *model.EmotionVector
	if vec, err := s.gateway.AnalyzeText(ctx, content); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("text emotion analysis failed")
	} else {
		emotion = &vec
		found, err := s.store.PatchEmotion(ctx, roomID, order, model.SenderUser, vec)
		if err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("failed to patch user emotion")
		} else if !found {
			log.Warn().
				Str("room_id", roomID).
				Int("message_order", order).
				Msg("user record missing for emotion patch")
		}
	}

	return s.completeExchange(ctx, session, order, content, emotion)
}

// HandleVoicePlaceholder records an inbound voice message. The record
// carries the audio reference as content and no emotion yet; analysis
// and the counselor reply follow through HandleVoiceMessage once the
// client finishes uploading.
func (s *CounselService) HandleVoicePlaceholder(ctx context.Context, roomID, userID, audioRef string) (int, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.CreateIfAbsent(ctx, roomID, userID)
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}

	order := session.LastMessageOrder + 1
	now := time.Now().UTC()

	record := model.ChatRecord{
		Sender:       model.SenderUser,
		IsVoice:      true,
		MessageOrder: order,
		Content:      audioRef,
		Timestamp:    now,
	}
	if err := s.store.AppendRecord(ctx, roomID, record); err != nil {
		return 0, fmt.Errorf("append voice record: %w", err)
	}

	session.LastMessageOrder = order
	if err := s.store.Save(ctx, session); err != nil {
		return 0, fmt.Errorf("save session: %w", err)
	}

	s.hub.Publish(roomID, model.OutboundEvent{
		Sender:       model.SenderUser,
		Message:      audioRef,
		Timestamp:    now,
		TokenCount:   session.TokenBudget,
		MessageOrder: order,
	})

	return order, nil
}

// HandleVoiceMessage resolves a previously recorded voice placeholder:
// it classifies the audio, patches the placeholder's emotion in place,
// and completes the exchange with a counselor reply.
//
// The placeholder must already exist; a missing match is the caller's
// error, not something to retry. A placeholder whose exchange already
// completed is rejected so duplicate resolution calls cannot append a
// second reply or spend the budget again.
func (s *CounselService) HandleVoiceMessage(ctx context.Context, roomID, userID string, messageOrder int, audioRef string) (model.OutboundEvent, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.Get(ctx, roomID)
	if err != nil {
		return model.OutboundEvent{}, err
	}

	placeholder, resolved, err := s.findUserRecord(ctx, roomID, messageOrder)
	if err != nil {
		return model.OutboundEvent{}, err
	}
	if resolved || placeholder.Emotion != nil {
		return model.OutboundEvent{}, ErrMessageResolved
	}

	// Single attempt: a failed audio analysis leaves the emotion null
	// and is reported, never queued for retry.
	var emotion *model.EmotionVector
	if vec, err := s.gateway.AnalyzeAudio(ctx, audioRef); err != nil {
		log.Warn().Err(err).
			Str("room_id", roomID).
			Int("message_order", messageOrder).
			Msg("audio emotion analysis failed, emotion stays empty")
	} else {
		emotion = &vec
		found, err := s.store.PatchEmotion(ctx, roomID, messageOrder, model.SenderUser, vec)
		if err != nil {
			return model.OutboundEvent{}, fmt.Errorf("patch emotion: %w", err)
		}
		if !found {
			return model.OutboundEvent{}, ErrMessageNotFound
		}
	}

	return s.completeExchange(ctx, session, messageOrder, placeholder.Content, emotion)
}

// completeExchange generates the counselor reply, appends the AI record
// at the exchange's order, spends one token, persists the session and
// broadcasts the AI event. Callers hold the room lock.
func (s *CounselService) completeExchange(ctx context.Context, session *model.Session, order int, message string, emotion *model.EmotionVector) (model.OutboundEvent, error) {
	roomID := session.RoomID

	userCtx, err := s.users.Lookup(ctx, session.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", session.UserID).Msg("user context lookup failed, using empty context")
		userCtx = model.UserContext{}
	}

	reply, err := s.gateway.GenerateReply(ctx, userCtx, message, emotion)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("reply generation failed, sending fallback")
		reply = FallbackReply
	}

	now := time.Now().UTC()
	aiRecord := model.ChatRecord{
		Sender:       model.SenderAI,
		MessageOrder: order,
		Content:      reply,
		Timestamp:    now,
	}
	if err := s.store.AppendRecord(ctx, roomID, aiRecord); err != nil {
		return model.OutboundEvent{}, fmt.Errorf("append ai record: %w", err)
	}

	if order > session.LastMessageOrder {
		session.LastMessageOrder = order
	}
	session.DecrementToken()
	if emotion != nil {
		session.LastEmotion = emotion
	}
	if err := s.store.Save(ctx, session); err != nil {
		return model.OutboundEvent{}, fmt.Errorf("save session: %w", err)
	}

	event := model.OutboundEvent{
		Sender:       model.SenderAI,
		Message:      reply,
		Timestamp:    now,
		TokenCount:   session.TokenBudget,
		MessageOrder: order,
	}
	s.hub.Publish(roomID, event)

	log.Info().
		Str("room_id", roomID).
		Int("message_order", order).
		Int("token_budget", session.TokenBudget).
		Msg("exchange completed")

	return event, nil
}

// findUserRecord locates the user record at the given order and reports
// whether that exchange already has an AI reply.
func (s *CounselService) findUserRecord(ctx context.Context, roomID string, order int) (*model.ChatRecord, bool, error) {
	records, err := s.store.ReadAll(ctx, roomID)
	if err != nil {
		return nil, false, fmt.Errorf("read log: %w", err)
	}

	var userRecord *model.ChatRecord
	replied := false
	for i := range records {
		if records[i].MessageOrder != order {
			continue
		}
		switch records[i].Sender {
		case model.SenderUser:
			record := records[i]
			userRecord = &record
		case model.SenderAI:
			replied = true
		}
	}
	if userRecord == nil {
		return nil, false, ErrMessageNotFound
	}
	return userRecord, replied, nil
}

// CloseSession freezes a room, summarizes its transcript, archives it
// and clears the live state. Idempotent: a room that was archived
// before returns its existing reference without invoking the
// summarizer again, and a close that failed half-way can be retried
// without losing data because the live state is only deleted after the
// archive write is confirmed.
func (s *CounselService) CloseSession(ctx context.Context, roomID string) (string, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.Get(ctx, roomID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		// Already closed: the archive is the source of truth.
		ref, archiveErr := s.archive.FindByRoom(ctx, roomID)
		if archiveErr == nil {
			return ref, nil
		}
		return "", repository.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	// A previous close may have archived and then failed to clear the
	// store. Finish the cleanup instead of summarizing twice. This also
	// covers a room reopened after its close: the archive keeps the
	// first transcript, so live records accumulated since then are
	// dropped, not merged.
	if ref, err := s.archive.FindByRoom(ctx, roomID); err == nil {
		if records, readErr := s.store.ReadAll(ctx, roomID); readErr == nil && len(records) > 0 {
			log.Warn().
				Str("room_id", roomID).
				Str("archive_ref", ref).
				Int("records", len(records)).
				Msg("room already archived, discarding unarchived live records")
		}
		if err := s.store.DeleteRoom(ctx, roomID); err != nil {
			return "", fmt.Errorf("clear session store: %w", err)
		}
		return ref, nil
	}

	records, err := s.store.ReadAll(ctx, roomID)
	if err != nil {
		return "", fmt.Errorf("read log: %w", err)
	}

	summary, err := s.gateway.Summarize(ctx, roomID, records)
	if err != nil {
		// The session stays open and retriable.
		return "", fmt.Errorf("summarize session: %w", err)
	}

	ref, err := s.archive.Write(ctx, &model.Transcript{
		RoomID:  roomID,
		UserID:  session.UserID,
		Records: records,
		Summary: summary,
	})
	if err != nil {
		// Live data is kept until the archive write is confirmed.
		return "", fmt.Errorf("archive transcript: %w", err)
	}

	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return "", fmt.Errorf("clear session store: %w", err)
	}

	log.Info().
		Str("room_id", roomID).
		Str("archive_ref", ref).
		Int("records", len(records)).
		Msg("session closed and archived")

	return ref, nil
}

// DeleteSession discards a room's live state without archiving.
func (s *CounselService) DeleteSession(ctx context.Context, roomID string) error {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.store.Get(ctx, roomID); err != nil {
		return err
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	log.Info().Str("room_id", roomID).Msg("session discarded without archive")
	return nil
}

// GetTranscript reads back the archived transcript of a closed room.
func (s *CounselService) GetTranscript(ctx context.Context, roomID string) (*model.Transcript, error) {
	ref, err := s.archive.FindByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.archive.Read(ctx, ref)
}

package model

import (
	"errors"
	"time"
)

// Sender identifies who produced a chat record.
type Sender string

const (
	SenderUser Sender = "USER"
	SenderAI   Sender = "AI"
)

// DefaultTokenBudget is the per-session message budget. It is decremented
// once per accepted user message and surfaced to clients; running out is
// a UI signal, not a hard stop.
const DefaultTokenBudget = 20

// ErrMalformedEmotion is returned when an emotion blob read back from the
// store does not validate as an EmotionVector.
var ErrMalformedEmotion = errors.New("malformed emotion vector")

// EmotionVector holds the five emotion scores produced by analysis,
// each 0~100. The pipeline stores and forwards it without interpreting.
type EmotionVector struct {
	Happiness int `json:"happiness" bson:"happiness"`
	Sadness   int `json:"sadness" bson:"sadness"`
	Angry     int `json:"angry" bson:"angry"`
	Neutral   int `json:"neutral" bson:"neutral"`
	Other     int `json:"other" bson:"other"`
}

// Validate rejects vectors with negative scores. Stored blobs are
// validated on read instead of silently coerced.
func (e *EmotionVector) Validate() error {
	if e == nil {
		return nil
	}
	if e.Happiness < 0 || e.Sadness < 0 || e.Angry < 0 || e.Neutral < 0 || e.Other < 0 {
		return ErrMalformedEmotion
	}
	return nil
}

// Session is the ephemeral live state of one open counseling room.
// Created lazily on the first message, deleted on close.
type Session struct {
	RoomID           string         `json:"room_id"`
	UserID           string         `json:"user_id"`
	TokenBudget      int            `json:"token_budget"`
	LastMessageOrder int            `json:"last_message_order"`
	LastEmotion      *EmotionVector `json:"last_emotion,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// DecrementToken spends one token. Never goes below zero.
func (s *Session) DecrementToken() {
	if s.TokenBudget > 0 {
		s.TokenBudget--
	}
}

// ChatRecord is one persisted message in a room's ordered log.
// Emotion is the only field patched after append: audio analysis
// finishes long after the voice placeholder is recorded.
type ChatRecord struct {
	Sender       Sender         `json:"sender" bson:"sender"`
	IsVoice      bool           `json:"is_voice" bson:"is_voice"`
	MessageOrder int            `json:"message_order" bson:"message_order"`
	Content      string         `json:"content" bson:"content"`
	Timestamp    time.Time      `json:"timestamp" bson:"timestamp"`
	Emotion      *EmotionVector `json:"emotion,omitempty" bson:"emotion,omitempty"`
}

// OutboundEvent is what subscribers of a room receive. Emotion scores
// stay out of the live feed; they belong to the archived record.
type OutboundEvent struct {
	Sender       Sender    `json:"sender"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	TokenCount   int       `json:"tokenCount"`
	MessageOrder int       `json:"messageOrder"`
}

// Summary is the session-level report produced on close.
// Field names follow the report service wire format.
type Summary struct {
	Summary string `json:"summary" bson:"summary"`
	Analyse string `json:"analyse" bson:"analyse"`
	Arousal string `json:"arousal" bson:"arousal"`
	Valence string `json:"valence" bson:"valence"`
}

// Transcript is the immutable archived form of a closed session.
type Transcript struct {
	RoomID    string       `json:"room_id" bson:"room_id"`
	UserID    string       `json:"user_id" bson:"user_id"`
	Records   []ChatRecord `json:"records" bson:"records"`
	Summary   Summary      `json:"summary" bson:"summary"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at"`
}

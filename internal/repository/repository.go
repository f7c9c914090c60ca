package repository

import (
	"context"
	"errors"

	"damdam/internal/model"
)

var (
	// ErrSessionNotFound means no live session exists for the room.
	ErrSessionNotFound = errors.New("session not found")
	// ErrArchiveNotFound means no archived transcript matches the reference.
	ErrArchiveNotFound = errors.New("archive not found")
	// ErrUserContextNotFound means the user has no stored profile snapshot.
	ErrUserContextNotFound = errors.New("user context not found")
)

// SessionStore holds live per-room session state and the ordered message
// log. Implementations must be safe for concurrent use across rooms;
// within one room the orchestrator serializes callers.
type SessionStore interface {
	// Get returns the session for a room, or ErrSessionNotFound.
	Get(ctx context.Context, roomID string) (*model.Session, error)

	// CreateIfAbsent returns the existing session or creates a fresh one
	// with the default token budget.
	CreateIfAbsent(ctx context.Context, roomID, userID string) (*model.Session, error)

	// Save overwrites the session record.
	Save(ctx context.Context, session *model.Session) error

	// AppendRecord appends a record to the room's ordered log.
	AppendRecord(ctx context.Context, roomID string, record model.ChatRecord) error

	// PatchEmotion sets the emotion of the record matching (order, sender)
	// in place. Returns false when no record matches.
	PatchEmotion(ctx context.Context, roomID string, order int, sender model.Sender, emotion model.EmotionVector) (bool, error)

	// ReadAll returns the room's log in append order. Stored emotion
	// blobs that fail validation surface model.ErrMalformedEmotion.
	ReadAll(ctx context.Context, roomID string) ([]model.ChatRecord, error)

	// DeleteRoom removes the session and its log.
	DeleteRoom(ctx context.Context, roomID string) error
}

// TranscriptArchive persists closed sessions. Write is insert-once per
// room: a second write for the same room returns the first reference.
type TranscriptArchive interface {
	Write(ctx context.Context, transcript *model.Transcript) (string, error)
	Read(ctx context.Context, ref string) (*model.Transcript, error)
	FindByRoom(ctx context.Context, roomID string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// UserContextProvider looks up the profile/survey snapshot that
// accompanies reply generation. Missing users yield an empty context.
type UserContextProvider interface {
	Lookup(ctx context.Context, userID string) (model.UserContext, error)
}

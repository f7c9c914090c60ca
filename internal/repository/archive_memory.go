package repository

import (
	"context"
	"sync"
	"time"

	"damdam/internal/model"
	"damdam/internal/pkg/id"
)

// MemoryTranscriptArchive is the in-process TranscriptArchive used by
// tests and Redis-less single-node runs.
type MemoryTranscriptArchive struct {
	mu     sync.RWMutex
	byRef  map[string]model.Transcript
	byRoom map[string]string
}

// NewMemoryTranscriptArchive creates an empty in-memory archive.
func NewMemoryTranscriptArchive() *MemoryTranscriptArchive {
	return &MemoryTranscriptArchive{
		byRef:  make(map[string]model.Transcript),
		byRoom: make(map[string]string),
	}
}

// Write stores the transcript once per room; repeated writes return the
// first reference unchanged.
func (a *MemoryTranscriptArchive) Write(ctx context.Context, transcript *model.Transcript) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ref, ok := a.byRoom[transcript.RoomID]; ok {
		return ref, nil
	}

	ref := id.New()
	stored := *transcript
	stored.Records = make([]model.ChatRecord, len(transcript.Records))
	copy(stored.Records, transcript.Records)
	stored.CreatedAt = time.Now().UTC()

	a.byRef[ref] = stored
	a.byRoom[transcript.RoomID] = ref
	return ref, nil
}

// Read loads a transcript by reference.
func (a *MemoryTranscriptArchive) Read(ctx context.Context, ref string) (*model.Transcript, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	transcript, ok := a.byRef[ref]
	if !ok {
		return nil, ErrArchiveNotFound
	}
	copied := transcript
	copied.Records = make([]model.ChatRecord, len(transcript.Records))
	copy(copied.Records, transcript.Records)
	return &copied, nil
}

// FindByRoom returns the archive reference for a room.
func (a *MemoryTranscriptArchive) FindByRoom(ctx context.Context, roomID string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ref, ok := a.byRoom[roomID]
	if !ok {
		return "", ErrArchiveNotFound
	}
	return ref, nil
}

// Delete removes an archived transcript.
func (a *MemoryTranscriptArchive) Delete(ctx context.Context, ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	transcript, ok := a.byRef[ref]
	if !ok {
		return nil
	}
	delete(a.byRef, ref)
	delete(a.byRoom, transcript.RoomID)
	return nil
}

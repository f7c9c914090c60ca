package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"damdam/internal/model"
)

// archivedTranscript is the session_reports document shape.
type archivedTranscript struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	RoomID    string             `bson:"room_id"`
	UserID    string             `bson:"user_id"`
	Records   []model.ChatRecord `bson:"records"`
	Summary   model.Summary      `bson:"summary"`
	CreatedAt time.Time          `bson:"created_at"`
}

// MongoTranscriptArchive persists closed sessions in the session_reports
// collection. The unique index on room_id makes Write insert-once.
type MongoTranscriptArchive struct {
	collection *mongo.Collection
}

// NewMongoTranscriptArchive creates the archive over a database handle.
func NewMongoTranscriptArchive(db *mongo.Database) *MongoTranscriptArchive {
	return &MongoTranscriptArchive{
		collection: db.Collection("session_reports"),
	}
}

// Write inserts the transcript as a single document. If the room was
// archived before, the existing document's reference is returned: a
// close retry must never overwrite the first archive.
func (a *MongoTranscriptArchive) Write(ctx context.Context, transcript *model.Transcript) (string, error) {
	doc := archivedTranscript{
		RoomID:    transcript.RoomID,
		UserID:    transcript.UserID,
		Records:   transcript.Records,
		Summary:   transcript.Summary,
		CreatedAt: time.Now().UTC(),
	}

	result, err := a.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return a.FindByRoom(ctx, transcript.RoomID)
	}
	if err != nil {
		return "", fmt.Errorf("archive write: %w", err)
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("archive write: unexpected id type %T", result.InsertedID)
	}
	return oid.Hex(), nil
}

// Read loads an archived transcript by reference.
func (a *MongoTranscriptArchive) Read(ctx context.Context, ref string) (*model.Transcript, error) {
	oid, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return nil, ErrArchiveNotFound
	}

	var doc archivedTranscript
	err = a.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrArchiveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive read: %w", err)
	}

	return &model.Transcript{
		RoomID:    doc.RoomID,
		UserID:    doc.UserID,
		Records:   doc.Records,
		Summary:   doc.Summary,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// FindByRoom returns the archive reference for a room, or ErrArchiveNotFound.
func (a *MongoTranscriptArchive) FindByRoom(ctx context.Context, roomID string) (string, error) {
	var doc archivedTranscript
	err := a.collection.FindOne(ctx, bson.M{"room_id": roomID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrArchiveNotFound
	}
	if err != nil {
		return "", fmt.Errorf("archive lookup: %w", err)
	}
	return doc.ID.Hex(), nil
}

// Delete removes an archived transcript.
func (a *MongoTranscriptArchive) Delete(ctx context.Context, ref string) error {
	oid, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return ErrArchiveNotFound
	}
	_, err = a.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

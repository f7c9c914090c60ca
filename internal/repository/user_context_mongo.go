package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"damdam/internal/model"
)

// userContextDoc is the user_contexts document shape. Profile and survey
// data is written by the account service; damdam only reads it.
type userContextDoc struct {
	UserID  string            `bson:"user_id"`
	Context model.UserContext `bson:"context"`
}

// MongoUserContextProvider reads profile/survey snapshots from Mongo.
type MongoUserContextProvider struct {
	collection *mongo.Collection
}

// NewMongoUserContextProvider creates the provider over a database handle.
func NewMongoUserContextProvider(db *mongo.Database) *MongoUserContextProvider {
	return &MongoUserContextProvider{
		collection: db.Collection("user_contexts"),
	}
}

// Lookup returns the normalized user context. A user without a stored
// snapshot gets an empty context: reply generation degrades, it does
// not fail.
func (p *MongoUserContextProvider) Lookup(ctx context.Context, userID string) (model.UserContext, error) {
	var doc userContextDoc
	err := p.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.UserContext{}, nil
	}
	if err != nil {
		return model.UserContext{}, fmt.Errorf("user context lookup: %w", err)
	}
	return doc.Context.Normalize(), nil
}

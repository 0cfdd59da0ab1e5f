package repositories

import (
	"context"
	"time"

	"github.com/anonto42/ridehub/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatMessageRepository stores chat room history
type ChatMessageRepository interface {
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	ListByRoom(ctx context.Context, roomID string, before time.Time, limit int64) ([]models.ChatMessage, error)
}

// MongoChatMessageRepository implements ChatMessageRepository for MongoDB
type MongoChatMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoChatMessageRepository creates a new MongoChatMessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) *MongoChatMessageRepository {
	return &MongoChatMessageRepository{collection: db.Collection("chat_messages")}
}

// EnsureIndexes creates the room/time index used by history reads.
func (r *MongoChatMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

func (r *MongoChatMessageRepository) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, msg)
	return err
}

// ListByRoom returns up to limit messages older than before, newest first.
// A zero before means "now".
func (r *MongoChatMessageRepository) ListByRoom(ctx context.Context, roomID string, before time.Time, limit int64) ([]models.ChatMessage, error) {
	if before.IsZero() {
		before = time.Now()
	}
	filter := bson.M{"room_id": roomID, "created_at": bson.M{"$lt": before}}
	findOptions := options.Find().SetLimit(limit).SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []models.ChatMessage{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
)

// MessageRepo 消息仓库
// 只追加：消息写入后不提供更新接口，回放顺序按创建时间升序
type MessageRepo struct {
	collection *mongo.Collection
}

// NewMessageRepo 创建消息仓库
func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection("messages"),
	}
}

// Create 追加一条消息
func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	result, err := r.collection.InsertOne(ctx, msg)
	if err != nil {
		return err
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}
	return nil
}

// ListByConversation 按创建时间升序返回对话的全部消息
// _id 升序兜底，保证同毫秒写入的消息回放顺序稳定
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*model.Message, error) {
	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, apperr.ErrNotFound
	}

	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: 1}, bson.E{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": objectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := make([]*model.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// CountByConversation 统计对话的消息数量
func (r *MessageRepo) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return 0, apperr.ErrNotFound
	}
	return r.collection.CountDocuments(ctx, bson.M{"conversation_id": objectID})
}

// DeleteByConversation 删除对话的全部消息（删除对话时级联）
func (r *MessageRepo) DeleteByConversation(ctx context.Context, conversationID string) error {
	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return apperr.ErrNotFound
	}

	_, err = r.collection.DeleteMany(ctx, bson.M{"conversation_id": objectID})
	return err
}

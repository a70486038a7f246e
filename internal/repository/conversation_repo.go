package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
)

// ConversationRepo 对话仓库
type ConversationRepo struct {
	collection *mongo.Collection
}

// NewConversationRepo 创建对话仓库
func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		collection: db.Collection("conversations"),
	}
}

// Create 创建对话
func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, conv)
	if err != nil {
		return err
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conv.ID = oid
	}
	return nil
}

// FindByID 根据 ID 查询，不存在返回 apperr.ErrNotFound
func (r *ConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.ErrNotFound
	}

	var conv model.Conversation
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &conv, nil
}

// RenameIfUntitled 条件改名：仅当标题仍是占位标题时生效
// 条件和写入在单条 UpdateOne 内完成，两个首轮对话并发竞争时只有一个生效
func (r *ConversationRepo) RenameIfUntitled(ctx context.Context, id string, title string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.ErrNotFound
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "title": model.TitleSentinel},
		bson.M{"$set": bson.M{"title": title, "updated_at": time.Now()}},
	)
	return err
}

// Touch 更新 updated_at（有新消息写入时）
func (r *ConversationRepo) Touch(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.ErrNotFound
	}

	_, err = r.collection.UpdateByID(ctx, objectID, bson.M{
		"$set": bson.M{"updated_at": time.Now()},
	})
	return err
}

// ListByUserID 查询用户对话列表（新的在前）
func (r *ConversationRepo) ListByUserID(ctx context.Context, userID string, limit, offset int64) ([]*model.Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []*model.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}

	return convs, nil
}

// ListAll 查询全部用户的对话（管理端，新的在前）
func (r *ConversationRepo) ListAll(ctx context.Context, limit int64) ([]*model.Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []*model.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}

	return convs, nil
}

// CountByUserID 统计用户对话数量
func (r *ConversationRepo) CountByUserID(ctx context.Context, userID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
}

// Delete 删除对话（消息级联由 service 层处理）
func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.ErrNotFound
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	return err
}

// DeleteByUserID 删除用户的所有对话（删除用户时级联）
func (r *ConversationRepo) DeleteByUserID(ctx context.Context, userID string) ([]string, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID.Hex())
	}

	_, err = r.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	return ids, err
}

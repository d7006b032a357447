package dao

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"websocket-presence/apps/presence-service/internal/model"
)

const presenceCollection = "user_presence"

type mongoDAO struct {
	db *mongo.Database
}

// NewMongoDAO 创建MongoDB DAO实例
func NewMongoDAO(db *mongo.Database) PresenceDAO {
	return &mongoDAO{
		db: db,
	}
}

// SetOnlineStatus 合并写入在线标记
// $currentDate让last_updated由MongoDB服务端赋值，保证该字段单调不减
func (d *mongoDAO) SetOnlineStatus(ctx context.Context, userID string, isOnline bool) error {
	collection := d.db.Collection(presenceCollection)

	update := bson.M{
		"$set": bson.M{
			"is_online": isOnline,
			"last_seen": time.Now().UTC(),
		},
		"$currentDate": bson.M{
			"last_updated": true,
		},
	}

	_, err := collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

// UpdateLastSeen 只刷新last_seen
func (d *mongoDAO) UpdateLastSeen(ctx context.Context, userID string) error {
	collection := d.db.Collection(presenceCollection)

	update := bson.M{
		"$set": bson.M{
			"last_seen": time.Now().UTC(),
		},
		"$currentDate": bson.M{
			"last_updated": true,
		},
	}

	_, err := collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

// GetUserPresence 读取用户状态文档
func (d *mongoDAO) GetUserPresence(ctx context.Context, userID string) (*model.UserPresence, error) {
	collection := d.db.Collection(presenceCollection)

	var presence model.UserPresence
	err := collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&presence)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	presence.UserID = userID
	return &presence, nil
}

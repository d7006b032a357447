package dao

import (
	"context"

	"websocket-presence/apps/presence-service/internal/model"
)

// PresenceDAO 在线状态存储接口
type PresenceDAO interface {
	// SetOnlineStatus 合并写入在线标记和last_seen，last_updated由存储端赋值
	SetOnlineStatus(ctx context.Context, userID string, isOnline bool) error

	// UpdateLastSeen 只刷新last_seen，不改动在线标记
	UpdateLastSeen(ctx context.Context, userID string) error

	// GetUserPresence 读取用户状态文档，不存在时返回(nil, nil)
	GetUserPresence(ctx context.Context, userID string) (*model.UserPresence, error)
}

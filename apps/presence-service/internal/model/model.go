package model

import "time"

// UserPresence 持久化的用户在线状态文档
// last_updated由存储端赋值，单调不减
type UserPresence struct {
	UserID      string    `bson:"user_id" json:"userId"`
	IsOnline    bool      `bson:"is_online" json:"isOnline"`
	LastSeen    time.Time `bson:"last_seen" json:"lastSeen"`
	LastUpdated time.Time `bson:"last_updated" json:"lastUpdated"`
}

// 消息类型
const (
	MessageTypeConnected    = "connected"
	MessageTypeHeartbeat    = "heartbeat"
	MessageTypeHeartbeatAck = "heartbeat_ack"
)

// Envelope 入站消息信封，按type分发，其余字段忽略
type Envelope struct {
	Type string `json:"type"`
}

// ConnectedMessage 连接建立确认
type ConnectedMessage struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"` // ISO-8601
}

// HeartbeatMessage 心跳探测
type HeartbeatMessage struct {
	Type string `json:"type"`
}

// 在线状态事件状态值
const (
	PresenceStatusOnline  = "online"
	PresenceStatusOffline = "offline"
)

// PresenceEvent 推送到Kafka的状态变更事件
type PresenceEvent struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"` // online / offline
	Timestamp int64  `json:"timestamp"`
}

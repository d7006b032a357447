package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"websocket-presence/apps/presence-service/internal/dao"
	"websocket-presence/apps/presence-service/internal/model"
	"websocket-presence/pkg/kafka"
	"websocket-presence/pkg/logger"
	"websocket-presence/pkg/redis"
)

const (
	onlineUsersKey = "online_users"
	connKeyFmt     = "conn:%s:%s" // conn:{userID}:{connID}
	connExpireTime = 2 * time.Hour

	// 离线写等异步持久化的单次超时
	persistTimeout = 5 * time.Second
)

// Service 在线状态服务
// 注册表是唯一的内存真相，持久化和Redis镜像都跟在内存变更之后，
// 写失败不回滚注册状态（可用性优先于存储一致性）
type Service struct {
	dao      dao.PresenceDAO
	registry *Registry
	redis    *redis.RedisClient // 可为nil，镜像尽力而为
	kafka    *kafka.Producer    // 可为nil
	topic    string
	interval time.Duration
	log      logger.Logger

	monitors *monitorTable
}

// NewService 创建在线状态服务
func NewService(d dao.PresenceDAO, redisClient *redis.RedisClient, kafkaProducer *kafka.Producer, topic string, heartbeatInterval time.Duration, log logger.Logger) *Service {
	return &Service{
		dao:      d,
		registry: NewRegistry(),
		redis:    redisClient,
		kafka:    kafkaProducer,
		topic:    topic,
		interval: heartbeatInterval,
		log:      log,
		monitors: newMonitorTable(),
	}
}

// Registry 暴露注册表只读入口（观测用）
func (s *Service) Registry() *Registry {
	return s.registry
}

// Connect 注册连接、启动心跳监视并持久化在线标记
// 持久化失败时返回错误但不回滚内存注册，会话继续存活
func (s *Service) Connect(ctx context.Context, userID string, conn *Connection) error {
	wasOnline := s.registry.IsConnected(userID)
	s.registry.Add(userID, conn)

	// 在线写先于心跳探测开始
	persistErr := s.dao.SetOnlineStatus(ctx, userID, true)
	if persistErr != nil {
		s.log.Error(ctx, "Failed to persist online status",
			logger.F("userID", userID),
			logger.F("error", persistErr.Error()))
	}

	mon := newLivenessMonitor(conn, s.interval, func(c *Connection) {
		s.handleTermination(userID, c)
	})
	s.monitors.put(conn, mon)
	mon.Start()

	s.mirrorConnect(ctx, userID, conn)
	if !wasOnline {
		s.publishEvent(userID, model.PresenceStatusOnline)
	}

	s.log.Info(ctx, "Connection registered",
		logger.F("userID", userID),
		logger.F("connID", conn.ID),
		logger.F("connections", s.registry.Count(userID)))

	if persistErr != nil {
		return fmt.Errorf("mark user online: %w", persistErr)
	}
	return nil
}

// Disconnect 注销连接，用户最后一条连接消失时写离线状态
// 对同一(用户,连接)重复调用是no-op，不会产生第二次离线写
func (s *Service) Disconnect(ctx context.Context, userID string, conn *Connection) {
	if mon, ok := s.monitors.take(conn); ok {
		mon.Stop()
	}

	wasLast := s.registry.Remove(userID, conn)

	s.mirrorDisconnect(userID, conn, wasLast)

	if !wasLast {
		if s.registry.IsConnected(userID) {
			s.log.Info(ctx, "Connection closed, user still online",
				logger.F("userID", userID),
				logger.F("connections", s.registry.Count(userID)))
		}
		return
	}

	s.log.Info(ctx, "User fully disconnected", logger.F("userID", userID))
	s.publishEvent(userID, model.PresenceStatusOffline)

	// 离线写对断连方是fire-and-forget，失败走日志侧信道
	go func() {
		wctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.dao.SetOnlineStatus(wctx, userID, false); err != nil {
			s.log.Error(wctx, "Failed to persist offline status",
				logger.F("userID", userID),
				logger.F("error", err.Error()))
		}
	}()
}

// HeartbeatAck 应用层心跳确认：监视器回到ALIVE并刷新last_seen
func (s *Service) HeartbeatAck(ctx context.Context, userID string, conn *Connection) error {
	if mon, ok := s.monitors.get(conn); ok {
		mon.Ack()
	}

	if err := s.dao.UpdateLastSeen(ctx, userID); err != nil {
		return fmt.Errorf("refresh last seen: %w", err)
	}
	return nil
}

// GetStatus 读穿到存储层，无记录时返回(nil, nil)
func (s *Service) GetStatus(ctx context.Context, userID string) (*model.UserPresence, error) {
	return s.dao.GetUserPresence(ctx, userID)
}

// IsOnline 纯内存快路径，不查存储
func (s *Service) IsOnline(userID string) bool {
	return s.registry.IsConnected(userID)
}

// ActiveUsers 在线用户数
func (s *Service) ActiveUsers() int {
	return s.registry.TotalUsers()
}

// ActiveConnections 活跃连接总数
func (s *Service) ActiveConnections() int {
	return s.registry.TotalConnections()
}

// handleTermination 心跳判定死亡后的级联：注销、可能的离线写、强制关传输
func (s *Service) handleTermination(userID string, conn *Connection) {
	ctx := logger.WithUserID(context.Background(), userID)
	s.log.Warn(ctx, "Heartbeat timeout, terminating connection",
		logger.F("userID", userID),
		logger.F("connID", conn.ID))

	s.Disconnect(ctx, userID, conn)
	_ = conn.Close()
}

// Shutdown 进程退出时关闭所有连接并清理镜像
func (s *Service) Shutdown(ctx context.Context) error {
	conns := s.registry.Snapshot()
	for _, conn := range conns {
		if mon, ok := s.monitors.take(conn); ok {
			mon.Stop()
		}
		_ = conn.Close()
		s.registry.Remove(conn.UserID, conn)
	}

	if s.redis != nil {
		if keys, err := s.redis.Keys(ctx, "conn:*"); err == nil && len(keys) > 0 {
			_ = s.redis.Del(ctx, keys...)
		}
		_ = s.redis.Del(ctx, onlineUsersKey)
	}

	s.log.Info(ctx, "Presence service shut down", logger.F("closedConnections", len(conns)))
	return nil
}

// mirrorConnect 把连接记录镜像到Redis（尽力而为，失败只记日志）
func (s *Service) mirrorConnect(ctx context.Context, userID string, conn *Connection) {
	if s.redis == nil {
		return
	}

	if err := s.redis.SAdd(ctx, onlineUsersKey, userID); err != nil {
		s.log.Warn(ctx, "Failed to mirror online user to Redis", logger.F("error", err.Error()))
		return
	}

	key := fmt.Sprintf(connKeyFmt, userID, conn.ID)
	info := map[string]interface{}{
		"userId":      userID,
		"connId":      conn.ID,
		"connectedAt": time.Now().Unix(),
	}
	if err := s.redis.HMSet(ctx, key, info); err != nil {
		s.log.Warn(ctx, "Failed to mirror connection to Redis", logger.F("error", err.Error()))
		return
	}
	_ = s.redis.Expire(ctx, key, connExpireTime)
}

// mirrorDisconnect 清理Redis镜像
func (s *Service) mirrorDisconnect(userID string, conn *Connection, wasLast bool) {
	if s.redis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	key := fmt.Sprintf(connKeyFmt, userID, conn.ID)
	if err := s.redis.Del(ctx, key); err != nil {
		s.log.Warn(ctx, "Failed to remove connection mirror", logger.F("error", err.Error()))
	}
	if wasLast {
		if err := s.redis.SRem(ctx, onlineUsersKey, userID); err != nil {
			s.log.Warn(ctx, "Failed to remove user from online set", logger.F("error", err.Error()))
		}
	}
}

// publishEvent 状态变更事件进Kafka，按userID哈希分区保证单用户有序
func (s *Service) publishEvent(userID, status string) {
	if s.kafka == nil {
		return
	}

	event := model.PresenceEvent{
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.kafka.SendMessage(s.topic, []byte(userID), data); err != nil {
		s.log.Warn(context.Background(), "Failed to publish presence event",
			logger.F("userID", userID),
			logger.F("status", status))
	}
}

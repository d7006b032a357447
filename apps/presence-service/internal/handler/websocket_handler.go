package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"websocket-presence/apps/presence-service/internal/model"
	"websocket-presence/apps/presence-service/internal/service"
	"websocket-presence/pkg/logger"
)

// WebSocketHandler 在线状态网关，负责连接握手、身份提取和消息循环
type WebSocketHandler struct {
	svc          *service.Service
	log          logger.Logger
	readLimit    int64
	writeTimeout time.Duration
	interval     time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(svc *service.Service, readLimit int64, writeTimeout, heartbeatInterval time.Duration, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		svc:          svc,
		log:          log,
		readLimit:    readLimit,
		writeTimeout: writeTimeout,
		interval:     heartbeatInterval,
	}
}

// HandleConnection 处理单条WebSocket连接的完整生命周期
func (h *WebSocketHandler) HandleConnection(wsConn *websocket.Conn, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		// 无身份的连接立即拒绝，不进注册表
		h.rejectConnection(wsConn)
		return
	}

	ctx := logger.WithUserID(r.Context(), userID)
	conn := service.NewConnection(userID, wsConn, h.writeTimeout)
	ctx = logger.WithConnID(ctx, conn.ID)

	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error(ctx, "Panic during connection setup",
				logger.F("userID", userID),
				logger.F("panic", rec))
			conn.CloseWithCode(websocket.CloseInternalServerErr, "internal server error")
			return
		}
	}()

	if err := h.svc.Connect(ctx, userID, conn); err != nil {
		// 在线写失败不终止会话，可用性优先
		h.log.Warn(ctx, "Online status not persisted, session continues",
			logger.F("error", err.Error()))
	}
	defer h.svc.Disconnect(ctx, userID, conn)

	welcome := model.ConnectedMessage{
		Type:      model.MessageTypeConnected,
		UserID:    userID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := conn.WriteJSON(welcome); err != nil {
		h.log.Warn(ctx, "Failed to send connected message", logger.F("error", err.Error()))
		return
	}

	h.readLoop(ctx, userID, conn, wsConn)
}

// rejectConnection 按协议错误码关闭无身份连接
func (h *WebSocketHandler) rejectConnection(wsConn *websocket.Conn) {
	h.log.Warn(context.Background(), "Connection rejected: missing user identity")
	deadline := time.Now().Add(h.writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, "user identity is required")
	_ = wsConn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = wsConn.Close()
}

// readLoop 消息循环，读超时由传输层pong和到达的消息共同刷新
func (h *WebSocketHandler) readLoop(ctx context.Context, userID string, conn *service.Connection, wsConn *websocket.Conn) {
	readDeadline := 2 * h.interval
	wsConn.SetReadLimit(h.readLimit)
	_ = wsConn.SetReadDeadline(time.Now().Add(readDeadline))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn(ctx, "WebSocket read error", logger.F("error", err.Error()))
			}
			return
		}
		_ = wsConn.SetReadDeadline(time.Now().Add(readDeadline))

		var envelope model.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			h.log.Warn(ctx, "Malformed message dropped", logger.F("error", err.Error()))
			continue
		}

		switch envelope.Type {
		case model.MessageTypeHeartbeatAck:
			if err := h.svc.HeartbeatAck(ctx, userID, conn); err != nil {
				h.log.Warn(ctx, "Failed to refresh last seen", logger.F("error", err.Error()))
			}
		default:
			h.log.Info(ctx, "Unknown message type dropped", logger.F("type", envelope.Type))
		}
	}
}

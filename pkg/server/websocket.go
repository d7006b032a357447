package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	kratoslog "github.com/go-kratos/kratos/v2/log"
	"github.com/gorilla/websocket"
)

// WebSocketHandler WebSocket处理器接口
// 升级完成后拿到连接，身份校验和关闭码语义由处理器自己负责
type WebSocketHandler interface {
	HandleConnection(conn *websocket.Conn, r *http.Request)
}

// WebSocketHandlerFunc WebSocket处理器函数类型
type WebSocketHandlerFunc func(conn *websocket.Conn, r *http.Request)

// HandleConnection WebSocketHandler接口实现
func (f WebSocketHandlerFunc) HandleConnection(conn *websocket.Conn, r *http.Request) {
	f(conn, r)
}

// WebSocketServerWrapper WebSocket服务器包装器，路由挂在HTTP引擎上
type WebSocketServerWrapper struct {
	engine   *gin.Engine
	upgrader websocket.Upgrader
	handlers map[string]WebSocketHandler
	logger   kratoslog.Logger
	mu       sync.RWMutex
}

// NewWebSocketServerWrapper 创建WebSocket服务器包装器
func NewWebSocketServerWrapper(engine *gin.Engine, logger kratoslog.Logger) *WebSocketServerWrapper {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	return &WebSocketServerWrapper{
		engine:   engine,
		upgrader: upgrader,
		handlers: make(map[string]WebSocketHandler),
		logger:   logger,
	}
}

// RegisterHandler 注册WebSocket处理器
func (ws *WebSocketServerWrapper) RegisterHandler(path string, handler WebSocketHandler) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.handlers[path] = handler

	ws.engine.GET(path, func(c *gin.Context) {
		ws.handleWebSocket(c, handler)
	})
}

// handleWebSocket 升级连接并交给处理器
func (ws *WebSocketServerWrapper) handleWebSocket(c *gin.Context, handler WebSocketHandler) {
	conn, err := ws.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ws.logger.Log(kratoslog.LevelError, "msg", "WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	handler.HandleConnection(conn, c.Request)
}

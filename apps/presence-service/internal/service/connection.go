package service

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnClosed 连接已关闭
var ErrConnClosed = errors.New("connection already closed")

// Conn 底层WebSocket传输抽象，*websocket.Conn天然满足
// 抽出接口是为了让心跳和注册逻辑可以脱离真实网络测试
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Connection 某个用户的单条活跃连接
// 进程内临时状态，不持久化，进程重启后注册表从空重建
type Connection struct {
	ID     string
	UserID string

	conn         Conn
	writeTimeout time.Duration

	mu     sync.Mutex // gorilla的writer不允许并发写
	closed bool
}

// NewConnection 创建连接包装
func NewConnection(userID string, conn Conn, writeTimeout time.Duration) *Connection {
	return &Connection{
		ID:           uuid.NewString(),
		UserID:       userID,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// WriteJSON 序列化并发送一条文本消息
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// CloseWithCode 发送关闭帧后关闭底层连接，幂等
func (c *Connection) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	return c.conn.Close()
}

// Close 直接关闭底层连接，幂等
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// IsClosed 连接是否已关闭
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

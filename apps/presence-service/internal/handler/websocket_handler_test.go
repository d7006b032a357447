package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"websocket-presence/apps/presence-service/internal/model"
	"websocket-presence/apps/presence-service/internal/service"
	"websocket-presence/pkg/logger"
	"websocket-presence/pkg/server"
)

type memDAO struct {
	mu        sync.Mutex
	online    map[string]bool
	lastSeen  map[string]int
	presences map[string]*model.UserPresence
}

func newMemDAO() *memDAO {
	return &memDAO{
		online:    make(map[string]bool),
		lastSeen:  make(map[string]int),
		presences: make(map[string]*model.UserPresence),
	}
}

func (d *memDAO) SetOnlineStatus(ctx context.Context, userID string, isOnline bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online[userID] = isOnline
	return nil
}

func (d *memDAO) UpdateLastSeen(ctx context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen[userID]++
	return nil
}

func (d *memDAO) GetUserPresence(ctx context.Context, userID string) (*model.UserPresence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presences[userID], nil
}

func newTestServer(t *testing.T, d *memDAO) (*httptest.Server, *service.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	log := logger.GetLogger()
	svc := service.NewService(d, nil, nil, "presence_events", time.Hour, log)
	h := NewWebSocketHandler(svc, 4096, time.Second, time.Hour, log)

	ws := server.NewWebSocketServerWrapper(engine, logger.NewKratosLogger(log))
	ws.RegisterHandler("/ws", h)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, svc
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHandlerRejectsMissingUserID(t *testing.T) {
	d := newMemDAO()
	srv, svc := newTestServer(t, d)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.CloseProtocolError {
		t.Fatalf("expected close code %d, got %d", websocket.CloseProtocolError, closeErr.Code)
	}
	if closeErr.Text != "user identity is required" {
		t.Fatalf("unexpected close reason %q", closeErr.Text)
	}

	// 拒绝的连接不进注册表，也不产生任何持久化写
	if got := svc.ActiveConnections(); got != 0 {
		t.Fatalf("expected empty registry after rejection, got %d connections", got)
	}
	d.mu.Lock()
	writes := len(d.online) + len(d.lastSeen)
	d.mu.Unlock()
	if writes != 0 {
		t.Fatalf("expected no persistence writes after rejection, got %d", writes)
	}
}

func TestHandlerSendsConnectedMessage(t *testing.T) {
	d := newMemDAO()
	srv, svc := newTestServer(t, d)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?userId=user1"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msg model.ConnectedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != model.MessageTypeConnected {
		t.Fatalf("expected %q message, got %q", model.MessageTypeConnected, msg.Type)
	}
	if msg.UserID != "user1" {
		t.Fatalf("expected userId user1, got %q", msg.UserID)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Fatalf("expected RFC3339 timestamp, got %q", msg.Timestamp)
	}

	if !svc.IsOnline("user1") {
		t.Fatal("expected user1 registered after handshake")
	}
	d.mu.Lock()
	online := d.online["user1"]
	d.mu.Unlock()
	if !online {
		t.Fatal("expected online status persisted")
	}
}

func TestHandlerHeartbeatAckAndUnknownTypes(t *testing.T) {
	d := newMemDAO()
	srv, _ := newTestServer(t, d)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?userId=user1"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read connected message failed: %v", err)
	}

	// 未知类型被丢弃，不影响后续的ack处理
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","body":"hi"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat_ack"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		refreshed := d.lastSeen["user1"]
		d.mu.Unlock()
		if refreshed == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected heartbeat_ack to refresh last seen")
}

func TestHandlerDisconnectWritesOffline(t *testing.T) {
	d := newMemDAO()
	srv, svc := newTestServer(t, d)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?userId=user1"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read connected message failed: %v", err)
	}
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		online, written := d.online["user1"]
		d.mu.Unlock()
		if written && !online && !svc.IsOnline("user1") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected offline write after client disconnect")
}

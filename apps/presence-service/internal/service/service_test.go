package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"websocket-presence/apps/presence-service/internal/model"
	"websocket-presence/pkg/logger"
)

type statusWrite struct {
	userID   string
	isOnline bool
}

type fakeDAO struct {
	mu          sync.Mutex
	writes      []statusWrite
	lastSeen    []string
	onlineErr   error
	presences   map[string]*model.UserPresence
	lastSeenErr error
	getErr      error
}

func newFakeDAO() *fakeDAO {
	return &fakeDAO{presences: make(map[string]*model.UserPresence)}
}

func (f *fakeDAO) SetOnlineStatus(ctx context.Context, userID string, isOnline bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onlineErr != nil {
		return f.onlineErr
	}
	f.writes = append(f.writes, statusWrite{userID: userID, isOnline: isOnline})
	return nil
}

func (f *fakeDAO) UpdateLastSeen(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastSeenErr != nil {
		return f.lastSeenErr
	}
	f.lastSeen = append(f.lastSeen, userID)
	return nil
}

func (f *fakeDAO) GetUserPresence(ctx context.Context, userID string) (*model.UserPresence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.presences[userID], nil
}

func (f *fakeDAO) statusWrites() []statusWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]statusWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeDAO) offlineWrites(userID string) int {
	count := 0
	for _, w := range f.statusWrites() {
		if w.userID == userID && !w.isOnline {
			count++
		}
	}
	return count
}

func newTestService(d *fakeDAO) *Service {
	return NewService(d, nil, nil, "presence_events", time.Hour, logger.GetLogger())
}

func TestServiceConnectDisconnect(t *testing.T) {
	d := newFakeDAO()
	svc := newTestService(d)
	conn := newTestConnection("user1")

	if err := svc.Connect(context.Background(), "user1", conn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !svc.IsOnline("user1") {
		t.Fatal("expected user1 online after Connect")
	}

	writes := d.statusWrites()
	if len(writes) != 1 || !writes[0].isOnline {
		t.Fatalf("expected one online write, got %+v", writes)
	}

	svc.Disconnect(context.Background(), "user1", conn)
	if svc.IsOnline("user1") {
		t.Fatal("expected user1 offline after Disconnect")
	}

	// 离线写是异步的
	waitFor(t, time.Second, func() bool {
		return d.offlineWrites("user1") == 1
	})
}

func TestServiceMultiDeviceOfflineOnce(t *testing.T) {
	d := newFakeDAO()
	svc := newTestService(d)
	conn1 := newTestConnection("user1")
	conn2 := newTestConnection("user1")

	_ = svc.Connect(context.Background(), "user1", conn1)
	_ = svc.Connect(context.Background(), "user1", conn2)
	if got := svc.ActiveConnections(); got != 2 {
		t.Fatalf("expected 2 active connections, got %d", got)
	}

	svc.Disconnect(context.Background(), "user1", conn1)
	if !svc.IsOnline("user1") {
		t.Fatal("expected user1 to stay online with second device connected")
	}
	time.Sleep(50 * time.Millisecond)
	if got := d.offlineWrites("user1"); got != 0 {
		t.Fatalf("expected no offline write while a device remains, got %d", got)
	}

	svc.Disconnect(context.Background(), "user1", conn2)
	waitFor(t, time.Second, func() bool {
		return d.offlineWrites("user1") == 1
	})
}

func TestServiceDoubleDisconnectSingleOfflineWrite(t *testing.T) {
	d := newFakeDAO()
	svc := newTestService(d)
	conn := newTestConnection("user1")

	_ = svc.Connect(context.Background(), "user1", conn)
	svc.Disconnect(context.Background(), "user1", conn)
	svc.Disconnect(context.Background(), "user1", conn)

	waitFor(t, time.Second, func() bool {
		return d.offlineWrites("user1") >= 1
	})
	time.Sleep(50 * time.Millisecond)
	if got := d.offlineWrites("user1"); got != 1 {
		t.Fatalf("expected exactly one offline write, got %d", got)
	}
}

func TestServiceConnectSurvivesPersistenceFailure(t *testing.T) {
	d := newFakeDAO()
	d.onlineErr = errors.New("storage unavailable")
	svc := newTestService(d)
	conn := newTestConnection("user1")

	err := svc.Connect(context.Background(), "user1", conn)
	if err == nil {
		t.Fatal("expected Connect to surface the persistence error")
	}
	// 会话不回滚
	if !svc.IsOnline("user1") {
		t.Fatal("expected user1 to stay registered despite persistence failure")
	}
}

func TestServiceHeartbeatAckRefreshesLastSeen(t *testing.T) {
	d := newFakeDAO()
	svc := newTestService(d)
	conn := newTestConnection("user1")
	_ = svc.Connect(context.Background(), "user1", conn)

	if err := svc.HeartbeatAck(context.Background(), "user1", conn); err != nil {
		t.Fatalf("HeartbeatAck failed: %v", err)
	}

	d.mu.Lock()
	got := len(d.lastSeen)
	d.mu.Unlock()
	if got != 1 {
		t.Fatalf("expected one last seen refresh, got %d", got)
	}
}

func TestServiceHeartbeatTimeoutCascade(t *testing.T) {
	d := newFakeDAO()
	svc := NewService(d, nil, nil, "presence_events", 20*time.Millisecond, logger.GetLogger())
	fc := &fakeConn{}
	conn := NewConnection("user1", fc, time.Second)

	_ = svc.Connect(context.Background(), "user1", conn)

	// 不回ack，心跳判死后应注销并关闭传输
	waitFor(t, time.Second, func() bool {
		return !svc.IsOnline("user1")
	})
	waitFor(t, time.Second, func() bool {
		return conn.IsClosed()
	})
	waitFor(t, time.Second, func() bool {
		return d.offlineWrites("user1") == 1
	})
}

func TestServiceGetStatus(t *testing.T) {
	d := newFakeDAO()
	d.presences["user1"] = &model.UserPresence{UserID: "user1", IsOnline: true}
	svc := newTestService(d)

	p, err := svc.GetStatus(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if p == nil || p.UserID != "user1" {
		t.Fatalf("unexpected presence: %+v", p)
	}

	p, err = svc.GetStatus(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetStatus for unknown user failed: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil presence for unknown user, got %+v", p)
	}
}

func TestServiceShutdownClosesAll(t *testing.T) {
	d := newFakeDAO()
	svc := newTestService(d)

	conns := make([]*Connection, 0, 3)
	for i := 0; i < 3; i++ {
		conn := newTestConnection("user1")
		_ = svc.Connect(context.Background(), "user1", conn)
		conns = append(conns, conn)
	}

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	for i, conn := range conns {
		if !conn.IsClosed() {
			t.Fatalf("expected connection %d to be closed after Shutdown", i)
		}
	}
	if got := svc.ActiveConnections(); got != 0 {
		t.Fatalf("expected empty registry after Shutdown, got %d", got)
	}
}

package service

import (
	"sync"
	"time"

	"websocket-presence/apps/presence-service/internal/model"
)

// livenessMonitor 每连接心跳状态机
//
// ALIVE --探测发出--> AWAITING_ACK --收到ack--> ALIVE
// AWAITING_ACK --到下个周期仍无ack--> TERMINATED
//
// 传输层已关闭、探测发送失败、一个周期内没等到应用层ack，
// 任一情况都判定连接死亡并触发终止回调
type livenessMonitor struct {
	conn     *Connection
	interval time.Duration

	// onTerminate 判定死亡后的级联回调（注销、离线写、强制关连接）
	onTerminate func(*Connection)

	mu       sync.Mutex
	awaiting bool // 上次探测尚未确认

	stopCh   chan struct{}
	stopOnce sync.Once
}

// newLivenessMonitor 创建心跳监视器，需调用Start启动
func newLivenessMonitor(conn *Connection, interval time.Duration, onTerminate func(*Connection)) *livenessMonitor {
	return &livenessMonitor{
		conn:        conn,
		interval:    interval,
		onTerminate: onTerminate,
		stopCh:      make(chan struct{}),
	}
}

// Start 启动心跳循环
func (m *livenessMonitor) Start() {
	go m.run()
}

func (m *livenessMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !m.tick() {
				return
			}
		case <-m.stopCh:
			return
		}
	}
}

// tick 单次探测，返回false表示连接已判定死亡
func (m *livenessMonitor) tick() bool {
	// 传输层已死就不再发任何东西
	if m.conn.IsClosed() {
		m.terminate()
		return false
	}

	m.mu.Lock()
	stillAwaiting := m.awaiting
	m.mu.Unlock()

	// 上个周期的探测没等到ack，判定静默断连
	if stillAwaiting {
		m.terminate()
		return false
	}

	m.mu.Lock()
	m.awaiting = true
	m.mu.Unlock()

	if err := m.conn.WriteJSON(model.HeartbeatMessage{Type: model.MessageTypeHeartbeat}); err != nil {
		m.terminate()
		return false
	}
	return true
}

// Ack 收到应用层心跳确认，回到ALIVE
func (m *livenessMonitor) Ack() {
	m.mu.Lock()
	m.awaiting = false
	m.mu.Unlock()
}

// Stop 停止定时器，不触发终止回调
func (m *livenessMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// terminate 停止定时器并触发终止级联
func (m *livenessMonitor) terminate() {
	m.Stop()
	if m.onTerminate != nil {
		m.onTerminate(m.conn)
	}
}

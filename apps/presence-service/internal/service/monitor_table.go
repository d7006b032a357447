package service

import "sync"

// monitorTable 连接到监视器的并发安全映射
type monitorTable struct {
	mu       sync.Mutex
	monitors map[*Connection]*livenessMonitor
}

func newMonitorTable() *monitorTable {
	return &monitorTable{monitors: make(map[*Connection]*livenessMonitor)}
}

func (t *monitorTable) put(conn *Connection, mon *livenessMonitor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.monitors[conn] = mon
}

func (t *monitorTable) get(conn *Connection) (*livenessMonitor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mon, ok := t.monitors[conn]
	return mon, ok
}

// take 取出并删除，同一连接只会被取到一次
func (t *monitorTable) take(conn *Connection) (*livenessMonitor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mon, ok := t.monitors[conn]
	if ok {
		delete(t.monitors, conn)
	}
	return mon, ok
}

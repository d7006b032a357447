package service

import "sync"

// Registry 用户到活跃连接集合的内存映射
// 不变式：键存在当且仅当集合非空，"键存在"即在线判定的快路径
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Connection]struct{}
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[*Connection]struct{}),
	}
}

// Add 插入连接，必要时创建集合，重复插入幂等
func (r *Registry) Add(userID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[userID] == nil {
		r.conns[userID] = make(map[*Connection]struct{})
	}
	r.conns[userID][conn] = struct{}{}
}

// Remove 移除连接，集合变空时整键删除
// 返回用户是否因此完全离线，这个返回值是离线写的唯一触发源
// 判断和删除在同一次加锁内完成，并发移除不会重复返回true
func (r *Registry) Remove(userID string, conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}

	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// IsConnected 用户是否持有至少一条活跃连接
func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// Count 用户当前连接数
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// TotalUsers 在线用户数
func (r *Registry) TotalUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// TotalConnections 活跃连接总数
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.conns {
		total += len(set)
	}
	return total
}

// Snapshot 当前所有连接，进程退出时统一清理用
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Connection, 0)
	for _, set := range r.conns {
		for conn := range set {
			result = append(result, conn)
		}
	}
	return result
}

package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	kratoslog "github.com/go-kratos/kratos/v2/log"

	"websocket-presence/pkg/config"
)

// Server 通用服务器接口
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServerManager 统一服务器管理器
type ServerManager struct {
	config     *config.Config
	logger     kratoslog.Logger
	httpServer HTTPServer
	wsServer   *WebSocketServerWrapper
	servers    []Server
	mu         sync.RWMutex
}

// NewServerManager 创建服务器管理器
func NewServerManager(cfg *config.Config, logger kratoslog.Logger) *ServerManager {
	return &ServerManager{
		config:  cfg,
		logger:  logger,
		servers: make([]Server, 0),
	}
}

// EnableHTTP 启用HTTP服务器
func (sm *ServerManager) EnableHTTP() HTTPServer {
	if sm.httpServer == nil {
		sm.httpServer = NewHTTPServerWrapper(sm.config, sm.logger)
		sm.addServer(sm.httpServer)
	}
	return sm.httpServer
}

// EnableWebSocket 启用WebSocket服务器（依赖HTTP服务器）
func (sm *ServerManager) EnableWebSocket() *WebSocketServerWrapper {
	if sm.wsServer == nil {
		httpServer := sm.EnableHTTP()
		sm.wsServer = NewWebSocketServerWrapper(httpServer.GetEngine(), sm.logger)
	}
	return sm.wsServer
}

// RegisterHTTPRoutes 注册HTTP路由
func (sm *ServerManager) RegisterHTTPRoutes(registerFunc func(*gin.Engine)) error {
	if sm.httpServer == nil {
		return fmt.Errorf("HTTP server not enabled")
	}
	sm.httpServer.RegisterRoutes(registerFunc)
	return nil
}

// addServer 添加服务器到管理列表
func (sm *ServerManager) addServer(server Server) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.servers = append(sm.servers, server)
}

// StartAll 启动所有服务器
func (sm *ServerManager) StartAll(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, server := range sm.servers {
		go func(s Server) {
			if err := s.Start(ctx); err != nil {
				sm.logger.Log(kratoslog.LevelError, "msg", "Server start failed", "error", err)
			}
		}(server)
	}

	sm.logger.Log(kratoslog.LevelInfo, "msg", "All servers started")
	return nil
}

// StopAll 停止所有服务器
func (sm *ServerManager) StopAll(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var errs []error
	for _, server := range sm.servers {
		if err := server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors stopping servers: %v", errs)
	}
	return nil
}

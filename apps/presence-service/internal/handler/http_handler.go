package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"websocket-presence/apps/presence-service/internal/service"
	"websocket-presence/pkg/httpx"
)

// HTTPHandler 健康检查和状态查询的REST入口
type HTTPHandler struct {
	svc       *service.Service
	startedAt time.Time
}

// NewHTTPHandler 创建HTTP处理器
func NewHTTPHandler(svc *service.Service) *HTTPHandler {
	return &HTTPHandler{
		svc:       svc,
		startedAt: time.Now(),
	}
}

// RegisterRoutes 注册HTTP路由
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1/presence")
	{
		api.GET("/status/:userId", h.GetStatus)
		api.GET("/online/:userId", h.IsOnline)
	}
}

// Health 运行状态快照
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "OK",
		"activeConnections": h.svc.ActiveConnections(),
		"activeUsers":       h.svc.ActiveUsers(),
		"serverTime":        time.Now().UTC().Format(time.RFC3339),
		"uptime":            time.Since(h.startedAt).Seconds(),
	})
}

// GetStatus 查询用户的持久化在线状态
func (h *HTTPHandler) GetStatus(c *gin.Context) {
	userID := c.Param("userId")

	presence, err := h.svc.GetStatus(c.Request.Context(), userID)
	if err != nil {
		httpx.WriteObject(c, nil, err)
		return
	}
	if presence == nil {
		httpx.WriteNotFound(c, "user presence not found")
		return
	}
	httpx.WriteObject(c, presence, nil)
}

// IsOnline 内存快路径查询，不落存储
func (h *HTTPHandler) IsOnline(c *gin.Context) {
	userID := c.Param("userId")
	httpx.WriteObject(c, gin.H{
		"userId":      userID,
		"online":      h.svc.IsOnline(userID),
		"connections": h.svc.Registry().Count(userID),
	}, nil)
}

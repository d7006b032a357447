package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"websocket-presence/pkg/logger"
)

// OTelMiddleware OpenTelemetry中间件配置
type OTelMiddleware struct {
	serviceName string
	logger      logger.Logger
}

// NewOTelMiddleware 创建OpenTelemetry中间件
func NewOTelMiddleware(serviceName string, log logger.Logger) *OTelMiddleware {
	return &OTelMiddleware{
		serviceName: serviceName,
		logger:      log,
	}
}

// GinMiddleware 返回Gin的OpenTelemetry中间件
// userId先进上下文再交给otelgin：otelgin内部会执行后续链路，
// 上下文必须在委托之前挂好，下游处理器才看得到
func (m *OTelMiddleware) GinMiddleware() gin.HandlerFunc {
	base := otelgin.Middleware(m.serviceName)

	return gin.HandlerFunc(func(c *gin.Context) {
		// 把userId查询参数带进日志上下文，握手和状态查询都走这里
		if userID := c.Query("userId"); userID != "" {
			ctx := logger.WithUserID(c.Request.Context(), userID)
			c.Request = c.Request.WithContext(ctx)
		}

		base(c)
	})
}

package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"websocket-presence/apps/presence-service/internal/dao"
	"websocket-presence/apps/presence-service/internal/handler"
	"websocket-presence/apps/presence-service/internal/service"
	"websocket-presence/pkg/lifecycle"
	"websocket-presence/pkg/logger"
	"websocket-presence/pkg/middleware"
	"websocket-presence/pkg/server"
	"websocket-presence/pkg/telemetry"
)

func main() {
	serviceName := "presence-service"

	// 初始化OpenTelemetry
	if err := telemetry.InitGlobal(telemetry.DefaultConfig(serviceName)); err != nil {
		panic(err)
	}
	defer func() {
		_ = telemetry.ShutdownGlobal(context.Background())
	}()

	// 创建应用程序
	app := server.NewApplication(serviceName)
	cfg := app.GetConfig()
	log := app.GetLogger()

	// 初始化业务服务
	presenceDAO := dao.NewMongoDAO(app.GetMongoDB().GetDatabase())
	svc := service.NewService(
		presenceDAO,
		app.GetRedisClient(),
		app.GetKafkaProducer(),
		cfg.Kafka.Topic,
		cfg.Presence.HeartbeatIntervalDuration(),
		log,
	)

	// 初始化处理器
	wsHandler := handler.NewWebSocketHandler(
		svc,
		cfg.Presence.ReadLimit,
		cfg.Presence.WriteTimeoutDuration(),
		cfg.Presence.HeartbeatIntervalDuration(),
		log,
	)
	httpHandler := handler.NewHTTPHandler(svc)
	otelMW := middleware.NewOTelMiddleware(serviceName, log)

	// 启用服务器
	app.EnableHTTP()
	wsServer := app.EnableWebSocket()
	wsServer.RegisterHandler("/api/v1/presence/ws", wsHandler)

	app.RegisterHTTPRoutes(func(engine *gin.Engine) {
		engine.Use(otelMW.GinMiddleware())
		httpHandler.RegisterRoutes(engine)
	})

	// 连接清理先于基础设施关闭
	app.AddLifecycleHook(lifecycle.Hook{
		Name:     "presence-service",
		Priority: 200,
		OnStop: func(ctx context.Context) error {
			return svc.Shutdown(ctx)
		},
	})

	log.Info(context.Background(), "Starting presence service",
		logger.F("addr", cfg.Server.HTTP.Addr),
		logger.F("heartbeatInterval", cfg.Presence.HeartbeatInterval))

	if err := app.Run(); err != nil {
		log.Error(context.Background(), "Service exited with error", logger.F("error", err.Error()))
	}
}

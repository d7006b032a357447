package server

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	kratoslog "github.com/go-kratos/kratos/v2/log"

	"websocket-presence/pkg/config"
	"websocket-presence/pkg/database"
	"websocket-presence/pkg/kafka"
	"websocket-presence/pkg/lifecycle"
	"websocket-presence/pkg/logger"
	"websocket-presence/pkg/middleware"
	"websocket-presence/pkg/redis"
)

// Application 应用程序框架
type Application struct {
	serviceName    string
	config         *config.Config
	logger         kratoslog.Logger
	originalLogger logger.Logger
	serverManager  *ServerManager
	lifecycle      *lifecycle.LifecycleManager

	// 基础设施组件
	mongoDB       *database.MongoDB
	redisClient   *redis.RedisClient
	kafkaProducer *kafka.Producer

	// 中间件
	loggingMiddleware *middleware.LoggingMiddleware

	// 注册函数
	httpRouteRegister func(*gin.Engine)
}

// NewApplication 创建应用程序
func NewApplication(serviceName string) *Application {
	// 加载配置
	cfg := config.LoadConfig(serviceName)

	// 初始化日志系统
	if err := logger.Init(cfg.App.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	originalLogger := logger.GetLogger()

	// 键值对日志统一走zap后端
	kratosLogger := kratoslog.With(
		logger.NewKratosLogger(originalLogger),
		"service.name", cfg.App.Name,
		"service.version", cfg.App.Version,
	)

	app := &Application{
		serviceName:       serviceName,
		config:            cfg,
		logger:            kratosLogger,
		originalLogger:    originalLogger,
		serverManager:     NewServerManager(cfg, kratosLogger),
		lifecycle:         lifecycle.NewLifecycleManager(kratosLogger),
		loggingMiddleware: middleware.NewLoggingMiddleware(kratosLogger),
	}

	// 初始化基础设施
	app.initInfrastructure()

	return app
}

// initInfrastructure 初始化基础设施组件
func (app *Application) initInfrastructure() {
	// 初始化MongoDB
	mongoDB, err := database.NewMongoDB(app.config.Database.MongoDB.URI, app.config.Database.MongoDB.DBName)
	if err != nil {
		app.logger.Log(kratoslog.LevelFatal, "msg", "Failed to connect to MongoDB", "error", err)
		panic(err)
	}
	app.mongoDB = mongoDB

	// 初始化Redis
	app.redisClient = redis.NewRedisClient(
		app.config.Redis.Addr,
		app.config.Redis.Password,
		app.config.Redis.DB,
	)

	// 初始化Kafka
	kafkaProducer, err := kafka.InitProducer(app.config.Kafka.Brokers)
	if err != nil {
		app.logger.Log(kratoslog.LevelFatal, "msg", "Failed to connect to Kafka", "error", err)
		panic(err)
	}
	app.kafkaProducer = kafkaProducer
}

// EnableHTTP 启用HTTP服务器
func (app *Application) EnableHTTP() HTTPServer {
	httpServer := app.serverManager.EnableHTTP()

	// 添加中间件
	httpServer.RegisterRoutes(func(engine *gin.Engine) {
		engine.Use(app.loggingMiddleware.GinLogging())
		engine.Use(app.loggingMiddleware.GinRecovery())
	})

	return httpServer
}

// EnableWebSocket 启用WebSocket服务器
func (app *Application) EnableWebSocket() *WebSocketServerWrapper {
	return app.serverManager.EnableWebSocket()
}

// RegisterHTTPRoutes 注册HTTP路由
func (app *Application) RegisterHTTPRoutes(registerFunc func(*gin.Engine)) {
	app.httpRouteRegister = registerFunc
}

// GetMongoDB 获取MongoDB连接
func (app *Application) GetMongoDB() *database.MongoDB {
	return app.mongoDB
}

// GetRedisClient 获取Redis客户端
func (app *Application) GetRedisClient() *redis.RedisClient {
	return app.redisClient
}

// GetKafkaProducer 获取Kafka生产者
func (app *Application) GetKafkaProducer() *kafka.Producer {
	return app.kafkaProducer
}

// GetLogger 获取日志器
func (app *Application) GetLogger() logger.Logger {
	return app.originalLogger
}

// GetKratosLogger 获取Kratos日志器
func (app *Application) GetKratosLogger() kratoslog.Logger {
	return app.logger
}

// GetConfig 获取配置
func (app *Application) GetConfig() *config.Config {
	return app.config
}

// AddLifecycleHook 注册业务层生命周期钩子
func (app *Application) AddLifecycleHook(hook lifecycle.Hook) {
	app.lifecycle.AddHook(hook)
}

// Run 运行应用程序
func (app *Application) Run() error {
	app.registerLifecycleHooks()

	if err := app.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle: %w", err)
	}

	// 等待停止信号
	app.lifecycle.Wait()

	return nil
}

// registerLifecycleHooks 注册生命周期钩子
func (app *Application) registerLifecycleHooks() {
	if app.httpRouteRegister != nil {
		app.serverManager.RegisterHTTPRoutes(app.httpRouteRegister)
	}

	// 服务器启动钩子
	app.lifecycle.AddHook(lifecycle.Hook{
		Name:     "servers",
		Priority: 100,
		OnStart: func(ctx context.Context) error {
			return app.serverManager.StartAll(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return app.serverManager.StopAll(ctx)
		},
	})

	// 基础设施清理钩子
	app.lifecycle.AddHook(lifecycle.Hook{
		Name:     "infrastructure",
		Priority: 300,
		OnStop: func(ctx context.Context) error {
			if app.kafkaProducer != nil {
				if err := app.kafkaProducer.Close(); err != nil {
					app.logger.Log(kratoslog.LevelError, "msg", "Failed to close Kafka producer", "error", err)
				}
			}
			if app.redisClient != nil {
				if err := app.redisClient.Close(); err != nil {
					app.logger.Log(kratoslog.LevelError, "msg", "Failed to close Redis", "error", err)
				}
			}
			if app.mongoDB != nil {
				if err := app.mongoDB.Close(); err != nil {
					app.logger.Log(kratoslog.LevelError, "msg", "Failed to close MongoDB", "error", err)
				}
			}
			return nil
		},
	})
}

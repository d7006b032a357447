package logger

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)
	WithContext(ctx context.Context) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value interface{}
}

// F 便捷构造日志字段
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// logger zap实现
type logger struct {
	zapLogger *zap.Logger
}

// NewLogger 创建日志实例
func NewLogger(level string) (Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &logger{zapLogger: zapLogger}, nil
}

// Debug 调试日志
func (l *logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields...)
}

// Info 信息日志
func (l *logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields...)
}

// Warn 警告日志
func (l *logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields...)
}

// Error 错误日志
func (l *logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields...)
}

// Fatal 致命错误日志，记录后退出进程
func (l *logger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.FatalLevel, msg, fields...)
}

// WithContext 带上下文的日志
func (l *logger) WithContext(ctx context.Context) Logger {
	return &logger{zapLogger: l.zapLogger.With(l.extractFields(ctx)...)}
}

// log 内部日志方法
func (l *logger) log(ctx context.Context, level zapcore.Level, msg string, fields ...Field) {
	zapFields := make([]zap.Field, 0, len(fields)+2)

	// 添加上下文中的追踪字段
	zapFields = append(zapFields, l.extractFields(ctx)...)

	// 添加自定义字段
	for _, field := range fields {
		zapFields = append(zapFields, zap.Any(field.Key, field.Value))
	}

	switch level {
	case zapcore.DebugLevel:
		l.zapLogger.Debug(msg, zapFields...)
	case zapcore.InfoLevel:
		l.zapLogger.Info(msg, zapFields...)
	case zapcore.WarnLevel:
		l.zapLogger.Warn(msg, zapFields...)
	case zapcore.ErrorLevel:
		l.zapLogger.Error(msg, zapFields...)
	case zapcore.FatalLevel:
		l.zapLogger.Fatal(msg, zapFields...)
	}
}

// extractFields 从上下文提取追踪字段
func (l *logger) extractFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}

	fields := make([]zap.Field, 0, 2)
	if userID, ok := ctx.Value(userIDKey).(string); ok && userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if connID, ok := ctx.Value(connIDKey).(string); ok && connID != "" {
		fields = append(fields, zap.String("conn_id", connID))
	}
	return fields
}

type contextKey string

const (
	userIDKey contextKey = "user_id"
	connIDKey contextKey = "conn_id"
)

// WithUserID 在上下文中附加用户ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithConnID 在上下文中附加连接ID
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// UserIDFromContext 取出上下文中的用户ID
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// 默认日志实例
var defaultLogger Logger

// Init 初始化默认日志
func Init(level string) error {
	var err error
	defaultLogger, err = NewLogger(level)
	return err
}

// GetLogger 获取默认日志实例
func GetLogger() Logger {
	if defaultLogger == nil {
		// 使用标准库作为fallback
		log.Println("Warning: Using fallback logger")
		return &fallbackLogger{}
	}
	return defaultLogger
}

// fallbackLogger 备用日志实现
type fallbackLogger struct{}

func (l *fallbackLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	log.Printf("[DEBUG] %s", msg)
}

func (l *fallbackLogger) Info(ctx context.Context, msg string, fields ...Field) {
	log.Printf("[INFO] %s", msg)
}

func (l *fallbackLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	log.Printf("[WARN] %s", msg)
}

func (l *fallbackLogger) Error(ctx context.Context, msg string, fields ...Field) {
	log.Printf("[ERROR] %s", msg)
}

func (l *fallbackLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	log.Printf("[FATAL] %s", msg)
	os.Exit(1)
}

func (l *fallbackLogger) WithContext(ctx context.Context) Logger {
	return l
}

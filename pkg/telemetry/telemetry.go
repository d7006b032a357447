package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config OpenTelemetry配置
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRate     float64 // 采样率 0.0-1.0
}

// DefaultConfig 返回默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// Provider OpenTelemetry提供者
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	config         *Config
}

// NewProvider 创建OpenTelemetry提供者
func NewProvider(config *Config) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if config.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(config.SampleRate)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tracerProvider: tracerProvider,
		tracer:         otel.Tracer(config.ServiceName),
		config:         config,
	}, nil
}

// GetTracer 获取Tracer
func (p *Provider) GetTracer() trace.Tracer {
	return p.tracer
}

// Shutdown 关闭Provider
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tracerProvider.Shutdown(ctx)
}

// 全局Provider实例
var globalProvider *Provider

// InitGlobal 初始化全局Provider
func InitGlobal(config *Config) error {
	var err error
	globalProvider, err = NewProvider(config)
	return err
}

// GetGlobalTracer 获取全局Tracer
func GetGlobalTracer() trace.Tracer {
	if globalProvider == nil {
		log.Println("Warning: OpenTelemetry not initialized, using NoOp tracer")
		return otel.Tracer("noop")
	}
	return globalProvider.GetTracer()
}

// StartSpan 使用全局tracer开始span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return GetGlobalTracer().Start(ctx, name, opts...)
}

// ShutdownGlobal 关闭全局Provider
func ShutdownGlobal(ctx context.Context) error {
	if globalProvider != nil {
		return globalProvider.Shutdown(ctx)
	}
	return nil
}

package logger

import (
	"context"
	"testing"

	kratoslog "github.com/go-kratos/kratos/v2/log"
)

type capturingLogger struct {
	level  string
	msg    string
	fields []Field
}

func (c *capturingLogger) record(level, msg string, fields []Field) {
	c.level = level
	c.msg = msg
	c.fields = fields
}

func (c *capturingLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	c.record("debug", msg, fields)
}
func (c *capturingLogger) Info(ctx context.Context, msg string, fields ...Field) {
	c.record("info", msg, fields)
}
func (c *capturingLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	c.record("warn", msg, fields)
}
func (c *capturingLogger) Error(ctx context.Context, msg string, fields ...Field) {
	c.record("error", msg, fields)
}
func (c *capturingLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	c.record("fatal", msg, fields)
}
func (c *capturingLogger) WithContext(ctx context.Context) Logger { return c }

// 键值对日志必须落到统一Logger上，msg键提升为消息，其余转字段
func TestKratosLoggerRoutesToLogger(t *testing.T) {
	captured := &capturingLogger{}
	kl := NewKratosLogger(captured)

	if err := kl.Log(kratoslog.LevelWarn, "msg", "server stopping", "addr", ":21010"); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	if captured.level != "warn" {
		t.Fatalf("expected warn level, got %q", captured.level)
	}
	if captured.msg != "server stopping" {
		t.Fatalf("expected message to come from msg key, got %q", captured.msg)
	}
	if len(captured.fields) != 1 || captured.fields[0].Key != "addr" {
		t.Fatalf("expected remaining keyvals as fields, got %+v", captured.fields)
	}
}

func TestKratosLoggerWithDecoration(t *testing.T) {
	captured := &capturingLogger{}
	kl := kratoslog.With(NewKratosLogger(captured), "service.name", "presence-service")

	if err := kl.Log(kratoslog.LevelInfo, "msg", "started"); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	if captured.msg != "started" {
		t.Fatalf("expected message started, got %q", captured.msg)
	}
	found := false
	for _, f := range captured.fields {
		if f.Key == "service.name" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected service.name decoration to arrive as a field")
	}
}

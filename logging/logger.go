// Package logging 提供统一的结构化日志 (slog) 封装，支持 OpenTelemetry 追踪上下文注入与日志文件切割.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// defaultLogger 是全局默认的 Logger 实例.
	defaultLogger *Logger
	mu            sync.RWMutex
	// level 是全局日志级别，可在运行时调整.
	level = new(slog.LevelVar)
)

// Config 定义日志配置.
type Config struct {
	Output     io.Writer `mapstructure:"-" json:"-"`
	Service    string    `mapstructure:"service"`
	Module     string    `mapstructure:"module"`
	Level      string    `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string    `mapstructure:"file"`        // 日志文件路径，为空则只输出到 stderr
	MaxSize    int       `mapstructure:"max_size"`    // 每个日志文件最大尺寸 (MB)
	MaxBackups int       `mapstructure:"max_backups"` // 保留旧日志文件的最大个数
	MaxAge     int       `mapstructure:"max_age"`     // 保留旧日志文件的最大天数
	Compress   bool      `mapstructure:"compress"`    // 是否压缩旧日志
	Console    bool      `mapstructure:"console"`     // 写文件的同时以文本格式输出到 stderr
}

// Logger 封装 *slog.Logger，并记录服务名和模块名.
type Logger struct {
	*slog.Logger
	Service string
	Module  string
}

// TraceHandler 是 slog.Handler 装饰器，从 context 中提取 trace_id 和 span_id 注入日志.
type TraceHandler struct {
	slog.Handler
}

// Handle 实现 slog.Handler.
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 实现 slog.Handler，保持装饰.
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 实现 slog.Handler，保持装饰.
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 解析级别名称，未知名称按 info 处理.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 调整全局日志级别，对已创建的 Logger 立即生效.
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// NewFromConfig 创建 Logger，配置了 File 时使用 lumberjack 切割.
func NewFromConfig(cfg Config) *Logger {
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}

	var handler slog.Handler
	switch {
	case cfg.Output != nil:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	case cfg.File != "":
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		handler = slog.NewJSONHandler(fileWriter, opts)
		if cfg.Console {
			handler = teeHandler{handler, slog.NewTextHandler(os.Stderr, opts)}
		}
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(&TraceHandler{Handler: handler}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)

	return &Logger{
		Logger:  logger,
		Service: cfg.Service,
		Module:  cfg.Module,
	}
}

// Init 用配置替换全局默认日志记录器，并设为 slog 默认值.
func Init(cfg Config) *Logger {
	l := NewFromConfig(cfg)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l.Logger)
	return l
}

// Default 返回默认日志记录器，未初始化时创建一个输出到 stderr 的实例.
func Default() *Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewFromConfig(Config{Service: "forest", Module: "default", Level: level.Level().String()})
	}
	return defaultLogger
}

// Info 记录 Info 级别日志
func Info(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Warn 记录 Warn 级别日志
func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

// Error 记录 Error 级别日志
func Error(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// Debug 记录 Debug 级别日志
func Debug(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(ctx, msg, args...)
}

// LogDuration 返回一个在操作结束时记录耗时的函数.
func LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		Info(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}

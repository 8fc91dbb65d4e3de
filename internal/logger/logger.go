// 包 logger：统一初始化与获取日志器；通过环境变量控制日志级别与输出格式，按组件派生子日志器
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

// Setup：初始化默认日志器
// 背景：同步、订阅、清理等组件共享同一输出，按环境统一调整级别与格式
// 约束：输出目标固定为标准错误；LOG_FORMAT=json 时输出 JSON，否则为文本
func Setup() *slog.Logger {
	lvl := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	mu.Lock()
	defaultLogger = slog.New(h)
	mu.Unlock()
	return defaultLogger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L：获取默认日志器，未初始化时回退到 Setup
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return Setup()
	}
	return l
}

// Named：派生携带 component 字段的子日志器
func Named(component string) *slog.Logger {
	return L().With("component", component)
}

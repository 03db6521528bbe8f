// Package logger 提供 go-home 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（DEP2P_HOME_LOG_LEVEL, DEP2P_HOME_LOG_FORMAT）
//   - 配置文件覆盖（Apply）
//
// 使用示例:
//
//	package relay
//
//	import "github.com/dep2p/go-home/internal/util/logger"
//
//	var log = logger.Logger("relay")
//
//	func foo() {
//	    log.Info("呼叫已转发", "call", callID, "callee", callee)
//	}
//
// 环境变量配置:
//
//	# 全局 info，relay 子系统 debug
//	DEP2P_HOME_LOG_LEVEL=relay=debug,info
//
//	# JSON 输出
//	DEP2P_HOME_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回同一实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	configMu.Lock()
	level := cfg.LevelForSubsystem(subsystem)
	configMu.Unlock()
	h := newHandler(subsystem, level, cfg.Format)
	l := slog.New(h)

	actual, loaded := loggers.LoadOrStore(subsystem, l)
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).SetLevel(level)
		return true
	})
}

// Apply 使用配置字符串覆盖日志级别
//
// 格式与 DEP2P_HOME_LOG_LEVEL 相同，例如 "relay=debug,info"。
// 已创建的 Logger 会立即生效，之后创建的 Logger 使用新配置。
func Apply(levels string) {
	if levels == "" {
		return
	}
	cfg := ConfigFromEnv()
	configMu.Lock()
	parseLevelConfig(cfg, levels)
	configMu.Unlock()

	handlers.Range(func(key, value any) bool {
		value.(*subsystemHandler).SetLevel(cfg.LevelForSubsystem(key.(string)))
		return true
	})
}

// Discard 返回一个丢弃所有日志的 Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// With 创建带有预设属性的 Logger
func With(subsystem string, args ...any) *slog.Logger {
	return Logger(subsystem).With(args...)
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 也会重定向，因为 handler 使用 dynamicWriter。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}

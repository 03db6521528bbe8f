package engine

import (
	"fmt"
	"os"
	"time"
)

// Config 存储引擎配置
type Config struct {
	// Path 数据目录路径，InMemory 为 false 时必需
	Path string

	// InMemory 使用内存数据库
	InMemory bool

	// SyncWrites 每次写入都同步到磁盘
	SyncWrites bool

	// GCInterval 值日志垃圾回收间隔，0 表示不回收
	GCInterval time.Duration

	// GCDiscardRatio 值日志文件可回收空间比例阈值
	GCDiscardRatio float64

	// BlockCacheSize 块缓存大小（字节）
	BlockCacheSize int64
}

// DefaultConfig 返回 path 上的默认配置
func DefaultConfig(path string) *Config {
	return &Config{
		Path:           path,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
		BlockCacheSize: 64 << 20,
	}
}

// InMemoryConfig 返回内存数据库配置，用于测试与临时节点
func InMemoryConfig() *Config {
	c := DefaultConfig("")
	c.InMemory = true
	c.GCInterval = 0
	return c
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.GCInterval > 0 && (c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1) {
		return fmt.Errorf("%w: gc discard ratio %v not in (0, 1)", ErrInvalidConfig, c.GCDiscardRatio)
	}
	if c.BlockCacheSize < 0 {
		return fmt.Errorf("%w: negative block cache size", ErrInvalidConfig)
	}
	return nil
}

// EnsureDir 确保数据目录存在
func (c *Config) EnsureDir() error {
	if c.InMemory {
		return nil
	}
	return os.MkdirAll(c.Path, 0o755)
}

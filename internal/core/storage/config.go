package storage

import (
	"time"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/storage/engine"
)

// 键空间前缀
var (
	// PrefixPairings 配对记录
	PrefixPairings = []byte("h/p/")

	// PrefixHomes persona 侧保存的与各 home 的配对记录
	PrefixHomes = []byte("p/h/")
)

// Config Storage 模块配置
type Config struct {
	// Path BadgerDB 数据库目录
	Path string

	// InMemory 使用内存数据库
	InMemory bool

	// SyncWrites 每次写入同步到磁盘
	SyncWrites bool

	// GCInterval 值日志垃圾回收间隔
	GCInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Path:       config.DefaultStorageConfig().DBPath(),
		SyncWrites: true,
		GCInterval: 10 * time.Minute,
	}
}

// InMemoryConfig 返回内存数据库配置
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// ConfigFromUnified 从统一配置创建 Storage 配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.InMemory = cfg.Storage.InMemory
	if cfg.Storage.DataDir != "" {
		c.Path = cfg.Storage.DBPath()
	}
	return c
}

// ToEngineConfig 转换为引擎配置
func (c Config) ToEngineConfig() *engine.Config {
	if c.InMemory {
		ec := engine.InMemoryConfig()
		ec.SyncWrites = c.SyncWrites
		return ec
	}
	ec := engine.DefaultConfig(c.Path)
	ec.SyncWrites = c.SyncWrites
	ec.GCInterval = c.GCInterval
	return ec
}

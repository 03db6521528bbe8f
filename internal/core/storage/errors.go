package storage

import (
	"github.com/dep2p/go-home/internal/core/storage/engine"
)

// 重导出 engine 包的错误
var (
	ErrNotFound      = engine.ErrNotFound
	ErrEmptyKey      = engine.ErrEmptyKey
	ErrClosed        = engine.ErrClosed
	ErrInvalidConfig = engine.ErrInvalidConfig
	ErrCorrupted     = engine.ErrCorrupted
)

// IsNotFound 检查是否为 key not found 错误
var IsNotFound = engine.IsNotFound

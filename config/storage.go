package config

import "path/filepath"

// StorageConfig 存储配置
//
// 配对记录保存在 BadgerDB 中，数据目录结构：
//
//	${DataDir}/
//	└── home.db/            # BadgerDB 主数据库
type StorageConfig struct {
	// DataDir 数据目录路径
	DataDir string `json:"data_dir" toml:"data_dir"`

	// InMemory 使用内存数据库，重启后数据丢失
	InMemory bool `json:"in_memory" toml:"in_memory"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir: "./data",
	}
}

// Validate 验证存储配置的有效性
func (c StorageConfig) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return invalid("storage", "data_dir cannot be empty")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "home.db")
}

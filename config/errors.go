package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownFormat 无法识别的配置文件格式
	ErrUnknownFormat = errors.New("unknown config file format")

	// ErrUnknownPreset 未知预设
	ErrUnknownPreset = errors.New("unknown preset")
)

// invalid 构造带分区前缀的配置错误
func invalid(section, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, section, fmt.Sprintf(format, args...))
}

package main

import (
	"os"
	"strings"

	home "github.com/dep2p/go-home"
)

// ============================================================================
//                              环境变量覆盖
// ============================================================================

// 支持的环境变量（均使用 HOME_NODE_ 前缀）：
//   - HOME_NODE_CONFIG: 配置文件
//   - HOME_NODE_KEY_FILE: 身份密钥文件
//   - HOME_NODE_IDENTIFIER: 可解析标识
//   - HOME_NODE_LISTEN: 监听地址（逗号分隔）
//   - HOME_NODE_DATA_DIR: 数据目录
const envPrefix = "HOME_NODE_"

// envOptions 把环境变量转换为节点选项
//
// 环境变量优先级高于配置文件，但低于命令行参数。
func envOptions() []home.Option {
	var opts []home.Option
	if v := os.Getenv(envPrefix + "CONFIG"); v != "" {
		opts = append(opts, home.WithConfigFile(v))
	}
	if v := os.Getenv(envPrefix + "KEY_FILE"); v != "" {
		opts = append(opts, home.WithKeyFile(v))
	}
	if v := os.Getenv(envPrefix + "IDENTIFIER"); v != "" {
		opts = append(opts, home.WithIdentifier(v))
	}
	if v := os.Getenv(envPrefix + "LISTEN"); v != "" {
		opts = append(opts, home.WithListenAddrs(splitList(v)...))
	}
	if v := os.Getenv(envPrefix + "DATA_DIR"); v != "" {
		opts = append(opts, home.WithDataDir(v))
	}
	return opts
}

// splitList 拆分逗号分隔的列表，忽略空项
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package main 提供独立的 home 节点
//
// home 节点接受 persona 会话，为已配对的 persona 签发凭证并转发调用。
//
// 使用方法:
//
//	home-node -config home.toml
//	home-node -listen /ip4/0.0.0.0/tcp/4100 -key home.key -data ./data
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	home "github.com/dep2p/go-home"
	"github.com/dep2p/go-home/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "配置文件（.toml 或 .json）")
	preset := flag.String("preset", "", "预设: home, test")
	keyFile := flag.String("key", "", "身份密钥文件，不存在时自动生成")
	identifier := flag.String("identifier", "", "可解析标识")
	listen := flag.String("listen", "", "监听地址，逗号分隔")
	dataDir := flag.String("data", "", "数据目录")
	statsInterval := flag.Duration("stats", 30*time.Second, "统计输出间隔，0 表示关闭")
	flag.Parse()

	opts := append([]home.Option{home.WithRole(home.RoleHome)}, envOptions()...)
	if *configFile != "" {
		opts = append(opts, home.WithConfigFile(*configFile))
	}
	if *preset != "" {
		opts = append(opts, home.WithPreset(*preset))
	}
	if *keyFile != "" {
		opts = append(opts, home.WithKeyFile(*keyFile))
	}
	if *identifier != "" {
		opts = append(opts, home.WithIdentifier(*identifier))
	}
	if *listen != "" {
		opts = append(opts, home.WithListenAddrs(splitList(*listen)...))
	}
	if *dataDir != "" {
		opts = append(opts, home.WithDataDir(*dataDir))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := home.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动 home 节点失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	printNodeInfo(node)
	if *statsInterval > 0 {
		go reportStats(ctx, node, *statsInterval)
	}

	<-ctx.Done()
	fmt.Println("\n正在关闭 home 节点...")
	return node.Close()
}

// printNodeInfo 打印节点信息
func printNodeInfo(node *home.Node) {
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║                    home 节点                          ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Printf("身份 ID: %s\n", node.ID())
	if id := node.Identity().Identifier(); id != "" {
		fmt.Printf("标识:    %s\n", id)
	}
	fmt.Println()
	fmt.Println("persona 配置中使用以下条目连接:")
	fmt.Println("[[persona.homes]]")
	fmt.Printf("identity = %q\n", config.FormatIdentity(node.Identity()))
	fmt.Print("addrs = [")
	for i, addr := range node.Addrs() {
		if i > 0 {
			fmt.Print(", ")
		}
		fmt.Printf("%q", addr.String())
	}
	fmt.Println("]")
	fmt.Println()
	fmt.Println("按 Ctrl+C 停止")
}

// reportStats 定期报告在线会话与配对数
func reportStats(ctx context.Context, node *home.Node, every time.Duration) {
	srv, err := node.Server()
	if err != nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := srv.Registry().Stats()
			fmt.Printf("[Stats] 在线: %d 配对: %d 吊销: %d\n", st.Present, st.Pairings, st.Revoked)
		}
	}
}

// Package main 提供 persona 命令行客户端
//
// 使用方法:
//
//	persona -config persona.toml serve              # 配对并以回显处理入站调用
//	persona -config persona.toml call bob.example hello
//	persona -config persona.toml resolve bob.example
//	persona -config persona.toml ping
//	persona -config persona.toml unpair
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	home "github.com/dep2p/go-home"
	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/persona"
	"github.com/dep2p/go-home/pkg/types"
)

var errUsage = errors.New("usage: persona [flags] serve|call <callee> <payload>|resolve <identifier>|ping|unpair")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "配置文件（.toml 或 .json）")
	keyFile := flag.String("key", "", "身份密钥文件，不存在时自动生成")
	identifier := flag.String("identifier", "", "可解析标识")
	dataDir := flag.String("data", "", "数据目录，为空时使用配置")
	app := flag.String("app", "echo", "call 使用的应用标识")
	timeout := flag.Duration("timeout", 10*time.Second, "单次请求超时")
	flag.Parse()
	if flag.NArg() == 0 {
		return errUsage
	}

	opts := []home.Option{home.WithRole(home.RolePersona)}
	if *configFile != "" {
		opts = append(opts, home.WithConfigFile(*configFile))
	} else {
		opts = append(opts, home.WithPreset("persona"))
	}
	if *keyFile != "" {
		opts = append(opts, home.WithKeyFile(*keyFile))
	}
	if *identifier != "" {
		opts = append(opts, home.WithIdentifier(*identifier))
	}
	if *dataDir != "" {
		opts = append(opts, home.WithDataDir(*dataDir), home.WithInMemoryStorage(false))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := home.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动 persona 失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	client, err := node.Client()
	if err != nil {
		return err
	}
	h, err := client.Primary()
	if err != nil {
		return fmt.Errorf("没有可用的 home: %w", err)
	}

	reqCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(ctx, *timeout)
	}

	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "serve":
		return serve(ctx, node, client, h, *timeout)
	case "call":
		if len(args) != 2 {
			return errUsage
		}
		rctx, cancel := reqCtx()
		defer cancel()
		if err := ensurePaired(rctx, client, h); err != nil {
			return err
		}
		callee, err := resolveCallee(rctx, h, args[0])
		if err != nil {
			return err
		}
		out, err := h.Call(rctx, callee, *app, []byte(args[1]))
		if err != nil {
			return fmt.Errorf("调用失败 (retryable=%v): %w", types.Retryable(err), err)
		}
		fmt.Println(string(out))
	case "resolve":
		if len(args) != 1 {
			return errUsage
		}
		rctx, cancel := reqCtx()
		defer cancel()
		md, err := h.Resolve(rctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("身份: %s\n", config.FormatIdentity(md.Identity))
		for _, a := range md.Addresses {
			fmt.Printf("地址: %s\n", a)
		}
	case "ping":
		rctx, cancel := reqCtx()
		defer cancel()
		start := time.Now()
		text, err := h.Ping(rctx, "ping")
		if err != nil {
			return err
		}
		fmt.Printf("%s from %s in %s\n", text, h.ID().ShortString(), time.Since(start))
	case "unpair":
		rctx, cancel := reqCtx()
		defer cancel()
		return h.Unpair(rctx)
	default:
		return errUsage
	}
	return nil
}

// serve 配对后为配置的应用注册回显处理器，直到收到信号
func serve(ctx context.Context, node *home.Node, client *persona.Client, h *persona.Home, timeout time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	err := ensurePaired(pctx, client, h)
	cancel()
	if err != nil {
		return err
	}

	apps := node.Config().Persona.Apps
	if len(apps) == 0 {
		apps = []string{""}
	}
	for _, app := range apps {
		client.Handle(app, echo)
	}

	fmt.Printf("persona %s 经 home %s 在线\n", node.ID().ShortString(), h.ID().ShortString())
	fmt.Printf("身份: %s\n", config.FormatIdentity(node.Identity()))
	fmt.Println("按 Ctrl+C 停止")

	select {
	case <-ctx.Done():
	case <-h.Done():
		return fmt.Errorf("home 会话结束: %w", h.Err())
	}
	return nil
}

func echo(_ context.Context, call *persona.IncomingCall) ([]byte, error) {
	fmt.Printf("[%s] %s: %s\n", call.App, call.Caller.ID().ShortString(), call.Payload)
	return call.Payload, nil
}

// ensurePaired 与 h 尚无配对记录时配对
func ensurePaired(ctx context.Context, client *persona.Client, h *persona.Home) error {
	for _, rec := range client.Pairings() {
		if rec.HomeID() == h.ID() {
			return nil
		}
	}
	_, err := h.Pair(ctx)
	return err
}

// resolveCallee 接受 base58 编码的身份或可解析标识
func resolveCallee(ctx context.Context, h *persona.Home, s string) (types.IdentityID, error) {
	if id, err := config.ParseIdentity(s); err == nil {
		return id.ID(), nil
	}
	md, err := h.Resolve(ctx, s)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", s, err)
	}
	return md.Identity.ID(), nil
}

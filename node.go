package home

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	homesrv "github.com/dep2p/go-home/internal/core/home"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/persona"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/types"
)

var nodeLogger = logger.Logger("node")

const (
	// startTimeout 启动 Fx 应用的超时
	startTimeout = 30 * time.Second

	// closeTimeout Close 停止 Fx 应用的超时
	closeTimeout = 15 * time.Second
)

// Node 一个 home 节点或 persona 客户端
//
// 由 New 组装，Start 后才可使用 Server 或 Client 发起会话。
type Node struct {
	cfg  *config.Config
	role Role
	app  *fx.App

	// 由 Fx Invoke 注入
	identity *identity.Service
	server   *homesrv.Server
	client   *persona.Client

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 按选项组装节点，不启动
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	cfg, err := o.buildConfig()
	if err != nil {
		return nil, fmt.Errorf("build config: %w", err)
	}

	n := &Node{cfg: cfg, role: o.role}
	n.app = buildFxApp(cfg, o.role, n, o.userFxOptions)
	if err := n.app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return n, nil
}

// Start 组装并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	n, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动 Fx 应用
//
// home 角色开始监听；persona 角色加载配对记录并连接配置的 home。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := n.app.Start(startCtx); err != nil {
		nodeLogger.Error("节点启动失败", "role", n.role, "error", err)
		return fmt.Errorf("start: %w", err)
	}
	n.started = true
	nodeLogger.Info("节点已启动", "role", n.role, "id", n.ID().ShortString())
	return nil
}

// Stop 停止 Fx 应用，按反向顺序执行 OnStop
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if !n.started {
		return ErrNotStarted
	}
	n.started = false
	if err := n.app.Stop(ctx); err != nil {
		nodeLogger.Error("停止节点失败", "error", err)
		return fmt.Errorf("stop: %w", err)
	}
	nodeLogger.Info("节点已停止", "role", n.role)
	return nil
}

// Close 停止节点并释放资源，可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	if !n.started {
		return nil
	}
	n.started = false

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := n.app.Stop(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	nodeLogger.Info("节点已关闭", "role", n.role)
	return nil
}

// Done 在收到终止信号时关闭
func (n *Node) Done() <-chan fx.ShutdownSignal { return n.app.Wait() }

// ════════════════════════════════════════════════════════════════════════════
//                              访问器
// ════════════════════════════════════════════════════════════════════════════

// Role 返回节点角色
func (n *Node) Role() Role { return n.role }

// Config 返回生效的配置
func (n *Node) Config() *config.Config { return n.cfg }

// Identity 返回本地身份
func (n *Node) Identity() types.Identity {
	if n.identity == nil {
		return types.Identity{}
	}
	return n.identity.Local()
}

// ID 返回本地身份 ID
func (n *Node) ID() types.IdentityID { return n.Identity().ID() }

// Resolve 经本地解析器查询身份元数据
//
// home 角色解析托管的 persona；persona 角色经首选 home 解析。
func (n *Node) Resolve(ctx context.Context, identifier string) (*identity.Metadata, error) {
	if n.identity == nil {
		return nil, ErrNotStarted
	}
	return n.identity.Resolve(ctx, identifier)
}

// Server 返回 home 服务，仅 home 角色可用
func (n *Node) Server() (*homesrv.Server, error) {
	if n.server == nil {
		return nil, fmt.Errorf("%w: server requires %s, node is %s", ErrWrongRole, RoleHome, n.role)
	}
	return n.server, nil
}

// Client 返回 persona 客户端，仅 persona 角色可用
func (n *Node) Client() (*persona.Client, error) {
	if n.client == nil {
		return nil, fmt.Errorf("%w: client requires %s, node is %s", ErrWrongRole, RolePersona, n.role)
	}
	return n.client, nil
}

// Addrs 返回 home 的公布地址，persona 角色返回空
func (n *Node) Addrs() []types.Address {
	if n.server == nil {
		return nil
	}
	return n.server.Addrs()
}

package persona

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("persona")

// Deps 客户端依赖
type Deps struct {
	Key        crypto.PrivateKey
	Identifier string
	Transports *transport.Set // 只使用 ConnectChannel 时可为 nil
	Session    session.Options
	Store      pairing.Store // nil 时使用内存存储
	Clock      clock.Clock
}

// Client persona 客户端
type Client struct {
	cfg        Config
	key        crypto.PrivateKey
	local      types.Identity
	transports *transport.Set
	sessOpts   session.Options
	clock      clock.Clock
	store      pairing.Store
	book       *pairing.Book
	resolver   *identity.CachingResolver

	events chan Event

	mu        sync.RWMutex
	apps      map[string]AppHandler
	homes     map[types.IdentityID]*Home
	relations []*pairing.Relation
	closed    bool
}

// New 创建客户端
func New(cfg Config, d Deps) (*Client, error) {
	if d.Key == nil {
		return nil, ErrMissingKey
	}
	local, err := types.IdentityFromPrivateKey(d.Key, d.Identifier)
	if err != nil {
		return nil, err
	}
	cfg.normalize()
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Store == nil {
		d.Store = pairing.NewMemoryStore()
	}
	opts := d.Session
	opts.Identifier = d.Identifier
	if opts.Clock == nil {
		opts.Clock = d.Clock
	}

	c := &Client{
		cfg:        cfg,
		key:        d.Key,
		local:      local,
		transports: d.Transports,
		sessOpts:   opts,
		clock:      d.Clock,
		store:      d.Store,
		book:       pairing.NewBook(),
		events:     make(chan Event, eventBuffer),
		apps:       make(map[string]AppHandler),
		homes:      make(map[types.IdentityID]*Home),
	}
	c.resolver = identity.NewCachingResolver(identity.ResolverFunc(c.resolveRemote), cfg.ResolverCacheSize, cfg.ResolverCacheTTL)
	return c, nil
}

// Local 返回本地 persona 身份
func (c *Client) Local() types.Identity { return c.local }

// Config 返回客户端配置
func (c *Client) Config() Config { return c.cfg }

// ============================================================================
//                              连接
// ============================================================================

// Connect 按顺序尝试 entry 的地址，返回第一个握手成功的会话
//
// 全部失败时返回各地址错误的聚合。
func (c *Client) Connect(ctx context.Context, entry HomeEntry) (*Home, error) {
	if len(entry.Addrs) == 0 {
		return nil, ErrNoAddresses
	}
	if c.transports == nil {
		return nil, fmt.Errorf("%w: no transports", transport.ErrNoTransport)
	}
	var errs error
	for _, addr := range entry.Addrs {
		ch, err := c.transports.Dial(ctx, addr)
		if err == nil {
			var h *Home
			if h, err = c.ConnectChannel(ctx, ch, entry); err == nil {
				return h, nil
			}
		}
		log.Debug("连接 home 失败", "addr", addr, "err", err)
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", addr, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errs
}

// ConnectChannel 在已建立的通道上与 home 握手
//
// 与同一 home 已有会话时，旧会话被关闭。
func (c *Client) ConnectChannel(ctx context.Context, ch transport.Channel, entry HomeEntry) (*Home, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		_ = ch.Close()
		return nil, ErrClientClosed
	}
	opts := c.sessOpts
	if !entry.Identity.IsEmpty() {
		opts.ExpectedRemote = entry.Identity.ID()
	}
	sess, err := session.Initiate(ctx, ch, c.key, opts)
	if err != nil {
		return nil, err
	}
	return c.attach(sess, entry.Addrs)
}

// ConnectAll 连接配置中的全部 home
//
// 返回连接成功的会话；部分失败时同时返回聚合错误。
func (c *Client) ConnectAll(ctx context.Context) ([]*Home, error) {
	var (
		homes []*Home
		errs  error
	)
	for _, entry := range c.cfg.Homes {
		h, err := c.Connect(ctx, entry)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		homes = append(homes, h)
	}
	return homes, errs
}

func (c *Client) attach(sess *session.Session, addrs []types.Address) (*Home, error) {
	h := newHome(c, sess, addrs)
	id := h.ID()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sess.Close()
		return nil, ErrClientClosed
	}
	prev := c.homes[id]
	c.homes[id] = h
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	sess.OnClose(func(reason error) {
		c.mu.Lock()
		if c.homes[id] == h {
			delete(c.homes, id)
		}
		c.mu.Unlock()
		log.Info("home 会话结束", "home", id.ShortString(), "reason", reason)
	})
	if err := sess.Start(newInbound(c, h)); err != nil {
		sess.CloseWithError(err)
		return nil, err
	}
	log.Info("已连接 home", "home", id.ShortString(), "session", sess.ID())
	return h, nil
}

// Home 返回与 id 的在线会话
func (c *Client) Home(id types.IdentityID) (*Home, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.homes[id]
	return h, ok
}

// Homes 返回全部在线会话
func (c *Client) Homes() []*Home {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Home, 0, len(c.homes))
	for _, h := range c.homes {
		out = append(out, h)
	}
	return out
}

// Primary 返回首选 home 的在线会话
//
// 首选 home 不在线时依次尝试其他配对的 home，再退回任意在线会话。
func (c *Client) Primary() (*Home, error) {
	for _, rec := range c.book.ForPersona(c.local.ID()) {
		if h, ok := c.Home(rec.HomeID()); ok {
			return h, nil
		}
	}
	for _, h := range c.Homes() {
		return h, nil
	}
	return nil, ErrNotConnected
}

// ============================================================================
//                              配对记录
// ============================================================================

// Pairings 返回与各 home 的配对记录，首选在前
func (c *Client) Pairings() []*pairing.Record {
	return c.book.ForPersona(c.local.ID())
}

// SetPrimary 设置首选 home
func (c *Client) SetPrimary(homeID types.IdentityID) error {
	return c.book.SetPrimary(c.local.ID(), homeID)
}

// Load 从存储加载配对记录，删除无效或不属于本 persona 的记录
func (c *Client) Load() (loaded int, err error) {
	recs, err := c.store.List()
	if err != nil {
		return 0, err
	}
	now := c.clock.Now()
	for _, rec := range recs {
		verr := rec.Verify(now)
		if verr == nil && !rec.Statement.Persona.Equal(c.local) {
			verr = fmt.Errorf("%w: persona %s", types.ErrProofInvalid, rec.PersonaID().ShortString())
		}
		if verr != nil {
			log.Warn("丢弃无效配对记录", "home", rec.HomeID().ShortString(), "err", verr)
			err = multierr.Append(err, c.store.Delete(rec.PersonaID(), rec.HomeID()))
			continue
		}
		c.book.Put(rec)
		loaded++
	}
	return loaded, err
}

func (c *Client) remember(rec *pairing.Record) error {
	if err := c.store.Put(rec); err != nil {
		return fmt.Errorf("persist pairing: %w", err)
	}
	c.book.Put(rec)
	return nil
}

func (c *Client) forget(homeID types.IdentityID) error {
	c.book.Remove(c.local.ID(), homeID)
	return c.store.Delete(c.local.ID(), homeID)
}

// ============================================================================
//                              解析
// ============================================================================

// Resolver 返回经首选 home 解析身份的带缓存解析器
func (c *Client) Resolver() identity.Resolver { return c.resolver }

func (c *Client) resolveRemote(ctx context.Context, identifier string) (*identity.Metadata, error) {
	h, err := c.Primary()
	if err != nil {
		return nil, err
	}
	return h.Resolve(ctx, identifier)
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭全部 home 会话
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	homes := make([]*Home, 0, len(c.homes))
	for _, h := range c.homes {
		homes = append(homes, h)
	}
	c.mu.Unlock()

	var err error
	for _, h := range homes {
		err = multierr.Append(err, h.Close())
	}
	return err
}

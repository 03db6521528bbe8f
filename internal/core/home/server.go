package home

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/metrics"
	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/registry"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/relay"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("home")

// Deps 服务依赖
type Deps struct {
	Identity   *identity.Service
	Transports *transport.Set // 只调用 ServeChannel 时可为 nil
	Registry   *registry.Registry
	Router     *relay.Router
	Issuer     *claims.Issuer
	Session    session.Options
	Metrics    *metrics.Metrics
	Clock      clock.Clock
}

// Server home 服务端
type Server struct {
	cfg        Config
	ident      *identity.Service
	local      types.Identity
	transports *transport.Set
	reg        *registry.Registry
	router     *relay.Router
	issuer     *claims.Issuer
	resolver   *identity.CachingResolver
	sessOpts   session.Options
	metrics    *metrics.Metrics
	clock      clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu        sync.Mutex
	listeners []transport.Listener
	started   bool
	closed    bool
}

// New 创建服务
//
// 服务把身份服务的解析来源设为本地托管的 persona。
func New(cfg Config, d Deps) (*Server, error) {
	if d.Identity == nil || d.Registry == nil || d.Router == nil || d.Issuer == nil {
		return nil, ErrMissingDependency
	}
	cfg.normalize()
	if d.Clock == nil {
		d.Clock = clock.New()
	}

	opts := d.Session
	opts.Authorize = d.Registry.Authorize
	opts.Identifier = d.Identity.Local().Identifier()
	if opts.Clock == nil {
		opts.Clock = d.Clock
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		ident:      d.Identity,
		local:      d.Identity.Local(),
		transports: d.Transports,
		reg:        d.Registry,
		router:     d.Router,
		issuer:     d.Issuer,
		sessOpts:   opts,
		metrics:    d.Metrics,
		clock:      d.Clock,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.resolver = identity.NewCachingResolver(identity.ResolverFunc(s.resolveHosted), cfg.ResolverCacheSize, cfg.ResolverCacheTTL)
	d.Identity.SetResolver(s.resolver)
	s.metrics.SetPairings(len(d.Registry.Records()))
	return s, nil
}

// Local 返回 home 身份
func (s *Server) Local() types.Identity { return s.local }

// Registry 返回会话与配对登记表
func (s *Server) Registry() *registry.Registry { return s.reg }

// ============================================================================
//                              监听
// ============================================================================

// Start 在配置的地址上监听并开始接受连接
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	if len(s.cfg.ListenAddrs) > 0 && s.transports == nil {
		return fmt.Errorf("%w: transports", ErrMissingDependency)
	}

	var listeners []transport.Listener
	for _, addr := range s.cfg.ListenAddrs {
		l, err := s.transports.Listen(addr)
		if err != nil {
			for _, opened := range listeners {
				err = multierr.Append(err, opened.Close())
			}
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		log.Info("开始监听", "addr", l.Addr())
		listeners = append(listeners, l)
	}

	s.listeners = listeners
	s.started = true
	for _, l := range listeners {
		l := l
		s.group.Go(func() error {
			s.acceptLoop(l)
			return nil
		})
	}
	return nil
}

func (s *Server) acceptLoop(l transport.Listener) {
	for {
		ch, err := l.Accept(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, transport.ErrListenerClosed) {
				log.Warn("接受连接失败", "addr", l.Addr(), "err", err)
			}
			return
		}
		s.group.Go(func() error {
			_, _ = s.ServeChannel(s.ctx, ch)
			return nil
		})
	}
}

// Addrs 返回公布地址；未配置时返回实际监听地址
func (s *Server) Addrs() []types.Address {
	if len(s.cfg.AdvertiseAddrs) > 0 {
		return append([]types.Address(nil), s.cfg.AdvertiseAddrs...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]types.Address, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.Addr())
	}
	return addrs
}

// ============================================================================
//                              会话
// ============================================================================

// ServeChannel 在入站通道上完成握手并开始服务会话
//
// 返回时会话已登记为在线；握手失败时通道已关闭。
func (s *Server) ServeChannel(ctx context.Context, ch transport.Channel) (*session.Session, error) {
	sess, err := session.Accept(ctx, ch, s.ident.PrivateKey(), s.sessOpts)
	s.metrics.Handshake(err)
	if err != nil {
		return nil, err
	}
	if err := s.reg.Attach(sess); err != nil {
		return nil, err
	}
	s.metrics.SessionOpened()
	sess.OnClose(func(reason error) {
		s.metrics.SessionClosed()
		log.Debug("persona 会话结束", "persona", sess.Remote().ID().ShortString(), "session", sess.ID(), "reason", reason)
	})
	if err := sess.Start(&handler{srv: s, sess: sess}); err != nil {
		sess.CloseWithError(err)
		return nil, err
	}
	log.Info("persona 上线",
		"persona", sess.Remote().ID().ShortString(),
		"session", sess.ID(),
		"addr", ch.RemoteAddr())
	return sess, nil
}

// ============================================================================
//                              解析
// ============================================================================

// resolveHosted 在托管的 persona 中按标识查找
func (s *Server) resolveHosted(_ context.Context, identifier string) (*identity.Metadata, error) {
	rec, ok := s.reg.FindByIdentifier(identifier)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrNotFound, identifier)
	}
	return metadataOf(rec), nil
}

// Resolve 按标识解析身份
func (s *Server) Resolve(ctx context.Context, identifier string) (*identity.Metadata, error) {
	md, err := s.ident.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if md.Identity.Equal(s.local) && len(md.Addresses) == 0 {
		md = &identity.Metadata{Identity: s.local, Addresses: s.Addrs()}
	}
	return md, nil
}

func metadataOf(rec *pairing.Record) *identity.Metadata {
	return &identity.Metadata{
		Identity:  rec.Statement.Persona,
		Addresses: append([]types.Address(nil), rec.Statement.Addresses...),
	}
}

// pairingsChanged 更新配对计数并清除 persona 的解析缓存
func (s *Server) pairingsChanged(persona types.Identity) {
	if id := persona.Identifier(); id != "" {
		s.resolver.Invalidate(id)
	}
	s.metrics.SetPairings(len(s.reg.Records()))
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 停止监听，关闭全部会话，并等待连接处理退出
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	s.cancel()
	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	s.reg.CloseAll(muxer.ErrConnClosed)

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()
	timer := s.clock.Timer(s.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Warn("等待连接处理退出超时", "timeout", s.cfg.ShutdownTimeout)
	}
	log.Info("home 服务已关闭", "home", s.local.ID().ShortString())
	return err
}

package persona

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/home"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/registry"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/relay"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/session/sessiontest"
	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/core/transport/tcp"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

// ============================================================================
//                              测试环境
// ============================================================================

var homeAddr = types.MustParseAddress("/ip4/127.0.0.1/tcp/4100")

type env struct {
	srv   *home.Server
	reg   *registry.Registry
	clock clock.Clock
	set   *transport.Set
}

func newEnv(t *testing.T, clk clock.Clock, cfg home.Config, set *transport.Set) *env {
	t.Helper()
	if clk == nil {
		clk = clock.New()
	}
	key := sessiontest.Key(t)
	ident, err := identity.New(key, "home")
	require.NoError(t, err)
	reg := registry.New(ident.Local(), nil, registry.Options{Clock: clk})
	router := relay.NewRouter(relay.DefaultConfig(), reg, claims.NewVerifier(ident.Local()), relay.Options{Clock: clk})
	srv, err := home.New(cfg, home.Deps{
		Identity:   ident,
		Transports: set,
		Registry:   reg,
		Router:     router,
		Issuer:     claims.NewIssuer(key, time.Hour, 24*time.Hour, clk),
		Session:    session.DefaultOptions(),
		Clock:      clk,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = srv.Close()
		_ = router.Close()
	})
	return &env{srv: srv, reg: reg, clock: clk, set: set}
}

func (e *env) client(t *testing.T, key crypto.PrivateKey, identifier string, store pairing.Store) *Client {
	t.Helper()
	if key == nil {
		key = sessiontest.Key(t)
	}
	c, err := New(DefaultConfig(), Deps{
		Key:        key,
		Identifier: identifier,
		Transports: e.set,
		Session:    session.DefaultOptions(),
		Store:      store,
		Clock:      e.clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// connect 在内存管道上把 c 接入 home
func (e *env) connect(t *testing.T, c *Client) *Home {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chP, chH := transport.Pipe("persona", "home")
	errc := make(chan error, 1)
	go func() {
		_, err := e.srv.ServeChannel(ctx, chH)
		errc <- err
	}()
	h, err := c.ConnectChannel(ctx, chP, HomeEntry{Identity: e.srv.Local(), Addrs: []types.Address{homeAddr}})
	require.NoError(t, err)
	require.NoError(t, <-errc)
	return h
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func echoApp(ctx context.Context, call *IncomingCall) ([]byte, error) {
	return append([]byte("echo:"), call.Payload...), nil
}

// ============================================================================
//                              端到端
// ============================================================================

func TestEndToEnd_CallAbsentThenPresent(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)

	p := e.client(t, nil, "p", nil)
	q := e.client(t, nil, "q", nil)
	callers := make(chan types.Identity, 1)
	q.Handle("chat", func(ctx context.Context, call *IncomingCall) ([]byte, error) {
		callers <- call.Caller
		return echoApp(ctx, call)
	})

	hp := e.connect(t, p)
	_, err := hp.Pair(ctx)
	require.NoError(t, err)
	tok, err := hp.Claim(ctx)
	require.NoError(t, err)
	assert.True(t, tok.HasScope(claims.ScopeRelay))

	// Q 未连接
	_, err = hp.Call(ctx, q.Local().ID(), "chat", []byte("hi"))
	require.ErrorIs(t, err, types.ErrCalleeUnavailable)
	assert.True(t, types.Retryable(err))

	e.connect(t, q)
	resp, err := hp.Call(ctx, q.Local().ID(), "chat", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(resp))

	caller := <-callers
	assert.True(t, caller.Equal(p.Local()))
	assert.Equal(t, "p", caller.Identifier())
}

func TestCall_UnknownApp(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	p, q := e.client(t, nil, "", nil), e.client(t, nil, "", nil)
	q.Handle("chat", echoApp)

	hp := e.connect(t, p)
	e.connect(t, q)
	_, err := hp.Pair(ctx)
	require.NoError(t, err)

	_, err = hp.Call(ctx, q.Local().ID(), "video", nil)
	require.ErrorIs(t, err, types.ErrUnknownApp)

	// 兜底处理器
	q.Handle("", echoApp)
	resp, err := hp.Call(ctx, q.Local().ID(), "video", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "echo:x", string(resp))
}

func TestCall_HandlerError(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	p, q := e.client(t, nil, "", nil), e.client(t, nil, "", nil)
	q.Handle("db", func(context.Context, *IncomingCall) ([]byte, error) {
		return nil, fmt.Errorf("%w: no such row", types.ErrNotFound)
	})

	hp := e.connect(t, p)
	e.connect(t, q)
	_, err := hp.Pair(ctx)
	require.NoError(t, err)

	_, err = hp.Call(ctx, q.Local().ID(), "db", nil)
	require.ErrorIs(t, err, types.ErrNotFound)
	assert.False(t, types.Retryable(err))
}

func TestCall_Unpaired(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	p, q := e.client(t, nil, "", nil), e.client(t, nil, "", nil)
	hp := e.connect(t, p)
	e.connect(t, q)

	_, err := hp.Call(ctx, q.Local().ID(), "chat", nil)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestCall_CancelReachesCallee(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	p, q := e.client(t, nil, "", nil), e.client(t, nil, "", nil)
	started := make(chan struct{})
	stopped := make(chan error, 1)
	q.Handle("slow", func(ctx context.Context, _ *IncomingCall) ([]byte, error) {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return nil, ctx.Err()
	})

	hp := e.connect(t, p)
	e.connect(t, q)
	_, err := hp.Pair(testCtx(t))
	require.NoError(t, err)
	_, err = hp.Claim(testCtx(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := hp.Call(ctx, q.Local().ID(), "slow", nil)
		errc <- err
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("call never reached callee")
	}
	cancel()

	require.ErrorIs(t, <-errc, types.ErrCancelled)
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("callee handler not cancelled")
	}
}

func TestCall_CalleeDisconnects(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	p, q := e.client(t, nil, "", nil), e.client(t, nil, "", nil)
	started := make(chan struct{})
	q.Handle("slow", func(ctx context.Context, _ *IncomingCall) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	hp := e.connect(t, p)
	hq := e.connect(t, q)
	_, err := hp.Pair(ctx)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := hp.Call(ctx, q.Local().ID(), "slow", nil)
		errc <- err
	}()
	<-started
	require.NoError(t, hq.Close())

	err = <-errc
	require.ErrorIs(t, err, types.ErrTransportLost)
	assert.True(t, types.Retryable(err))
}

// ============================================================================
//                              会话
// ============================================================================

func TestSession_Supersession(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	key := sessiontest.Key(t)
	first := e.client(t, key, "", nil)
	second := e.client(t, key, "", nil)

	h1 := e.connect(t, first)
	h2 := e.connect(t, second)

	select {
	case <-h1.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("first session not superseded")
	}
	assert.ErrorIs(t, h1.Err(), types.ErrSessionSuperseded)

	require.Eventually(t, func() bool {
		_, ok := first.Home(e.srv.Local().ID())
		return !ok
	}, 3*time.Second, 10*time.Millisecond)

	s, err := e.reg.LookupActiveSession(second.Local().ID())
	require.NoError(t, err)
	assert.Equal(t, h2.Session().ID(), s.ID())

	text, err := h2.Ping(testCtx(t), "still here")
	require.NoError(t, err)
	assert.Equal(t, "still here", text)
}

func TestPairing_UnpairIdempotent(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	p := e.client(t, nil, "", nil)
	hp := e.connect(t, p)

	rec, err := hp.Pair(ctx)
	require.NoError(t, err)
	require.NoError(t, rec.Verify(time.Now()))
	require.Len(t, p.Pairings(), 1)

	require.NoError(t, hp.Unpair(ctx))
	require.NoError(t, hp.Unpair(ctx))
	assert.Empty(t, p.Pairings())
	assert.False(t, e.reg.IsPaired(p.Local().ID()))

	_, err = hp.Claim(ctx)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

// nextEvent 等待下一个事件
func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestRelation_RoundTripThroughHome(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)

	p := e.client(t, nil, "p", nil)
	q := e.client(t, nil, "q", nil)
	hp, hq := e.connect(t, p), e.connect(t, q)
	_, err := hp.Pair(ctx)
	require.NoError(t, err)
	_, err = hq.Pair(ctx)
	require.NoError(t, err)

	half, err := hp.RequestRelation(ctx, q.Local().ID(), "friend")
	require.NoError(t, err)
	assert.Empty(t, half.ToSignature)

	ev := nextEvent(t, q)
	require.Equal(t, PairingRequested, ev.Kind)
	assert.True(t, ev.Relation.Statement.From.Equal(p.Local()))
	assert.Equal(t, "friend", ev.Relation.Statement.Relation)
	assert.Equal(t, hq.ID(), ev.Home.ID())

	full, err := ev.Home.AcceptRelation(ctx, ev.Relation)
	require.NoError(t, err)
	require.NoError(t, full.Verify(time.Now()))

	ev = nextEvent(t, p)
	require.Equal(t, PairingAccepted, ev.Kind)
	require.NoError(t, ev.Relation.Verify(time.Now()))
	assert.Equal(t, full.ToSignature, ev.Relation.ToSignature)

	require.Len(t, p.Relations(), 1)
	require.Len(t, q.Relations(), 1)
	assert.True(t, p.Relations()[0].Statement.To.Equal(q.Local()))
}

func TestRelation_Rejected(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)

	p := e.client(t, nil, "p", nil)
	q := e.client(t, nil, "q", nil)
	hp, hq := e.connect(t, p), e.connect(t, q)
	_, err := hq.Pair(ctx)
	require.NoError(t, err)

	// 未配对的发起方
	_, err = hp.RequestRelation(ctx, q.Local().ID(), "friend")
	require.ErrorIs(t, err, types.ErrUnauthorized)

	// hosted_on_home 只用于与 home 配对
	_, err = hp.Pair(ctx)
	require.NoError(t, err)
	_, err = hp.RequestRelation(ctx, q.Local().ID(), "hosted_on_home")
	require.ErrorIs(t, err, pairing.ErrWrongRelation)

	// 被请求方离线
	require.NoError(t, hq.Close())
	require.Eventually(t, func() bool {
		return e.reg.Presence(q.Local().ID()) == registry.Absent
	}, 5*time.Second, 10*time.Millisecond)
	_, err = hp.RequestRelation(ctx, q.Local().ID(), "friend")
	require.ErrorIs(t, err, types.ErrNotPresent)

	select {
	case ev := <-q.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
}

func TestClaim_CachedAndRefreshed(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := newEnv(t, mock, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	p := e.client(t, nil, "", nil)
	hp := e.connect(t, p)
	_, err := hp.Pair(ctx)
	require.NoError(t, err)

	first, err := hp.Claim(ctx)
	require.NoError(t, err)
	again, err := hp.Claim(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	cfg := p.Config()
	mock.Add(cfg.ClaimTTL - cfg.ClaimRefreshBefore + time.Second)
	refreshed, err := hp.Claim(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, refreshed)
	assert.True(t, refreshed.Expiry.After(first.Expiry))
}

func TestResolve_ThroughHome(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	p := e.client(t, nil, "alice", nil)
	q := e.client(t, nil, "", nil)
	hp := e.connect(t, p)
	hq := e.connect(t, q)
	_, err := hp.Pair(ctx)
	require.NoError(t, err)

	md, err := q.Resolver().Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, md.Identity.Equal(p.Local()))
	require.Len(t, md.Addresses, 1)
	assert.True(t, md.Addresses[0].Equal(homeAddr))

	md, err = hq.ResolveID(ctx, p.Local().ID())
	require.NoError(t, err)
	assert.True(t, md.Identity.Equal(p.Local()))

	_, err = hq.Resolve(ctx, "nobody")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestClient_LoadPairings(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	key := sessiontest.Key(t)
	store := pairing.NewMemoryStore()

	p := e.client(t, key, "", store)
	hp := e.connect(t, p)
	_, err := hp.Pair(ctx)
	require.NoError(t, err)

	// 不属于该 persona 的记录在加载时丢弃
	other := sessiontest.Key(t)
	st := pairing.NewStatement(sessiontest.Identity(t, other, ""), e.srv.Local(), nil, time.Now(), 0)
	foreign, err := pairing.SignAsPersona(other, st)
	require.NoError(t, err)
	foreign.HomeSignature = []byte("bogus")
	require.NoError(t, store.Put(foreign))

	restarted := e.client(t, key, "", store)
	n, err := restarted.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	recs := restarted.Pairings()
	require.Len(t, recs, 1)
	assert.Equal(t, e.srv.Local().ID(), recs[0].HomeID())

	left, err := store.List()
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestClient_PrimaryFollowsPairing(t *testing.T) {
	e1 := newEnv(t, nil, home.DefaultConfig(), nil)
	e2 := newEnv(t, nil, home.DefaultConfig(), nil)
	ctx := testCtx(t)
	key := sessiontest.Key(t)

	p := e1.client(t, key, "", nil)
	_, err := p.Primary()
	require.ErrorIs(t, err, ErrNotConnected)

	h1 := e1.connect(t, p)
	h2 := e2.connect(t, p)
	_, err = h1.Pair(ctx)
	require.NoError(t, err)
	_, err = h2.Pair(ctx)
	require.NoError(t, err)

	primary, err := p.Primary()
	require.NoError(t, err)
	assert.Equal(t, h1.ID(), primary.ID())

	require.NoError(t, p.SetPrimary(h2.ID()))
	primary, err = p.Primary()
	require.NoError(t, err)
	assert.Equal(t, h2.ID(), primary.ID())

	// 首选 home 离线时退回其他配对的 home
	require.NoError(t, h2.Close())
	require.Eventually(t, func() bool {
		primary, err := p.Primary()
		return err == nil && primary.ID() == h1.ID()
	}, 3*time.Second, 10*time.Millisecond)
}

// ============================================================================
//                              连接
// ============================================================================

func TestConnect_TriesAddressesInOrder(t *testing.T) {
	set := transport.NewSet(tcp.New(tcp.DefaultConfig()))
	t.Cleanup(func() { _ = set.Close() })
	cfg := home.DefaultConfig()
	cfg.ListenAddrs = []types.Address{types.MustParseAddress("/ip4/127.0.0.1/tcp/0")}
	e := newEnv(t, nil, cfg, set)
	require.NoError(t, e.srv.Start())
	live := e.srv.Addrs()
	require.Len(t, live, 1)

	// 先占用再释放一个端口，得到没有监听者的地址
	l, err := set.Listen(types.MustParseAddress("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	dead := l.Addr()
	require.NoError(t, l.Close())

	p := e.client(t, nil, "", nil)
	h, err := p.Connect(testCtx(t), HomeEntry{Identity: e.srv.Local(), Addrs: []types.Address{dead, live[0]}})
	require.NoError(t, err)
	assert.Equal(t, e.srv.Local().ID(), h.ID())
	assert.Len(t, h.Addrs(), 2)

	text, err := h.Ping(testCtx(t), "tcp")
	require.NoError(t, err)
	assert.Equal(t, "tcp", text)
}

func TestConnect_WrongHomeIdentity(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	p := e.client(t, nil, "", nil)

	chP, chH := transport.Pipe("persona", "home")
	go func() { _, _ = e.srv.ServeChannel(context.Background(), chH) }()

	impostor := sessiontest.Identity(t, sessiontest.Key(t), "")
	_, err := p.ConnectChannel(testCtx(t), chP, HomeEntry{Identity: impostor})
	require.ErrorIs(t, err, types.ErrHandshakeFailed)
}

func TestConnect_NoAddresses(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	p := e.client(t, nil, "", nil)
	_, err := p.Connect(testCtx(t), HomeEntry{})
	require.ErrorIs(t, err, ErrNoAddresses)
}

func TestClient_Closed(t *testing.T) {
	e := newEnv(t, nil, home.DefaultConfig(), nil)
	p := e.client(t, nil, "", nil)
	h := e.connect(t, p)
	require.NoError(t, p.Close())

	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("home session not closed")
	}
	chP, _ := transport.Pipe("persona", "home")
	_, err := p.ConnectChannel(testCtx(t), chP, HomeEntry{})
	require.ErrorIs(t, err, ErrClientClosed)
	assert.False(t, errors.Is(err, ErrNoAddresses))
}

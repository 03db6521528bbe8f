package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/registry"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/session/sessiontest"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// callee 被叫 persona 侧的请求处理器
type callee struct {
	respond   func(c *muxer.Conn, id uint64, call *home.IncomingCall)
	arrived   chan uint64
	cancelled chan uint64
}

func (h *callee) HandleRequest(ctx context.Context, c *muxer.Conn, req muxer.Request) {
	msg, err := home.UnmarshalRequest(req.Payload)
	if err != nil || msg.IncomingCall == nil {
		_ = c.RespondError(ctx, req.ID, types.ErrInvalidRequest)
		return
	}
	if h.arrived != nil {
		h.arrived <- msg.IncomingCall.CallID
	}
	if h.respond != nil {
		h.respond(c, req.ID, msg.IncomingCall)
	}
}

func (h *callee) HandleCancel(_ *muxer.Conn, id uint64) {
	if h.cancelled != nil {
		h.cancelled <- id
	}
}

// echo 原样回显负载
func echo(c *muxer.Conn, id uint64, call *home.IncomingCall) {
	resp := &home.CallResponse{CallID: call.CallID, Payload: append([]byte("echo:"), call.Payload...)}
	_ = c.Respond(context.Background(), id, resp.Marshal())
}

type reply struct {
	payload []byte
	err     error
}

func collect() (ReplyFunc, chan reply) {
	ch := make(chan reply, 64)
	return func(p []byte, err error) { ch <- reply{p, err} }, ch
}

func waitID(t *testing.T, ch chan uint64) uint64 {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
		return 0
	}
}

func waitReply(t *testing.T, ch chan reply) reply {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("no reply")
		return reply{}
	}
}

type env struct {
	homeKey crypto.PrivateKey
	home    types.Identity
	reg     *registry.Registry
	issuer  *claims.Issuer
	clock   *clock.Mock
	router  *Router
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	key := sessiontest.Key(t)
	e := &env{
		homeKey: key,
		home:    sessiontest.Identity(t, key, ""),
		clock:   clock.NewMock(),
	}
	e.clock.Set(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	e.reg = registry.New(e.home, nil, registry.Options{Clock: e.clock})
	e.issuer = claims.NewIssuer(key, time.Hour, 24*time.Hour, e.clock)
	e.router = NewRouter(cfg, e.reg, claims.NewVerifier(e.home), Options{Clock: e.clock})
	t.Cleanup(func() { e.router.Close() })
	return e
}

// connect 建立 persona 到 home 的会话并登记，返回 (persona 侧, home 侧)
func (e *env) connect(t *testing.T, key crypto.PrivateKey, h muxer.Handler) (*session.Session, *session.Session) {
	t.Helper()
	ps, hs := sessiontest.EstablishDefault(t, key, e.homeKey)
	require.NoError(t, ps.Start(h))
	require.NoError(t, hs.Start(nil))
	require.NoError(t, e.reg.Attach(hs))
	return ps, hs
}

func (e *env) claim(t *testing.T, subject types.Identity) *claims.Token {
	t.Helper()
	tok, err := e.issuer.Issue(subject, []string{claims.ScopeRelay}, 0)
	require.NoError(t, err)
	return tok
}

func (e *env) request(t *testing.T, caller *session.Session, callee types.IdentityID, id uint64, payload string) *Request {
	return &Request{
		Caller:  caller,
		CallID:  id,
		Callee:  callee,
		Claim:   e.claim(t, caller.Remote()),
		App:     "chat",
		Payload: []byte(payload),
	}
}

// ============================================================================
//                              成功路径
// ============================================================================

func TestRouter_RelayResponds(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	aliceKey, bobKey := sessiontest.Key(t), sessiontest.Key(t)

	var gotCaller types.Identity
	var gotApp string
	_, alice := e.connect(t, aliceKey, nil)
	_, bob := e.connect(t, bobKey, &callee{respond: func(c *muxer.Conn, id uint64, call *home.IncomingCall) {
		gotCaller, _ = types.ParseIdentity(call.Caller)
		gotApp = call.App
		echo(c, id, call)
	}})

	fn, ch := collect()
	call, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "hi"), fn)
	require.NoError(t, err)

	r := waitReply(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, "echo:hi", string(r.payload))
	assert.Equal(t, CallResponded, call.State())
	assert.True(t, gotCaller.Equal(alice.Remote()))
	assert.Equal(t, "chat", gotApp)

	st := e.router.Stats()
	assert.Equal(t, int64(1), st.Forwarded)
	assert.Equal(t, int64(1), st.Responded)
	assert.Zero(t, st.Pending)
}

func TestRouter_ResponsesKeepOrder(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{respond: echo})

	fn, ch := collect()
	const n = 20
	for i := 1; i <= n; i++ {
		_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), uint64(i), fmt.Sprint(i)), fn)
		require.NoError(t, err)
	}
	for i := 1; i <= n; i++ {
		r := waitReply(t, ch)
		require.NoError(t, r.err)
		assert.Equal(t, fmt.Sprintf("echo:%d", i), string(r.payload))
	}
}

// ============================================================================
//                              拒绝：不创建状态
// ============================================================================

func TestRouter_Unauthorized(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{respond: echo})
	bobID := bob.Remote().ID()

	foreignKey := sessiontest.Key(t)
	foreign, err := claims.Issue(foreignKey, alice.Remote(), []string{claims.ScopeRelay}, time.Hour, e.clock.Now())
	require.NoError(t, err)
	narrow, err := e.issuer.Issue(alice.Remote(), []string{"read"}, 0)
	require.NoError(t, err)

	cases := []struct {
		name  string
		claim *claims.Token
		want  error
	}{
		{"missing", nil, ErrMissingClaim},
		{"unknown issuer", foreign, types.ErrUnknownIssuer},
		{"insufficient scope", narrow, types.ErrInsufficientScope},
		{"subject mismatch", e.claim(t, bob.Remote()), ErrSubjectMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := e.request(t, alice, bobID, 1, "x")
			req.Claim = tc.claim
			fn, ch := collect()
			call, err := e.router.Relay(context.Background(), req, fn)
			assert.Nil(t, call)
			assert.ErrorIs(t, err, types.ErrUnauthorized)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, ch)
		})
	}

	assert.Zero(t, e.router.Stats().Forwarded)
	assert.Equal(t, int64(len(cases)), e.router.Stats().Rejected)
}

func TestRouter_ExpiredClaim(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{respond: echo})

	req := e.request(t, alice, bob.Remote().ID(), 1, "x")
	e.clock.Add(2 * time.Hour)

	_, err := e.router.Relay(context.Background(), req, func([]byte, error) {})
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.ErrorIs(t, err, types.ErrExpired)
	assert.False(t, types.Retryable(err))
}

func TestRouter_CalleeUnavailable(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	absent := sessiontest.Identity(t, sessiontest.Key(t), "").ID()

	_, err := e.router.Relay(context.Background(), e.request(t, alice, absent, 1, "x"), func([]byte, error) {})
	assert.ErrorIs(t, err, types.ErrCalleeUnavailable)
	assert.True(t, types.Retryable(err))
	assert.Zero(t, e.router.Stats().Pending)
}

func TestRouter_DuplicateCallID(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{})

	_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 7, "a"), func([]byte, error) {})
	require.NoError(t, err)
	_, err = e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 7, "b"), func([]byte, error) {})
	assert.ErrorIs(t, err, types.ErrDuplicateCallID)
}

func TestRouter_TooManyCalls(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPendingPerSession = 2
	e := newEnv(t, cfg)
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{})

	for i := uint64(1); i <= 2; i++ {
		_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), i, "x"), func([]byte, error) {})
		require.NoError(t, err)
	}
	_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 3, "x"), func([]byte, error) {})
	assert.ErrorIs(t, err, types.ErrTooManyCalls)
}

func TestRouter_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 2
	e := newEnv(t, cfg)
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{respond: echo})

	relay := func(id uint64) error {
		_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), id, "x"), func([]byte, error) {})
		return err
	}
	require.NoError(t, relay(1))
	require.NoError(t, relay(2))
	assert.ErrorIs(t, relay(3), types.ErrRateLimited)

	// 令牌按 mock 时钟补充
	e.clock.Add(time.Second)
	assert.NoError(t, relay(4))
}

// ============================================================================
//                              失败与取消
// ============================================================================

func TestRouter_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CallTimeout = 5 * time.Second
	e := newEnv(t, cfg)
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	arrived, cancelled := make(chan uint64, 1), make(chan uint64, 1)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{arrived: arrived, cancelled: cancelled})

	fn, ch := collect()
	call, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "x"), fn)
	require.NoError(t, err)
	assert.Equal(t, CallForwarded, call.State())
	waitID(t, arrived)

	e.clock.Add(5 * time.Second)
	r := waitReply(t, ch)
	assert.ErrorIs(t, r.err, types.ErrCallTimeout)
	assert.Equal(t, CallFailed, call.State())
	waitID(t, cancelled)
}

func TestRouter_CallIDMismatch(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{respond: func(c *muxer.Conn, id uint64, call *home.IncomingCall) {
		resp := &home.CallResponse{CallID: call.CallID + 100}
		_ = c.Respond(context.Background(), id, resp.Marshal())
	}})

	fn, ch := collect()
	call, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "x"), fn)
	require.NoError(t, err)

	r := waitReply(t, ch)
	assert.ErrorIs(t, r.err, types.ErrCallIDMismatch)
	assert.Equal(t, CallFailed, call.State())
}

func TestRouter_CalleeError(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{respond: func(c *muxer.Conn, id uint64, _ *home.IncomingCall) {
		_ = c.RespondError(context.Background(), id, types.ErrUnknownApp)
	}})

	fn, ch := collect()
	_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "x"), fn)
	require.NoError(t, err)
	assert.ErrorIs(t, waitReply(t, ch).err, types.ErrUnknownApp)
}

func TestRouter_CalleeSuperseded(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	bobKey := sessiontest.Key(t)
	_, bob := e.connect(t, bobKey, &callee{})

	fn, ch := collect()
	_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "x"), fn)
	require.NoError(t, err)

	// bob 重新连接，旧会话被取代
	e.connect(t, bobKey, &callee{})
	r := waitReply(t, ch)
	assert.ErrorIs(t, r.err, types.ErrSessionSuperseded)
	assert.True(t, types.Retryable(r.err))
}

func TestRouter_CalleeLost(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	bobPersona, bob := e.connect(t, sessiontest.Key(t), &callee{})

	fn, ch := collect()
	_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "x"), fn)
	require.NoError(t, err)

	bobPersona.Close()
	assert.ErrorIs(t, waitReply(t, ch).err, types.ErrTransportLost)
}

func TestRouter_Cancel(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	arrived, cancelled := make(chan uint64, 1), make(chan uint64, 1)
	var (
		mu   sync.Mutex
		late func()
	)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{
		arrived:   arrived,
		cancelled: cancelled,
		respond: func(c *muxer.Conn, id uint64, call *home.IncomingCall) {
			mu.Lock()
			late = func() { echo(c, id, call) }
			mu.Unlock()
		},
	})

	fn, ch := collect()
	call, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "x"), fn)
	require.NoError(t, err)
	waitID(t, arrived)

	assert.True(t, e.router.Cancel(alice, 1))
	assert.False(t, e.router.Cancel(alice, 1))
	assert.ErrorIs(t, waitReply(t, ch).err, types.ErrCancelled)
	assert.Equal(t, CallCancelled, call.State())
	waitID(t, cancelled)

	// 迟到的响应被丢弃
	mu.Lock()
	late()
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ch)
	assert.Equal(t, int64(1), e.router.Stats().Cancelled)
}

func TestRouter_CallerClosed(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	arrived, cancelled := make(chan uint64, 4), make(chan uint64, 4)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{arrived: arrived, cancelled: cancelled})

	fn, ch := collect()
	for i := uint64(1); i <= 3; i++ {
		_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), i, "x"), fn)
		require.NoError(t, err)
		waitID(t, arrived)
	}

	alice.Close()
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, waitReply(t, ch).err, types.ErrCancelled)
	}
	assert.Zero(t, e.router.Stats().Pending)
	for i := 0; i < 3; i++ {
		waitID(t, cancelled)
	}
}

func TestRouter_CallerLost(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	arrived, cancelled := make(chan uint64, 1), make(chan uint64, 1)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{arrived: arrived, cancelled: cancelled})

	fn, ch := collect()
	call, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "x"), fn)
	require.NoError(t, err)
	waitID(t, arrived)

	alice.CloseWithError(fmt.Errorf("%w: link down", types.ErrTransportLost))
	r := waitReply(t, ch)
	assert.ErrorIs(t, r.err, types.ErrTransportLost)
	assert.NotErrorIs(t, r.err, types.ErrCancelled)
	assert.Equal(t, CallFailed, call.State())
	assert.ErrorIs(t, call.Err(), types.ErrTransportLost)
	waitID(t, cancelled)

	st := e.router.Stats()
	assert.Equal(t, int64(1), st.Failed)
	assert.Zero(t, st.Cancelled)
	assert.Zero(t, st.Pending)
}

func TestRouter_CalleeKeepaliveExpired(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)

	// home 侧的被叫会话使用独立的模拟时钟；persona 侧从不启动，不会应答 Ping
	muxClock := clock.NewMock()
	ropts := session.DefaultOptions()
	ropts.Clock = muxClock
	ropts.Mux.Clock = muxClock
	ropts.Mux.KeepaliveInterval = 15 * time.Second
	ropts.Mux.MaxMissedKeepalives = 3
	_, bob := sessiontest.Establish(t, sessiontest.Key(t), e.homeKey, session.DefaultOptions(), ropts)
	require.NoError(t, bob.Start(nil))
	require.NoError(t, e.reg.Attach(bob))
	bobID := bob.Remote().ID()
	require.Equal(t, registry.Present, e.reg.Presence(bobID))

	fn, ch := collect()
	call, err := e.router.Relay(context.Background(), e.request(t, alice, bobID, 1, "x"), fn)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		muxClock.Add(ropts.Mux.KeepaliveInterval)
		return bob.Err() != nil
	}, 3*time.Second, 10*time.Millisecond)

	r := waitReply(t, ch)
	assert.ErrorIs(t, r.err, types.ErrTransportLost)
	assert.Equal(t, CallFailed, call.State())
	require.Eventually(t, func() bool {
		return e.reg.Presence(bobID) == registry.Absent
	}, time.Second, 10*time.Millisecond)
	_, err = e.reg.LookupActiveSession(bobID)
	assert.ErrorIs(t, err, types.ErrNotPresent)
}

func TestRouter_Closed(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	_, alice := e.connect(t, sessiontest.Key(t), nil)
	_, bob := e.connect(t, sessiontest.Key(t), &callee{})
	require.NoError(t, e.router.Close())

	_, err := e.router.Relay(context.Background(), e.request(t, alice, bob.Remote().ID(), 1, "x"), func([]byte, error) {})
	assert.ErrorIs(t, err, ErrRouterClosed)
}

package home

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/metrics"
	"github.com/dep2p/go-home/internal/core/registry"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/relay"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/session/sessiontest"
	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/core/transport/tcp"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	pb "github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type testHome struct {
	srv     *Server
	key     crypto.PrivateKey
	reg     *registry.Registry
	router  *relay.Router
	metrics *metrics.Metrics
}

func newTestHome(t *testing.T, cfg Config, set *transport.Set) *testHome {
	t.Helper()
	key := sessiontest.Key(t)
	ident, err := identity.New(key, "home.test")
	require.NoError(t, err)

	m := metrics.New()
	reg := registry.New(ident.Local(), nil, registry.Options{})
	router := relay.NewRouter(relay.DefaultConfig(), reg, claims.NewVerifier(ident.Local()), relay.Options{Metrics: m})
	srv, err := New(cfg, Deps{
		Identity:   ident,
		Transports: set,
		Registry:   reg,
		Router:     router,
		Issuer:     claims.NewIssuer(key, time.Hour, 24*time.Hour, nil),
		Session:    session.DefaultOptions(),
		Metrics:    m,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = srv.Close()
		_ = router.Close()
	})
	return &testHome{srv: srv, key: key, reg: reg, router: router, metrics: m}
}

// connect 在内存管道上接入一个 persona，返回已启动的 persona 侧会话
func (h *testHome) connect(t *testing.T, key crypto.PrivateKey, identifier string) *session.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chP, chH := transport.Pipe("persona", "home")
	errc := make(chan error, 1)
	go func() {
		_, err := h.srv.ServeChannel(ctx, chH)
		errc <- err
	}()
	opts := session.DefaultOptions()
	opts.Identifier = identifier
	s, err := session.Initiate(ctx, chP, key, opts)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	require.NoError(t, s.Start(nil))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func request(t *testing.T, s *session.Session, req *pb.Request) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Call(ctx, req.Marshal())
}

// pair 以 persona 身份完成配对
func pair(t *testing.T, h *testHome, s *session.Session, key crypto.PrivateKey, ttl time.Duration) *pairing.Record {
	t.Helper()
	st := pairing.NewStatement(s.Local(), s.Remote(), []types.Address{types.MustParseAddress("/ip4/127.0.0.1/tcp/4100")}, time.Now(), ttl)
	rec, err := pairing.SignAsPersona(key, st)
	require.NoError(t, err)
	payload, err := request(t, s, &pb.Request{Pair: rec.Request()})
	require.NoError(t, err)
	resp, err := pb.UnmarshalPairResponse(payload)
	require.NoError(t, err)
	rec.HomeSignature = resp.HomeSignature
	require.NoError(t, rec.Verify(time.Now()))
	return rec
}

// ============================================================================
//                              测试
// ============================================================================

func TestServer_Ping(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	s := h.connect(t, sessiontest.Key(t), "")

	payload, err := request(t, s, &pb.Request{Ping: &pb.Ping{Text: "hello"}})
	require.NoError(t, err)
	resp, err := pb.UnmarshalPing(payload)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, registry.Present, h.reg.Presence(s.Local().ID()))
}

func TestServer_PairAndClaim(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "alice")

	_, err := request(t, s, &pb.Request{Claim: &pb.ClaimRequest{}})
	require.ErrorIs(t, err, types.ErrUnauthorized)

	pair(t, h, s, key, 0)
	assert.True(t, h.reg.IsPaired(s.Local().ID()))

	payload, err := request(t, s, &pb.Request{Claim: &pb.ClaimRequest{TTL: int64(time.Minute)}})
	require.NoError(t, err)
	resp, err := pb.UnmarshalClaimResponse(payload)
	require.NoError(t, err)
	tok, err := claims.ParseToken(resp.Token)
	require.NoError(t, err)

	assert.True(t, tok.Subject.Equal(s.Local()))
	assert.True(t, tok.Issuer.Equal(h.srv.Local()))
	assert.True(t, tok.HasScope(claims.ScopeRelay))
	require.NoError(t, claims.NewVerifier(h.srv.Local()).Verify(tok, time.Now()))
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.Expiry, 5*time.Second)
}

func TestServer_PairRejectsOtherPersona(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "")

	other := sessiontest.Key(t)
	st := pairing.NewStatement(sessiontest.Identity(t, other, ""), s.Remote(), nil, time.Now(), 0)
	rec, err := pairing.SignAsPersona(other, st)
	require.NoError(t, err)

	_, err = request(t, s, &pb.Request{Pair: rec.Request()})
	require.ErrorIs(t, err, types.ErrUnauthorized)
	assert.False(t, h.reg.IsPaired(st.Persona.ID()))
}

func TestServer_PairRejectsBadSignature(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "")

	st := pairing.NewStatement(s.Local(), s.Remote(), nil, time.Now(), 0)
	rec, err := pairing.SignAsPersona(key, st)
	require.NoError(t, err)
	rec.PersonaSignature[0] ^= 0xff

	_, err = request(t, s, &pb.Request{Pair: rec.Request()})
	require.ErrorIs(t, err, types.ErrProofInvalid)
}

func TestServer_PairingTTLLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PairingTTL = time.Hour
	h := newTestHome(t, cfg, nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "")

	for _, ttl := range []time.Duration{0, 2 * time.Hour} {
		st := pairing.NewStatement(s.Local(), s.Remote(), nil, time.Now(), ttl)
		rec, err := pairing.SignAsPersona(key, st)
		require.NoError(t, err)
		_, err = request(t, s, &pb.Request{Pair: rec.Request()})
		require.ErrorIs(t, err, types.ErrInvalidRequest, "ttl %s", ttl)
	}

	pair(t, h, s, key, 30*time.Minute)
	assert.True(t, h.reg.IsPaired(s.Local().ID()))
}

func TestServer_PairingTTLClockSkew(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PairingTTL = time.Hour
	cfg.PairingClockSkew = time.Minute
	h := newTestHome(t, cfg, nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "")

	// persona 时钟快 2 分钟，超出容忍范围
	st := pairing.NewStatement(s.Local(), s.Remote(), nil, time.Now().Add(2*time.Minute), cfg.PairingTTL)
	rec, err := pairing.SignAsPersona(key, st)
	require.NoError(t, err)
	_, err = request(t, s, &pb.Request{Pair: rec.Request()})
	require.ErrorIs(t, err, types.ErrInvalidRequest)

	// 快 20 秒且申请完整有效期时接受
	st = pairing.NewStatement(s.Local(), s.Remote(), nil, time.Now().Add(20*time.Second), cfg.PairingTTL)
	rec, err = pairing.SignAsPersona(key, st)
	require.NoError(t, err)
	_, err = request(t, s, &pb.Request{Pair: rec.Request()})
	require.NoError(t, err)
	assert.True(t, h.reg.IsPaired(s.Local().ID()))
}

func TestServer_RelationSenderMustBeSessionPeer(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "")
	pair(t, h, s, key, 0)

	// 半证明由另一个 persona 签署，经 s 转发
	other := sessiontest.Key(t)
	from, err := types.IdentityFromPrivateKey(other, "")
	require.NoError(t, err)
	half, err := pairing.SignRelation(other, pairing.NewRelationStatement("friend", from, s.Local(), time.Now(), 0))
	require.NoError(t, err)
	_, err = request(t, s, &pb.Request{RelationRequest: half.Request()})
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestServer_UnpairIdempotent(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "")
	pair(t, h, s, key, 0)

	for i := 0; i < 2; i++ {
		_, err := request(t, s, &pb.Request{Unpair: &pb.UnpairRequest{}})
		require.NoError(t, err)
		assert.False(t, h.reg.IsPaired(s.Local().ID()))
	}
	// 会话保持在线
	assert.Equal(t, registry.Present, h.reg.Presence(s.Local().ID()))
}

func TestServer_Resolve(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "alice")
	rec := pair(t, h, s, key, 0)

	decode := func(payload []byte) (types.Identity, []types.Address) {
		resp, err := pb.UnmarshalResolveResponse(payload)
		require.NoError(t, err)
		id, err := types.ParseIdentity(resp.Identity)
		require.NoError(t, err)
		var addrs []types.Address
		for _, raw := range resp.Addresses {
			a, err := types.AddressFromBytes(raw)
			require.NoError(t, err)
			addrs = append(addrs, a)
		}
		return id, addrs
	}

	payload, err := request(t, s, &pb.Request{Resolve: &pb.ResolveRequest{Identifier: "alice"}})
	require.NoError(t, err)
	id, addrs := decode(payload)
	assert.True(t, id.Equal(s.Local()))
	require.Len(t, addrs, 1)
	assert.True(t, addrs[0].Equal(rec.Statement.Addresses[0]))

	payload, err = request(t, s, &pb.Request{Resolve: &pb.ResolveRequest{ID: s.Local().ID().Bytes()}})
	require.NoError(t, err)
	id, _ = decode(payload)
	assert.True(t, id.Equal(s.Local()))

	payload, err = request(t, s, &pb.Request{Resolve: &pb.ResolveRequest{Identifier: "home.test"}})
	require.NoError(t, err)
	id, _ = decode(payload)
	assert.True(t, id.Equal(h.srv.Local()))

	_, err = request(t, s, &pb.Request{Resolve: &pb.ResolveRequest{Identifier: "bob"}})
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = request(t, s, &pb.Request{Resolve: &pb.ResolveRequest{}})
	require.ErrorIs(t, err, types.ErrInvalidRequest)

	// 解除配对后缓存失效
	_, err = request(t, s, &pb.Request{Unpair: &pb.UnpairRequest{}})
	require.NoError(t, err)
	_, err = request(t, s, &pb.Request{Resolve: &pb.ResolveRequest{Identifier: "alice"}})
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestServer_RejectsPersonaOnlyRequests(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	s := h.connect(t, sessiontest.Key(t), "")

	_, err := request(t, s, &pb.Request{IncomingCall: &pb.IncomingCall{CallID: 1}})
	require.ErrorIs(t, err, types.ErrInvalidRequest)

	_, err = request(t, s, &pb.Request{})
	require.Error(t, err)
}

func TestServer_CallUnauthorized(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "")
	callee := sessiontest.Identity(t, sessiontest.Key(t), "")

	// 自签凭证的签发者不受信任
	tok, err := claims.Issue(key, s.Local(), []string{claims.ScopeRelay}, time.Hour, time.Now())
	require.NoError(t, err)
	_, err = request(t, s, &pb.Request{Call: &pb.CallRequest{Callee: callee.ID().Bytes(), Claim: tok.Bytes()}})
	require.ErrorIs(t, err, types.ErrUnknownIssuer)

	_, err = request(t, s, &pb.Request{Call: &pb.CallRequest{Callee: callee.ID().Bytes(), Claim: []byte("junk")}})
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestServer_CallRelayed(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	pKey, qKey := sessiontest.Key(t), sessiontest.Key(t)
	p := h.connect(t, pKey, "")
	pair(t, h, p, pKey, 0)

	// Q 在线但不处理请求：连接以 ErrInvalidRequest 应答入站调用
	q := h.connect(t, qKey, "")

	payload, err := request(t, p, &pb.Request{Claim: &pb.ClaimRequest{}})
	require.NoError(t, err)
	resp, err := pb.UnmarshalClaimResponse(payload)
	require.NoError(t, err)

	_, err = request(t, p, &pb.Request{Call: &pb.CallRequest{
		Callee:  q.Local().ID().Bytes(),
		Claim:   resp.Token,
		App:     "chat",
		Payload: []byte("hi"),
	}})
	require.ErrorIs(t, err, types.ErrInvalidRequest)

	_, err = request(t, p, &pb.Request{Call: &pb.CallRequest{
		Callee: sessiontest.Identity(t, sessiontest.Key(t), "").ID().Bytes(),
		Claim:  resp.Token,
	}})
	require.ErrorIs(t, err, types.ErrCalleeUnavailable)
	assert.True(t, types.Retryable(err))
}

func TestServer_Metrics(t *testing.T) {
	h := newTestHome(t, DefaultConfig(), nil)
	key := sessiontest.Key(t)
	s := h.connect(t, key, "")
	pair(t, h, s, key, 0)

	n, err := testutil.GatherAndCount(h.metrics.Registry(), "home_requests_total", "home_handshakes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	families, err := h.metrics.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "home_pairings" {
			assert.Equal(t, 1.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestServer_ListenTCP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddrs = []types.Address{types.MustParseAddress("/ip4/127.0.0.1/tcp/0")}
	set := transport.NewSet(tcp.New(tcp.DefaultConfig()))
	t.Cleanup(func() { _ = set.Close() })
	h := newTestHome(t, cfg, set)

	require.NoError(t, h.srv.Start())
	require.ErrorIs(t, h.srv.Start(), ErrAlreadyStarted)
	addrs := h.srv.Addrs()
	require.Len(t, addrs, 1)
	require.NotZero(t, addrs[0].Port())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := set.Dial(ctx, addrs[0])
	require.NoError(t, err)
	opts := session.DefaultOptions()
	opts.ExpectedRemote = h.srv.Local().ID()
	s, err := session.Initiate(ctx, ch, sessiontest.Key(t), opts)
	require.NoError(t, err)
	require.NoError(t, s.Start(nil))

	require.Eventually(t, func() bool {
		return h.reg.Presence(s.Local().ID()) == registry.Present
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, h.srv.Close())
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session not closed on shutdown")
	}
	assert.ErrorIs(t, h.srv.Start(), ErrServerClosed)
}

func TestServer_AdvertiseAddrs(t *testing.T) {
	cfg := DefaultConfig()
	adv := types.MustParseAddress("/dns4/home.example/tcp/4100")
	cfg.AdvertiseAddrs = []types.Address{adv}
	h := newTestHome(t, cfg, nil)

	md, err := h.srv.Resolve(context.Background(), "home.test")
	require.NoError(t, err)
	require.Len(t, md.Addresses, 1)
	assert.True(t, md.Addresses[0].Equal(adv))
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	require.ErrorIs(t, err, ErrMissingDependency)
}

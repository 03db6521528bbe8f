package persona

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/session"
	pb "github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// Home 与一个 home 的会话
type Home struct {
	client *Client
	sess   *session.Session
	addrs  []types.Address

	mu    sync.Mutex
	claim *claims.Token
}

func newHome(c *Client, sess *session.Session, addrs []types.Address) *Home {
	return &Home{client: c, sess: sess, addrs: append([]types.Address(nil), addrs...)}
}

// ID 返回 home 身份 ID
func (h *Home) ID() types.IdentityID { return h.sess.Remote().ID() }

// Identity 返回 home 身份
func (h *Home) Identity() types.Identity { return h.sess.Remote() }

// Session 返回底层会话
func (h *Home) Session() *session.Session { return h.sess }

// Addrs 返回连接时使用的地址列表
func (h *Home) Addrs() []types.Address { return append([]types.Address(nil), h.addrs...) }

// Done 会话结束时关闭
func (h *Home) Done() <-chan struct{} { return h.sess.Done() }

// Err 返回会话结束原因
func (h *Home) Err() error { return h.sess.Err() }

// Close 关闭会话
func (h *Home) Close() error { return h.sess.Close() }

func (h *Home) request(ctx context.Context, req *pb.Request) ([]byte, error) {
	return h.sess.Call(ctx, req.Marshal())
}

// ============================================================================
//                              配对
// ============================================================================

// Pair 与 home 配对
//
// 签署配对声明并请求 home 会签；会签通过校验后保存记录。
func (h *Home) Pair(ctx context.Context) (*pairing.Record, error) {
	c := h.client
	now := c.clock.Now()
	st := pairing.NewStatement(c.local, h.Identity(), h.addrs, now, c.cfg.PairingTTL)
	rec, err := pairing.SignAsPersona(c.key, st)
	if err != nil {
		return nil, err
	}

	payload, err := h.request(ctx, &pb.Request{Pair: rec.Request()})
	if err != nil {
		return nil, err
	}
	resp, err := pb.UnmarshalPairResponse(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	rec.HomeSignature = resp.HomeSignature
	if err := rec.Verify(now); err != nil {
		return nil, err
	}
	if err := c.remember(rec); err != nil {
		return nil, err
	}
	log.Info("已与 home 配对", "home", h.ID().ShortString())
	return rec, nil
}

// Unpair 解除与 home 的配对，未配对时同样成功
func (h *Home) Unpair(ctx context.Context) error {
	if _, err := h.request(ctx, &pb.Request{Unpair: &pb.UnpairRequest{}}); err != nil {
		return err
	}
	h.mu.Lock()
	h.claim = nil
	h.mu.Unlock()
	return h.client.forget(h.ID())
}

// ============================================================================
//                              授权
// ============================================================================

// RequestClaim 向 home 申请凭证
//
// scope 为空时由 home 决定范围，ttl 为 0 时使用 home 的默认有效期。
func (h *Home) RequestClaim(ctx context.Context, scope []string, ttl time.Duration) (*claims.Token, error) {
	req := &pb.Request{Claim: &pb.ClaimRequest{Scope: scope, TTL: int64(ttl)}}
	payload, err := h.request(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := pb.UnmarshalClaimResponse(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	tok, err := claims.ParseToken(resp.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if !tok.Subject.Equal(h.client.local) {
		return nil, fmt.Errorf("%w: claim issued to %s", ErrUnexpectedResponse, tok.Subject.ID().ShortString())
	}
	if err := claims.NewVerifier(h.Identity()).Verify(tok, h.client.clock.Now()); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.claim = tok
	h.mu.Unlock()
	return tok, nil
}

// Claim 返回缓存的凭证，剩余有效期不足时重新申请
func (h *Home) Claim(ctx context.Context) (*claims.Token, error) {
	h.mu.Lock()
	tok := h.claim
	h.mu.Unlock()
	if tok != nil && tok.Expiry.Sub(h.client.clock.Now()) > h.client.cfg.ClaimRefreshBefore {
		return tok, nil
	}
	return h.RequestClaim(ctx, nil, h.client.cfg.ClaimTTL)
}

// ============================================================================
//                              调用
// ============================================================================

// Call 经 home 调用 callee 并等待响应
//
// 错误匹配对应的 types 哨兵，可用 types.Retryable 判断是否值得重试。
// ctx 结束时调用被取消并通知 home。
func (h *Home) Call(ctx context.Context, callee types.IdentityID, app string, payload []byte) ([]byte, error) {
	type result struct {
		payload []byte
		err     error
	}
	resCh := make(chan result, 1)
	_, err := h.Go(ctx, callee, app, payload, func(p []byte, err error) {
		resCh <- result{p, err}
	})
	if err != nil {
		return nil, err
	}
	r := <-resCh
	return r.payload, r.err
}

// Go 发起调用，响应到达时调用 done
//
// 返回的 Pending 可用于取消调用；返回错误时 done 不会被调用。
func (h *Home) Go(ctx context.Context, callee types.IdentityID, app string, payload []byte, done func([]byte, error)) (*muxer.Pending, error) {
	tok, err := h.Claim(ctx)
	if err != nil {
		return nil, err
	}
	req := &pb.Request{Call: &pb.CallRequest{
		Callee:  callee.Bytes(),
		Claim:   tok.Bytes(),
		App:     app,
		Payload: payload,
	}}

	// 响应可能在 Go 返回前到达，回调等待请求 ID 确定后再校验
	var (
		p     *muxer.Pending
		ready = make(chan struct{})
	)
	p, err = h.sess.Conn().Go(ctx, req.Marshal(), func(res muxer.Result) {
		<-ready
		if res.Err != nil {
			done(nil, res.Err)
			return
		}
		resp, err := pb.UnmarshalCallResponse(res.Payload)
		if err != nil {
			done(nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err))
			return
		}
		if resp.CallID != p.ID() {
			done(nil, fmt.Errorf("%w: got %d want %d", types.ErrCallIDMismatch, resp.CallID, p.ID()))
			return
		}
		done(resp.Payload, nil)
	})
	close(ready)
	return p, err
}

// ============================================================================
//                              解析与 ping
// ============================================================================

// Ping 回显 text
func (h *Home) Ping(ctx context.Context, text string) (string, error) {
	payload, err := h.request(ctx, &pb.Request{Ping: &pb.Ping{Text: text}})
	if err != nil {
		return "", err
	}
	resp, err := pb.UnmarshalPing(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	return resp.Text, nil
}

// Resolve 按可解析标识查询身份
func (h *Home) Resolve(ctx context.Context, identifier string) (*identity.Metadata, error) {
	return h.resolve(ctx, &pb.ResolveRequest{Identifier: identifier})
}

// ResolveID 按身份 ID 查询 home 托管的 persona
func (h *Home) ResolveID(ctx context.Context, id types.IdentityID) (*identity.Metadata, error) {
	return h.resolve(ctx, &pb.ResolveRequest{ID: id.Bytes()})
}

func (h *Home) resolve(ctx context.Context, req *pb.ResolveRequest) (*identity.Metadata, error) {
	payload, err := h.request(ctx, &pb.Request{Resolve: req})
	if err != nil {
		return nil, err
	}
	resp, err := pb.UnmarshalResolveResponse(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	id, err := types.ParseIdentity(resp.Identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	md := &identity.Metadata{Identity: id}
	for _, raw := range resp.Addresses {
		a, err := types.AddressFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
		}
		md.Addresses = append(md.Addresses, a)
	}
	return md, nil
}

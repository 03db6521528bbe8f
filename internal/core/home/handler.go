package home

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/relay"
	"github.com/dep2p/go-home/internal/core/session"
	pb "github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// handler 处理单个 persona 会话的入站请求
type handler struct {
	srv  *Server
	sess *session.Session
}

var _ muxer.Handler = (*handler)(nil)

// HandleRequest 实现 muxer.Handler
func (h *handler) HandleRequest(ctx context.Context, c *muxer.Conn, req muxer.Request) {
	msg, err := pb.UnmarshalRequest(req.Payload)
	if err != nil {
		h.srv.metrics.Request("malformed", err)
		_ = c.RespondError(ctx, req.ID, err)
		return
	}
	kind := msg.Kind()

	// 调用的结果在被叫响应后异步返回
	if msg.Call != nil {
		if err := h.call(ctx, c, req.ID, msg.Call); err != nil {
			h.srv.metrics.Request(kind, err)
			_ = c.RespondError(ctx, req.ID, err)
		}
		return
	}

	// 关系请求与应答在对端 persona 确认接收后才应答
	if msg.RelationRequest != nil || msg.RelationResponse != nil {
		if err := h.relation(c, req.ID, msg); err != nil {
			h.srv.metrics.Request(kind, err)
			log.Debug("关系转发失败", "kind", kind, "persona", h.persona(), "err", err)
			_ = c.RespondError(ctx, req.ID, err)
		}
		return
	}

	payload, err := h.dispatch(ctx, msg)
	h.srv.metrics.Request(kind, err)
	if err != nil {
		log.Debug("请求失败", "kind", kind, "persona", h.persona(), "err", err)
		_ = c.RespondError(ctx, req.ID, err)
		return
	}
	_ = c.Respond(ctx, req.ID, payload)
}

// HandleCancel 实现 muxer.Handler
func (h *handler) HandleCancel(_ *muxer.Conn, id uint64) {
	if h.srv.router.Cancel(h.sess, id) {
		log.Debug("主叫取消调用", "persona", h.persona(), "call", id)
	}
}

func (h *handler) dispatch(ctx context.Context, msg *pb.Request) ([]byte, error) {
	switch {
	case msg.Pair != nil:
		return h.pair(msg.Pair)
	case msg.Unpair != nil:
		return h.unpair()
	case msg.Claim != nil:
		return h.claim(msg.Claim)
	case msg.Resolve != nil:
		return h.resolve(ctx, msg.Resolve)
	case msg.Ping != nil:
		return (&pb.Ping{Text: msg.Ping.Text}).Marshal(), nil
	default:
		return nil, fmt.Errorf("%w: %s request not served by home", types.ErrInvalidRequest, msg.Kind())
	}
}

func (h *handler) persona() string { return h.sess.Remote().ID().ShortString() }

// ============================================================================
//                              配对
// ============================================================================

func (h *handler) pair(req *pb.PairRequest) ([]byte, error) {
	rec, err := pairing.FromRequest(req)
	if err != nil {
		return nil, err
	}
	if !rec.Statement.Persona.Equal(h.sess.Remote()) {
		return nil, fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrPersonaMismatch)
	}

	now := h.srv.clock.Now()
	if limit := h.srv.cfg.PairingTTL; limit > 0 {
		exp := rec.Statement.Expiry
		if exp.IsZero() || exp.After(now.Add(limit+h.srv.cfg.PairingClockSkew)) {
			return nil, fmt.Errorf("%w: %w (%s)", types.ErrInvalidRequest, ErrPairingTTL, limit)
		}
	}
	if err := rec.Countersign(h.srv.ident.PrivateKey(), now); err != nil {
		return nil, err
	}
	stored, err := h.srv.reg.Pair(rec)
	if err != nil {
		return nil, err
	}
	h.srv.pairingsChanged(rec.Statement.Persona)
	return (&pb.PairResponse{HomeSignature: stored.HomeSignature}).Marshal(), nil
}

func (h *handler) unpair() ([]byte, error) {
	remote := h.sess.Remote()
	if err := h.srv.reg.Unpair(remote.ID(), h.srv.local.ID()); err != nil {
		return nil, err
	}
	h.srv.pairingsChanged(remote)
	return nil, nil
}

// ============================================================================
//                              授权
// ============================================================================

func (h *handler) claim(req *pb.ClaimRequest) ([]byte, error) {
	remote := h.sess.Remote()
	if !h.srv.reg.IsPaired(remote.ID()) {
		return nil, fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrNotPaired)
	}
	scope := req.Scope
	if len(scope) == 0 {
		scope = h.srv.cfg.ClaimScope
	}
	tok, err := h.srv.issuer.Issue(remote, scope, time.Duration(req.TTL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidRequest, err)
	}
	log.Debug("签发凭证", "persona", h.persona(), "scope", tok.Scope, "expiry", tok.Expiry)
	return (&pb.ClaimResponse{Token: tok.Bytes()}).Marshal(), nil
}

// ============================================================================
//                              调用
// ============================================================================

// call 把调用交给 Router；返回错误表示调用未被转发
func (h *handler) call(ctx context.Context, c *muxer.Conn, id uint64, req *pb.CallRequest) error {
	callee, err := types.IdentityIDFromBytes(req.Callee)
	if err != nil {
		return err
	}
	tok, err := claims.ParseToken(req.Claim)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrUnauthorized, err)
	}
	metrics := h.srv.metrics
	_, err = h.srv.router.Relay(ctx, &relay.Request{
		Caller:  h.sess,
		CallID:  id,
		Callee:  callee,
		Claim:   tok,
		App:     req.App,
		Payload: req.Payload,
	}, func(payload []byte, err error) {
		metrics.Request("call", err)
		if err != nil {
			_ = c.RespondError(c.Context(), id, err)
			return
		}
		_ = c.Respond(c.Context(), id, (&pb.CallResponse{CallID: id, Payload: payload}).Marshal())
	})
	return err
}

// ============================================================================
//                              persona 关系
// ============================================================================

// relation 校验关系半证明或完整证明并转给另一方
//
// 请求转给声明中的 To，应答转回 From；对端的确认或错误原样回给会话。
func (h *handler) relation(c *muxer.Conn, id uint64, msg *pb.Request) error {
	remote := h.sess.Remote()
	if !h.srv.reg.IsPaired(remote.ID()) {
		return fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrNotPaired)
	}
	now := h.srv.clock.Now()

	var (
		rel    *pairing.Relation
		sender types.Identity
		target types.Identity
		err    error
	)
	if msg.RelationRequest != nil {
		if rel, err = pairing.RelationFromRequest(msg.RelationRequest); err != nil {
			return err
		}
		err = rel.VerifyHalf(now)
		sender, target = rel.Statement.From, rel.Statement.To
	} else {
		if rel, err = pairing.RelationFromResponse(msg.RelationResponse); err != nil {
			return err
		}
		err = rel.Verify(now)
		sender, target = rel.Statement.To, rel.Statement.From
	}
	if err != nil {
		return err
	}
	if !sender.Equal(remote) {
		return fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrPersonaMismatch)
	}

	peer, err := h.srv.reg.LookupActiveSession(target.ID())
	if err != nil {
		return err
	}
	kind := msg.Kind()
	metrics := h.srv.metrics
	ctx, cancel := context.WithTimeout(c.Context(), h.srv.cfg.RelationTimeout)
	_, err = peer.Conn().Go(ctx, msg.Marshal(), func(res muxer.Result) {
		cancel()
		metrics.Request(kind, res.Err)
		if res.Err != nil {
			_ = c.RespondError(c.Context(), id, res.Err)
			return
		}
		log.Debug("已转发关系消息", "kind", kind, "relation", rel)
		_ = c.Respond(c.Context(), id, nil)
	})
	if err != nil {
		cancel()
	}
	return err
}

// ============================================================================
//                              解析
// ============================================================================

func (h *handler) resolve(ctx context.Context, req *pb.ResolveRequest) ([]byte, error) {
	var md *identity.Metadata
	switch {
	case len(req.ID) > 0:
		id, err := types.IdentityIDFromBytes(req.ID)
		if err != nil {
			return nil, err
		}
		if md = h.srv.lookupID(id); md == nil {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id.ShortString())
		}
	case req.Identifier != "":
		var err error
		if md, err = h.srv.Resolve(ctx, req.Identifier); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: resolve needs identifier or id", types.ErrInvalidRequest)
	}

	resp := &pb.ResolveResponse{Identity: md.Identity.Bytes()}
	for _, a := range md.Addresses {
		resp.Addresses = append(resp.Addresses, a.Bytes())
	}
	return resp.Marshal(), nil
}

// lookupID 按身份 ID 查找本 home 或托管的 persona
func (s *Server) lookupID(id types.IdentityID) *identity.Metadata {
	if id == s.local.ID() {
		return &identity.Metadata{Identity: s.local, Addresses: s.Addrs()}
	}
	recs := s.reg.Pairings(id)
	if len(recs) == 0 {
		return nil
	}
	return metadataOf(recs[0])
}

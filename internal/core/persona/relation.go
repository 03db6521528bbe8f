package persona

import (
	"context"
	"fmt"

	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	pb "github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// eventBuffer Events 通道的容量
const eventBuffer = 32

// EventKind 事件类型
type EventKind int

const (
	// PairingRequested 另一个 persona 请求建立关系，Relation 为待会签的半证明
	PairingRequested EventKind = iota + 1
	// PairingAccepted 被请求方已会签，Relation 为完整证明
	PairingAccepted
)

func (k EventKind) String() string {
	switch k {
	case PairingRequested:
		return "pairing_requested"
	case PairingAccepted:
		return "pairing_accepted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event 经 home 到达的 persona 间事件
type Event struct {
	Kind     EventKind
	Relation *pairing.Relation

	// Home 转发事件的 home，AcceptRelation 应经同一 home 应答
	Home *Home
}

// Events 返回事件通道
//
// 通道不会关闭。消费过慢时新到的关系消息以 ErrEventsFull 拒绝。
func (c *Client) Events() <-chan Event { return c.events }

// Relations 返回已完成的关系证明
func (c *Client) Relations() []*pairing.Relation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*pairing.Relation(nil), c.relations...)
}

func (c *Client) addRelation(rel *pairing.Relation) {
	c.mu.Lock()
	c.relations = append(c.relations, rel)
	c.mu.Unlock()
}

func (c *Client) emit(ev Event) error {
	select {
	case c.events <- ev:
		return nil
	default:
		log.Warn("事件通道已满，丢弃关系消息", "kind", ev.Kind, "relation", ev.Relation)
		return ErrEventsFull
	}
}

// ============================================================================
//                              发起与应答
// ============================================================================

// RequestRelation 经 home 向 peer 请求建立 relation 关系
//
// peer 必须托管在该 home 上且在线。返回已送达对端的半证明；
// 对端会签后完整证明以 PairingAccepted 事件到达。
func (h *Home) RequestRelation(ctx context.Context, peer types.IdentityID, relation string) (*pairing.Relation, error) {
	md, err := h.ResolveID(ctx, peer)
	if err != nil {
		return nil, err
	}
	c := h.client
	st := pairing.NewRelationStatement(relation, c.local, md.Identity, c.clock.Now(), c.cfg.PairingTTL)
	half, err := pairing.SignRelation(c.key, st)
	if err != nil {
		return nil, err
	}
	if err := half.VerifyHalf(c.clock.Now()); err != nil {
		return nil, err
	}
	if _, err := h.request(ctx, &pb.Request{RelationRequest: half.Request()}); err != nil {
		return nil, err
	}
	log.Debug("已发出关系请求", "relation", half, "home", h.ID().ShortString())
	return half, nil
}

// AcceptRelation 会签 PairingRequested 事件中的半证明，并经 home 回给发起方
func (h *Home) AcceptRelation(ctx context.Context, half *pairing.Relation) (*pairing.Relation, error) {
	c := h.client
	full := &pairing.Relation{Statement: half.Statement, FromSignature: half.FromSignature}
	if err := full.Countersign(c.key, c.clock.Now()); err != nil {
		return nil, err
	}
	if _, err := h.request(ctx, &pb.Request{RelationResponse: full.Response()}); err != nil {
		return nil, err
	}
	c.addRelation(full)
	log.Info("已接受关系", "relation", full)
	return full, nil
}

// ============================================================================
//                              入站
// ============================================================================

// relation 校验 home 转来的关系消息并投递为事件
func (in *inbound) relation(ctx context.Context, c *muxer.Conn, id uint64, msg *pb.Request) {
	cl := in.client
	now := cl.clock.Now()

	var (
		ev  Event
		err error
	)
	if msg.RelationRequest != nil {
		ev.Kind = PairingRequested
		if ev.Relation, err = pairing.RelationFromRequest(msg.RelationRequest); err == nil {
			err = ev.Relation.VerifyHalf(now)
		}
		if err == nil && !ev.Relation.Statement.To.Equal(cl.local) {
			err = fmt.Errorf("%w: relation addressed to %s", types.ErrProofInvalid, ev.Relation.Statement.To.ID().ShortString())
		}
	} else {
		ev.Kind = PairingAccepted
		if ev.Relation, err = pairing.RelationFromResponse(msg.RelationResponse); err == nil {
			err = ev.Relation.Verify(now)
		}
		if err == nil && !ev.Relation.Statement.From.Equal(cl.local) {
			err = fmt.Errorf("%w: relation requested by %s", types.ErrProofInvalid, ev.Relation.Statement.From.ID().ShortString())
		}
	}
	if err != nil {
		log.Debug("拒绝关系消息", "kind", msg.Kind(), "err", err)
		_ = c.RespondError(ctx, id, err)
		return
	}

	ev.Home = in.home
	if err := cl.emit(ev); err != nil {
		_ = c.RespondError(ctx, id, fmt.Errorf("%w: %w", types.ErrCalleeUnavailable, err))
		return
	}
	if ev.Kind == PairingAccepted {
		cl.addRelation(ev.Relation)
	}
	_ = c.Respond(ctx, id, nil)
}

package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/pkg/types"
)

// State 调用状态
type State int32

const (
	// CallPending 已创建，尚未转发
	CallPending State = iota
	// CallForwarded 已转发，等待被叫响应
	CallForwarded
	// CallResponded 被叫已响应
	CallResponded
	// CallFailed 失败
	CallFailed
	// CallCancelled 已取消
	CallCancelled
)

func (s State) String() string {
	switch s {
	case CallPending:
		return "pending"
	case CallForwarded:
		return "forwarded"
	case CallResponded:
		return "responded"
	case CallFailed:
		return "failed"
	case CallCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal 报告是否为终态
func (s State) Terminal() bool { return s >= CallResponded }

// ReplyFunc 调用完成时回复主叫
//
// 恰好调用一次；err 非空时 payload 为 nil。
type ReplyFunc func(payload []byte, err error)

// Call 一次转发调用
type Call struct {
	ID      uint64 // 主叫会话内的请求 ID
	Caller  *session.Session
	Callee  *session.Session
	App     string
	Started time.Time

	router *Router
	reply  ReplyFunc
	state  atomic.Int32

	mu      sync.Mutex
	pending *muxer.Pending
	timer   *clock.Timer
	err     error
}

// State 返回当前状态
func (c *Call) State() State { return State(c.state.Load()) }

// Err 返回失败或取消原因
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// CalleeID 返回被叫身份 ID
func (c *Call) CalleeID() types.IdentityID { return c.Callee.Remote().ID() }

// forwarded 记录被叫侧的请求，返回 false 表示调用已在此之前完成
func (c *Call) forwarded(p *muxer.Pending, timeout time.Duration) bool {
	c.mu.Lock()
	if c.State().Terminal() {
		c.mu.Unlock()
		p.Cancel()
		return false
	}
	c.pending = p
	c.timer = c.router.clock.AfterFunc(timeout, func() {
		c.finish(CallFailed, nil, ErrCallTimeout)
	})
	c.mu.Unlock()
	c.state.CompareAndSwap(int32(CallPending), int32(CallForwarded))
	return true
}

// finish 把调用推进到终态，只有第一次生效
//
// 失败与取消会通知被叫放弃该请求；之后到达的响应被丢弃。
func (c *Call) finish(to State, payload []byte, err error) bool {
	for {
		cur := c.State()
		if cur.Terminal() {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(to)) {
			break
		}
	}

	c.mu.Lock()
	c.err = err
	p, t := c.pending, c.timer
	c.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	if p != nil && to != CallResponded {
		p.Cancel()
	}

	c.router.finished(c, to)
	if c.reply != nil {
		c.reply(payload, err)
	}
	return true
}

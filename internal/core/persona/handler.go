package persona

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-home/internal/core/muxer"
	pb "github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// IncomingCall home 转发来的调用
type IncomingCall struct {
	// ID 主叫会话内的调用 ID
	ID      uint64
	Caller  types.Identity
	App     string
	Payload []byte

	// Home 转发调用的 home
	Home types.Identity
}

// AppHandler 处理某个应用的入站调用
//
// ctx 在主叫取消、调用超时或会话关闭时结束。返回的错误以对应错误码回给主叫。
type AppHandler func(ctx context.Context, call *IncomingCall) ([]byte, error)

// Handle 注册应用处理器，app 为空时作为未注册应用的兜底处理器
func (c *Client) Handle(app string, h AppHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.apps, app)
		return
	}
	c.apps[app] = h
}

func (c *Client) handlerFor(app string) AppHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h, ok := c.apps[app]; ok {
		return h
	}
	return c.apps[""]
}

// ============================================================================
//                              入站请求
// ============================================================================

// inbound 处理 home 会话上的入站请求
type inbound struct {
	client *Client
	home   *Home

	mu      sync.Mutex
	running map[uint64]context.CancelFunc
}

func newInbound(c *Client, h *Home) *inbound {
	return &inbound{client: c, home: h, running: make(map[uint64]context.CancelFunc)}
}

// HandleRequest 实现 muxer.Handler
func (in *inbound) HandleRequest(ctx context.Context, c *muxer.Conn, req muxer.Request) {
	msg, err := pb.UnmarshalRequest(req.Payload)
	if err != nil {
		_ = c.RespondError(ctx, req.ID, err)
		return
	}
	switch {
	case msg.IncomingCall != nil:
		in.call(ctx, c, req.ID, msg.IncomingCall)
	case msg.RelationRequest != nil, msg.RelationResponse != nil:
		in.relation(ctx, c, req.ID, msg)
	case msg.Ping != nil:
		_ = c.Respond(ctx, req.ID, (&pb.Ping{Text: msg.Ping.Text}).Marshal())
	default:
		_ = c.RespondError(ctx, req.ID, fmt.Errorf("%w: %s request not served by persona", types.ErrInvalidRequest, msg.Kind()))
	}
}

// HandleCancel 实现 muxer.Handler
func (in *inbound) HandleCancel(_ *muxer.Conn, id uint64) {
	in.mu.Lock()
	cancel := in.running[id]
	in.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// call 在独立 goroutine 中运行应用处理器，应答时回显 CallID
func (in *inbound) call(ctx context.Context, c *muxer.Conn, id uint64, ic *pb.IncomingCall) {
	caller, err := types.ParseIdentity(ic.Caller)
	if err != nil {
		_ = c.RespondError(ctx, id, err)
		return
	}
	h := in.client.handlerFor(ic.App)
	if h == nil {
		_ = c.RespondError(ctx, id, fmt.Errorf("%w: %q", types.ErrUnknownApp, ic.App))
		return
	}

	cctx, cancel := context.WithCancel(ctx)
	in.mu.Lock()
	in.running[id] = cancel
	in.mu.Unlock()

	call := &IncomingCall{
		ID:      ic.CallID,
		Caller:  caller,
		App:     ic.App,
		Payload: ic.Payload,
		Home:    in.home.Identity(),
	}
	go func() {
		defer func() {
			in.mu.Lock()
			delete(in.running, id)
			in.mu.Unlock()
			cancel()
		}()
		out, err := h(cctx, call)
		if err != nil {
			log.Debug("应用处理失败", "app", ic.App, "caller", caller.ID().ShortString(), "err", err)
			_ = c.RespondError(ctx, id, err)
			return
		}
		_ = c.Respond(ctx, id, (&pb.CallResponse{CallID: ic.CallID, Payload: out}).Marshal())
	}()
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/metrics"
	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("relay")

// Directory 查询身份的活跃会话
type Directory interface {
	LookupActiveSession(id types.IdentityID) (*session.Session, error)
}

// Request 转发请求
type Request struct {
	Caller  *session.Session
	CallID  uint64
	Callee  types.IdentityID
	Claim   *claims.Token
	App     string
	Payload []byte
}

// Options Router 选项
type Options struct {
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// ============================================================================
//                              Router
// ============================================================================

// callerState 单个主叫会话的调用表与限流器
type callerState struct {
	mu      sync.Mutex
	calls   map[uint64]*Call
	limiter *rate.Limiter
	closed  bool
}

// Router 调用转发器
//
// Router 不修改会话，只使用会话连接的发送操作。
type Router struct {
	cfg      Config
	dir      Directory
	verifier *claims.Verifier
	clock    clock.Clock
	metrics  *metrics.Metrics

	callers sync.Map // *session.Session -> *callerState
	closed  atomic.Bool

	forwarded atomic.Int64
	responded atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64
	pending   atomic.Int64
}

// NewRouter 创建转发器
func NewRouter(cfg Config, dir Directory, verifier *claims.Verifier, opts Options) *Router {
	cfg.normalize()
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Router{
		cfg:      cfg,
		dir:      dir,
		verifier: verifier,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}
}

// Relay 校验并转发调用
//
// 同步返回的错误表示调用未被转发且没有创建任何状态，此时 reply 不会被调用。
// 返回 nil 时 reply 在调用完成时恰好调用一次。
func (r *Router) Relay(ctx context.Context, req *Request, reply ReplyFunc) (*Call, error) {
	call, err := r.relay(ctx, req, reply)
	if err != nil {
		r.rejected.Add(1)
		r.metrics.CallRejected(err)
		log.Debug("拒绝转发调用", "caller", req.Caller.Remote().ID().ShortString(), "callee", req.Callee.ShortString(), "err", err)
	}
	return call, err
}

func (r *Router) relay(ctx context.Context, req *Request, reply ReplyFunc) (*Call, error) {
	if r.closed.Load() {
		return nil, ErrRouterClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if err := r.authorize(req); err != nil {
		return nil, err
	}

	callee, err := r.dir.LookupActiveSession(req.Callee)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalleeUnavailable, err)
	}

	call, err := r.admit(req, callee, reply)
	if err != nil {
		return nil, err
	}

	msg := &home.Request{IncomingCall: &home.IncomingCall{
		CallID:  req.CallID,
		Caller:  req.Caller.Remote().Bytes(),
		App:     req.App,
		Payload: req.Payload,
	}}
	p, err := callee.Conn().Go(context.Background(), msg.Marshal(), call.onResult)
	if err != nil {
		// 被叫在查找之后关闭，撤销调用
		r.withdraw(call)
		return nil, fmt.Errorf("%w: %w", ErrCalleeUnavailable, err)
	}
	r.forwarded.Add(1)
	call.forwarded(p, r.cfg.CallTimeout)
	log.Debug("调用已转发", "caller", req.Caller.Remote().ID().ShortString(), "callee", req.Callee.ShortString(), "id", req.CallID, "app", req.App)
	return call, nil
}

// authorize 校验凭证；失败时返回匹配 ErrUnauthorized 的错误
func (r *Router) authorize(req *Request) error {
	if req.Claim == nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, ErrMissingClaim)
	}
	if err := r.verifier.Verify(req.Claim, r.clock.Now()); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if err := claims.Authorize(req.Claim, r.cfg.RequiredScope); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !req.Claim.Subject.Equal(req.Caller.Remote()) {
		return fmt.Errorf("%w: %w", ErrUnauthorized, ErrSubjectMismatch)
	}
	return nil
}

// admit 检查重复 ID、速率与上限，并登记调用
func (r *Router) admit(req *Request, callee *session.Session, reply ReplyFunc) (*Call, error) {
	cs := r.callerFor(req.Caller)

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return nil, fmt.Errorf("%w: caller session closed", ErrCancelled)
	}
	if _, ok := cs.calls[req.CallID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateCallID, req.CallID)
	}
	if cs.limiter != nil && !cs.limiter.AllowN(r.clock.Now(), 1) {
		return nil, ErrRateLimited
	}
	if len(cs.calls) >= r.cfg.MaxPendingPerSession {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyCalls, r.cfg.MaxPendingPerSession)
	}

	call := &Call{
		ID:      req.CallID,
		Caller:  req.Caller,
		Callee:  callee,
		App:     req.App,
		Started: r.clock.Now(),
		router:  r,
		reply:   reply,
	}
	cs.calls[req.CallID] = call
	r.pending.Add(1)
	r.metrics.CallStarted()
	return call, nil
}

// callerFor 返回主叫会话的状态，首次创建时注册关闭回调
func (r *Router) callerFor(s *session.Session) *callerState {
	if v, ok := r.callers.Load(s); ok {
		return v.(*callerState)
	}
	cs := &callerState{calls: make(map[uint64]*Call)}
	if r.cfg.RateLimit > 0 {
		cs.limiter = rate.NewLimiter(rate.Limit(r.cfg.RateLimit), r.cfg.RateBurst)
	}
	v, loaded := r.callers.LoadOrStore(s, cs)
	if !loaded {
		s.OnClose(func(reason error) { r.SessionClosed(s, reason) })
	}
	return v.(*callerState)
}

// onResult 被叫侧请求完成
func (c *Call) onResult(res muxer.Result) {
	if res.Err != nil {
		c.finish(CallFailed, nil, calleeErr(res.Err))
		return
	}
	resp, err := home.UnmarshalCallResponse(res.Payload)
	if err != nil {
		c.finish(CallFailed, nil, err)
		return
	}
	if resp.CallID != c.ID {
		c.finish(CallFailed, nil, fmt.Errorf("%w: sent %d, echoed %d", ErrCallIDMismatch, c.ID, resp.CallID))
		return
	}
	c.finish(CallResponded, resp.Payload, nil)
}

// calleeErr 被叫连接正常关闭视为传输丢失，其余原因原样返回
func calleeErr(err error) error {
	if errors.Is(err, muxer.ErrConnClosed) &&
		!errors.Is(err, types.ErrSessionSuperseded) &&
		!errors.Is(err, types.ErrTransportLost) {
		return fmt.Errorf("%w: %w", types.ErrTransportLost, err)
	}
	return err
}

// ============================================================================
//                              完成与取消
// ============================================================================

// finished 调用进入终态后释放资源
func (r *Router) finished(c *Call, to State) {
	r.release(c)
	switch to {
	case CallResponded:
		r.responded.Add(1)
	case CallFailed:
		r.failed.Add(1)
	case CallCancelled:
		r.cancelled.Add(1)
	}
	r.metrics.CallFinished(to.String(), r.clock.Since(c.Started))
}

func (r *Router) release(c *Call) {
	if v, ok := r.callers.Load(c.Caller); ok {
		cs := v.(*callerState)
		cs.mu.Lock()
		if cs.calls[c.ID] == c {
			delete(cs.calls, c.ID)
		}
		cs.mu.Unlock()
	}
	r.pending.Add(-1)
}

// withdraw 撤销尚未转发成功的调用，不回复主叫
func (r *Router) withdraw(c *Call) {
	if !c.state.CompareAndSwap(int32(CallPending), int32(CallFailed)) {
		return
	}
	r.release(c)
	r.metrics.CallFinished(CallFailed.String(), 0)
}

// Cancel 取消主叫的调用
//
// 尽力而为：调用仍未完成时进入 Cancelled 并通知被叫，返回 true。
func (r *Router) Cancel(caller *session.Session, callID uint64) bool {
	v, ok := r.callers.Load(caller)
	if !ok {
		return false
	}
	cs := v.(*callerState)
	cs.mu.Lock()
	call := cs.calls[callID]
	cs.mu.Unlock()
	if call == nil {
		return false
	}
	return call.finish(CallCancelled, nil, ErrCancelled)
}

// SessionClosed 结束以 s 为主叫的全部调用
//
// reason 为传输丢失或会话被取代时调用以该原因失败，其余关闭视为取消。
func (r *Router) SessionClosed(s *session.Session, reason error) {
	v, ok := r.callers.LoadAndDelete(s)
	if !ok {
		return
	}
	cs := v.(*callerState)
	cs.mu.Lock()
	cs.closed = true
	calls := make([]*Call, 0, len(cs.calls))
	for _, c := range cs.calls {
		calls = append(calls, c)
	}
	cs.calls = make(map[uint64]*Call)
	cs.mu.Unlock()

	to, err := callerClosed(reason)
	for _, c := range calls {
		c.finish(to, nil, err)
	}
	if len(calls) > 0 {
		log.Debug("主叫会话关闭，已结束调用", "caller", s.Remote().ID().ShortString(), "calls", len(calls), "state", to, "reason", reason)
	}
}

// callerClosed 把主叫会话的关闭原因映射为调用终态
func callerClosed(reason error) (State, error) {
	if errors.Is(reason, types.ErrTransportLost) || errors.Is(reason, types.ErrSessionSuperseded) {
		return CallFailed, reason
	}
	return CallCancelled, fmt.Errorf("%w: caller session closed", ErrCancelled)
}

// Close 停止接受调用并取消全部未完成调用
func (r *Router) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.callers.Range(func(k, _ any) bool {
		r.SessionClosed(k.(*session.Session), ErrRouterClosed)
		return true
	})
	return nil
}

// ============================================================================
//                              统计
// ============================================================================

// Stats 转发统计快照
type Stats struct {
	Pending   int64
	Forwarded int64
	Responded int64
	Failed    int64
	Cancelled int64
	Rejected  int64
}

// Stats 返回统计快照
func (r *Router) Stats() Stats {
	return Stats{
		Pending:   r.pending.Load(),
		Forwarded: r.forwarded.Load(),
		Responded: r.responded.Load(),
		Failed:    r.failed.Load(),
		Cancelled: r.cancelled.Load(),
		Rejected:  r.rejected.Load(),
	}
}

package muxer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("muxer")

// controlQueueSize 控制帧队列长度
const controlQueueSize = 64

// Request 入站请求
type Request struct {
	ID      uint64
	Payload []byte
}

// Handler 处理入站请求
//
// 方法在读循环中调用，耗时操作应转到其他 goroutine，之后用 Respond/RespondError 应答。
type Handler interface {
	// HandleRequest 处理请求
	HandleRequest(ctx context.Context, c *Conn, req Request)

	// HandleCancel 对端取消了仍未应答的请求
	HandleCancel(c *Conn, id uint64)
}

// Conn 多路复用连接
type Conn struct {
	ch      transport.Channel
	cfg     Config
	handler Handler

	nextID atomic.Uint64

	mu       sync.Mutex
	pending  map[uint64]*Pending
	inflight map[uint64]struct{} // 已收到、尚未应答的入站请求
	hooks    []func(error)
	closeErr error

	sendq chan *home.Frame
	ctrlq chan *home.Frame

	ctx       context.Context
	cancel    context.CancelFunc
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	started   bool // 由 mu 保护

	// 保活与统计
	alive        atomic.Bool
	missed       atomic.Int32
	pingSeq      atomic.Uint64
	pingSentAt   atomic.Int64
	lastRTT      atomic.Int64
	lastActivity atomic.Int64
	framesIn     atomic.Uint64
	framesOut    atomic.Uint64
}

// NewConn 在通道上创建连接，调用 Start 后开始收发
func NewConn(ch transport.Channel, cfg Config) *Conn {
	cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ch:       ch,
		cfg:      cfg,
		pending:  make(map[uint64]*Pending),
		inflight: make(map[uint64]struct{}),
		sendq:    make(chan *home.Frame, cfg.SendQueueSize),
		ctrlq:    make(chan *home.Frame, controlQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.touch()
	return c
}

// Start 启动读写循环与保活
//
// handler 为 nil 时所有入站请求以 ErrInvalidRequest 应答。
func (c *Conn) Start(handler Handler) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.closeErr != nil {
		c.mu.Unlock()
		return c.closedErr()
	}
	c.started = true
	c.handler = handler
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	go c.readLoop()
	go c.keepaliveLoop()
	go func() {
		wg.Wait()
		close(c.done)
	}()
	return nil
}

// RemoteAddr 返回对端地址
func (c *Conn) RemoteAddr() string { return c.ch.RemoteAddr() }

// Context 返回连接生命周期的 context，连接关闭时取消
func (c *Conn) Context() context.Context { return c.ctx }

// ============================================================================
//                              发起请求
// ============================================================================

// Result 请求结果
type Result struct {
	Payload []byte
	Err     error
}

// Go 发起请求，响应到达时调用 done
//
// 返回的 Pending 可用于取消。ctx 结束时请求以 ErrCallTimeout（超时）或
// ErrCancelled（取消）完成并通知对端。发送失败时返回错误且不会调用 done。
// done 恰好被调用一次，可能在读循环中执行。
func (c *Conn) Go(ctx context.Context, payload []byte, done func(Result)) (*Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &Pending{conn: c, done: done}

	c.mu.Lock()
	if c.closeErr != nil {
		err := c.closeErr
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrConnClosed, err)
	}
	if len(c.pending) >= c.cfg.MaxPending {
		c.mu.Unlock()
		return nil, ErrTooManyPending
	}
	p.id = c.nextID.Add(1)
	c.pending[p.id] = p
	c.mu.Unlock()

	if err := c.enqueue(ctx, &home.Frame{Kind: home.FrameRequest, ID: p.id, Payload: payload}); err != nil {
		if c.removePending(p.id) == nil {
			// 连接关闭已经以关闭原因完成了 p
			return p, nil
		}
		return nil, err
	}

	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			cause := types.ErrCancelled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				cause = types.ErrCallTimeout
			}
			p.abort(fmt.Errorf("%w: %w", cause, ctx.Err()))
		})
		p.setStop(stop)
	}
	return p, nil
}

// Call 发起请求并等待响应
func (c *Conn) Call(ctx context.Context, payload []byte) ([]byte, error) {
	resCh := make(chan Result, 1)
	if _, err := c.Go(ctx, payload, func(r Result) { resCh <- r }); err != nil {
		return nil, err
	}
	r := <-resCh
	return r.Payload, r.Err
}

func (c *Conn) removePending(id uint64) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// ============================================================================
//                              应答
// ============================================================================

// Respond 对入站请求发送成功响应
//
// 请求已被取消或已应答时静默忽略。
func (c *Conn) Respond(ctx context.Context, id uint64, payload []byte) error {
	if !c.finishInbound(id) {
		return nil
	}
	return c.enqueue(ctx, &home.Frame{Kind: home.FrameResponse, ID: id, Payload: payload})
}

// RespondError 对入站请求发送错误响应
func (c *Conn) RespondError(ctx context.Context, id uint64, err error) error {
	if !c.finishInbound(id) {
		return nil
	}
	return c.enqueue(ctx, home.ErrorFrame(id, err))
}

// finishInbound 从未应答集合中移除 id，返回是否存在
func (c *Conn) finishInbound(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[id]; !ok {
		return false
	}
	delete(c.inflight, id)
	return true
}

// ============================================================================
//                              发送
// ============================================================================

// enqueue 把数据帧放入发送队列，队列满时阻塞
func (c *Conn) enqueue(ctx context.Context, f *home.Frame) error {
	select {
	case <-c.closing:
		return c.closedErr()
	default:
	}
	select {
	case c.sendq <- f:
		return nil
	case <-c.closing:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// control 放入控制帧，队列满时丢弃
func (c *Conn) control(f *home.Frame) {
	select {
	case <-c.closing:
		return
	default:
	}
	select {
	case c.ctrlq <- f:
	default:
		log.Debug("控制队列已满，丢弃帧", "remote", c.RemoteAddr(), "kind", f.Kind)
	}
}

func (c *Conn) writeLoop() {
	for {
		// 控制帧优先
		select {
		case f := <-c.ctrlq:
			if !c.write(f) {
				c.finishWrite()
				return
			}
			continue
		default:
		}

		select {
		case f := <-c.ctrlq:
			if !c.write(f) {
				c.finishWrite()
				return
			}
		case f := <-c.sendq:
			if !c.write(f) {
				c.finishWrite()
				return
			}
		case <-c.closing:
			c.finishWrite()
			return
		}
	}
}

func (c *Conn) write(f *home.Frame) bool {
	if err := c.ch.Send(c.ctx, f.Marshal()); err != nil {
		if c.ctx.Err() == nil {
			c.CloseWithError(fmt.Errorf("%w: send: %v", types.ErrTransportLost, err))
		}
		return false
	}
	c.framesOut.Add(1)
	return true
}

// finishWrite 尽力发送 Close 帧后关闭通道
func (c *Conn) finishWrite() {
	err := c.Err()
	if err != nil && !errors.Is(err, types.ErrTransportLost) && !isRemoteClose(err) {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CloseTimeout)
		f := &home.Frame{Kind: home.FrameClose, Codes: types.CodesOf(err), Payload: []byte(err.Error())}
		if isLocalClose(err) {
			f.Codes = nil
			f.Payload = nil
		}
		_ = c.ch.Send(ctx, f.Marshal())
		cancel()
	}
	_ = c.ch.Close()
}

// ============================================================================
//                              接收
// ============================================================================

func (c *Conn) readLoop() {
	for {
		data, err := c.ch.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.CloseWithError(fmt.Errorf("%w: %v", types.ErrTransportLost, err))
			}
			return
		}
		c.framesIn.Add(1)
		c.alive.Store(true)
		c.touch()

		f, err := home.UnmarshalFrame(data)
		if err != nil {
			log.Debug("丢弃无法解码的帧", "remote", c.RemoteAddr(), "err", err)
			continue
		}
		if !c.dispatch(f) {
			return
		}
	}
}

// dispatch 处理一帧，返回 false 表示读循环应退出
func (c *Conn) dispatch(f *home.Frame) bool {
	switch f.Kind {
	case home.FrameRequest:
		c.handleRequest(f)
	case home.FrameResponse:
		if p := c.removePending(f.ID); p != nil {
			p.resolve(Result{Payload: f.Payload})
		}
	case home.FrameError:
		if p := c.removePending(f.ID); p != nil {
			p.resolve(Result{Err: f.Err()})
		}
	case home.FrameCancel:
		if c.finishInbound(f.ID) && c.handler != nil {
			c.handler.HandleCancel(c, f.ID)
		}
	case home.FramePing:
		c.control(&home.Frame{Kind: home.FramePong, ID: f.ID})
	case home.FramePong:
		if f.ID == c.pingSeq.Load() {
			if sent := c.pingSentAt.Load(); sent > 0 {
				c.lastRTT.Store(c.cfg.Clock.Now().UnixNano() - sent)
			}
		}
	case home.FrameClose:
		var reason error = errRemoteClosed
		if len(f.Codes) > 0 {
			reason = &remoteCloseError{cause: f.Err()}
		}
		c.CloseWithError(reason)
		return false
	}
	return true
}

func (c *Conn) handleRequest(f *home.Frame) {
	c.mu.Lock()
	if _, dup := c.inflight[f.ID]; dup {
		c.mu.Unlock()
		c.control(home.ErrorFrame(f.ID, types.ErrDuplicateCallID))
		return
	}
	c.inflight[f.ID] = struct{}{}
	c.mu.Unlock()

	if c.handler == nil {
		_ = c.RespondError(c.ctx, f.ID, fmt.Errorf("%w: no handler", types.ErrInvalidRequest))
		return
	}
	c.handler.HandleRequest(c.ctx, c, Request{ID: f.ID, Payload: f.Payload})
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 正常关闭连接
func (c *Conn) Close() error {
	c.CloseWithError(ErrConnClosed)
	return nil
}

// CloseWithError 以 reason 关闭连接
//
// 所有 Pending 以 reason 完成，然后按注册顺序调用 OnClose 回调。
// 除传输失效外，对端会收到携带 reason 错误码的 Close 帧。重复调用无效。
func (c *Conn) CloseWithError(reason error) {
	if reason == nil {
		reason = ErrConnClosed
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = reason
		pending := c.pending
		c.pending = make(map[uint64]*Pending)
		c.inflight = make(map[uint64]struct{})
		hooks := c.hooks
		c.hooks = nil
		started := c.started
		c.mu.Unlock()

		close(c.closing)
		c.cancel()
		if !started {
			_ = c.ch.Close()
			close(c.done)
		}

		log.Debug("连接关闭", "remote", c.RemoteAddr(), "reason", reason, "pending", len(pending))

		for _, p := range pending {
			p.resolve(Result{Err: reason})
		}
		for _, h := range hooks {
			h(reason)
		}
	})
}

// OnClose 注册关闭回调；连接已关闭时立即调用
func (c *Conn) OnClose(fn func(reason error)) {
	c.mu.Lock()
	if c.closeErr == nil {
		c.hooks = append(c.hooks, fn)
		c.mu.Unlock()
		return
	}
	reason := c.closeErr
	c.mu.Unlock()
	fn(reason)
}

// Done 在读写循环退出、通道关闭后关闭
func (c *Conn) Done() <-chan struct{} { return c.done }

// Closing 在连接开始关闭时关闭
func (c *Conn) Closing() <-chan struct{} { return c.closing }

// Err 返回关闭原因，未关闭时返回 nil
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Conn) closedErr() error {
	if err := c.Err(); err != nil && !errors.Is(err, ErrConnClosed) {
		return fmt.Errorf("%w: %w", ErrConnClosed, err)
	}
	return ErrConnClosed
}

// errRemoteClosed 对端正常关闭
var errRemoteClosed = fmt.Errorf("%w: closed by peer", ErrConnClosed)

// remoteCloseError 对端带原因关闭
type remoteCloseError struct {
	cause error
}

func (e *remoteCloseError) Error() string { return "closed by peer: " + e.cause.Error() }

func (e *remoteCloseError) Unwrap() error { return e.cause }

func isRemoteClose(err error) bool {
	var rc *remoteCloseError
	return errors.Is(err, errRemoteClosed) || errors.As(err, &rc)
}

func isLocalClose(err error) bool {
	return err == ErrConnClosed
}

// ============================================================================
//                              统计
// ============================================================================

// Stats 连接统计
type Stats struct {
	FramesIn         uint64
	FramesOut        uint64
	Pending          int
	Inflight         int
	LastRTT          time.Duration
	MissedKeepalives int
	LastActivity     time.Time
}

// Stats 返回统计快照
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	pending, inflight := len(c.pending), len(c.inflight)
	c.mu.Unlock()
	return Stats{
		FramesIn:         c.framesIn.Load(),
		FramesOut:        c.framesOut.Load(),
		Pending:          pending,
		Inflight:         inflight,
		LastRTT:          time.Duration(c.lastRTT.Load()),
		MissedKeepalives: int(c.missed.Load()),
		LastActivity:     c.LastActivity(),
	}
}

// LastActivity 返回最近一次收到帧的时间
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Conn) touch() {
	c.lastActivity.Store(c.cfg.Clock.Now().UnixNano())
}

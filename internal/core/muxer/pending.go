package muxer

import (
	"sync"

	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// Pending 已发出、等待响应的请求
type Pending struct {
	id   uint64
	conn *Conn
	done func(Result)

	once     sync.Once
	mu       sync.Mutex
	resolved bool
	stop     func() bool
}

// ID 返回请求 ID
func (p *Pending) ID() uint64 { return p.id }

// Cancel 以 ErrCancelled 完成请求并通知对端
//
// 请求已完成时返回 false。之后到达的响应被丢弃。
func (p *Pending) Cancel() bool {
	return p.abort(types.ErrCancelled)
}

// abort 在请求仍未完成时以 err 完成，并发送 Cancel 帧
func (p *Pending) abort(err error) bool {
	if p.conn.removePending(p.id) == nil {
		return false
	}
	if !p.resolve(Result{Err: err}) {
		return false
	}
	p.conn.control(&home.Frame{Kind: home.FrameCancel, ID: p.id})
	return true
}

// resolve 调用完成回调，只生效一次
func (p *Pending) resolve(r Result) bool {
	fired := false
	p.once.Do(func() {
		fired = true
		p.mu.Lock()
		p.resolved = true
		stop := p.stop
		p.mu.Unlock()
		if stop != nil {
			stop()
		}
		if p.done != nil {
			p.done(r)
		}
	})
	return fired
}

// setStop 记录 ctx 监听的注销函数；已完成时立即注销
func (p *Pending) setStop(stop func() bool) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		stop()
		return
	}
	p.stop = stop
	p.mu.Unlock()
}

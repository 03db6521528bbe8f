package transport

import (
	"context"
	"sync"
)

// pipeBuffer 每个方向的缓冲消息数
const pipeBuffer = 16

// Pipe 返回进程内互相连接的一对通道
//
// 任一端关闭后两端都关闭；关闭前已发送的消息仍可被对端读出。
func Pipe(nameA, nameB string) (Channel, Channel) {
	shared := &pipeShared{done: make(chan struct{})}
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	a := &pipeChannel{shared: shared, in: ba, out: ab, remote: nameB}
	b := &pipeChannel{shared: shared, in: ab, out: ba, remote: nameA}
	return a, b
}

type pipeShared struct {
	once sync.Once
	done chan struct{}
}

type pipeChannel struct {
	shared *pipeShared
	in     <-chan []byte
	out    chan<- []byte
	remote string
}

func (p *pipeChannel) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.shared.done:
		return ErrChannelClosed
	default:
	}

	cp := append([]byte(nil), msg...)
	select {
	case p.out <- cp:
		return nil
	case <-p.shared.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.shared.done:
		// 先读完关闭前已到达的消息
		select {
		case msg := <-p.in:
			return msg, nil
		default:
			return nil, ErrChannelClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeChannel) Close() error {
	p.shared.once.Do(func() { close(p.shared.done) })
	return nil
}

func (p *pipeChannel) Done() <-chan struct{} { return p.shared.done }

func (p *pipeChannel) RemoteAddr() string { return p.remote }

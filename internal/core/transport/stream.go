package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/multiformats/go-varint"
)

// deadliner 支持读写截止时间的底层流（net.Conn、yamux.Stream、quic.Stream）
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// StreamChannel 在字节流上使用 varint 长度前缀分帧的 Channel
//
// 帧格式：[uvarint 长度][消息]。
type StreamChannel struct {
	rwc      io.ReadWriteCloser
	br       *bufio.Reader
	remote   string
	maxFrame int

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var _ Channel = (*StreamChannel)(nil)

// NewStreamChannel 包装字节流
//
// maxFrame <= 0 时使用 DefaultMaxFrameSize。
func NewStreamChannel(rwc io.ReadWriteCloser, remote string, maxFrame int) *StreamChannel {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &StreamChannel{
		rwc:      rwc,
		br:       bufio.NewReader(rwc),
		remote:   remote,
		maxFrame: maxFrame,
		done:     make(chan struct{}),
	}
}

// Send 发送一帧
func (c *StreamChannel) Send(ctx context.Context, msg []byte) error {
	if len(msg) > c.maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(msg), c.maxFrame)
	}
	if c.isClosed() {
		return ErrChannelClosed
	}

	buf := make([]byte, 0, varint.UvarintSize(uint64(len(msg)))+len(msg))
	buf = append(buf, varint.ToUvarint(uint64(len(msg)))...)
	buf = append(buf, msg...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.withDeadline(ctx, false, func() error {
		_, err := c.rwc.Write(buf)
		return err
	})
}

// Receive 读取一帧
func (c *StreamChannel) Receive(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var msg []byte
	err := c.withDeadline(ctx, true, func() error {
		n, err := varint.ReadUvarint(c.br)
		if err != nil {
			return err
		}
		if n > uint64(c.maxFrame) {
			return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, c.maxFrame)
		}
		msg = make([]byte, n)
		_, err = io.ReadFull(c.br, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// withDeadline 执行 op，并让 ctx 的截止时间与取消作用于底层流
func (c *StreamChannel) withDeadline(ctx context.Context, read bool, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d, ok := c.rwc.(deadliner)
	if ok {
		set := d.SetWriteDeadline
		if read {
			set = d.SetReadDeadline
		}
		if dl, has := ctx.Deadline(); has {
			_ = set(dl)
		}
		stop := context.AfterFunc(ctx, func() {
			// 让阻塞的读写立即返回
			_ = set(time.Unix(1, 0))
		})
		defer func() {
			stop()
			_ = set(time.Time{})
		}()
	}

	err := op()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if c.isClosed() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return err
}

// Close 关闭通道
func (c *StreamChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}

// Done 返回关闭通知
func (c *StreamChannel) Done() <-chan struct{} { return c.done }

// RemoteAddr 返回对端地址
func (c *StreamChannel) RemoteAddr() string { return c.remote }

func (c *StreamChannel) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

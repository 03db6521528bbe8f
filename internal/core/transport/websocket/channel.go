package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-home/internal/core/transport"
)

// closeGrace 发送关闭帧的最长等待时间
const closeGrace = time.Second

// channel 基于 WebSocket 连接的 Channel
type channel struct {
	conn     *websocket.Conn
	remote   string
	maxFrame int

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newChannel(conn *websocket.Conn, remote string, maxFrame int) *channel {
	conn.SetReadLimit(int64(maxFrame))
	return &channel{
		conn:     conn,
		remote:   remote,
		maxFrame: maxFrame,
		done:     make(chan struct{}),
	}
}

func (c *channel) Send(ctx context.Context, msg []byte) error {
	if len(msg) > c.maxFrame {
		return fmt.Errorf("%w: %d > %d", transport.ErrFrameTooLarge, len(msg), c.maxFrame)
	}
	if c.isClosed() {
		return transport.ErrChannelClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.withDeadline(ctx, c.conn.SetWriteDeadline, func() error {
		return c.conn.WriteMessage(websocket.BinaryMessage, msg)
	})
}

func (c *channel) Receive(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		var (
			typ int
			msg []byte
		)
		err := c.withDeadline(ctx, c.conn.SetReadDeadline, func() error {
			var err error
			typ, msg, err = c.conn.ReadMessage()
			return err
		})
		if err != nil {
			return nil, err
		}
		if typ == websocket.BinaryMessage {
			return msg, nil
		}
		// 忽略文本消息
	}
}

func (c *channel) withDeadline(ctx context.Context, set func(time.Time) error, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = set(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = set(time.Unix(1, 0)) })
	defer func() {
		stop()
		_ = set(time.Time{})
	}()

	err := op()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ce *websocket.CloseError
	if c.isClosed() || errors.As(err, &ce) {
		return fmt.Errorf("%w: %v", transport.ErrChannelClosed, err)
	}
	return err
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		// WriteControl 可与写操作并发调用
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *channel) Done() <-chan struct{} { return c.done }

func (c *channel) RemoteAddr() string { return c.remote }

func (c *channel) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

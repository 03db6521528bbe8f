package transport

import (
	"context"

	"github.com/dep2p/go-home/pkg/types"
)

// DefaultMaxFrameSize 默认最大帧长度（1 MiB）
const DefaultMaxFrameSize = 1 << 20

// Channel 有序、可靠的双工消息通道
//
// Send 与 Receive 可以在不同 goroutine 中并发调用，
// 但同一方向上不应并发调用。
type Channel interface {
	// Send 发送一条完整消息，缓冲区满时阻塞直到 ctx 结束或通道关闭
	Send(ctx context.Context, msg []byte) error

	// Receive 接收下一条完整消息
	Receive(ctx context.Context) ([]byte, error)

	// Close 关闭通道，可重复调用
	Close() error

	// Done 在通道关闭后关闭
	Done() <-chan struct{}

	// RemoteAddr 返回对端地址的文本形式，用于日志
	RemoteAddr() string
}

// Transport 一种物理传输
type Transport interface {
	// Name 返回传输名称（与 types.Address.Transport 一致）
	Name() string

	// CanDial 报告能否拨号该地址
	CanDial(addr types.Address) bool

	// Dial 建立到 addr 的通道
	Dial(ctx context.Context, addr types.Address) (Channel, error)

	// Listen 在 addr 上监听
	Listen(addr types.Address) (Listener, error)

	// Close 关闭传输及其持有的连接
	Close() error
}

// Listener 接受入站通道
type Listener interface {
	// Accept 等待下一个入站通道
	Accept(ctx context.Context) (Channel, error)

	// Addr 返回实际监听地址（端口 0 会被替换为真实端口）
	Addr() types.Address

	// Close 停止监听
	Close() error
}

package transport

import "errors"

var (
	// ErrNoTransport 没有能拨号该地址的传输
	ErrNoTransport = errors.New("no suitable transport for address")

	// ErrChannelClosed 通道已关闭
	ErrChannelClosed = errors.New("channel closed")

	// ErrFrameTooLarge 消息超过最大帧长度
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("listener closed")
)

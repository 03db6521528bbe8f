package persona

import "errors"

var (
	// ErrNoAddresses home 没有可拨号的地址
	ErrNoAddresses = errors.New("home has no addresses")

	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("persona client closed")

	// ErrNotConnected 与该 home 没有会话
	ErrNotConnected = errors.New("not connected to home")

	// ErrUnexpectedResponse home 的响应无法解析或不匹配请求
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrMissingKey 未提供私钥
	ErrMissingKey = errors.New("missing private key")

	// ErrEventsFull 事件通道已满，对端的关系消息被拒绝
	ErrEventsFull = errors.New("persona event queue full")
)

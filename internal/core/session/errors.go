package session

import "errors"

var (
	// ErrInvalidTransition 非法的状态转换
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrUnexpectedMessage 握手消息顺序错误
	ErrUnexpectedMessage = errors.New("unexpected handshake message")

	// ErrVersionMismatch 协议版本不兼容
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// ErrIdentityMismatch 对端身份与期望不符
	ErrIdentityMismatch = errors.New("remote identity mismatch")

	// ErrBadNonce 随机数长度错误
	ErrBadNonce = errors.New("bad handshake nonce")

	// ErrBadEphemeral 临时公钥无效
	ErrBadEphemeral = errors.New("bad ephemeral key")

	// ErrNotActive 会话未处于 Active 状态
	ErrNotActive = errors.New("session not active")
)

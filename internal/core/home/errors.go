package home

import "errors"

var (
	// ErrServerClosed 服务已关闭
	ErrServerClosed = errors.New("home server closed")

	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("home server already started")

	// ErrMissingDependency 缺少必需的依赖
	ErrMissingDependency = errors.New("missing dependency")

	// ErrPersonaMismatch 配对声明中的 persona 不是会话对端
	ErrPersonaMismatch = errors.New("statement persona is not the session peer")

	// ErrPairingTTL 配对有效期超出 home 允许的范围
	ErrPairingTTL = errors.New("pairing expiry exceeds home limit")

	// ErrNotPaired persona 未与本 home 配对
	ErrNotPaired = errors.New("persona not paired")
)

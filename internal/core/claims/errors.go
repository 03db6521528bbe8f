package claims

import (
	"errors"

	"github.com/dep2p/go-home/pkg/types"
)

var (
	// ErrInvalidTTL 有效期必须为正
	ErrInvalidTTL = errors.New("claim ttl must be positive")

	// ErrEmptyScope 权限范围为空
	ErrEmptyScope = errors.New("claim scope is empty")

	// ErrNilToken 令牌为空
	ErrNilToken = errors.New("nil claim token")
)

// 校验结果，与 pkg/types 中的哨兵错误相同
var (
	ErrExpired           = types.ErrExpired
	ErrBadSignature      = types.ErrBadSignature
	ErrUnknownIssuer     = types.ErrUnknownIssuer
	ErrInsufficientScope = types.ErrInsufficientScope
)

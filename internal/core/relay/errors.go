package relay

import (
	"errors"

	"github.com/dep2p/go-home/pkg/types"
)

var (
	// ErrSubjectMismatch 凭证主体不是主叫
	ErrSubjectMismatch = errors.New("claim subject is not the caller")

	// ErrMissingClaim 调用未携带凭证
	ErrMissingClaim = errors.New("missing claim")

	// ErrRouterClosed 转发器已关闭
	ErrRouterClosed = errors.New("router closed")
)

// 转发结果，与 pkg/types 中的哨兵错误相同
var (
	ErrUnauthorized      = types.ErrUnauthorized
	ErrCalleeUnavailable = types.ErrCalleeUnavailable
	ErrDuplicateCallID   = types.ErrDuplicateCallID
	ErrRateLimited       = types.ErrRateLimited
	ErrTooManyCalls      = types.ErrTooManyCalls
	ErrCallTimeout       = types.ErrCallTimeout
	ErrCallIDMismatch    = types.ErrCallIDMismatch
	ErrCancelled         = types.ErrCancelled
)

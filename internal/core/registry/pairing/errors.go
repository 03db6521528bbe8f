package pairing

import (
	"errors"

	"github.com/dep2p/go-home/pkg/types"
)

var (
	// ErrNotPaired 配对不存在
	ErrNotPaired = errors.New("not paired")

	// ErrWrongRelation 声明的关系类型不受支持
	ErrWrongRelation = errors.New("unsupported relation")

	// ErrMissingSignature 缺少一方签名
	ErrMissingSignature = errors.New("missing signature")
)

// ErrProofInvalid 配对证明无效
var ErrProofInvalid = types.ErrProofInvalid

package identity

import (
	"errors"

	"github.com/dep2p/go-home/pkg/types"
)

var (
	// ErrNilPrivateKey 私钥为 nil
	ErrNilPrivateKey = errors.New("private key is nil")

	// ErrNoResolver 未配置解析来源
	ErrNoResolver = errors.New("no resolver configured")

	// ErrEmptyIdentifier 标识为空
	ErrEmptyIdentifier = errors.New("empty identifier")
)

// ErrNotFound 标识无法解析
var ErrNotFound = types.ErrNotFound

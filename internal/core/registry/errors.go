package registry

import (
	"errors"

	"github.com/dep2p/go-home/pkg/types"
)

var (
	// ErrRevoked 身份已被吊销
	ErrRevoked = errors.New("identity revoked")

	// ErrForeignHome 配对声明指向其他 home
	ErrForeignHome = errors.New("statement names another home")
)

// ErrNotPresent 身份没有活跃会话
var ErrNotPresent = types.ErrNotPresent

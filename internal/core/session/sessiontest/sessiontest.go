// Package sessiontest 提供在内存管道上建立会话的测试工具
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

// Key 生成 Ed25519 私钥
func Key(t testing.TB) crypto.PrivateKey {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	return priv
}

// Identity 返回私钥对应的身份
func Identity(t testing.TB, key crypto.PrivateKey, identifier string) types.Identity {
	t.Helper()
	id, err := types.IdentityFromPrivateKey(key, identifier)
	require.NoError(t, err)
	return id
}

// Establish 在内存管道上完成握手，返回 (发起方, 响应方) 会话
//
// 会话尚未 Start；测试结束时自动关闭。
func Establish(t testing.TB, initiatorKey, responderKey crypto.PrivateKey, iopts, ropts session.Options) (*session.Session, *session.Session) {
	t.Helper()
	chI, chR := transport.Pipe("initiator", "responder")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type res struct {
		s   *session.Session
		err error
	}
	rc := make(chan res, 1)
	go func() {
		s, err := session.Accept(ctx, chR, responderKey, ropts)
		rc <- res{s, err}
	}()
	si, err := session.Initiate(ctx, chI, initiatorKey, iopts)
	r := <-rc
	require.NoError(t, err)
	require.NoError(t, r.err)

	t.Cleanup(func() {
		si.Close()
		r.s.Close()
	})
	return si, r.s
}

// EstablishDefault 使用默认选项完成握手
func EstablishDefault(t testing.TB, initiatorKey, responderKey crypto.PrivateKey) (*session.Session, *session.Session) {
	t.Helper()
	return Establish(t, initiatorKey, responderKey, session.DefaultOptions(), session.DefaultOptions())
}

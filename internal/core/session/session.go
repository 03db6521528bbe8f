package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("session")

// Role 会话中的角色
type Role int

const (
	// RoleInitiator 发起握手的一方（persona）
	RoleInitiator Role = iota
	// RoleResponder 接受握手的一方（home）
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Session 已认证的会话
//
// 会话独占其多路复用连接，连接关闭即会话关闭。
// Registry 只引用会话，不拥有它。
type Session struct {
	id          string
	role        Role
	local       types.Identity
	remote      types.Identity
	key         []byte
	conn        *muxer.Conn
	machine     *Machine
	established time.Time
}

func newSession(id string, role Role, local, remote types.Identity, key []byte, conn *muxer.Conn, m *Machine, now time.Time) *Session {
	s := &Session{
		id:          id,
		role:        role,
		local:       local,
		remote:      remote,
		key:         key,
		conn:        conn,
		machine:     m,
		established: now,
	}
	conn.OnClose(func(reason error) {
		_ = s.machine.Transition(StateClosed)
		log.Debug("会话关闭",
			"session", s.id,
			"remote", s.remote.ID().ShortString(),
			"reason", reason)
	})
	return s
}

// ID 返回会话 ID
func (s *Session) ID() string { return s.id }

// Role 返回本地角色
func (s *Session) Role() Role { return s.role }

// Local 返回本地身份
func (s *Session) Local() types.Identity { return s.local }

// Remote 返回已认证的对端身份
func (s *Session) Remote() types.Identity { return s.remote }

// Key 返回 32 字节会话密钥
func (s *Session) Key() []byte { return append([]byte(nil), s.key...) }

// Conn 返回会话的多路复用连接
func (s *Session) Conn() *muxer.Conn { return s.conn }

// State 返回当前状态
func (s *Session) State() State { return s.machine.State() }

// EstablishedAt 返回握手完成时间
func (s *Session) EstablishedAt() time.Time { return s.established }

// LastActivity 返回最近一次收到帧的时间
func (s *Session) LastActivity() time.Time { return s.conn.LastActivity() }

// Start 开始在会话上收发请求
func (s *Session) Start(handler muxer.Handler) error {
	if st := s.State(); st != StateActive {
		return fmt.Errorf("%w: %s", ErrNotActive, st)
	}
	return s.conn.Start(handler)
}

// Call 在会话上发起请求并等待响应
func (s *Session) Call(ctx context.Context, payload []byte) ([]byte, error) {
	return s.conn.Call(ctx, payload)
}

// Close 正常关闭会话
func (s *Session) Close() error {
	s.CloseWithError(muxer.ErrConnClosed)
	return nil
}

// CloseWithError 以 reason 关闭会话，所有未完成请求以 reason 失败
func (s *Session) CloseWithError(reason error) {
	if s.machine.Transition(StateClosing) != nil && s.State() == StateClosed {
		return
	}
	s.conn.CloseWithError(reason)
}

// OnClose 注册关闭回调
func (s *Session) OnClose(fn func(reason error)) { s.conn.OnClose(fn) }

// Done 在连接完全关闭后关闭
func (s *Session) Done() <-chan struct{} { return s.conn.Done() }

// Err 返回关闭原因
func (s *Session) Err() error { return s.conn.Err() }

func (s *Session) String() string {
	return fmt.Sprintf("session(%s %s %s)", s.id, s.role, s.remote.ID().ShortString())
}

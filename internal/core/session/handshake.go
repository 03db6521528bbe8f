package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/flynn/noise"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// ============================================================================
//                              常量
// ============================================================================

const (
	// NonceSize 握手随机数长度
	NonceSize = 32

	// KeySize 会话密钥长度
	KeySize = 32

	challengeTag = "dep2p-home/handshake/v1/challenge"
	proofTag     = "dep2p-home/handshake/v1/proof"
	keyInfo      = "dep2p-home/handshake/v1/session-key"
)

// ============================================================================
//                              入口
// ============================================================================

// Initiate 作为发起方在 ch 上完成握手
//
// 成功时返回 Active 会话，其连接已创建但尚未启动，由调用方 Start。
// 失败时关闭 ch，返回的错误匹配 types.ErrHandshakeFailed；
// 若被对端拒绝，还匹配拒绝原因对应的哨兵错误。
func Initiate(ctx context.Context, ch transport.Channel, key crypto.PrivateKey, opts Options) (*Session, error) {
	return run(ctx, ch, key, opts, (*handshake).initiate)
}

// Accept 作为响应方（home）在 ch 上完成握手
//
// 失败时尽力向对端发送 Reject 后关闭 ch。
func Accept(ctx context.Context, ch transport.Channel, key crypto.PrivateKey, opts Options) (*Session, error) {
	return run(ctx, ch, key, opts, (*handshake).accept)
}

func run(ctx context.Context, ch transport.Channel, key crypto.PrivateKey, opts Options, fn func(*handshake, context.Context) (*Session, error)) (*Session, error) {
	opts.normalize()

	local, err := types.IdentityFromPrivateKey(key, opts.Identifier)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%w: local identity: %w", types.ErrHandshakeFailed, err)
	}

	if opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.HandshakeTimeout)
		defer cancel()
	}

	h := &handshake{ch: ch, key: key, local: local, opts: opts, m: &Machine{}}
	s, err := fn(h, ctx)
	if err != nil {
		_ = h.m.Transition(StateClosed)
		_ = ch.Close()
		if !errors.Is(err, types.ErrHandshakeFailed) {
			err = fmt.Errorf("%w: %w", types.ErrHandshakeFailed, err)
		}
		log.Debug("握手失败", "remote", ch.RemoteAddr(), "err", err)
		return nil, err
	}
	log.Debug("握手完成",
		"session", s.ID(),
		"role", s.Role(),
		"remote", s.Remote().ID().ShortString(),
		"addr", ch.RemoteAddr())
	return s, nil
}

// ============================================================================
//                              握手状态
// ============================================================================

type handshake struct {
	ch    transport.Channel
	key   crypto.PrivateKey
	local types.Identity
	opts  Options
	m     *Machine
}

func (h *handshake) initiate(ctx context.Context) (*Session, error) {
	if err := h.m.Transition(StateAuthenticating); err != nil {
		return nil, err
	}

	clientNonce, err := h.nonce()
	if err != nil {
		return nil, err
	}
	if err := h.send(ctx, &home.HandshakeMessage{Hello: &home.Hello{
		Identity: h.local.Bytes(),
		Nonce:    clientNonce,
		Version:  home.ProtocolVersion,
	}}); err != nil {
		return nil, err
	}

	msg, err := h.receive(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Reject != nil {
		return nil, rejectErr(msg.Reject)
	}
	c := msg.Challenge
	if c == nil {
		return nil, fmt.Errorf("%w: want challenge, got %s", ErrUnexpectedMessage, msg.Kind())
	}

	remote, err := types.ParseIdentity(c.Identity)
	if err != nil {
		return nil, err
	}
	if h.opts.ExpectedRemote != "" && remote.ID() != h.opts.ExpectedRemote {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrIdentityMismatch, h.opts.ExpectedRemote.ShortString(), remote.ID().ShortString())
	}
	if len(c.Nonce) != NonceSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadNonce, len(c.Nonce))
	}
	if len(c.Ephemeral) != noise.DH25519.DHLen() {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadEphemeral, len(c.Ephemeral))
	}

	challenge := challengeDigest(clientNonce, c.Nonce, h.local.ID(), remote.ID(), c.Ephemeral)
	if !remote.Verify(challenge, c.Signature) {
		return nil, fmt.Errorf("home signature: %w", types.ErrBadSignature)
	}

	eph, err := noise.DH25519.GenerateKeypair(h.opts.Rand)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	sig, err := h.key.Sign(proofDigest(challenge, eph.Public))
	if err != nil {
		return nil, fmt.Errorf("sign proof: %w", err)
	}
	if err := h.send(ctx, &home.HandshakeMessage{Proof: &home.Proof{
		Signature: sig,
		Ephemeral: eph.Public,
	}}); err != nil {
		return nil, err
	}

	msg, err = h.receive(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Reject != nil {
		return nil, rejectErr(msg.Reject)
	}
	if msg.Welcome == nil {
		return nil, fmt.Errorf("%w: want welcome, got %s", ErrUnexpectedMessage, msg.Kind())
	}
	if _, err := uuid.Parse(msg.Welcome.SessionID); err != nil {
		return nil, &types.FormatError{Field: "welcome.session_id", Reason: "not a uuid", Cause: err}
	}

	sessionKey, err := deriveKey(eph.Private, c.Ephemeral, challenge)
	if err != nil {
		return nil, err
	}
	return h.establish(msg.Welcome.SessionID, RoleInitiator, remote, sessionKey)
}

func (h *handshake) accept(ctx context.Context) (*Session, error) {
	if err := h.m.Transition(StateAuthenticating); err != nil {
		return nil, err
	}

	msg, err := h.receive(ctx)
	if err != nil {
		return nil, err
	}
	hello := msg.Hello
	if hello == nil {
		return nil, h.reject(ctx, fmt.Errorf("%w: want hello, got %s", ErrUnexpectedMessage, msg.Kind()))
	}
	if hello.Version != home.ProtocolVersion {
		return nil, h.reject(ctx, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, hello.Version, home.ProtocolVersion))
	}
	remote, err := types.ParseIdentity(hello.Identity)
	if err != nil {
		return nil, h.reject(ctx, err)
	}
	if len(hello.Nonce) != NonceSize {
		return nil, h.reject(ctx, fmt.Errorf("%w: %d bytes", ErrBadNonce, len(hello.Nonce)))
	}

	serverNonce, err := h.nonce()
	if err != nil {
		return nil, err
	}
	eph, err := noise.DH25519.GenerateKeypair(h.opts.Rand)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	challenge := challengeDigest(hello.Nonce, serverNonce, remote.ID(), h.local.ID(), eph.Public)
	sig, err := h.key.Sign(challenge)
	if err != nil {
		return nil, fmt.Errorf("sign challenge: %w", err)
	}
	if err := h.send(ctx, &home.HandshakeMessage{Challenge: &home.Challenge{
		Identity:  h.local.Bytes(),
		Nonce:     serverNonce,
		Ephemeral: eph.Public,
		Signature: sig,
	}}); err != nil {
		return nil, err
	}

	msg, err = h.receive(ctx)
	if err != nil {
		return nil, err
	}
	proof := msg.Proof
	if proof == nil {
		return nil, h.reject(ctx, fmt.Errorf("%w: want proof, got %s", ErrUnexpectedMessage, msg.Kind()))
	}
	if len(proof.Ephemeral) != noise.DH25519.DHLen() {
		return nil, h.reject(ctx, fmt.Errorf("%w: %d bytes", ErrBadEphemeral, len(proof.Ephemeral)))
	}
	if !remote.Verify(proofDigest(challenge, proof.Ephemeral), proof.Signature) {
		return nil, h.reject(ctx, fmt.Errorf("persona proof: %w", types.ErrBadSignature))
	}
	if h.opts.Authorize != nil {
		if err := h.opts.Authorize(remote); err != nil {
			return nil, h.reject(ctx, err)
		}
	}

	sessionKey, err := deriveKey(eph.Private, proof.Ephemeral, challenge)
	if err != nil {
		return nil, h.reject(ctx, err)
	}
	id := uuid.NewString()
	if err := h.send(ctx, &home.HandshakeMessage{Welcome: &home.Welcome{SessionID: id}}); err != nil {
		return nil, err
	}
	return h.establish(id, RoleResponder, remote, sessionKey)
}

func (h *handshake) establish(id string, role Role, remote types.Identity, key []byte) (*Session, error) {
	if err := h.m.Transition(StateActive); err != nil {
		return nil, err
	}
	conn := muxer.NewConn(h.ch, h.opts.Mux)
	return newSession(id, role, h.local, remote, key, conn, h.m, h.opts.Clock.Now()), nil
}

// ============================================================================
//                              消息收发
// ============================================================================

func (h *handshake) send(ctx context.Context, msg *home.HandshakeMessage) error {
	if err := h.ch.Send(ctx, msg.Marshal()); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
	return nil
}

func (h *handshake) receive(ctx context.Context) (*home.HandshakeMessage, error) {
	data, err := h.ch.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return home.UnmarshalHandshake(data)
}

// reject 尽力发送 Reject，返回 cause
func (h *handshake) reject(ctx context.Context, cause error) error {
	code := types.CodesOf(cause)[0]
	if code == types.CodeInternal {
		code = types.CodeHandshakeFailed
	}
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = h.send(rctx, &home.HandshakeMessage{Reject: &home.Reject{Code: code, Reason: cause.Error()}})
	return cause
}

func (h *handshake) nonce() ([]byte, error) {
	b := make([]byte, NonceSize)
	if _, err := io.ReadFull(h.opts.Rand, b); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return b, nil
}

// rejectErr 把对端的 Reject 转换为本地错误
func rejectErr(r *home.Reject) error {
	codes := []types.ErrorCode{types.CodeHandshakeFailed}
	if r.Code != types.CodeHandshakeFailed {
		codes = append(codes, r.Code)
	}
	return &types.RemoteError{Codes: codes, Message: r.Reason}
}

// ============================================================================
//                              密码学
// ============================================================================

// challengeDigest 计算双方共同签署的挑战值
func challengeDigest(clientNonce, serverNonce []byte, clientID, serverID types.IdentityID, serverEph []byte) []byte {
	h := sha256.New()
	h.Write([]byte(challengeTag))
	h.Write(clientNonce)
	h.Write(serverNonce)
	h.Write(clientID.Bytes())
	h.Write(serverID.Bytes())
	h.Write(serverEph)
	return h.Sum(nil)
}

// proofDigest 发起方签名的内容，把挑战值与发起方临时公钥绑定
func proofDigest(challenge, clientEph []byte) []byte {
	h := sha256.New()
	h.Write([]byte(proofTag))
	h.Write(challenge)
	h.Write(clientEph)
	return h.Sum(nil)
}

// deriveKey X25519 共享秘密经 HKDF-SHA256 派生会话密钥
func deriveKey(priv, peerPub, challenge []byte) ([]byte, error) {
	shared, err := noise.DH25519.DH(priv, peerPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadEphemeral, err)
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, challenge, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return key, nil
}

package home

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-home/pkg/types"
)

// ProtocolVersion 当前握手协议版本
const ProtocolVersion uint32 = 1

// Hello 发起方的第一条消息
type Hello struct {
	Identity []byte
	Nonce    []byte
	Version  uint32
}

// Challenge home 对 Hello 的回应
type Challenge struct {
	Identity  []byte
	Nonce     []byte
	Ephemeral []byte
	Signature []byte
}

// Proof 发起方对挑战值的签名
type Proof struct {
	Signature []byte
	Ephemeral []byte
}

// Welcome 握手成功
type Welcome struct {
	SessionID string
}

// Reject 握手失败
type Reject struct {
	Code   types.ErrorCode
	Reason string
}

// HandshakeMessage 握手消息信封，恰好一个字段非空
type HandshakeMessage struct {
	Hello     *Hello
	Challenge *Challenge
	Proof     *Proof
	Welcome   *Welcome
	Reject    *Reject
}

// Kind 返回信封中消息的名称，用于日志与错误
func (m *HandshakeMessage) Kind() string {
	switch {
	case m.Hello != nil:
		return "hello"
	case m.Challenge != nil:
		return "challenge"
	case m.Proof != nil:
		return "proof"
	case m.Welcome != nil:
		return "welcome"
	case m.Reject != nil:
		return "reject"
	default:
		return "empty"
	}
}

// Marshal 编码握手信封
func (m *HandshakeMessage) Marshal() []byte {
	var v []byte
	switch {
	case m.Hello != nil:
		v = appendBytes(v, 1, m.Hello.Identity)
		v = appendBytes(v, 2, m.Hello.Nonce)
		v = appendUvarint(v, 3, uint64(m.Hello.Version))
		return appendMessage(nil, 1, v)
	case m.Challenge != nil:
		v = appendBytes(v, 1, m.Challenge.Identity)
		v = appendBytes(v, 2, m.Challenge.Nonce)
		v = appendBytes(v, 3, m.Challenge.Ephemeral)
		v = appendBytes(v, 4, m.Challenge.Signature)
		return appendMessage(nil, 2, v)
	case m.Proof != nil:
		v = appendBytes(v, 1, m.Proof.Signature)
		v = appendBytes(v, 2, m.Proof.Ephemeral)
		return appendMessage(nil, 3, v)
	case m.Welcome != nil:
		v = appendString(v, 1, m.Welcome.SessionID)
		return appendMessage(nil, 4, v)
	case m.Reject != nil:
		v = appendUvarint(v, 1, uint64(m.Reject.Code))
		v = appendString(v, 2, m.Reject.Reason)
		return appendMessage(nil, 5, v)
	}
	return nil
}

// UnmarshalHandshake 解码握手信封
func UnmarshalHandshake(data []byte) (*HandshakeMessage, error) {
	m := &HandshakeMessage{}
	err := decode("handshake", data, func(r *reader, num protowire.Number, typ protowire.Type) {
		switch num {
		case 1:
			h := &Hello{}
			r.message(typ, "handshake.hello", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					h.Identity = r.bytes(typ)
				case 2:
					h.Nonce = r.bytes(typ)
				case 3:
					h.Version = uint32(r.uvarint(typ))
				default:
					r.skip(num, typ)
				}
			})
			m.Hello = h
		case 2:
			c := &Challenge{}
			r.message(typ, "handshake.challenge", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					c.Identity = r.bytes(typ)
				case 2:
					c.Nonce = r.bytes(typ)
				case 3:
					c.Ephemeral = r.bytes(typ)
				case 4:
					c.Signature = r.bytes(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.Challenge = c
		case 3:
			p := &Proof{}
			r.message(typ, "handshake.proof", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					p.Signature = r.bytes(typ)
				case 2:
					p.Ephemeral = r.bytes(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.Proof = p
		case 4:
			w := &Welcome{}
			r.message(typ, "handshake.welcome", func(r *reader, num protowire.Number, typ protowire.Type) {
				if num == 1 {
					w.SessionID = r.string(typ)
					return
				}
				r.skip(num, typ)
			})
			m.Welcome = w
		case 5:
			rj := &Reject{}
			r.message(typ, "handshake.reject", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					rj.Code = types.ErrorCode(r.uvarint(typ))
				case 2:
					rj.Reason = r.string(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.Reject = rj
		default:
			r.skip(num, typ)
		}
	})
	if err != nil {
		return nil, err
	}
	if m.Kind() == "empty" {
		return nil, &types.FormatError{Field: "handshake", Reason: "no message body"}
	}
	return m, nil
}

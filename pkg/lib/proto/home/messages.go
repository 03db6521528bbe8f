package home

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-home/pkg/types"
)

// ============================================================================
//                              配对
// ============================================================================

// RelationHostedOnHome persona 托管在 home 上的关系类型
const RelationHostedOnHome = "hosted_on_home"

// PairingStatement 双方签名的配对声明
type PairingStatement struct {
	Relation      string
	Persona       []byte // types.Identity 序列化
	Home          []byte
	Addresses     [][]byte // 二进制 multiaddr，有序
	EstablishedAt int64    // unix 纳秒
	Expiry        int64    // unix 纳秒，0 表示不过期
}

// Marshal 确定性编码
func (s *PairingStatement) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, s.Relation)
	b = appendBytes(b, 2, s.Persona)
	b = appendBytes(b, 3, s.Home)
	for _, a := range s.Addresses {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a)
	}
	b = appendSint(b, 5, s.EstablishedAt)
	b = appendSint(b, 6, s.Expiry)
	return b
}

func (s *PairingStatement) field(r *reader, num protowire.Number, typ protowire.Type) {
	switch num {
	case 1:
		s.Relation = r.string(typ)
	case 2:
		s.Persona = r.bytes(typ)
	case 3:
		s.Home = r.bytes(typ)
	case 4:
		s.Addresses = append(s.Addresses, r.bytes(typ))
	case 5:
		s.EstablishedAt = r.sint(typ)
	case 6:
		s.Expiry = r.sint(typ)
	default:
		r.skip(num, typ)
	}
}

// UnmarshalPairingStatement 解码配对声明
func UnmarshalPairingStatement(data []byte) (*PairingStatement, error) {
	s := &PairingStatement{}
	if err := decode("pairing_statement", data, s.field); err != nil {
		return nil, err
	}
	return s, nil
}

// PairRequest persona 的半证明：声明加 persona 签名
type PairRequest struct {
	Statement        *PairingStatement
	PersonaSignature []byte
}

// PairResponse home 的会签
type PairResponse struct {
	HomeSignature []byte
}

// Marshal 编码
func (m *PairResponse) Marshal() []byte { return appendBytes(nil, 1, m.HomeSignature) }

// UnmarshalPairResponse 解码
func UnmarshalPairResponse(data []byte) (*PairResponse, error) {
	m := &PairResponse{}
	err := decode("pair_response", data, func(r *reader, num protowire.Number, typ protowire.Type) {
		if num == 1 {
			m.HomeSignature = r.bytes(typ)
			return
		}
		r.skip(num, typ)
	})
	return m, err
}

// UnpairRequest 解除与当前 home 的配对
type UnpairRequest struct{}

// ============================================================================
//                              授权
// ============================================================================

// ClaimRequest 请求 home 签发授权令牌
type ClaimRequest struct {
	Scope []string
	TTL   int64 // 纳秒
}

// ClaimResponse 签发的令牌
type ClaimResponse struct {
	Token []byte
}

// Marshal 编码
func (m *ClaimResponse) Marshal() []byte { return appendBytes(nil, 1, m.Token) }

// UnmarshalClaimResponse 解码
func UnmarshalClaimResponse(data []byte) (*ClaimResponse, error) {
	m := &ClaimResponse{}
	err := decode("claim_response", data, func(r *reader, num protowire.Number, typ protowire.Type) {
		if num == 1 {
			m.Token = r.bytes(typ)
			return
		}
		r.skip(num, typ)
	})
	return m, err
}

// ============================================================================
//                              呼叫
// ============================================================================

// CallRequest persona 请求 home 转发呼叫
type CallRequest struct {
	Callee  []byte // IdentityID multihash
	Claim   []byte
	App     string
	Payload []byte
}

// IncomingCall home 转发给被叫方的呼叫
//
// CallID 是主叫会话内的请求 ID，被叫方必须在 CallResponse 中原样回显。
type IncomingCall struct {
	CallID  uint64
	Caller  []byte // types.Identity 序列化
	App     string
	Payload []byte
}

// CallResponse 被叫方的响应，同时也是 home 回给主叫方的响应
type CallResponse struct {
	CallID  uint64
	Payload []byte
}

// Marshal 编码
func (m *CallResponse) Marshal() []byte {
	var b []byte
	b = appendUvarint(b, 1, m.CallID)
	b = appendBytes(b, 2, m.Payload)
	return b
}

// UnmarshalCallResponse 解码
func UnmarshalCallResponse(data []byte) (*CallResponse, error) {
	m := &CallResponse{}
	err := decode("call_response", data, func(r *reader, num protowire.Number, typ protowire.Type) {
		switch num {
		case 1:
			m.CallID = r.uvarint(typ)
		case 2:
			m.Payload = r.bytes(typ)
		default:
			r.skip(num, typ)
		}
	})
	return m, err
}

// ============================================================================
//                              解析与 ping
// ============================================================================

// ResolveRequest 按标识符或身份 ID 查询托管的 persona
type ResolveRequest struct {
	Identifier string
	ID         []byte
}

// ResolveResponse persona 的身份与 home 地址
type ResolveResponse struct {
	Identity  []byte
	Addresses [][]byte
}

// Marshal 编码
func (m *ResolveResponse) Marshal() []byte {
	b := appendBytes(nil, 1, m.Identity)
	for _, a := range m.Addresses {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, a)
	}
	return b
}

// UnmarshalResolveResponse 解码
func UnmarshalResolveResponse(data []byte) (*ResolveResponse, error) {
	m := &ResolveResponse{}
	err := decode("resolve_response", data, func(r *reader, num protowire.Number, typ protowire.Type) {
		switch num {
		case 1:
			m.Identity = r.bytes(typ)
		case 2:
			m.Addresses = append(m.Addresses, r.bytes(typ))
		default:
			r.skip(num, typ)
		}
	})
	return m, err
}

// Ping 回显请求，响应是同样的 Ping
type Ping struct {
	Text string
}

// Marshal 编码
func (m *Ping) Marshal() []byte { return appendString(nil, 1, m.Text) }

// UnmarshalPing 解码
func UnmarshalPing(data []byte) (*Ping, error) {
	m := &Ping{}
	err := decode("ping", data, func(r *reader, num protowire.Number, typ protowire.Type) {
		if num == 1 {
			m.Text = r.string(typ)
			return
		}
		r.skip(num, typ)
	})
	return m, err
}

// ============================================================================
//                              persona 关系
// ============================================================================

// RelationStatement 两个 persona 之间的关系声明
//
// Relation 不得为 hosted_on_home，后者只用于 persona 与 home 的配对。
type RelationStatement struct {
	Relation      string
	From          []byte // 发起方 types.Identity 序列化
	To            []byte // 被请求方
	EstablishedAt int64  // unix 纳秒
	Expiry        int64  // unix 纳秒，0 表示不过期
}

// Marshal 确定性编码
func (s *RelationStatement) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, s.Relation)
	b = appendBytes(b, 2, s.From)
	b = appendBytes(b, 3, s.To)
	b = appendSint(b, 4, s.EstablishedAt)
	b = appendSint(b, 5, s.Expiry)
	return b
}

func (s *RelationStatement) field(r *reader, num protowire.Number, typ protowire.Type) {
	switch num {
	case 1:
		s.Relation = r.string(typ)
	case 2:
		s.From = r.bytes(typ)
	case 3:
		s.To = r.bytes(typ)
	case 4:
		s.EstablishedAt = r.sint(typ)
	case 5:
		s.Expiry = r.sint(typ)
	default:
		r.skip(num, typ)
	}
}

// UnmarshalRelationStatement 解码关系声明
func UnmarshalRelationStatement(data []byte) (*RelationStatement, error) {
	s := &RelationStatement{}
	if err := decode("relation_statement", data, s.field); err != nil {
		return nil, err
	}
	return s, nil
}

// RelationRequest 发起方的半证明
//
// persona 发给自己的 home，home 原样转给声明中的被请求方。
type RelationRequest struct {
	Statement     *RelationStatement
	FromSignature []byte
}

// RelationResponse 被请求方会签后的完整证明，home 原样转回发起方
type RelationResponse struct {
	Statement     *RelationStatement
	FromSignature []byte
	ToSignature   []byte
}

// ============================================================================
//                              请求信封
// ============================================================================

// Request 多路复用请求的载荷，恰好一个字段非空
type Request struct {
	Pair         *PairRequest
	Claim        *ClaimRequest
	Call         *CallRequest
	Resolve      *ResolveRequest
	Unpair       *UnpairRequest
	Ping         *Ping
	IncomingCall *IncomingCall

	RelationRequest  *RelationRequest
	RelationResponse *RelationResponse
}

// Kind 返回请求名称
func (m *Request) Kind() string {
	switch {
	case m.Pair != nil:
		return "pair"
	case m.Claim != nil:
		return "claim"
	case m.Call != nil:
		return "call"
	case m.Resolve != nil:
		return "resolve"
	case m.Unpair != nil:
		return "unpair"
	case m.Ping != nil:
		return "ping"
	case m.IncomingCall != nil:
		return "incoming_call"
	case m.RelationRequest != nil:
		return "relation_request"
	case m.RelationResponse != nil:
		return "relation_response"
	default:
		return "empty"
	}
}

// Marshal 编码请求信封
func (m *Request) Marshal() []byte {
	var v []byte
	switch {
	case m.Pair != nil:
		if m.Pair.Statement != nil {
			v = appendMessage(v, 1, m.Pair.Statement.Marshal())
		}
		v = appendBytes(v, 2, m.Pair.PersonaSignature)
		return appendMessage(nil, 1, v)
	case m.Claim != nil:
		for _, s := range m.Claim.Scope {
			v = protowire.AppendTag(v, 1, protowire.BytesType)
			v = protowire.AppendString(v, s)
		}
		v = appendSint(v, 2, m.Claim.TTL)
		return appendMessage(nil, 2, v)
	case m.Call != nil:
		v = appendBytes(v, 1, m.Call.Callee)
		v = appendBytes(v, 2, m.Call.Claim)
		v = appendString(v, 3, m.Call.App)
		v = appendBytes(v, 4, m.Call.Payload)
		return appendMessage(nil, 3, v)
	case m.Resolve != nil:
		v = appendString(v, 1, m.Resolve.Identifier)
		v = appendBytes(v, 2, m.Resolve.ID)
		return appendMessage(nil, 4, v)
	case m.Unpair != nil:
		return appendMessage(nil, 5, nil)
	case m.Ping != nil:
		return appendMessage(nil, 6, m.Ping.Marshal())
	case m.IncomingCall != nil:
		v = appendUvarint(v, 1, m.IncomingCall.CallID)
		v = appendBytes(v, 2, m.IncomingCall.Caller)
		v = appendString(v, 3, m.IncomingCall.App)
		v = appendBytes(v, 4, m.IncomingCall.Payload)
		return appendMessage(nil, 7, v)
	case m.RelationRequest != nil:
		if m.RelationRequest.Statement != nil {
			v = appendMessage(v, 1, m.RelationRequest.Statement.Marshal())
		}
		v = appendBytes(v, 2, m.RelationRequest.FromSignature)
		return appendMessage(nil, 8, v)
	case m.RelationResponse != nil:
		if m.RelationResponse.Statement != nil {
			v = appendMessage(v, 1, m.RelationResponse.Statement.Marshal())
		}
		v = appendBytes(v, 2, m.RelationResponse.FromSignature)
		v = appendBytes(v, 3, m.RelationResponse.ToSignature)
		return appendMessage(nil, 9, v)
	}
	return nil
}

// UnmarshalRequest 解码请求信封
func UnmarshalRequest(data []byte) (*Request, error) {
	m := &Request{}
	err := decode("request", data, func(r *reader, num protowire.Number, typ protowire.Type) {
		switch num {
		case 1:
			p := &PairRequest{}
			r.message(typ, "request.pair", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					st := &PairingStatement{}
					r.message(typ, "request.pair.statement", st.field)
					p.Statement = st
				case 2:
					p.PersonaSignature = r.bytes(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.Pair = p
		case 2:
			c := &ClaimRequest{}
			r.message(typ, "request.claim", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					c.Scope = append(c.Scope, r.string(typ))
				case 2:
					c.TTL = r.sint(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.Claim = c
		case 3:
			c := &CallRequest{}
			r.message(typ, "request.call", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					c.Callee = r.bytes(typ)
				case 2:
					c.Claim = r.bytes(typ)
				case 3:
					c.App = r.string(typ)
				case 4:
					c.Payload = r.bytes(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.Call = c
		case 4:
			q := &ResolveRequest{}
			r.message(typ, "request.resolve", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					q.Identifier = r.string(typ)
				case 2:
					q.ID = r.bytes(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.Resolve = q
		case 5:
			r.message(typ, "request.unpair", func(r *reader, num protowire.Number, typ protowire.Type) {
				r.skip(num, typ)
			})
			m.Unpair = &UnpairRequest{}
		case 6:
			p := &Ping{}
			r.message(typ, "request.ping", func(r *reader, num protowire.Number, typ protowire.Type) {
				if num == 1 {
					p.Text = r.string(typ)
					return
				}
				r.skip(num, typ)
			})
			m.Ping = p
		case 7:
			c := &IncomingCall{}
			r.message(typ, "request.incoming_call", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					c.CallID = r.uvarint(typ)
				case 2:
					c.Caller = r.bytes(typ)
				case 3:
					c.App = r.string(typ)
				case 4:
					c.Payload = r.bytes(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.IncomingCall = c
		case 8:
			q := &RelationRequest{}
			r.message(typ, "request.relation_request", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					st := &RelationStatement{}
					r.message(typ, "request.relation_request.statement", st.field)
					q.Statement = st
				case 2:
					q.FromSignature = r.bytes(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.RelationRequest = q
		case 9:
			q := &RelationResponse{}
			r.message(typ, "request.relation_response", func(r *reader, num protowire.Number, typ protowire.Type) {
				switch num {
				case 1:
					st := &RelationStatement{}
					r.message(typ, "request.relation_response.statement", st.field)
					q.Statement = st
				case 2:
					q.FromSignature = r.bytes(typ)
				case 3:
					q.ToSignature = r.bytes(typ)
				default:
					r.skip(num, typ)
				}
			})
			m.RelationResponse = q
		default:
			r.skip(num, typ)
		}
	})
	if err != nil {
		return nil, err
	}
	if m.Kind() == "empty" {
		return nil, &types.FormatError{Field: "request", Reason: "no request body"}
	}
	return m, nil
}

package types

import (
	"encoding/json"

	"github.com/ipfs/go-cid"
	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-home/pkg/lib/crypto"
)

// ============================================================================
//                              IdentityID
// ============================================================================

// IdentityID 由公钥派生的身份标识
//
// 内容是序列化公钥的 sha2-256 multihash，文本形式为 base58。
// 可直接作为 map 键使用。
type IdentityID string

// EmptyIdentityID 空身份 ID
const EmptyIdentityID IdentityID = ""

// IdentityIDFromPublicKey 计算公钥对应的身份 ID
func IdentityIDFromPublicKey(pub crypto.PublicKey) (IdentityID, error) {
	raw, err := crypto.MarshalPublicKey(pub)
	if err != nil {
		return EmptyIdentityID, formatErr("identity.public_key", "cannot marshal", err)
	}
	return idFromMarshaledKey(raw), nil
}

func idFromMarshaledKey(raw []byte) IdentityID {
	// SHA2_256 且默认长度时 Sum 不会失败
	sum, _ := mh.Sum(raw, mh.SHA2_256, -1) //nolint:errcheck
	return IdentityID(sum)
}

// IdentityIDFromBytes 从 multihash 字节恢复身份 ID
func IdentityIDFromBytes(b []byte) (IdentityID, error) {
	decoded, err := mh.Decode(b)
	if err != nil {
		return EmptyIdentityID, formatErr("identity_id", "not a multihash", err)
	}
	if decoded.Code != mh.SHA2_256 || decoded.Length != 32 {
		return EmptyIdentityID, formatErr("identity_id", "unsupported hash "+decoded.Name, nil)
	}
	return IdentityID(b), nil
}

// ParseIdentityID 解析身份 ID 文本
//
// 接受 base58 multihash（String 的输出）或 CIDv1 文本（CID 的输出）。
func ParseIdentityID(s string) (IdentityID, error) {
	if s == "" {
		return EmptyIdentityID, formatErr("identity_id", "empty", nil)
	}
	if b, err := base58.Decode(s); err == nil {
		if id, err := IdentityIDFromBytes(b); err == nil {
			return id, nil
		}
	}
	c, err := cid.Decode(s)
	if err != nil {
		return EmptyIdentityID, formatErr("identity_id", "neither base58 multihash nor cid", err)
	}
	return IdentityIDFromBytes(c.Hash())
}

// String 返回 base58 文本
func (id IdentityID) String() string {
	return base58.Encode([]byte(id))
}

// ShortString 返回用于日志的缩写
func (id IdentityID) ShortString() string {
	s := id.String()
	if len(s) <= 10 {
		return s
	}
	return s[len(s)-8:]
}

// Bytes 返回 multihash 字节
func (id IdentityID) Bytes() []byte {
	return []byte(id)
}

// IsEmpty 是否为空
func (id IdentityID) IsEmpty() bool {
	return id == EmptyIdentityID
}

// CID 返回 libp2p-key 编码的 CIDv1
func (id IdentityID) CID() cid.Cid {
	return cid.NewCidV1(cid.Libp2pKey, mh.Multihash(id))
}

// MarshalText 实现 encoding.TextMarshaler
func (id IdentityID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (id *IdentityID) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentityID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ============================================================================
//                              Identity
// ============================================================================

// Identity 公开身份：公钥加可选的可解析标识符
//
// 创建后不可变。相等性只比较公钥。
type Identity struct {
	key        crypto.PublicKey
	raw        []byte
	id         IdentityID
	identifier string
}

// NewIdentity 从公钥创建身份
func NewIdentity(pub crypto.PublicKey, identifier string) (Identity, error) {
	if pub == nil {
		return Identity{}, formatErr("identity.public_key", "missing", nil)
	}
	raw, err := crypto.MarshalPublicKey(pub)
	if err != nil {
		return Identity{}, formatErr("identity.public_key", "cannot marshal", err)
	}
	return Identity{key: pub, raw: raw, id: idFromMarshaledKey(raw), identifier: identifier}, nil
}

// IdentityFromPrivateKey 返回私钥对应的身份
func IdentityFromPrivateKey(priv crypto.PrivateKey, identifier string) (Identity, error) {
	if priv == nil {
		return Identity{}, formatErr("identity.public_key", "missing", nil)
	}
	return NewIdentity(priv.GetPublic(), identifier)
}

// 身份序列化字段号
const (
	identityFieldKey        protowire.Number = 1
	identityFieldIdentifier protowire.Number = 2
)

// ParseIdentity 解析序列化的身份
//
// 格式为 protobuf 兼容编码：字段 1 为序列化公钥，字段 2 为可选标识符。
// 字段必须按序出现且不得重复，未知字段与尾随字节都视为格式错误。
func ParseIdentity(b []byte) (Identity, error) {
	if len(b) == 0 {
		return Identity{}, formatErr("identity", "empty", nil)
	}

	var (
		raw        []byte
		identifier string
		last       protowire.Number
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Identity{}, formatErr("identity", "bad tag", protowire.ParseError(n))
		}
		b = b[n:]
		if num <= last {
			return Identity{}, formatErr("identity", "fields out of order or repeated", nil)
		}
		last = num
		if typ != protowire.BytesType {
			return Identity{}, formatErr("identity", "unexpected wire type", nil)
		}
		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return Identity{}, formatErr("identity", "truncated field", protowire.ParseError(m))
		}
		b = b[m:]

		switch num {
		case identityFieldKey:
			raw = v
		case identityFieldIdentifier:
			identifier = string(v)
		default:
			return Identity{}, formatErr("identity", "unknown field", nil)
		}
	}

	if raw == nil {
		return Identity{}, formatErr("identity.public_key", "missing", nil)
	}
	pub, err := crypto.UnmarshalPublicKeyBytes(raw)
	if err != nil {
		return Identity{}, formatErr("identity.public_key", "invalid key encoding", err)
	}
	return Identity{
		key:        pub,
		raw:        append([]byte(nil), raw...),
		id:         idFromMarshaledKey(raw),
		identifier: identifier,
	}, nil
}

// Bytes 序列化身份（确定性）
func (i Identity) Bytes() []byte {
	if i.IsEmpty() {
		return nil
	}
	var b []byte
	b = protowire.AppendTag(b, identityFieldKey, protowire.BytesType)
	b = protowire.AppendBytes(b, i.raw)
	if i.identifier != "" {
		b = protowire.AppendTag(b, identityFieldIdentifier, protowire.BytesType)
		b = protowire.AppendString(b, i.identifier)
	}
	return b
}

// PublicKey 返回公钥
func (i Identity) PublicKey() crypto.PublicKey { return i.key }

// PublicKeyBytes 返回序列化公钥
func (i Identity) PublicKeyBytes() []byte { return append([]byte(nil), i.raw...) }

// Identifier 返回可解析标识符（可能为空）
func (i Identity) Identifier() string { return i.identifier }

// ID 返回身份 ID
func (i Identity) ID() IdentityID { return i.id }

// IsEmpty 是否为零值
func (i Identity) IsEmpty() bool { return i.key == nil }

// Equal 比较公钥是否相同，忽略标识符
func (i Identity) Equal(other Identity) bool {
	if i.IsEmpty() || other.IsEmpty() {
		return i.IsEmpty() && other.IsEmpty()
	}
	return i.id == other.id
}

// Verify 使用身份公钥验证签名
func (i Identity) Verify(data, sig []byte) bool {
	if i.IsEmpty() {
		return false
	}
	ok, err := i.key.Verify(data, sig)
	return err == nil && ok
}

// String 返回 ID 文本，带标识符时附加在后面
func (i Identity) String() string {
	if i.IsEmpty() {
		return "<empty identity>"
	}
	if i.identifier != "" {
		return i.id.String() + "(" + i.identifier + ")"
	}
	return i.id.String()
}

// MarshalJSON 编码为 base58 文本
func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(base58.Encode(i.Bytes()))
}

// UnmarshalJSON 从 base58 文本解码
func (i *Identity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return formatErr("identity", "not a json string", err)
	}
	b, err := base58.Decode(s)
	if err != nil {
		return formatErr("identity", "not base58", err)
	}
	parsed, err := ParseIdentity(b)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

package claims

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

// DomainTag 规范字节的域分隔前缀
const DomainTag = "dep2p-home/claim/v1"

// ScopeRelay 转发呼叫所需的权限
const ScopeRelay = "relay"

const (
	fieldIssuer    protowire.Number = 1
	fieldSubject   protowire.Number = 2
	fieldScope     protowire.Number = 3
	fieldExpiry    protowire.Number = 4
	fieldSignature protowire.Number = 5
)

// Token 签名授权令牌
//
// 创建后视为不可变；修改任一字段都会使签名失效。
type Token struct {
	Issuer    types.Identity
	Subject   types.Identity
	Scope     []string // 升序、去重
	Expiry    time.Time
	Signature []byte
}

// Issue 签发令牌
//
// expiry = now + ttl。ttl 必须为正，scope 去掉空串后不能为空。
func Issue(signer crypto.PrivateKey, subject types.Identity, scope []string, ttl time.Duration, now time.Time) (*Token, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}
	normalized := NormalizeScope(scope)
	if len(normalized) == 0 {
		return nil, ErrEmptyScope
	}
	if subject.IsEmpty() {
		return nil, fmt.Errorf("claims: empty subject: %w", types.ErrFormat)
	}
	issuer, err := types.IdentityFromPrivateKey(signer, "")
	if err != nil {
		return nil, err
	}

	t := &Token{
		Issuer:  issuer,
		Subject: subject,
		Scope:   normalized,
		// 去掉单调时钟读数与时区，保证编码往返一致
		Expiry: time.Unix(0, now.Add(ttl).UnixNano()),
	}
	sig, err := signer.Sign(t.CanonicalBytes())
	if err != nil {
		return nil, fmt.Errorf("claims: sign: %w", err)
	}
	t.Signature = sig
	return t, nil
}

// NormalizeScope 返回升序去重且不含空串的权限集合
func NormalizeScope(scope []string) []string {
	out := make([]string, 0, len(scope))
	for _, s := range scope {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}

// CanonicalBytes 返回签名覆盖的字节（不含签名）
func (t *Token) CanonicalBytes() []byte {
	b := []byte(DomainTag)
	return t.appendFields(b)
}

func (t *Token) appendFields(b []byte) []byte {
	b = protowire.AppendTag(b, fieldIssuer, protowire.BytesType)
	b = protowire.AppendBytes(b, t.Issuer.Bytes())
	b = protowire.AppendTag(b, fieldSubject, protowire.BytesType)
	b = protowire.AppendBytes(b, t.Subject.Bytes())
	for _, s := range t.Scope {
		b = protowire.AppendTag(b, fieldScope, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	b = protowire.AppendTag(b, fieldExpiry, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(t.Expiry.UnixNano()))
	return b
}

// Bytes 序列化完整令牌（规范字段 + 签名）
func (t *Token) Bytes() []byte {
	b := t.appendFields(nil)
	b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
	return protowire.AppendBytes(b, t.Signature)
}

// ParseToken 解析序列化的令牌
//
// 只接受规范形式：字段按编号顺序出现，scope 升序且不重复，
// 所有必需字段都存在。不检查签名与有效期。
func ParseToken(b []byte) (*Token, error) {
	t := &Token{}
	var (
		last      protowire.Number
		hasExpiry bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, tokenErr("token", "bad tag", protowire.ParseError(n))
		}
		b = b[n:]
		if num < last || (num == last && num != fieldScope) {
			return nil, tokenErr("token", "fields out of order", nil)
		}
		last = num

		if num == fieldExpiry {
			if typ != protowire.VarintType {
				return nil, tokenErr("token.expiry", "wrong wire type", nil)
			}
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, tokenErr("token.expiry", "truncated", protowire.ParseError(m))
			}
			b = b[m:]
			t.Expiry = time.Unix(0, protowire.DecodeZigZag(v))
			hasExpiry = true
			continue
		}

		if typ != protowire.BytesType {
			return nil, tokenErr("token", "wrong wire type", nil)
		}
		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, tokenErr("token", "truncated field", protowire.ParseError(m))
		}
		b = b[m:]

		var err error
		switch num {
		case fieldIssuer:
			t.Issuer, err = types.ParseIdentity(v)
		case fieldSubject:
			t.Subject, err = types.ParseIdentity(v)
		case fieldScope:
			s := string(v)
			if s == "" || (len(t.Scope) > 0 && s <= t.Scope[len(t.Scope)-1]) {
				return nil, tokenErr("token.scope", "not sorted, unique and non-empty", nil)
			}
			t.Scope = append(t.Scope, s)
		case fieldSignature:
			t.Signature = append([]byte(nil), v...)
		default:
			return nil, tokenErr("token", fmt.Sprintf("unknown field %d", num), nil)
		}
		if err != nil {
			return nil, err
		}
	}

	switch {
	case t.Issuer.IsEmpty():
		return nil, tokenErr("token.issuer", "missing", nil)
	case t.Subject.IsEmpty():
		return nil, tokenErr("token.subject", "missing", nil)
	case len(t.Scope) == 0:
		return nil, tokenErr("token.scope", "missing", nil)
	case !hasExpiry:
		return nil, tokenErr("token.expiry", "missing", nil)
	case len(t.Signature) == 0:
		return nil, tokenErr("token.signature", "missing", nil)
	}
	return t, nil
}

func tokenErr(field, reason string, cause error) error {
	return &types.FormatError{Field: field, Reason: reason, Cause: cause}
}

// HasScope 令牌是否包含指定权限
func (t *Token) HasScope(s string) bool {
	i := sort.SearchStrings(t.Scope, s)
	return i < len(t.Scope) && t.Scope[i] == s
}

// String 返回用于日志的摘要
func (t *Token) String() string {
	return fmt.Sprintf("Claim{issuer=%s subject=%s scope=%v expiry=%s}",
		t.Issuer.ID().ShortString(), t.Subject.ID().ShortString(), t.Scope, t.Expiry.UTC().Format(time.RFC3339))
}

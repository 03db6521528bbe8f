package pairing

import (
	"fmt"
	"time"

	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// signingTag 配对签名的域分隔前缀
const signingTag = "dep2p-home/pairing/v1"

// Statement 双方签署的配对声明
type Statement struct {
	Relation      string
	Persona       types.Identity
	Home          types.Identity
	Addresses     []types.Address // home 地址，按优先顺序
	EstablishedAt time.Time
	Expiry        time.Time // 零值表示不过期

	// raw 解析时保留的原始字节，保证重新校验时签名覆盖的字节不变
	raw []byte
}

// NewStatement 创建 hosted_on_home 配对声明
//
// ttl <= 0 表示不过期。
func NewStatement(persona, homeID types.Identity, addrs []types.Address, now time.Time, ttl time.Duration) *Statement {
	s := &Statement{
		Relation:      home.RelationHostedOnHome,
		Persona:       persona,
		Home:          homeID,
		Addresses:     append([]types.Address(nil), addrs...),
		EstablishedAt: now,
	}
	if ttl > 0 {
		s.Expiry = now.Add(ttl)
	}
	return s
}

// Proto 转换为线路消息
func (s *Statement) Proto() *home.PairingStatement {
	p := &home.PairingStatement{
		Relation:      s.Relation,
		Persona:       s.Persona.Bytes(),
		Home:          s.Home.Bytes(),
		EstablishedAt: s.EstablishedAt.UnixNano(),
	}
	for _, a := range s.Addresses {
		p.Addresses = append(p.Addresses, a.Bytes())
	}
	if !s.Expiry.IsZero() {
		p.Expiry = s.Expiry.UnixNano()
	}
	return p
}

// StatementFromProto 从线路消息恢复声明
func StatementFromProto(p *home.PairingStatement) (*Statement, error) {
	if p == nil {
		return nil, &types.FormatError{Field: "pairing.statement", Reason: "missing"}
	}
	persona, err := types.ParseIdentity(p.Persona)
	if err != nil {
		return nil, fmt.Errorf("pairing.persona: %w", err)
	}
	homeID, err := types.ParseIdentity(p.Home)
	if err != nil {
		return nil, fmt.Errorf("pairing.home: %w", err)
	}
	s := &Statement{
		Relation:      p.Relation,
		Persona:       persona,
		Home:          homeID,
		EstablishedAt: time.Unix(0, p.EstablishedAt),
		raw:           p.Marshal(),
	}
	for _, b := range p.Addresses {
		a, err := types.AddressFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("pairing.addresses: %w", err)
		}
		s.Addresses = append(s.Addresses, a)
	}
	if p.Expiry != 0 {
		s.Expiry = time.Unix(0, p.Expiry)
	}
	return s, nil
}

// ParseStatement 解码声明字节
func ParseStatement(b []byte) (*Statement, error) {
	p, err := home.UnmarshalPairingStatement(b)
	if err != nil {
		return nil, err
	}
	s, err := StatementFromProto(p)
	if err != nil {
		return nil, err
	}
	s.raw = append([]byte(nil), b...)
	return s, nil
}

// Bytes 返回声明的确定性编码
func (s *Statement) Bytes() []byte {
	if s.raw != nil {
		return append([]byte(nil), s.raw...)
	}
	return s.Proto().Marshal()
}

// SigningBytes 返回双方签名的字节
func (s *Statement) SigningBytes() []byte {
	return append([]byte(signingTag), s.Bytes()...)
}

// Expired 报告声明在 now 是否已过期
func (s *Statement) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

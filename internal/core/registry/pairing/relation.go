package pairing

import (
	"fmt"
	"time"

	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// relationTag persona 关系签名的域分隔前缀
const relationTag = "dep2p-home/relation/v1"

// ============================================================================
//                              关系声明
// ============================================================================

// RelationStatement 两个 persona 之间的关系声明
type RelationStatement struct {
	Relation      string
	From          types.Identity // 发起方
	To            types.Identity // 被请求方
	EstablishedAt time.Time
	Expiry        time.Time // 零值表示不过期

	raw []byte
}

// NewRelationStatement 创建关系声明，ttl <= 0 表示不过期
func NewRelationStatement(relation string, from, to types.Identity, now time.Time, ttl time.Duration) *RelationStatement {
	s := &RelationStatement{Relation: relation, From: from, To: to, EstablishedAt: now}
	if ttl > 0 {
		s.Expiry = now.Add(ttl)
	}
	return s
}

// Proto 转换为线路消息
func (s *RelationStatement) Proto() *home.RelationStatement {
	p := &home.RelationStatement{
		Relation:      s.Relation,
		From:          s.From.Bytes(),
		To:            s.To.Bytes(),
		EstablishedAt: s.EstablishedAt.UnixNano(),
	}
	if !s.Expiry.IsZero() {
		p.Expiry = s.Expiry.UnixNano()
	}
	return p
}

// RelationStatementFromProto 从线路消息恢复声明
func RelationStatementFromProto(p *home.RelationStatement) (*RelationStatement, error) {
	if p == nil {
		return nil, &types.FormatError{Field: "relation.statement", Reason: "missing"}
	}
	from, err := types.ParseIdentity(p.From)
	if err != nil {
		return nil, fmt.Errorf("relation.from: %w", err)
	}
	to, err := types.ParseIdentity(p.To)
	if err != nil {
		return nil, fmt.Errorf("relation.to: %w", err)
	}
	s := &RelationStatement{
		Relation:      p.Relation,
		From:          from,
		To:            to,
		EstablishedAt: time.Unix(0, p.EstablishedAt),
		raw:           p.Marshal(),
	}
	if p.Expiry != 0 {
		s.Expiry = time.Unix(0, p.Expiry)
	}
	return s, nil
}

// Bytes 返回声明的确定性编码
func (s *RelationStatement) Bytes() []byte {
	if s.raw != nil {
		return append([]byte(nil), s.raw...)
	}
	return s.Proto().Marshal()
}

// SigningBytes 返回双方签名的字节
func (s *RelationStatement) SigningBytes() []byte {
	return append([]byte(relationTag), s.Bytes()...)
}

// Expired 报告声明在 now 是否已过期
func (s *RelationStatement) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// ============================================================================
//                              关系证明
// ============================================================================

// Relation 关系证明：声明加双方签名
//
// 只有发起方签名时为半证明，被请求方会签后成为完整证明。
type Relation struct {
	Statement     *RelationStatement
	FromSignature []byte
	ToSignature   []byte
}

// SignRelation 发起方签署声明，得到半证明
func SignRelation(key crypto.PrivateKey, st *RelationStatement) (*Relation, error) {
	sig, err := key.Sign(st.SigningBytes())
	if err != nil {
		return nil, fmt.Errorf("sign relation statement: %w", err)
	}
	return &Relation{Statement: st, FromSignature: sig}, nil
}

// RelationFromRequest 由 RelationRequest 构造半证明
func RelationFromRequest(req *home.RelationRequest) (*Relation, error) {
	st, err := RelationStatementFromProto(req.Statement)
	if err != nil {
		return nil, err
	}
	return &Relation{Statement: st, FromSignature: req.FromSignature}, nil
}

// RelationFromResponse 由 RelationResponse 构造完整证明
func RelationFromResponse(resp *home.RelationResponse) (*Relation, error) {
	st, err := RelationStatementFromProto(resp.Statement)
	if err != nil {
		return nil, err
	}
	return &Relation{Statement: st, FromSignature: resp.FromSignature, ToSignature: resp.ToSignature}, nil
}

// Request 转换为 RelationRequest
func (r *Relation) Request() *home.RelationRequest {
	return &home.RelationRequest{Statement: r.Statement.Proto(), FromSignature: r.FromSignature}
}

// Response 转换为 RelationResponse
func (r *Relation) Response() *home.RelationResponse {
	return &home.RelationResponse{
		Statement:     r.Statement.Proto(),
		FromSignature: r.FromSignature,
		ToSignature:   r.ToSignature,
	}
}

// VerifyHalf 校验声明与发起方签名
func (r *Relation) VerifyHalf(now time.Time) error {
	if err := r.verifyStatement(now); err != nil {
		return err
	}
	if len(r.FromSignature) == 0 {
		return fmt.Errorf("%w: %w", ErrProofInvalid, ErrMissingSignature)
	}
	if !r.Statement.From.Verify(r.Statement.SigningBytes(), r.FromSignature) {
		return fmt.Errorf("%w: from %w", ErrProofInvalid, types.ErrBadSignature)
	}
	return nil
}

// Countersign 被请求方会签，key 必须对应声明中的 To
func (r *Relation) Countersign(key crypto.PrivateKey, now time.Time) error {
	self, err := types.IdentityFromPrivateKey(key, "")
	if err != nil {
		return err
	}
	if err := r.VerifyHalf(now); err != nil {
		return err
	}
	if !r.Statement.To.Equal(self) {
		return fmt.Errorf("%w: statement names %s", ErrProofInvalid, r.Statement.To.ID().ShortString())
	}
	sig, err := key.Sign(r.Statement.SigningBytes())
	if err != nil {
		return fmt.Errorf("countersign relation statement: %w", err)
	}
	r.ToSignature = sig
	return nil
}

// Verify 校验完整证明
func (r *Relation) Verify(now time.Time) error {
	if err := r.VerifyHalf(now); err != nil {
		return err
	}
	if len(r.ToSignature) == 0 {
		return fmt.Errorf("%w: %w", ErrProofInvalid, ErrMissingSignature)
	}
	if !r.Statement.To.Verify(r.Statement.SigningBytes(), r.ToSignature) {
		return fmt.Errorf("%w: to %w", ErrProofInvalid, types.ErrBadSignature)
	}
	return nil
}

func (r *Relation) verifyStatement(now time.Time) error {
	st := r.Statement
	if st == nil {
		return fmt.Errorf("%w: missing statement", ErrProofInvalid)
	}
	if st.Relation == "" || st.Relation == home.RelationHostedOnHome {
		return fmt.Errorf("%w: %w %q", ErrProofInvalid, ErrWrongRelation, st.Relation)
	}
	if st.From.IsEmpty() || st.To.IsEmpty() {
		return fmt.Errorf("%w: missing identity", ErrProofInvalid)
	}
	if st.From.Equal(st.To) {
		return fmt.Errorf("%w: relation with self", ErrProofInvalid)
	}
	if st.Expired(now) {
		return fmt.Errorf("%w: %w", ErrProofInvalid, types.ErrExpired)
	}
	return nil
}

func (r *Relation) String() string {
	return fmt.Sprintf("relation(%s %s->%s)", r.Statement.Relation,
		r.Statement.From.ID().ShortString(), r.Statement.To.ID().ShortString())
}

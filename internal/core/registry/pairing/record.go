package pairing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// Record 配对记录：声明加双方签名
type Record struct {
	Statement        *Statement
	PersonaSignature []byte
	HomeSignature    []byte
}

// SignAsPersona persona 签署声明，得到待 home 会签的半证明
func SignAsPersona(key crypto.PrivateKey, st *Statement) (*Record, error) {
	sig, err := key.Sign(st.SigningBytes())
	if err != nil {
		return nil, fmt.Errorf("sign pairing statement: %w", err)
	}
	return &Record{Statement: st, PersonaSignature: sig}, nil
}

// FromRequest 由 PairRequest 构造半证明
func FromRequest(req *home.PairRequest) (*Record, error) {
	st, err := StatementFromProto(req.Statement)
	if err != nil {
		return nil, err
	}
	return &Record{Statement: st, PersonaSignature: req.PersonaSignature}, nil
}

// Request 转换为 PairRequest
func (r *Record) Request() *home.PairRequest {
	return &home.PairRequest{Statement: r.Statement.Proto(), PersonaSignature: r.PersonaSignature}
}

// Countersign home 会签
//
// 会签前校验 persona 签名，且声明中的 home 必须是 key 对应的身份。
func (r *Record) Countersign(key crypto.PrivateKey, now time.Time) error {
	homeID, err := types.IdentityFromPrivateKey(key, "")
	if err != nil {
		return err
	}
	if err := r.verifyStatement(now); err != nil {
		return err
	}
	if !r.Statement.Home.Equal(homeID) {
		return fmt.Errorf("%w: statement names home %s", ErrProofInvalid, r.Statement.Home.ID().ShortString())
	}
	if !r.Statement.Persona.Verify(r.Statement.SigningBytes(), r.PersonaSignature) {
		return fmt.Errorf("%w: persona %w", ErrProofInvalid, types.ErrBadSignature)
	}
	sig, err := key.Sign(r.Statement.SigningBytes())
	if err != nil {
		return fmt.Errorf("countersign pairing statement: %w", err)
	}
	r.HomeSignature = sig
	return nil
}

// Verify 校验记录
//
// 双方签名都必须覆盖同一份声明字节，且声明未过期。
// 任何失败都返回匹配 ErrProofInvalid 的错误。
func (r *Record) Verify(now time.Time) error {
	if err := r.verifyStatement(now); err != nil {
		return err
	}
	if len(r.PersonaSignature) == 0 || len(r.HomeSignature) == 0 {
		return fmt.Errorf("%w: %w", ErrProofInvalid, ErrMissingSignature)
	}
	msg := r.Statement.SigningBytes()
	if !r.Statement.Persona.Verify(msg, r.PersonaSignature) {
		return fmt.Errorf("%w: persona %w", ErrProofInvalid, types.ErrBadSignature)
	}
	if !r.Statement.Home.Verify(msg, r.HomeSignature) {
		return fmt.Errorf("%w: home %w", ErrProofInvalid, types.ErrBadSignature)
	}
	return nil
}

func (r *Record) verifyStatement(now time.Time) error {
	st := r.Statement
	if st == nil {
		return fmt.Errorf("%w: missing statement", ErrProofInvalid)
	}
	if st.Relation != home.RelationHostedOnHome {
		return fmt.Errorf("%w: %w %q", ErrProofInvalid, ErrWrongRelation, st.Relation)
	}
	if st.Persona.IsEmpty() || st.Home.IsEmpty() {
		return fmt.Errorf("%w: missing identity", ErrProofInvalid)
	}
	if st.Expired(now) {
		return fmt.Errorf("%w: %w", ErrProofInvalid, types.ErrExpired)
	}
	return nil
}

// PersonaID 返回 persona 身份 ID
func (r *Record) PersonaID() types.IdentityID { return r.Statement.Persona.ID() }

// HomeID 返回 home 身份 ID
func (r *Record) HomeID() types.IdentityID { return r.Statement.Home.ID() }

func (r *Record) String() string {
	return fmt.Sprintf("pairing(%s@%s)", r.PersonaID().ShortString(), r.HomeID().ShortString())
}

// ============================================================================
//                              持久化
// ============================================================================

// recordJSON 持久化格式，声明字节与签名原样保存
type recordJSON struct {
	Statement        []byte `json:"statement"`
	PersonaSignature []byte `json:"persona_signature"`
	HomeSignature    []byte `json:"home_signature"`
}

// MarshalJSON 实现 json.Marshaler
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Statement:        r.Statement.Bytes(),
		PersonaSignature: r.PersonaSignature,
		HomeSignature:    r.HomeSignature,
	})
}

// UnmarshalJSON 实现 json.Unmarshaler
func (r *Record) UnmarshalJSON(data []byte) error {
	var j recordJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	st, err := ParseStatement(j.Statement)
	if err != nil {
		return err
	}
	r.Statement = st
	r.PersonaSignature = j.PersonaSignature
	r.HomeSignature = j.HomeSignature
	return nil
}

package claims

import (
	"fmt"
	"sync"
	"time"

	"github.com/dep2p/go-home/pkg/types"
)

// Verifier 持有受信任签发者集合并校验令牌
//
// 并发安全。
type Verifier struct {
	mu      sync.RWMutex
	issuers map[types.IdentityID]types.Identity
}

// NewVerifier 创建信任给定签发者的 Verifier
func NewVerifier(issuers ...types.Identity) *Verifier {
	v := &Verifier{issuers: make(map[types.IdentityID]types.Identity, len(issuers))}
	for _, id := range issuers {
		v.Trust(id)
	}
	return v
}

// Trust 添加受信任签发者
func (v *Verifier) Trust(issuer types.Identity) {
	if issuer.IsEmpty() {
		return
	}
	v.mu.Lock()
	v.issuers[issuer.ID()] = issuer
	v.mu.Unlock()
}

// Distrust 移除签发者
func (v *Verifier) Distrust(id types.IdentityID) {
	v.mu.Lock()
	delete(v.issuers, id)
	v.mu.Unlock()
}

// Trusted 报告签发者是否受信任
func (v *Verifier) Trusted(id types.IdentityID) bool {
	v.mu.RLock()
	_, ok := v.issuers[id]
	v.mu.RUnlock()
	return ok
}

// Verify 校验令牌
//
// 返回 nil、ErrExpired、ErrUnknownIssuer 或 ErrBadSignature。
// 当且仅当 now 早于 expiry 且签名覆盖规范字节时成功。
func (v *Verifier) Verify(t *Token, now time.Time) error {
	if t == nil {
		return ErrNilToken
	}
	if !now.Before(t.Expiry) {
		return fmt.Errorf("%w: at %s", ErrExpired, t.Expiry.UTC().Format(time.RFC3339Nano))
	}

	v.mu.RLock()
	trusted, ok := v.issuers[t.Issuer.ID()]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIssuer, t.Issuer.ID())
	}

	if !trusted.Verify(t.CanonicalBytes(), t.Signature) {
		return ErrBadSignature
	}
	return nil
}

// Authorize 检查 required 是否为令牌权限的子集
func Authorize(t *Token, required []string) error {
	if t == nil {
		return ErrNilToken
	}
	for _, s := range required {
		if !t.HasScope(s) {
			return fmt.Errorf("%w: missing %q", ErrInsufficientScope, s)
		}
	}
	return nil
}

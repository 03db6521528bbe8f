package claims

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

// Issuer home 向已配对 persona 签发令牌
type Issuer struct {
	key        crypto.PrivateKey
	clock      clock.Clock
	defaultTTL time.Duration
	maxTTL     time.Duration
}

// NewIssuer 创建签发者
//
// 申请的有效期为 0 时使用 defaultTTL，超过 maxTTL 时截断为 maxTTL。
func NewIssuer(key crypto.PrivateKey, defaultTTL, maxTTL time.Duration, clk clock.Clock) *Issuer {
	if clk == nil {
		clk = clock.New()
	}
	if maxTTL <= 0 {
		maxTTL = 24 * time.Hour
	}
	if defaultTTL <= 0 || defaultTTL > maxTTL {
		defaultTTL = min(time.Hour, maxTTL)
	}
	return &Issuer{key: key, clock: clk, defaultTTL: defaultTTL, maxTTL: maxTTL}
}

// Issue 为 subject 签发 scope 范围的令牌
func (i *Issuer) Issue(subject types.Identity, scope []string, ttl time.Duration) (*Token, error) {
	if ttl < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}
	if ttl == 0 {
		ttl = i.defaultTTL
	}
	if ttl > i.maxTTL {
		ttl = i.maxTTL
	}
	return Issue(i.key, subject, scope, ttl, i.clock.Now())
}

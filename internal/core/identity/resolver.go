package identity

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// ResolverFunc 函数形式的 Resolver
type ResolverFunc func(ctx context.Context, identifier string) (*Metadata, error)

// Resolve 实现 Resolver
func (f ResolverFunc) Resolve(ctx context.Context, identifier string) (*Metadata, error) {
	return f(ctx, identifier)
}

// CachingResolver 带缓存的解析器
//
// 成功结果缓存 ttl；ErrNotFound 不缓存，以便新配对的 persona 立即可见。
// 同一标识的并发解析只访问一次来源。
type CachingResolver struct {
	source Resolver
	cache  *expirable.LRU[string, *Metadata]
	group  singleflight.Group
}

// NewCachingResolver 创建带缓存的解析器
func NewCachingResolver(source Resolver, size int, ttl time.Duration) *CachingResolver {
	if size < 1 {
		size = 1
	}
	return &CachingResolver{
		source: source,
		cache:  expirable.NewLRU[string, *Metadata](size, nil, ttl),
	}
}

// Resolve 实现 Resolver
func (r *CachingResolver) Resolve(ctx context.Context, identifier string) (*Metadata, error) {
	if m, ok := r.cache.Get(identifier); ok {
		return m, nil
	}
	v, err, _ := r.group.Do(identifier, func() (any, error) {
		m, err := r.source.Resolve(ctx, identifier)
		if err != nil {
			return nil, err
		}
		r.cache.Add(identifier, m)
		return m, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Debug("解析失败", "identifier", identifier, "err", err)
		}
		return nil, err
	}
	return v.(*Metadata), nil
}

// Invalidate 移除标识的缓存
func (r *CachingResolver) Invalidate(identifier string) {
	r.cache.Remove(identifier)
}

// Len 返回缓存条目数
func (r *CachingResolver) Len() int { return r.cache.Len() }

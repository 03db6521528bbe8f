// Package identity 管理本地身份并解析其他身份
//
// Service 持有本地私钥，提供签名、验签与标识解析：
//
//	svc, err := identity.FromConfig(cfg.Identity)
//	sig, _ := svc.Sign(data)
//	ok := svc.Verify(remote, data, sig)
//	meta, err := svc.Resolve(ctx, "alice")
//
// 解析通过 Source 完成：home 以已配对的 persona 为来源，persona 以
// home 会话上的 Resolve 请求为来源。CachingResolver 为任一来源加上
// 有过期时间的 LRU 缓存，并合并对同一标识的并发请求。
package identity

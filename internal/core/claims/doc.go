// Package claims 实现签名授权令牌（claim）
//
// 令牌是签发者对 {issuer, subject, scope, expiry} 的签名断言。
// 本包是纯函数式的：不持有可变状态，不做 I/O，时间由调用方传入。
//
// # 规范字节
//
// 签名覆盖的字节是域标签 "dep2p-home/claim/v1" 加上以下 protowire 字段：
//
//	1 issuer   bytes    types.Identity 序列化
//	2 subject  bytes    types.Identity 序列化
//	3 scope    string   重复字段，升序且去重
//	4 expiry   sint64   unix 纳秒
//
// Token.Bytes 在规范字段之后追加字段 5（签名），不含域标签。
//
// # 校验顺序
//
// Verify 依次检查：过期、签发者是否受信任、签名。过期令牌无论签名是否有效都被拒绝，
// 这样可以跳过不必要的验签。
package claims

// Package session 实现会话建立（握手）与会话生命周期
//
// 每条物理连接一个严格的状态机：
//
//	Connecting → Authenticating → Active → Closing → Closed
//
// 任何状态都可以直接进入 Closed（连接失败）。
//
// 握手流程：
//
//	-> Hello{identity, nonce}                       发起方身份与 32 字节随机数
//	<- Challenge{identity, nonce, e, sig}           home 身份、随机数、临时 X25519 公钥，
//	                                                并对挑战值签名以证明 home 身份
//	-> Proof{sig, e}                                发起方对挑战值与自身临时公钥签名
//	<- Welcome{session_id} | Reject{code, reason}
//
// 挑战值 = SHA-256(tag ‖ clientNonce ‖ serverNonce ‖ clientID ‖ serverID ‖ serverEphemeral)。
// 会话密钥由 X25519 共享秘密经 HKDF-SHA256（salt = 挑战值）派生。
//
// 任何校验失败都直接进入 Closed 并关闭连接，本层不做重试。
// 同一身份的重连竞争由 registry 处理（后握手者胜出）。
package session

// Package quic 实现 QUIC 传输
//
// 地址形式 /{ip4|ip6|dns|dns4|dns6}/<host>/udp/<port>/quic-v1。
// 每个通道对应一条 QUIC 连接上的一个双向流，通道关闭时连接随之关闭。
// TLS 1.3 使用自签名证书，对端身份由上层握手认证。
package quic

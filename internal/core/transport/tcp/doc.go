// Package tcp 实现 TCP 传输
//
// 地址形式 /{ip4|ip6|dns|dns4|dns6}/<host>/tcp/<port>。
//
// 启用 Mux 时，同一远端的多个通道复用一条 TCP 连接（hashicorp/yamux），
// 每个通道对应一个 yamux 流；否则每个通道独占一条连接。两端的 Mux 设置必须一致。
package tcp

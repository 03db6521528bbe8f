// Package transport 定义 home 协议使用的字节消息通道
//
// 多路复用层只依赖 Channel 接口：有序、可靠、双工的消息通道，
// 提供 Send、Receive 与关闭通知。具体传输（tcp、websocket、quic）
// 各自实现 Transport，由 Set 按地址选择。
//
// # 实现
//
//   - StreamChannel: 在任意 io.ReadWriteCloser 上使用 varint 长度前缀分帧
//   - Pipe: 进程内连接的一对通道（测试、同进程 persona）
//   - tcp: TCP，可选用 yamux 在一条连接上承载多个通道
//   - websocket: WebSocket 二进制消息
//   - quic: 每个通道一个 QUIC 双向流
package transport

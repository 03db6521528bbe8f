// Package websocket 实现 WebSocket 传输
//
// 地址形式 /{ip4|ip6|dns|dns4|dns6}/<host>/tcp/<port>/ws，握手路径为 "/"。
// 每条 WebSocket 连接承载一个通道，每条消息是一个二进制帧。
package websocket

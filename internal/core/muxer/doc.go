// Package muxer 实现请求/响应多路复用连接
//
// Conn 在一个 transport.Channel 上承载任意多个并发的逻辑请求。
// 每个帧带有请求 ID，响应按 ID 关联到发起时返回的 Pending。
//
// # 帧
//
//	Request  请求，ID 由发送方分配，连接内单调递增、不复用
//	Response 成功响应，ID 为对应请求 ID
//	Error    失败响应，携带错误码
//	Cancel   取消请求（尽力而为）
//	Ping     保活请求，ID 为序号
//	Pong     保活响应
//	Close    关闭通知，携带关闭原因的错误码
//
// # 并发模型
//
// 每个 Conn 有一个读循环和一个写循环：
//   - 读循环解码帧、完成 Pending、把入站请求交给 Handler
//   - 写循环是唯一的写者，从有界发送队列取帧写入通道
//
// 发送队列满时 Go/Respond 阻塞，直到 ctx 结束或连接关闭（背压）。
// 控制帧（Cancel/Ping/Pong）走独立的小队列，不受数据背压影响。
//
// Handler 与 Pending 回调在读循环中执行，不应长时间阻塞；
// 同一连接上的响应按到达顺序回调。
//
// # 保活
//
// 每个 KeepaliveInterval 发送一次 Ping；连续 MaxMissedKeepalives 个间隔
// 没有收到任何帧时判定连接失效，以 types.ErrTransportLost 关闭。
//
// # 关闭
//
// 任何原因的关闭都会以关闭原因完成所有 Pending，并依次调用 OnClose 回调。
package muxer

// Package relay 实现 home 上的调用转发
//
// Router 把主叫 persona 的调用转发到被叫 persona 的活跃会话：
//
//  1. 校验调用携带的授权凭证（签名、签发者、有效期、范围），凭证主体必须是主叫
//  2. 查找被叫的活跃会话，不在线时返回 ErrCalleeUnavailable
//  3. 检查重复呼叫 ID、每会话速率与未完成调用上限
//  4. 以 IncomingCall 转发到被叫会话，等待回显相同呼叫 ID 的响应
//
// 前三步失败时不创建任何状态。转发后调用恰好完成一次：
// 响应、失败（超时、被叫会话关闭、呼叫 ID 不一致）或取消。
//
// 完成回调在被叫连接的读循环中执行，并按顺序写入主叫连接的发送队列，
// 因此同一 (主叫, 被叫) 之间的响应保持被叫的应答顺序。
package relay

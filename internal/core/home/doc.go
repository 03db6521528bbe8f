// Package home 实现 home 节点的服务端
//
// Server 在配置的地址上监听，对每个入站通道完成握手，把会话登记到
// Registry，并处理 persona 发来的请求：
//
//   - pair: 校验 persona 半证明，会签后持久化配对记录
//   - unpair: 删除配对记录（幂等）
//   - claim: 为已配对的 persona 签发授权凭证
//   - call: 经 relay.Router 校验凭证并转发给被叫会话
//   - resolve: 按标识或身份 ID 查询托管的 persona
//   - ping: 回显
//
// 请求在会话读循环中按到达顺序处理，因此同一会话发出的调用按发送顺序转发。
package home

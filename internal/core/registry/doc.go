// Package registry 实现 home 侧的配对与在线状态登记
//
// Registry 记录两类状态：
//   - 配对：persona 与本 home 之间双方签名的配对记录，持久化到
//     pairing.Store，启动时重新校验
//   - 在线：每个身份至多一个活跃会话，后完成握手的会话取代旧会话
//
// 会话查询无锁（原子指针），写操作按身份加锁，不存在全局锁。
package registry

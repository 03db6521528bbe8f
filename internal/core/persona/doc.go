// Package persona 实现 persona 侧的客户端
//
// Client 按顺序尝试 home 的地址并完成握手，得到 Home 会话。通过 Home 可以
// 配对、申请授权凭证、经 home 转发调用、解析其他 persona，也可以接收 home
// 转发来的调用，按应用标识交给注册的 AppHandler 处理。
//
// persona 之间的关系经同一 home 建立：RequestRelation 发出半证明，对方从
// Events 收到 PairingRequested 后用 AcceptRelation 会签，发起方随后收到
// PairingAccepted。
//
// 基本用法：
//
//	c, _ := persona.New(cfg, persona.Deps{Key: key, Transports: set})
//	c.Handle("chat", func(ctx context.Context, call *persona.IncomingCall) ([]byte, error) {
//	    return call.Payload, nil
//	})
//	h, _ := c.Connect(ctx, entry)
//	_ = h.Pair(ctx)
//	resp, err := h.Call(ctx, peerID, "chat", []byte("hi"))
//	if types.Retryable(err) {
//	    // 被叫不在线或链路中断，可稍后重试或换一个 home
//	}
package persona

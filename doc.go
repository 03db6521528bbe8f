// Package home 提供 home 节点与 persona 客户端的组装入口
//
// persona 是一个长期身份，通过一个或多个 home 节点保持可达。home 为已配对的
// persona 签发授权凭证，并在 persona 之间转发调用。
//
// # 快速开始
//
//	// home 节点
//	node, err := home.Start(ctx,
//	    home.WithRole(home.RoleHome),
//	    home.WithListenAddrs("/ip4/0.0.0.0/tcp/4100"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	// persona
//	p, err := home.Start(ctx,
//	    home.WithRole(home.RolePersona),
//	    home.WithHomes(config.HomeEntry{Addrs: []string{"/ip4/1.2.3.4/tcp/4100"}}),
//	)
//	c, _ := p.Client()
//	h, _ := c.Primary()
//	_, _ = h.Pair(ctx)
//	resp, err := h.Call(ctx, calleeID, "echo", []byte("hi"))
//
// # 文件组织
//
//   - node.go: Node 及其生命周期
//   - options.go: 构造选项
//   - fx.go: 按角色组装 Fx 模块
//   - errors.go: 公共错误
package home

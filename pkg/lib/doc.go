// Package lib 包含与架构组件无关的基础设施工具库
//
//   - crypto: 密钥、签名与密钥序列化
//   - proto: 网络消息的线路编码
//
// pkg/types 定义公共数据结构，lib 只提供其下层的编码与密码学原语。
//
// # 使用示例
//
//	import (
//	    "github.com/dep2p/go-home/pkg/lib/crypto"
//	    pb "github.com/dep2p/go-home/pkg/lib/proto/home"
//	)
package lib

// Package proto 定义 go-home 的网络协议消息（wire format）
//
// # 子包
//
//   - home: 握手、多路复用帧与 home 请求/响应消息
//
// 消息采用 protobuf 兼容的线路编码（google.golang.org/protobuf/encoding/protowire），
// 编解码手写以保证签名相关字节的确定性：字段按编号升序写出，
// 零值可选字段省略。schema 见各子包的 .proto 文件。
//
// pkg/proto 定义网络协议消息，pkg/types 定义 Go 内部数据结构，
// 两者之间的转换由使用方负责。
package proto

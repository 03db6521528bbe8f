// Package types 定义 go-home 的基础值类型
//
// 这是系统最底层的包，只依赖 pkg/lib/crypto。所有类型都是不可变值，
// 用于在各模块间传递数据。
//
// # 文件组织
//
//   - identity.go - Identity（公钥 + 可选标识符）、IdentityID（公钥派生）
//   - address.go  - Address（multiaddr 网络端点）
//   - errors.go   - 公共错误、错误码、FormatError、RemoteError
//
// # 校验
//
// 所有 Parse 函数要么返回完整的值，要么返回 *FormatError，
// 从不部分接受输入。FormatError 满足 errors.Is(err, ErrFormat)。
package types

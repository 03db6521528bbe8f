// Package kv 提供带前缀隔离的 KV 存储
//
// Store 在存储引擎之上为每个组件划分独立的键空间。
//
// # 键空间
//
//   - h/p/<persona>/<home> - 配对记录
//
// # 使用示例
//
//	pairs := kv.New(eng, []byte("h/p/"))
//	_ = pairs.PutJSON([]byte(persona+"/"+home), rec)
//	_ = pairs.PrefixScan([]byte(persona+"/"), func(k, v []byte) bool { ...; return true })
package kv

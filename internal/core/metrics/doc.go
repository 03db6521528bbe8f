// Package metrics 提供 Prometheus 指标
//
// Metrics 持有独立的 prometheus.Registry，所有记录方法对 nil 接收者安全，
// 未启用指标时组件可直接传入 nil。
//
// 指标一览（命名空间 home）：
//
//	home_handshakes_total{result}          握手次数，result 为 ok 或错误码
//	home_sessions_active                   活跃会话数
//	home_pairings                          有效配对记录数
//	home_requests_total{kind,result}       会话请求次数
//	home_relay_calls_total{outcome}        转发调用结果
//	home_relay_calls_pending               进行中的转发调用
//	home_relay_call_duration_seconds       转发调用耗时
package metrics

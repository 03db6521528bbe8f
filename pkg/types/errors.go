package types

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
//                              格式错误
// ============================================================================

// ErrFormat 输入格式错误（本地错误，不重试）
var ErrFormat = errors.New("malformed input")

// FormatError 描述格式错误的具体字段
type FormatError struct {
	// Field 出错的字段名，如 "identity.public_key"
	Field string
	// Reason 简短原因
	Reason string
	// Cause 底层错误，可为空
	Cause error
}

// Error 实现 error 接口
func (e *FormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed %s: %s: %v", e.Field, e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed %s: %s", e.Field, e.Reason)
}

// Unwrap 返回底层错误
func (e *FormatError) Unwrap() error { return e.Cause }

// Is 使所有 FormatError 匹配 ErrFormat
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func formatErr(field, reason string, cause error) error {
	return &FormatError{Field: field, Reason: reason, Cause: cause}
}

// ============================================================================
//                              授权错误
// ============================================================================

var (
	// ErrProofInvalid 配对证明无效
	ErrProofInvalid = errors.New("pairing proof invalid")

	// ErrBadSignature 签名无效
	ErrBadSignature = errors.New("bad signature")

	// ErrExpired 已过期
	ErrExpired = errors.New("expired")

	// ErrUnknownIssuer 签发者不受信任
	ErrUnknownIssuer = errors.New("unknown issuer")

	// ErrInsufficientScope 权限范围不足
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrUnauthorized 请求未获授权
	ErrUnauthorized = errors.New("unauthorized")

	// ErrHandshakeFailed 握手失败
	ErrHandshakeFailed = errors.New("handshake failed")
)

// ============================================================================
//                              呼叫与会话错误
// ============================================================================

var (
	// ErrCalleeUnavailable 被叫方不在线（暂时性错误，由调用方决定是否重试）
	ErrCalleeUnavailable = errors.New("callee unavailable")

	// ErrNotPresent 身份没有活跃会话
	ErrNotPresent = errors.New("not present")

	// ErrSessionSuperseded 会话被更新的握手取代
	ErrSessionSuperseded = errors.New("session superseded")

	// ErrTransportLost 底层连接丢失
	ErrTransportLost = errors.New("transport lost")

	// ErrCallTimeout 呼叫超时
	ErrCallTimeout = errors.New("call timeout")

	// ErrCancelled 操作已取消
	ErrCancelled = errors.New("cancelled")

	// ErrDuplicateCallID 呼叫 ID 仍在使用中
	ErrDuplicateCallID = errors.New("duplicate call id")

	// ErrCallIDMismatch 响应回显的呼叫 ID 不一致
	ErrCallIDMismatch = errors.New("call id mismatch")

	// ErrRateLimited 请求过于频繁
	ErrRateLimited = errors.New("rate limited")

	// ErrTooManyCalls 未完成呼叫数达到上限
	ErrTooManyCalls = errors.New("too many pending calls")

	// ErrUnknownApp 没有处理该应用的 handler
	ErrUnknownApp = errors.New("unknown app")

	// ErrNotFound 资源不存在
	ErrNotFound = errors.New("not found")

	// ErrInvalidRequest 请求无法处理
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInternal 远端内部错误
	ErrInternal = errors.New("internal error")
)

// ============================================================================
//                              错误码
// ============================================================================

// ErrorCode 在线路上传递的错误类别
//
// 数值写入 Error 帧，一经发布不可更改。
type ErrorCode uint32

const (
	CodeUnknown ErrorCode = iota
	CodeFormat
	CodeProofInvalid
	CodeBadSignature
	CodeExpired
	CodeUnknownIssuer
	CodeInsufficientScope
	CodeUnauthorized
	CodeHandshakeFailed
	CodeCalleeUnavailable
	CodeNotPresent
	CodeSessionSuperseded
	CodeTransportLost
	CodeCallTimeout
	CodeCancelled
	CodeDuplicateCallID
	CodeCallIDMismatch
	CodeRateLimited
	CodeTooManyCalls
	CodeUnknownApp
	CodeNotFound
	CodeInvalidRequest
	CodeInternal
)

// codeTable 错误码与哨兵错误的对应关系，顺序即 CodesOf 的输出顺序
var codeTable = []struct {
	code ErrorCode
	err  error
}{
	{CodeFormat, ErrFormat},
	{CodeProofInvalid, ErrProofInvalid},
	{CodeBadSignature, ErrBadSignature},
	{CodeExpired, ErrExpired},
	{CodeUnknownIssuer, ErrUnknownIssuer},
	{CodeInsufficientScope, ErrInsufficientScope},
	{CodeUnauthorized, ErrUnauthorized},
	{CodeHandshakeFailed, ErrHandshakeFailed},
	{CodeCalleeUnavailable, ErrCalleeUnavailable},
	{CodeNotPresent, ErrNotPresent},
	{CodeSessionSuperseded, ErrSessionSuperseded},
	{CodeTransportLost, ErrTransportLost},
	{CodeCallTimeout, ErrCallTimeout},
	{CodeCancelled, ErrCancelled},
	{CodeDuplicateCallID, ErrDuplicateCallID},
	{CodeCallIDMismatch, ErrCallIDMismatch},
	{CodeRateLimited, ErrRateLimited},
	{CodeTooManyCalls, ErrTooManyCalls},
	{CodeUnknownApp, ErrUnknownApp},
	{CodeNotFound, ErrNotFound},
	{CodeInvalidRequest, ErrInvalidRequest},
	{CodeInternal, ErrInternal},
}

// Err 返回错误码对应的哨兵错误，未知码返回 nil
func (c ErrorCode) Err() error {
	for _, e := range codeTable {
		if e.code == c {
			return e.err
		}
	}
	return nil
}

// String 返回错误码名称
func (c ErrorCode) String() string {
	if err := c.Err(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("code(%d)", uint32(c))
}

// CodesOf 返回 err 匹配的全部错误码
//
// 一个错误可同时属于多个类别，例如 "unauthorized: expired"
// 返回 [CodeExpired, CodeUnauthorized]。无匹配时返回 [CodeInternal]。
func CodesOf(err error) []ErrorCode {
	if err == nil {
		return nil
	}
	var codes []ErrorCode
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			codes = append(codes, e.code)
		}
	}
	if len(codes) == 0 {
		codes = append(codes, CodeInternal)
	}
	return codes
}

// ============================================================================
//                              RemoteError
// ============================================================================

// RemoteError 由对端通过 Error 帧返回的错误
//
// errors.Is 可与 Codes 中任一错误码对应的哨兵错误匹配，
// 因此调用方可以区分 "换一个 home 重试" 与 "修正凭证"。
type RemoteError struct {
	Codes   []ErrorCode
	Message string
}

// NewRemoteError 从本地错误构造可发送给对端的 RemoteError
func NewRemoteError(err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	return &RemoteError{Codes: CodesOf(err), Message: err.Error()}
}

// Error 实现 error 接口
func (e *RemoteError) Error() string {
	if e.Message != "" {
		return "remote: " + e.Message
	}
	names := make([]string, len(e.Codes))
	for i, c := range e.Codes {
		names[i] = c.String()
	}
	return "remote: " + strings.Join(names, ": ")
}

// Is 匹配错误码对应的哨兵错误
func (e *RemoteError) Is(target error) bool {
	for _, c := range e.Codes {
		if err := c.Err(); err != nil && err == target {
			return true
		}
	}
	return false
}

// Retryable 报告错误是否属于暂时性错误
//
// 暂时性错误可以换一个 home 或稍后重试；授权与格式错误不可重试。
func Retryable(err error) bool {
	return errors.Is(err, ErrCalleeUnavailable) ||
		errors.Is(err, ErrTransportLost) ||
		errors.Is(err, ErrSessionSuperseded) ||
		errors.Is(err, ErrCallTimeout) ||
		errors.Is(err, ErrRateLimited)
}

package muxer

import "errors"

var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")

	// ErrTooManyPending 等待响应的请求数达到上限
	ErrTooManyPending = errors.New("too many pending requests")

	// ErrAlreadyStarted 连接已启动
	ErrAlreadyStarted = errors.New("connection already started")
)

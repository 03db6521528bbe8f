// Package transporttest 提供各传输实现共用的测试流程
package transporttest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/pkg/types"
)

// Timeout 单个测试步骤的最长时间
const Timeout = 5 * time.Second

// Connect 在 listenAddr 上监听并拨号，返回拨号端与接受端通道
//
// 拨号端先发送一条消息，接受端才能看到连接（QUIC 流在首次写入时才对端可见）。
func Connect(t *testing.T, tr transport.Transport, listenAddr string) (client, server transport.Channel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	l, err := tr.Listen(types.MustParseAddress(listenAddr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	require.NotZero(t, l.Addr().Port())
	require.Equal(t, tr.Name(), l.Addr().Transport())

	client, err = tr.Dial(ctx, l.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Send(ctx, []byte("hello")))

	server, err = l.Accept(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	msg, err := server.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), msg)
	return client, server
}

// Exercise 验证消息顺序、大消息与关闭语义
func Exercise(t *testing.T, client, server transport.Channel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	// 顺序
	for i := 0; i < 10; i++ {
		require.NoError(t, server.Send(ctx, []byte{byte(i)}))
	}
	for i := 0; i < 10; i++ {
		msg, err := client.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, msg)
	}

	// 空消息与大消息
	big := bytes.Repeat([]byte{0xab}, 256*1024)
	sent := make(chan error, 1)
	go func() {
		// 大消息可能超过流控窗口，需要对端同时读取
		if err := client.Send(ctx, nil); err != nil {
			sent <- err
			return
		}
		sent <- client.Send(ctx, big)
	}()
	msg, err := server.Receive(ctx)
	require.NoError(t, err)
	assert.Empty(t, msg)
	msg, err = server.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, big, msg)
	require.NoError(t, <-sent)

	// 接收受 ctx 约束
	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	_, err = client.Receive(short)
	cancelShort()
	require.Error(t, err)

	// 关闭后对端读到错误
	require.NoError(t, client.Close())
	select {
	case <-client.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
	_, err = server.Receive(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.DeadlineExceeded), "peer close should be observed before the deadline: %v", err)
}

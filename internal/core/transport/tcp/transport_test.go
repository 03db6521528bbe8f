package tcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/core/transport/transporttest"
	"github.com/dep2p/go-home/pkg/types"
)

func TestTransport_CanDial(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	tests := []struct {
		addr     string
		expected bool
	}{
		{"/ip4/127.0.0.1/tcp/4001", true},
		{"/ip6/::1/tcp/4001", true},
		{"/dns4/example.com/tcp/4001", true},
		{"/ip4/127.0.0.1/tcp/4001/ws", false},
		{"/ip4/127.0.0.1/udp/4001/quic-v1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tr.CanDial(types.MustParseAddress(tt.addr)), tt.addr)
	}
}

func TestTransport_Plain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mux = false
	tr := New(cfg)
	defer tr.Close()

	client, server := transporttest.Connect(t, tr, "/ip4/127.0.0.1/tcp/0")
	transporttest.Exercise(t, client, server)
}

func TestTransport_Yamux(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	client, server := transporttest.Connect(t, tr, "/ip4/127.0.0.1/tcp/0")
	transporttest.Exercise(t, client, server)
}

func TestTransport_YamuxSharesConnection(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), transporttest.Timeout)
	defer cancel()

	l, err := tr.Listen(types.MustParseAddress("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer l.Close()

	var clients []transport.Channel
	for i := 0; i < 3; i++ {
		c, err := tr.Dial(ctx, l.Addr())
		require.NoError(t, err)
		defer c.Close()
		require.NoError(t, c.Send(ctx, []byte{byte(i)}))
		clients = append(clients, c)
	}

	tr.mu.Lock()
	assert.Len(t, tr.sessions, 1)
	tr.mu.Unlock()

	seen := map[byte]bool{}
	for range clients {
		s, err := l.Accept(ctx)
		require.NoError(t, err)
		defer s.Close()
		msg, err := s.Receive(ctx)
		require.NoError(t, err)
		seen[msg[0]] = true
	}
	assert.Len(t, seen, 3)
}

func TestTransport_ListenerClose(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	l, err := tr.Listen(types.MustParseAddress("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Accept(context.Background())
	assert.ErrorIs(t, err, transport.ErrListenerClosed)
}

func TestTransport_Closed(t *testing.T) {
	tr := New(DefaultConfig())
	require.NoError(t, tr.Close())

	_, err := tr.Listen(types.MustParseAddress("/ip4/127.0.0.1/tcp/0"))
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
	_, err = tr.Dial(context.Background(), types.MustParseAddress("/ip4/127.0.0.1/tcp/1"))
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
}

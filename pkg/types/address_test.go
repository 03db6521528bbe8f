package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress_Valid(t *testing.T) {
	tests := []struct {
		in        string
		transport string
		host      string
		port      int
	}{
		{"/ip4/127.0.0.1/tcp/4001", TransportTCP, "127.0.0.1", 4001},
		{"/ip6/::1/tcp/443/ws", TransportWebSocket, "::1", 443},
		{"/dns4/home.example.com/udp/4433/quic-v1", TransportQUIC, "home.example.com", 4433},
		{"/dns/home.example.com/tcp/80/ws", TransportWebSocket, "home.example.com", 80},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := ParseAddress(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.transport, a.Transport())
			assert.Equal(t, tt.host, a.Host())
			assert.Equal(t, tt.port, a.Port())
			assert.Equal(t, tt.in, a.String())

			b, err := AddressFromBytes(a.Bytes())
			require.NoError(t, err)
			assert.True(t, a.Equal(b))
		})
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"127.0.0.1:4001",
		"/ip4/127.0.0.1",
		"/ip4/127.0.0.1/udp/4001",
		"/ip4/127.0.0.1/tcp/4001/ws/extra",
		"/unix/tmp/sock",
		"/ip4/300.0.0.1/tcp/1",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAddress(in)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}

	_, err := AddressFromBytes([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestAddress_TextRoundTrip(t *testing.T) {
	a := MustParseAddress("/ip4/10.0.0.1/tcp/9000")
	text, err := a.MarshalText()
	require.NoError(t, err)

	var b Address
	require.NoError(t, b.UnmarshalText(text))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(Address{}))
}

func TestParseAddresses(t *testing.T) {
	addrs, err := ParseAddresses([]string{"/ip4/1.2.3.4/tcp/1", "/ip4/1.2.3.4/udp/2/quic-v1"})
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, TransportQUIC, addrs[1].Transport())

	_, err = ParseAddresses([]string{"/ip4/1.2.3.4/tcp/1", "bogus"})
	assert.ErrorIs(t, err, ErrFormat)
}

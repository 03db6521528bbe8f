package quic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/internal/core/transport/transporttest"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

func TestTransport_CanDial(t *testing.T) {
	tr, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	defer tr.Close()

	assert.True(t, tr.CanDial(types.MustParseAddress("/ip4/127.0.0.1/udp/4001/quic-v1")))
	assert.False(t, tr.CanDial(types.MustParseAddress("/ip4/127.0.0.1/tcp/4001")))
}

func TestTransport_Exchange(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	tr, err := New(DefaultConfig(), priv)
	require.NoError(t, err)
	defer func() { _ = tr.Close() }()

	client, server := transporttest.Connect(t, tr, "/ip4/127.0.0.1/udp/0/quic-v1")
	transporttest.Exercise(t, client, server)
}

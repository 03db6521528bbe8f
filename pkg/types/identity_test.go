package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-home/pkg/lib/crypto"
)

func newTestIdentity(t *testing.T, kt crypto.KeyType, identifier string) (crypto.PrivateKey, Identity) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair(kt)
	require.NoError(t, err)
	id, err := NewIdentity(pub, identifier)
	require.NoError(t, err)
	return priv, id
}

func TestIdentity_RoundTrip(t *testing.T) {
	for _, kt := range crypto.KeyTypes {
		t.Run(kt.String(), func(t *testing.T) {
			_, id := newTestIdentity(t, kt, "did:home:alice")

			parsed, err := ParseIdentity(id.Bytes())
			require.NoError(t, err)
			assert.True(t, id.Equal(parsed))
			assert.Equal(t, id.ID(), parsed.ID())
			assert.Equal(t, "did:home:alice", parsed.Identifier())
			assert.Equal(t, id.Bytes(), parsed.Bytes(), "serialization is deterministic")
		})
	}
}

func TestIdentity_EqualIgnoresIdentifier(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	a, _ := NewIdentity(pub, "a")
	b, _ := NewIdentity(pub, "b")
	assert.True(t, a.Equal(b))

	_, other := newTestIdentity(t, crypto.KeyTypeEd25519, "a")
	assert.False(t, a.Equal(other))
	assert.False(t, a.Equal(Identity{}))
	assert.True(t, Identity{}.Equal(Identity{}))
}

func TestParseIdentity_Malformed(t *testing.T) {
	_, id := newTestIdentity(t, crypto.KeyTypeEd25519, "x")
	good := id.Bytes()

	var unknown []byte
	unknown = append(unknown, good...)
	unknown = protowire.AppendTag(unknown, 9, protowire.BytesType)
	unknown = protowire.AppendBytes(unknown, []byte("z"))

	var swapped []byte
	swapped = protowire.AppendTag(swapped, identityFieldIdentifier, protowire.BytesType)
	swapped = protowire.AppendString(swapped, "x")
	swapped = protowire.AppendTag(swapped, identityFieldKey, protowire.BytesType)
	swapped = protowire.AppendBytes(swapped, id.PublicKeyBytes())

	var badKey []byte
	badKey = protowire.AppendTag(badKey, identityFieldKey, protowire.BytesType)
	badKey = protowire.AppendBytes(badKey, []byte{2, 0, 0, 0, 1, 7})

	var noKey []byte
	noKey = protowire.AppendTag(noKey, identityFieldIdentifier, protowire.BytesType)
	noKey = protowire.AppendString(noKey, "x")

	tests := []struct {
		name  string
		data  []byte
		field string
	}{
		{"empty", nil, "identity"},
		{"truncated", good[:len(good)-1], "identity"},
		{"unknown field", unknown, "identity"},
		{"out of order", swapped, "identity"},
		{"bad key", badKey, "identity.public_key"},
		{"missing key", noKey, "identity.public_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentity(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestIdentityID_Text(t *testing.T) {
	_, id := newTestIdentity(t, crypto.KeyTypeSecp256k1, "")

	parsed, err := ParseIdentityID(id.ID().String())
	require.NoError(t, err)
	assert.Equal(t, id.ID(), parsed)

	fromCID, err := ParseIdentityID(id.ID().CID().String())
	require.NoError(t, err)
	assert.Equal(t, id.ID(), fromCID)

	_, err = ParseIdentityID("not-an-id")
	assert.ErrorIs(t, err, ErrFormat)
	_, err = ParseIdentityID("")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestIdentityID_MatchesPublicKey(t *testing.T) {
	priv, id := newTestIdentity(t, crypto.KeyTypeEd25519, "")

	derived, err := IdentityIDFromPublicKey(priv.GetPublic())
	require.NoError(t, err)
	assert.Equal(t, id.ID(), derived)

	fromPriv, err := IdentityFromPrivateKey(priv, "")
	require.NoError(t, err)
	assert.True(t, fromPriv.Equal(id))
}

func TestIdentity_Verify(t *testing.T) {
	priv, id := newTestIdentity(t, crypto.KeyTypeEd25519, "")
	sig, err := priv.Sign([]byte("m"))
	require.NoError(t, err)

	assert.True(t, id.Verify([]byte("m"), sig))
	assert.False(t, id.Verify([]byte("n"), sig))
	assert.False(t, Identity{}.Verify([]byte("m"), sig))
}

func TestIdentity_JSON(t *testing.T) {
	_, id := newTestIdentity(t, crypto.KeyTypeEd25519, "bob")

	type wrapper struct {
		Who Identity   `json:"who"`
		ID  IdentityID `json:"id"`
	}
	data, err := json.Marshal(wrapper{Who: id, ID: id.ID()})
	require.NoError(t, err)

	var got wrapper
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.Who.Equal(id))
	assert.Equal(t, "bob", got.Who.Identifier())
	assert.Equal(t, id.ID(), got.ID)
}

package home

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/persona"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func startHome(t *testing.T) *Node {
	t.Helper()
	n, err := Start(testCtx(t),
		WithRole(RoleHome),
		WithPreset("test"),
		WithIdentifier("home.node.test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func homeEntry(t *testing.T, h *Node) config.HomeEntry {
	t.Helper()
	addrs := h.Addrs()
	require.NotEmpty(t, addrs)
	entry := config.HomeEntry{Identity: config.FormatIdentity(h.Identity())}
	for _, a := range addrs {
		entry.Addrs = append(entry.Addrs, a.String())
	}
	return entry
}

func startPersona(t *testing.T, h *Node, identifier string) (*Node, *persona.Home) {
	t.Helper()
	n, err := Start(testCtx(t),
		WithRole(RolePersona),
		WithPreset("test"),
		WithIdentifier(identifier),
		WithHomes(homeEntry(t, h)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	c, err := n.Client()
	require.NoError(t, err)
	ph, ok := c.Home(h.ID())
	require.True(t, ok, "persona should connect to the configured home on start")
	return n, ph
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("persona")
	require.NoError(t, err)
	assert.Equal(t, RolePersona, r)

	r, err = ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleHome, r)

	_, err = ParseRole("relay")
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.Equal(t, "persona", RolePersona.String())
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(WithRole(Role(7)))
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = New(WithPreset("nope"))
	assert.ErrorIs(t, err, config.ErrUnknownPreset)

	_, err = New(WithConfig(nil))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNew_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home.toml")
	data := []byte(`
[identity]
identifier = "from.file"

[home]
listen_addrs = ["/ip4/127.0.0.1/tcp/0"]
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	n, err := New(WithConfigFile(path), WithInMemoryStorage(true), WithListenAddrs("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	assert.Equal(t, "from.file", n.Config().Identity.Identifier)
	assert.Equal(t, "from.file", n.Identity().Identifier())
	assert.True(t, n.Config().Storage.InMemory)
}

func TestNode_Lifecycle(t *testing.T) {
	n, err := New(WithPreset("test"))
	require.NoError(t, err)

	assert.ErrorIs(t, n.Stop(context.Background()), ErrNotStarted)

	require.NoError(t, n.Start(testCtx(t)))
	assert.ErrorIs(t, n.Start(testCtx(t)), ErrAlreadyStarted)
	assert.NotEmpty(t, n.Addrs())

	_, err = n.Client()
	assert.ErrorIs(t, err, ErrWrongRole)
	srv, err := n.Server()
	require.NoError(t, err)
	assert.True(t, srv.Local().Equal(n.Identity()))

	require.NoError(t, n.Stop(context.Background()))
	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.Start(testCtx(t)), ErrNodeClosed)
}

func TestNode_PersonaCallThroughHome(t *testing.T) {
	h := startHome(t)
	caller, callerHome := startPersona(t, h, "alice.test")
	callee, calleeHome := startPersona(t, h, "bob.test")

	_, err := caller.Server()
	assert.ErrorIs(t, err, ErrWrongRole)
	assert.Empty(t, caller.Addrs())

	ctx := testCtx(t)
	_, err = callerHome.Pair(ctx)
	require.NoError(t, err)
	_, err = calleeHome.Pair(ctx)
	require.NoError(t, err)

	cc, err := callee.Client()
	require.NoError(t, err)
	cc.Handle("echo", func(_ context.Context, call *persona.IncomingCall) ([]byte, error) {
		return append([]byte("echo:"), call.Payload...), nil
	})

	out, err := callerHome.Call(ctx, callee.ID(), "echo", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(out))

	md, err := caller.Resolve(ctx, "bob.test")
	require.NoError(t, err)
	assert.True(t, md.Identity.Equal(callee.Identity()))
}

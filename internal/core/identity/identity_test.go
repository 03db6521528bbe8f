package identity

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

func newService(t *testing.T, identifier string) *Service {
	t.Helper()
	key, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	svc, err := New(key, identifier)
	require.NoError(t, err)
	return svc
}

func TestService_SignVerify(t *testing.T) {
	a, b := newService(t, "a"), newService(t, "b")
	data := []byte("statement")

	sig, err := a.Sign(data)
	require.NoError(t, err)
	assert.True(t, b.Verify(a.Local(), data, sig))
	assert.False(t, b.Verify(b.Local(), data, sig))
	assert.False(t, b.Verify(a.Local(), []byte("other"), sig))
	assert.False(t, b.Verify(types.Identity{}, data, sig))
	assert.False(t, b.Verify(a.Local(), data, nil))
}

func TestNew_NilKey(t *testing.T) {
	_, err := New(nil, "")
	assert.ErrorIs(t, err, ErrNilPrivateKey)
}

func TestFromConfig_KeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home.key")
	cfg := config.DefaultIdentityConfig()
	cfg.KeyFile = path
	cfg.Identifier = "home-1"

	first, err := FromConfig(cfg)
	require.NoError(t, err)
	second, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.True(t, first.Local().Equal(second.Local()))
	assert.Equal(t, "home-1", second.Local().Identifier())

	cfg.AutoGenerate = false
	cfg.KeyFile = filepath.Join(t.TempDir(), "missing.key")
	_, err = FromConfig(cfg)
	assert.Error(t, err)
}

func TestFromConfig_Ephemeral(t *testing.T) {
	cfg := config.DefaultIdentityConfig()
	cfg.KeyType = "Secp256k1"
	a, err := FromConfig(cfg)
	require.NoError(t, err)
	b, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.False(t, a.Local().Equal(b.Local()))
	assert.Equal(t, crypto.KeyTypeSecp256k1, a.PrivateKey().Type())
}

func TestService_Resolve(t *testing.T) {
	svc := newService(t, "home")
	ctx := context.Background()

	m, err := svc.Resolve(ctx, "home")
	require.NoError(t, err)
	assert.True(t, m.Identity.Equal(svc.Local()))

	_, err = svc.Resolve(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyIdentifier)

	alice := newService(t, "alice")
	svc.SetResolver(ResolverFunc(func(_ context.Context, id string) (*Metadata, error) {
		if id == "alice" {
			return &Metadata{Identity: alice.Local()}, nil
		}
		return nil, ErrNotFound
	}))
	m, err = svc.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, m.Identity.Equal(alice.Local()))
}

func TestCachingResolver(t *testing.T) {
	alice := newService(t, "alice")
	var calls atomic.Int32
	source := ResolverFunc(func(_ context.Context, id string) (*Metadata, error) {
		calls.Add(1)
		if id == "alice" {
			return &Metadata{Identity: alice.Local()}, nil
		}
		return nil, ErrNotFound
	})
	r := NewCachingResolver(source, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := r.Resolve(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, m.Identity.Equal(alice.Local()))
	}
	assert.Equal(t, int32(1), calls.Load())

	// 未找到不缓存
	_, err := r.Resolve(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Resolve(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(3), calls.Load())

	r.Invalidate("alice")
	_, err = r.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 1, r.Len())
}

func TestCachingResolver_CoalescesConcurrent(t *testing.T) {
	alice := newService(t, "alice")
	release := make(chan struct{})
	var calls atomic.Int32
	source := ResolverFunc(func(context.Context, string) (*Metadata, error) {
		calls.Add(1)
		<-release
		return &Metadata{Identity: alice.Local()}, nil
	})
	r := NewCachingResolver(source, 8, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "alice")
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Identity.Identifier = "node"

	var (
		svc   *Service
		key   crypto.PrivateKey
		local types.Identity
	)
	app := fxtest.New(t, fx.Supply(cfg), Module(), fx.Populate(&svc, &key, &local))
	app.RequireStart().RequireStop()

	assert.True(t, local.Equal(svc.Local()))
	assert.Equal(t, "node", local.Identifier())
	assert.True(t, crypto.KeyEqual(svc.PrivateKey(), key))
}

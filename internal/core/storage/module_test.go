package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/storage/engine"
)

func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.DataDir = "/var/lib/home"
	c := ConfigFromUnified(cfg)
	assert.Equal(t, "/var/lib/home/home.db", c.Path)
	assert.False(t, c.InMemory)

	cfg.Storage.InMemory = true
	ec := ConfigFromUnified(cfg).ToEngineConfig()
	assert.True(t, ec.InMemory)
	assert.Zero(t, ec.GCInterval)

	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))
}

func TestModule_Lifecycle(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.InMemory = true

	var eng engine.Engine
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&eng),
	)
	app.RequireStart()

	pairs := NewKVStore(eng, PrefixPairings)
	require.NoError(t, pairs.Put([]byte("p/h"), []byte("rec")))

	app.RequireStop()
	_, err := eng.Get([]byte("h/p/p/h"))
	assert.ErrorIs(t, err, ErrClosed)
}

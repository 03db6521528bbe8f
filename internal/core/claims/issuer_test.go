package claims

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

func TestIssuer_TTLBounds(t *testing.T) {
	homeKey, home := newKey(t)
	_, persona := newKey(t)
	mock := clock.NewMock()
	mock.Set(testNow)

	iss := NewIssuer(homeKey, time.Hour, 4*time.Hour, mock)

	tok, err := iss.Issue(persona, []string{ScopeRelay}, 0)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour).UnixNano(), tok.Expiry.UnixNano())

	tok, err = iss.Issue(persona, []string{ScopeRelay}, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(4*time.Hour).UnixNano(), tok.Expiry.UnixNano())

	_, err = iss.Issue(persona, []string{ScopeRelay}, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	v := NewVerifier(home)
	assert.NoError(t, v.Verify(tok, mock.Now()))
}

func TestModule_TrustsLocalAndConfigured(t *testing.T) {
	homeKey, home := newKey(t)
	otherKey, other := newKey(t)
	_, persona := newKey(t)

	cfg := config.NewConfig()
	cfg.Claims.TrustedIssuers = []string{config.FormatIdentity(other)}

	var (
		v   *Verifier
		iss *Issuer
	)
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(
			func() crypto.PrivateKey { return homeKey },
			func() types.Identity { return home },
		),
		Module(),
		fx.Populate(&v, &iss),
	)
	app.RequireStart().RequireStop()

	assert.True(t, v.Trusted(home.ID()))
	assert.True(t, v.Trusted(other.ID()))

	tok, err := iss.Issue(persona, []string{ScopeRelay}, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(tok, time.Now()))

	foreign, err := Issue(otherKey, persona, []string{ScopeRelay}, time.Minute, time.Now())
	require.NoError(t, err)
	assert.NoError(t, v.Verify(foreign, time.Now()))
}

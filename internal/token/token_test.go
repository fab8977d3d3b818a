package token

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, clock *fakeClock) *Service {
	t.Helper()
	svc, err := New(Config{
		Secret:     "test-secret",
		Algorithm:  "HS256",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "task-manager",
		Now:        clock.Now,
	})
	require.NoError(t, err)
	return svc
}

func TestIssueVerify_WithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock)

	for _, typ := range []Type{TypeAccess, TypeRefresh} {
		raw, exp, err := svc.Issue("alice", typ, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(time.Minute), exp)

		clock.Advance(59 * time.Second)
		claims, err := svc.Verify(raw)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject)
		assert.Equal(t, typ, claims.Type)
		assert.NotEmpty(t, claims.ID)
		clock.Advance(-59 * time.Second)
	}
}

func TestVerify_ExpiresAtBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock)

	raw, _, err := svc.Issue("alice", TypeAccess, time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = svc.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, ErrExpired)

	clock.Advance(time.Hour)
	_, err = svc.Verify(raw)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerify_TamperedByteAlwaysFails(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock)

	raw, _, err := svc.Issue("alice", TypeRefresh, time.Hour)
	require.NoError(t, err)

	for i := 0; i < len(raw); i++ {
		b := []byte(raw)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		_, err := svc.Verify(string(b))
		require.ErrorIsf(t, err, ErrInvalidToken, "tampered byte %d accepted", i)
	}
}

func TestVerify_RejectsForeignTokens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock)

	other, err := New(Config{
		Secret:     "other-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Issuer:     "task-manager",
		Now:        clock.Now,
	})
	require.NoError(t, err)
	foreign, _, err := other.Issue("alice", TypeAccess, time.Minute)
	require.NoError(t, err)

	exp := jwt.NewNumericDate(clock.Now().Add(time.Hour))
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Type:             TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "task-manager", ExpiresAt: exp},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type:             TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "task-manager"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type:             TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "someone-else", ExpiresAt: exp},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":      "not.a.token",
		"empty":        "",
		"other secret": foreign,
		"other alg":    hs512,
		"no expiry":    noExp,
		"wrong issuer": wrongIssuer,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(raw)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestIssuePair(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock)

	pair, err := svc.IssuePair("alice")
	require.NoError(t, err)
	assert.Equal(t, BearerType, pair.TokenType)
	assert.Equal(t, clock.Now().Add(30*time.Minute), pair.AccessExpiresAt)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), pair.RefreshExpiresAt)

	access, err := svc.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, access.Type)

	refresh, err := svc.Verify(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, refresh.Type)

	again, err := svc.IssuePair("alice")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, again.RefreshToken)
}

func TestNew_Validation(t *testing.T) {
	base := Config{Secret: "s", AccessTTL: time.Minute, RefreshTTL: time.Hour}

	_, err := New(base)
	require.NoError(t, err)

	noSecret := base
	noSecret.Secret = "  "
	_, err = New(noSecret)
	require.Error(t, err)

	rsa := base
	rsa.Algorithm = "RS256"
	_, err = New(rsa)
	require.Error(t, err)

	unknown := base
	unknown.Algorithm = "HS1024"
	_, err = New(unknown)
	require.Error(t, err)

	zeroTTL := base
	zeroTTL.AccessTTL = 0
	_, err = New(zeroTTL)
	require.Error(t, err)
}

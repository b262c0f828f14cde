package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/researchflow/types"
)

func newIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Secret = "test-secret"
	cfg.TTL = ttl
	i, err := NewIssuer(cfg)
	require.NoError(t, err)
	return i
}

func TestIssueAndVerify(t *testing.T) {
	i := newIssuer(t, time.Minute)

	token, err := i.Issue("sess-1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := i.Verify(token, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "alice", claims.UserID)
}

func TestVerifyRejectsWrongSession(t *testing.T) {
	i := newIssuer(t, time.Minute)

	token, err := i.Issue("sess-1", "alice")
	require.NoError(t, err)

	_, err = i.Verify(token, "sess-2")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestVerifyRejectsExpired(t *testing.T) {
	i := newIssuer(t, -time.Minute)

	token, err := i.Issue("sess-1", "alice")
	require.NoError(t, err)

	_, err = i.Verify(token, "sess-1")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer := newIssuer(t, time.Minute)

	other, err := NewIssuer(Config{Secret: "different-secret", TTL: time.Minute, Issuer: "researchflow"})
	require.NoError(t, err)

	token, err := other.Issue("sess-1", "alice")
	require.NoError(t, err)

	_, err = issuer.Verify(token, "sess-1")
	require.Error(t, err)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(Config{})
	assert.Error(t, err)
}

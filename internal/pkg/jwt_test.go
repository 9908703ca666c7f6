package pkg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePairCarriesRole(t *testing.T) {
	pair, err := GeneratePair(42, 1)
	require.NoError(t, err)

	claims, err := ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, 1, claims.Role)

	refresh, err := ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), refresh.UserID)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	pair, err := GeneratePair(7, 0)
	require.NoError(t, err)

	_, err = ParseAccess(pair.RefreshToken)
	assert.Error(t, err)
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	ts := time.Date(2026, 3, 1, 1, 30, 0, 0, time.UTC) // 09:30 local
	got := StartOfDay(ts, loc)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), got)
}

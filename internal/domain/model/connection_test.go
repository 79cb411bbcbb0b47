package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnection_Syncable(t *testing.T) {
	conn := Connection{Status: ConnectionStatusConnected}
	assert.True(t, conn.Syncable())

	conn.Status = ConnectionStatusError
	assert.True(t, conn.Syncable(), "error connections still sync so they can recover")

	conn.Status = ConnectionStatusPending
	assert.False(t, conn.Syncable())

	conn.Status = ConnectionStatusDisconnected
	assert.False(t, conn.Syncable())
}

func TestConnection_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from    ConnectionStatus
		to      ConnectionStatus
		allowed bool
	}{
		{ConnectionStatusPending, ConnectionStatusConnected, true},
		{ConnectionStatusPending, ConnectionStatusError, true},
		{ConnectionStatusPending, ConnectionStatusDisconnected, true},
		{ConnectionStatusConnected, ConnectionStatusError, true},
		{ConnectionStatusConnected, ConnectionStatusDisconnected, true},
		{ConnectionStatusConnected, ConnectionStatusPending, false},
		{ConnectionStatusError, ConnectionStatusConnected, true},
		{ConnectionStatusError, ConnectionStatusDisconnected, true},
		{ConnectionStatusError, ConnectionStatusPending, false},
		{ConnectionStatusDisconnected, ConnectionStatusConnected, false},
		{ConnectionStatusDisconnected, ConnectionStatusError, false},
	}

	for _, tc := range cases {
		conn := Connection{Status: tc.from}
		assert.Equal(t, tc.allowed, conn.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestNewConnectionID(t *testing.T) {
	id := NewConnectionID()
	assert.True(t, strings.HasPrefix(id, "conn_"))
	assert.NotEqual(t, id, NewConnectionID())
}

func TestMaskCredential(t *testing.T) {
	masked := MaskCredential("sk-live-abcdef123456")
	assert.Equal(t, "sk-l********3456", masked)
	assert.NotContains(t, masked, "abcdef")

	// Short values are fully redacted so prefix and suffix cannot overlap.
	assert.Equal(t, "********", MaskCredential("short"))
	assert.Equal(t, "********", MaskCredential(""))
}

func TestTokenPayload_Expired(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	p := TokenPayload{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, p.Expired(now))

	p.ExpiresAt = now.Add(time.Hour)
	assert.False(t, p.Expired(now))

	p.ExpiresAt = time.Time{}
	assert.False(t, p.Expired(now), "zero expiry means a non-expiring token")
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowBurstThenThrottle(t *testing.T) {
	l := NewLimiter(3600, 2) // one per second sustained, burst of two

	assert.True(t, l.Allow("client"))
	assert.True(t, l.Allow("client"))
	assert.False(t, l.Allow("client"))
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter(3600, 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestForgetResetsBucket(t *testing.T) {
	l := NewLimiter(3600, 1)

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	l.Forget("a")
	assert.True(t, l.Allow("a"))
}

func TestWaitRespectsContext(t *testing.T) {
	l := NewPerSecondLimiter(0.001, 1)
	require.True(t, l.Allow("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "slow")
	assert.Error(t, err)
}

func TestPerSecondLimiter(t *testing.T) {
	l := NewPerSecondLimiter(100, 1)

	require.True(t, l.Allow("s"))
	require.False(t, l.Allow("s"))

	// tokens refill at 100/s, so one is back within 10ms
	assert.Eventually(t, func() bool { return l.Allow("s") }, time.Second, 2*time.Millisecond)
}

func TestTokens(t *testing.T) {
	l := NewLimiter(3600, 5)

	assert.InDelta(t, 5.0, l.Tokens("fresh"), 0.1)
	l.Allow("fresh")
	assert.Less(t, l.Tokens("fresh"), 5.0)
}

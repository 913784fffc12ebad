package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	l := NewLimiter(60, 2)

	assert.True(t, l.Allow("t1"))
	assert.True(t, l.Allow("t1"))
	assert.False(t, l.Allow("t1"), "third request in the same instant exceeds the burst")
}

func TestTabsAreIsolated(t *testing.T) {
	l := NewLimiter(60, 1)

	assert.True(t, l.Allow("t1"))
	assert.False(t, l.Allow("t1"))
	assert.True(t, l.Allow("t2"), "a throttled tab must not affect others")
}

func TestPerMinuteMatchesConfiguration(t *testing.T) {
	assert.Equal(t, 120, NewLimiter(120, 20).PerMinute())
}

func TestGetLimiterReused(t *testing.T) {
	l := NewLimiter(60, 5)

	first := l.GetLimiter("t1")
	second := l.GetLimiter("t1")
	assert.Same(t, first, second)
}

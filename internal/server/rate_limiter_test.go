package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRateLimiterBurstThenDeny verifies that the bucket starts full and
// denies once the burst is spent.
func TestRateLimiterBurstThenDeny(t *testing.T) {
	rl := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "request %d within burst", i)
	}
	assert.False(t, rl.allow(), "request beyond burst")
}

// TestRateLimiterRefills verifies that tokens come back with time. A full
// refill interval of 40ms means one token roughly every 8ms.
func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(5, 40*time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.allow())
	}
	assert.False(t, rl.allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.allow(), "token after refill interval")
}

// TestRateLimiterClampsParameters verifies that zero parameters still yield
// a limiter that admits traffic.
func TestRateLimiterClampsParameters(t *testing.T) {
	rl := newRateLimiter(0, 0)
	assert.True(t, rl.allow())
}

package ratelimiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnlimitedWhenZero(t *testing.T) {
	r := New(0, 0)
	for i := 0; i < 10000; i++ {
		assert.True(t, r.Allow())
	}
}

func TestBurstThenThrottle(t *testing.T) {
	r := New(1, 5)
	allowed := 0
	for i := 0; i < 100; i++ {
		if r.Allow() {
			allowed++
		}
	}
	// The bucket starts full with 5 tokens; refill over this loop is
	// negligible at 1 token per second.
	assert.GreaterOrEqual(t, allowed, 5)
	assert.Less(t, allowed, 10)
}

func TestDefaultBurstEqualsRate(t *testing.T) {
	r := New(100, 0)
	assert.True(t, r.Allow())
}

package wait

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUntilImmediateSuccess(t *testing.T) {
	calls := 0
	elapsed, ok := Until(time.Second, 10*time.Millisecond, func() bool {
		calls++
		return true
	})

	assert.True(t, ok)
	assert.Equal(t, 1, calls)
	assert.Less(t, elapsed, time.Second)
}

func TestUntilEventualSuccess(t *testing.T) {
	calls := 0
	_, ok := Until(2*time.Second, 5*time.Millisecond, func() bool {
		calls++
		return calls == 3
	})

	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

func TestUntilTimeoutClampsElapsed(t *testing.T) {
	timeout := 60 * time.Millisecond
	elapsed, ok := Until(timeout, 25*time.Millisecond, func() bool { return false })

	assert.False(t, ok)
	assert.Equal(t, timeout, elapsed)
}

func TestUntilZeroTimeoutEvaluatesOnce(t *testing.T) {
	calls := 0
	elapsed, ok := Until(0, time.Millisecond, func() bool {
		calls++
		return false
	})

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, time.Duration(0), elapsed)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, "5.0", Seconds(5*time.Second))
	assert.Equal(t, "0.25", Seconds(250*time.Millisecond))
	assert.Equal(t, "0.0", Seconds(0))
}

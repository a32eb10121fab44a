package guard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(n int, window time.Duration, clock *fakeClock) *RateLimiter {
	l := NewRateLimiter(RateLimitConfig{MaxRequests: n, Window: window})
	l.now = clock.Now
	return l
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(2, time.Minute, clock)

	assert.True(t, l.Allow("ip"))
	assert.True(t, l.Allow("ip"))
	assert.False(t, l.Allow("ip"))
}

func TestRateLimiter_ExactlyNAdmitted(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(5, time.Minute, clock)

	admitted := 0
	for i := 0; i < 6; i++ {
		if l.Allow("client") {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)
}

func TestRateLimiter_RecoversAfterWindow(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("ip"))
	}
	require.False(t, l.Allow("ip"))

	clock.Advance(time.Minute + time.Millisecond)
	assert.True(t, l.Allow("ip"))
}

func TestRateLimiter_RejectedProbesDoNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(1, 10*time.Second, clock)

	require.True(t, l.Allow("ip"))

	// Keep probing while limited; none of these are recorded.
	for i := 0; i < 9; i++ {
		clock.Advance(time.Second)
		require.False(t, l.Allow("ip"))
	}

	// 10.001s after the only admitted request the key is clear again.
	clock.Advance(time.Second + time.Millisecond)
	assert.True(t, l.Allow("ip"))
}

func TestRateLimiter_SlidingNotFixed(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(2, 10*time.Second, clock)

	require.True(t, l.Allow("ip")) // t=0
	clock.Advance(6 * time.Second)
	require.True(t, l.Allow("ip")) // t=6
	clock.Advance(5 * time.Second)
	// t=11: the t=0 hit has left the window, the t=6 hit has not.
	assert.True(t, l.Allow("ip"))
	assert.False(t, l.Allow("ip"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(1, time.Minute, clock)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())
}

func TestRateLimiter_Remaining(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(3, time.Minute, clock)

	assert.Equal(t, 3, l.Remaining("ip"))
	l.Allow("ip")
	assert.Equal(t, 2, l.Remaining("ip"))
	l.Allow("ip")
	l.Allow("ip")
	l.Allow("ip")
	assert.Equal(t, 0, l.Remaining("ip"))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 3, l.Remaining("ip"))
}

func TestRateLimiter_Defaults(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{})
	assert.Equal(t, 30, l.cfg.MaxRequests)
	assert.Equal(t, time.Minute, l.cfg.Window)
}

func TestRateLimiter_ConcurrentSameKey(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(50, time.Minute, clock)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), admitted.Load())
}

func TestRateLimiter_ConcurrentManyKeys(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(1, time.Minute, clock)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.True(t, l.Allow(fmt.Sprintf("client-%d", i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, l.Len())
}

package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Countdown, within time.Duration) (Tick, bool) {
	t.Helper()

	select {
	case tick := <-c.C:
		return tick, true
	case <-time.After(within):
		return Tick{}, false
	}
}

func TestCountdownFires(t *testing.T) {
	t.Parallel()

	c := NewCountdown()
	gen := c.Arm(10 * time.Millisecond)

	tick, ok := receive(t, c, time.Second)
	require.True(t, ok)
	assert.Equal(t, gen, tick.Gen)
	assert.Equal(t, 10*time.Millisecond, tick.Window)
	assert.True(t, c.Live(tick))
	assert.False(t, c.Live(tick), "a tick is consumed once")
	assert.False(t, c.Armed())
}

func TestCountdownCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCountdown()
	assert.False(t, c.Cancel(), "cancelling an idle countdown is a no-op")

	c.Arm(time.Hour)
	assert.True(t, c.Cancel())
	assert.False(t, c.Cancel())

	c.Arm(5 * time.Millisecond)
	tick, ok := receive(t, c, time.Second)
	require.True(t, ok)

	assert.False(t, c.Cancel(), "cancelling a fired countdown is a no-op")
	assert.False(t, c.Live(tick), "cancel discards a delivered tick")
}

func TestCountdownRearmDiscardsStaleTick(t *testing.T) {
	t.Parallel()

	c := NewCountdown()
	c.Arm(time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	gen := c.Arm(30 * time.Millisecond)

	tick, ok := receive(t, c, time.Second)
	require.True(t, ok)
	if tick.Gen != gen {
		assert.False(t, c.Live(tick))
		tick, ok = receive(t, c, time.Second)
		require.True(t, ok)
	}

	assert.Equal(t, gen, tick.Gen)
	assert.Equal(t, 30*time.Millisecond, tick.Window, "re-arming restarts the full window")
	assert.True(t, c.Live(tick))
}

func TestCountdownCancelBeforeExpiry(t *testing.T) {
	t.Parallel()

	c := NewCountdown()
	c.Arm(20 * time.Millisecond)
	c.Cancel()

	_, ok := receive(t, c, 60*time.Millisecond)
	assert.False(t, ok)
}

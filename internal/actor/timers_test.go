package actor_test

import (
	"testing"
	"time"

	"github.com/droidcore/mission/internal/actor"
	"github.com/droidcore/mission/internal/actor/actortest"
	"github.com/stretchr/testify/require"
)

func TestTimerSetRestartReplacesPending(t *testing.T) {
	t.Parallel()

	clock := actortest.NewFakeClock(time.Unix(0, 0))
	timers := actor.NewTimerSet(clock)

	fired := 0
	timers.Start("silence", 2500*time.Millisecond, func() { fired++ })
	clock.Advance(2000 * time.Millisecond)
	timers.Start("silence", 2500*time.Millisecond, func() { fired++ })
	clock.Advance(2000 * time.Millisecond)
	require.Equal(t, 0, fired)
	require.Equal(t, 1, clock.PendingTimers())

	clock.Advance(500 * time.Millisecond)
	require.Equal(t, 1, fired)
	require.False(t, timers.Pending("silence"))
}

func TestTimerSetCancel(t *testing.T) {
	t.Parallel()

	clock := actortest.NewFakeClock(time.Unix(0, 0))
	timers := actor.NewTimerSet(clock)

	fired := false
	timers.Start("reconnect", time.Second, func() { fired = true })
	require.True(t, timers.Pending("reconnect"))
	timers.Cancel("reconnect")
	clock.Advance(2 * time.Second)
	require.False(t, fired)
}

func TestTimerSetStopAll(t *testing.T) {
	t.Parallel()

	clock := actortest.NewFakeClock(time.Unix(0, 0))
	timers := actor.NewTimerSet(clock)

	count := 0
	timers.Start("a", time.Second, func() { count++ })
	timers.Start("b", time.Second, func() { count++ })
	timers.StopAll()
	clock.Advance(time.Minute)
	require.Zero(t, count)
}

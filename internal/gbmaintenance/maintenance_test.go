package gbmaintenance

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ternarybob/fiberforge/internal/gbjob"
)

type fakeSweeper struct {
	sweepCalls atomic.Int32
	toDelete   int32
}

func (f *fakeSweeper) Sweep() int {
	f.sweepCalls.Add(1)
	return int(f.toDelete)
}

func (f *fakeSweeper) Stats() (live int, visible int) {
	return 10, 3
}

func newTestJobSystem(t *testing.T) *gbjob.System {
	t.Helper()
	sys, err := gbjob.NewSystem(2, false)
	require.NoError(t, err)
	t.Cleanup(sys.Close)
	return sys
}

func TestTriggerNowRunsSweepThroughJobSystem(t *testing.T) {
	sweeper := &fakeSweeper{toDelete: 2}
	svc := NewService(newTestJobSystem(t), sweeper)

	svc.TriggerNow()

	require.Eventually(t, func() bool {
		return sweeper.sweepCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	at, deleted := svc.LastSweep()
	require.False(t, at.IsZero())
	require.Equal(t, 2, deleted)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	svc := NewService(newTestJobSystem(t), &fakeSweeper{})
	require.Error(t, svc.Start("not a schedule"))
}

func TestStartRunsOnSchedule(t *testing.T) {
	sweeper := &fakeSweeper{}
	svc := NewService(newTestJobSystem(t), sweeper)

	require.NoError(t, svc.Start("@every 10ms"))
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return sweeper.sweepCalls.Load() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestStartTwiceFails(t *testing.T) {
	svc := NewService(newTestJobSystem(t), &fakeSweeper{})
	require.NoError(t, svc.Start("@every 1h"))
	defer svc.Stop()
	require.Error(t, svc.Start("@every 1h"))
}

func TestStopIsIdempotentAndDoesNotPanic(t *testing.T) {
	svc := NewService(newTestJobSystem(t), &fakeSweeper{})
	require.NoError(t, svc.Start("@every 1h"))
	svc.Stop()
	require.NotPanics(t, svc.Stop)
}

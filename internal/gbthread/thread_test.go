package gbthread

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateRunsEntryAndJoins(t *testing.T) {
	var ran atomic.Bool
	th, err := Create(0, 0, nil, func(ctx context.Context, userData any) {
		ran.Store(true)
	})
	require.NoError(t, err)
	th.Join()
	require.True(t, ran.Load())
}

func TestCreatePassesUserData(t *testing.T) {
	type payload struct{ N int }
	done := make(chan int, 1)
	th, err := Create(0, 0, &payload{N: 7}, func(ctx context.Context, userData any) {
		done <- userData.(*payload).N
	})
	require.NoError(t, err)
	th.Join()
	require.Equal(t, 7, <-done)
}

func TestThisThreadResolvesViaContext(t *testing.T) {
	found := make(chan bool, 1)
	th, err := Create(0, 0, nil, func(ctx context.Context, userData any) {
		self, ok := ThisThread(ctx)
		found <- ok && self != nil
	})
	require.NoError(t, err)
	th.Join()
	require.True(t, <-found)
}

func TestThisThreadFalseWithoutContext(t *testing.T) {
	_, ok := ThisThread(context.Background())
	require.False(t, ok)
}

func TestSetAndGetName(t *testing.T) {
	th, err := Create(0, 0, nil, func(ctx context.Context, userData any) {
		time.Sleep(time.Millisecond)
	})
	require.NoError(t, err)
	th.SetName("worker-7")
	require.Equal(t, "worker-7", th.GetName())
	th.Join()
}

func TestJoinTwiceIsSafe(t *testing.T) {
	th, err := Create(0, 0, nil, func(ctx context.Context, userData any) {})
	require.NoError(t, err)
	th.Join()
	require.NotPanics(t, func() { th.Join() })
}

func TestDetachDoesNotBlock(t *testing.T) {
	th, err := Create(0, 0, nil, func(ctx context.Context, userData any) {
		time.Sleep(10 * time.Millisecond)
	})
	require.NoError(t, err)
	require.NotPanics(t, func() { th.Detach() })
}

func TestMaxConcurrencyIsAtLeastOne(t *testing.T) {
	require.GreaterOrEqual(t, MaxConcurrency(), 1)
}

func TestActiveThreadCountTracksLifecycle(t *testing.T) {
	before := ActiveThreadCount()
	release := make(chan struct{})
	th, err := Create(0, 0, nil, func(ctx context.Context, userData any) {
		<-release
	})
	require.NoError(t, err)
	require.Equal(t, before+1, ActiveThreadCount())
	close(release)
	th.Join()
	require.Equal(t, before, ActiveThreadCount())
}

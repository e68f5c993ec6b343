package gbfiber

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSwitchToFiberRunsTargetAndReturns(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	done := make(chan struct{})

	child := CreateFiber(0, nil, func(ctx context.Context, _ any) {
		record("child")
	})

	root := CreateFiberThreads(1, false, 0, nil, func(ctx context.Context, _ any) {
		record("root-start")
		ok := SwitchToFiber(ctx, child)
		require.True(t, ok)
		record("root-resumed")
		close(done)
	})
	require.Len(t, root, 1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fiber switch sequence")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"root-start", "child", "root-resumed"}, order)
}

func TestSwitchToFiberFailsOutsideFiberContext(t *testing.T) {
	f := CreateFiber(0, nil, func(ctx context.Context, _ any) {})
	require.False(t, SwitchToFiber(context.Background(), f))
}

func TestSwitchToFiberFailsIntoAlreadyRunningFiber(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var target *Fiber
	target = CreateFiber(0, nil, func(ctx context.Context, _ any) {
		close(started)
		<-release
	})

	resultCh := make(chan bool, 1)
	_ = CreateFiberThreads(1, false, 0, nil, func(ctx context.Context, _ any) {
		SwitchToFiber(ctx, target)
	})
	<-started

	secondRoot := CreateFiberThreads(1, false, 0, nil, func(ctx context.Context, _ any) {
		resultCh <- SwitchToFiber(ctx, target)
	})
	require.Len(t, secondRoot, 1)

	require.False(t, <-resultCh)
	close(release)
}

func TestDeleteRunningFiberPanics(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := CreateFiber(0, nil, func(ctx context.Context, _ any) {
		close(started)
		<-release
	})
	CreateFiberThreads(1, false, 0, nil, func(ctx context.Context, _ any) {
		SwitchToFiber(ctx, f)
	})
	<-started
	require.Panics(t, func() { DeleteFiber(f) })
	close(release)
}

func TestDeleteNilFiberPanics(t *testing.T) {
	require.Panics(t, func() { DeleteFiber(nil) })
}

func TestFiberNameOnNilIsNull(t *testing.T) {
	var f *Fiber
	require.Equal(t, "null", f.Name())
	require.False(t, f.IsRunning())
	require.True(t, f.Exited())
}

// TestFiberThreadAbuse mirrors the "N thread-hosted fibers and 5 free
// fibers repeatedly hand off to an idle peer" stress scenario: every fiber
// hunts for an idle peer, marks itself idle, and switches to it, until a
// shared counter exceeds 1000.
func TestFiberThreadAbuse(t *testing.T) {
	const targetCount = 1000
	hostCount := 4
	const freeCount = 5

	var counter atomic.Int64
	var idleMu sync.Mutex
	var idle []*Fiber
	var all []*Fiber
	var allMu sync.Mutex

	markIdle := func(f *Fiber) {
		idleMu.Lock()
		idle = append(idle, f)
		idleMu.Unlock()
	}
	pickIdle := func(self *Fiber) *Fiber {
		idleMu.Lock()
		defer idleMu.Unlock()
		for i, f := range idle {
			if f != self {
				idle = append(idle[:i], idle[i+1:]...)
				return f
			}
		}
		return nil
	}

	var body FiberMain
	body = func(ctx context.Context, _ any) {
		self := GetThisFiber(ctx)
		for counter.Add(1) <= targetCount {
			markIdle(self)
			var peer *Fiber
			for peer == nil && counter.Load() <= targetCount {
				peer = pickIdle(self)
				if peer == nil {
					time.Sleep(time.Microsecond)
				}
			}
			if peer == nil {
				return
			}
			if !SwitchToFiber(ctx, peer) {
				markIdle(self)
			}
		}
	}

	for i := 0; i < freeCount; i++ {
		f := CreateFiber(0, nil, body)
		allMu.Lock()
		all = append(all, f)
		allMu.Unlock()
		markIdle(f)
	}

	roots := CreateFiberThreads(hostCount, false, 0, nil, body)
	require.NotEmpty(t, roots)

	require.Eventually(t, func() bool {
		return counter.Load() > targetCount
	}, 10*time.Second, time.Millisecond)
}

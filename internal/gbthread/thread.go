// Package gbthread implements the Thread primitive: an OS-thread handle
// with a name, optional affinity, and one-shot join/detach semantics,
// grounded on gb::Thread (win_thread.cc / gen_thread.cc).
package gbthread

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

const maxNameBytes = 128

var (
	logger        = arbor.NewLogger()
	threadIndex   atomic.Int64
	activeThreads atomic.Int64
)

// threadCtxKey is the context.Context key used to propagate "the Thread
// the calling code is running on" — Go's substitute for the original's
// thread-local lookup (see DESIGN.md Open Question resolution #1). Go has
// no goroutine-local storage, so any code that needs to know which Thread
// it is running on must receive it explicitly via context.Context, which
// is exactly how gbfiber and gbjob thread their own ambient state.
type threadCtxKey struct{}

// ContextWithThread returns a copy of ctx carrying t as the ambient thread.
func ContextWithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadCtxKey{}, t)
}

// FromContext returns the Thread stashed in ctx by ContextWithThread, if
// any.
func FromContext(ctx context.Context) (*Thread, bool) {
	t, ok := ctx.Value(threadCtxKey{}).(*Thread)
	return t, ok
}

// EntryFunc is the body a created Thread runs.
type EntryFunc func(ctx context.Context, userData any)

// state is the one-shot lifecycle of a Thread.
type state int32

const (
	stateRunning state = iota
	stateJoined
	stateDetached
)

// Thread is a handle owning a platform thread, realized as a goroutine
// pinned to its OS thread via runtime.LockOSThread so that affinity pinning
// (where supported) applies for the whole lifetime of the goroutine.
type Thread struct {
	mu       sync.Mutex
	name     [maxNameBytes]byte
	nameLen  int
	state    state
	affinity uint64
	exited   chan struct{}
}

// Create launches a thread that invokes entry(ctx, userData), with ctx
// carrying the new Thread so the entry function (and anything it calls)
// can recover "this thread" via FromContext. affinity == 0 means no
// pinning; stackSize is accepted for interface parity with the original
// but has no effect on a goroutine's stack (Go grows it automatically).
// The returned handle must later be joined or detached exactly once.
func Create(affinity uint64, stackSize uint32, userData any, entry EntryFunc) (*Thread, error) {
	if entry == nil {
		return nil, fmt.Errorf("gbthread: entry function must not be nil")
	}
	index := threadIndex.Add(1)
	th := &Thread{
		affinity: affinity,
		exited:   make(chan struct{}),
	}
	th.setNameLocked(fmt.Sprintf("Thread-%d", index))
	activeThreads.Add(1)

	ready := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if affinity != 0 {
			if err := setAffinity(affinity); err != nil {
				logger.Debug().Err(err).Msg("gbthread: affinity pinning not applied")
			}
		}
		close(ready)

		ctx := ContextWithThread(context.Background(), th)
		logger.Debug().Str("thread", th.GetName()).Msg("thread starting")
		entry(ctx, userData)
		logger.Debug().Str("thread", th.GetName()).Msg("thread exiting")

		activeThreads.Add(-1)
		close(th.exited)
	}()
	<-ready
	return th, nil
}

// Join blocks until the thread has exited, then releases its resources.
// Calling Join twice, or Join after Detach, is a usage error: it is logged
// and ignored.
func (t *Thread) Join() {
	t.mu.Lock()
	if t.state != stateRunning {
		t.mu.Unlock()
		logger.Warn().Msg("gbthread: Join called on a thread that was already joined/detached")
		return
	}
	t.state = stateJoined
	t.mu.Unlock()

	<-t.exited
}

// Detach releases ownership; the thread's resources are reclaimed
// automatically when it exits. Calling Detach twice, or after Join, is a
// usage error: it is logged and ignored.
func (t *Thread) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateRunning {
		logger.Warn().Msg("gbthread: Detach called on a thread that was already joined/detached")
		return
	}
	t.state = stateDetached
}

// SetName sets the thread's display name, truncated to 128 bytes including
// the implicit terminator (127 usable bytes).
func (t *Thread) SetName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setNameLocked(name)
}

func (t *Thread) setNameLocked(name string) {
	n := len(name)
	if n > maxNameBytes-1 {
		n = maxNameBytes - 1
	}
	var buf [maxNameBytes]byte
	copy(buf[:n], name[:n])
	t.name = buf
	t.nameLen = n
}

// GetName returns the thread's current display name.
func (t *Thread) GetName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.name[:t.nameLen])
}

// ThisThread returns the handle of the calling goroutine if it was created
// via Create and ctx is the context that was passed into its entry
// function (or one derived from it); ok is false otherwise. This is the
// context-propagated replacement for the original's thread-local lookup —
// see the threadCtxKey doc comment.
func ThisThread(ctx context.Context) (*Thread, bool) {
	return FromContext(ctx)
}

// MaxConcurrency returns the OS-reported hardware concurrency, floor-
// clamped to 1.
func MaxConcurrency() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// HardwareAffinities enumerates per-hardware-thread affinity masks
// available to the process. On platforms without a concrete affinity API
// wired in, this returns an empty slice, as the spec allows when affinity
// information is unknown.
func HardwareAffinities() []uint64 {
	return hardwareAffinities()
}

// ActiveThreadCount returns the number of Thread handles currently running
// (diagnostic only).
func ActiveThreadCount() int {
	return int(activeThreads.Load())
}

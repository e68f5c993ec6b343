// Package gbfiber implements cooperatively-scheduled fibers on top of
// goroutines: at most one fiber in a switch chain is ever actually
// executing at a time, and switching between them is a channel handoff
// rather than a stack swap. This is the Go realization of gb::Fiber — see
// gb/thread/fiber.h and gb/thread/win_fiber.cc, and DESIGN.md's "fibers as
// goroutines" resolution.
package gbfiber

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fiberforge/internal/gbthread"
)

var (
	logger        = arbor.NewLogger()
	fiberIndex    atomic.Int64
	runningCount  atomic.Int32
	verboseLogged atomic.Bool
)

// SetVerboseLogging toggles debug-level logging of fiber switches.
func SetVerboseLogging(enabled bool) {
	verboseLogged.Store(enabled)
}

func debugf(format string, args ...any) {
	if verboseLogged.Load() {
		logger.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

// SupportsFibers reports whether fibers are usable on this platform. The
// goroutine-based realization works everywhere Go runs, unlike the
// original's native per-OS implementation.
func SupportsFibers() bool { return true }

// FiberMain is the body a Fiber runs once switched into.
type FiberMain func(ctx context.Context, userData any)

// Fiber is a cooperatively-scheduled unit of execution. A Fiber only ever
// executes while it is "running"; switching to another fiber parks it
// until something switches back.
type Fiber struct {
	mu       sync.Mutex
	name     string
	userData any
	main     FiberMain
	token    chan struct{}
	started  bool
	running  bool
	exited   bool
	isRoot   bool
	resumeTo *Fiber
}

type fiberCtxKey struct{}

// ContextWithFiber returns a copy of ctx carrying f as the ambient fiber.
func ContextWithFiber(ctx context.Context, f *Fiber) context.Context {
	return context.WithValue(ctx, fiberCtxKey{}, f)
}

// FromContext returns the Fiber stashed in ctx, if any.
func FromContext(ctx context.Context) (*Fiber, bool) {
	f, ok := ctx.Value(fiberCtxKey{}).(*Fiber)
	return f, ok
}

// GetThisFiber returns the fiber associated with ctx, or nil if ctx was not
// derived from a running fiber's context.
func GetThisFiber(ctx context.Context) *Fiber {
	f, _ := FromContext(ctx)
	return f
}

func newFiber(userData any, main FiberMain, isRoot bool) *Fiber {
	idx := fiberIndex.Add(1)
	return &Fiber{
		name:     fmt.Sprintf("Fiber-%d", idx),
		userData: userData,
		main:     main,
		token:    make(chan struct{}, 1),
		isRoot:   isRoot,
	}
}

// CreateFiber creates a free-standing fiber that is not yet running. It
// must be switched into via SwitchToFiber to begin executing. stackSize is
// accepted for parity with the original; goroutine stacks grow on demand.
func CreateFiber(stackSize uint32, userData any, main FiberMain) *Fiber {
	if main == nil {
		return nil
	}
	return newFiber(userData, main, false)
}

// DeleteFiber releases a fiber's resources. It is a usage error to delete a
// fiber that is currently running, and panics as the original CHECK-fails.
func DeleteFiber(f *Fiber) {
	if f == nil {
		panic("gbfiber: cannot delete a nil fiber")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		panic("gbfiber: cannot delete a running fiber")
	}
}

// CreateFiberThreads spawns threadCount worker threads, each immediately
// running its own root fiber (main is invoked right away, with no need for
// an initial SwitchToFiber). threadCount <= 0 means "hardware concurrency
// plus threadCount", floored at 1, mirroring the original's convention for
// expressing "all but N threads". When pinThreads is true but there are
// fewer known hardware affinities than threads requested, pinning is
// silently disabled, same as the original.
func CreateFiberThreads(threadCount int, pinThreads bool, stackSize uint32, userData any, main FiberMain) []*Fiber {
	if main == nil {
		return nil
	}
	affinities := gbthread.HardwareAffinities()
	maxConcurrency := len(affinities)
	if maxConcurrency == 0 {
		maxConcurrency = gbthread.MaxConcurrency()
	}
	if threadCount <= 0 {
		threadCount = maxConcurrency + threadCount
		if threadCount <= 0 {
			threadCount = 1
		}
	}
	if pinThreads && (threadCount > len(affinities) || len(affinities) == 0) {
		pinThreads = false
	}

	debugf("creating %d fiber threads (pinned=%v)", threadCount, pinThreads)

	fibers := make([]*Fiber, 0, threadCount)
	for i := 0; i < threadCount; i++ {
		f := newFiber(userData, main, true)
		f.started = true
		f.running = true
		runningCount.Add(1)

		var affinity uint64
		if pinThreads {
			affinity = affinities[i]
		}

		th, err := gbthread.Create(affinity, stackSize, nil, func(ctx context.Context, _ any) {
			fctx := ContextWithFiber(ctx, f)
			runFiberBody(f, fctx)
		})
		if err != nil {
			logger.Error().Err(err).Msg("gbfiber: failed to create fiber thread")
			runningCount.Add(-1)
			break
		}
		th.SetName(f.name)
		th.Detach()
		fibers = append(fibers, f)
	}
	return fibers
}

// SwitchToFiber transfers execution from the fiber running in ctx to
// target, parking the caller until something switches back to it. It
// returns false if ctx is not running inside a fiber, or target is nil,
// already running, or already exited.
func SwitchToFiber(ctx context.Context, target *Fiber) bool {
	current, ok := FromContext(ctx)
	if !ok || current == nil {
		return false
	}
	if target == nil {
		return false
	}

	target.mu.Lock()
	if target.running || target.exited {
		target.mu.Unlock()
		return false
	}
	target.running = true
	needsStart := !target.started
	if needsStart {
		target.started = true
		target.resumeTo = current
	}
	target.mu.Unlock()
	runningCount.Add(1)

	current.mu.Lock()
	current.running = false
	current.mu.Unlock()
	runningCount.Add(-1)

	debugf("switching from %s to %s", current.name, target.name)

	if needsStart {
		go func() {
			fctx := ContextWithFiber(ctx, target)
			runFiberBody(target, fctx)
		}()
	} else {
		target.token <- struct{}{}
	}

	<-current.token
	current.mu.Lock()
	current.running = true
	current.mu.Unlock()
	runningCount.Add(1)
	return true
}

func runFiberBody(f *Fiber, ctx context.Context) {
	debugf("starting fiber %s", f.name)
	f.main(ctx, f.userData)
	debugf("fiber %s main returned", f.name)

	f.mu.Lock()
	f.exited = true
	f.running = false
	resumeTo := f.resumeTo
	isRoot := f.isRoot
	f.mu.Unlock()
	runningCount.Add(-1)

	if !isRoot && resumeTo != nil {
		resumeTo.token <- struct{}{}
	}
}

// Name returns the fiber's display name. A nil fiber reports "null".
func (f *Fiber) Name() string {
	if f == nil {
		return "null"
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

// SetName sets the fiber's display name. A nil fiber is a no-op.
func (f *Fiber) SetName(name string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = name
}

// IsRunning reports whether this fiber currently controls execution. A nil
// fiber reports false.
func (f *Fiber) IsRunning() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Exited reports whether the fiber's main function has returned.
func (f *Fiber) Exited() bool {
	if f == nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exited
}

// GetRunningFiberCount returns the number of fibers currently executing
// across all fiber chains in the process.
func GetRunningFiberCount() int {
	return int(runningCount.Load())
}

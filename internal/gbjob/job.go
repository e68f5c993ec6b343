// Package gbjob implements a fiber-backed job scheduler: a fixed pool of
// worker threads runs an arbitrary number of cooperatively-scheduled jobs,
// any of which can block on a Counter without tying up a worker thread.
// Grounded on gb::JobSystem / gb::FiberJobSystem (job_system.h,
// fiber_job_system.cc).
package gbjob

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fiberforge/internal/gbcontext"
	"github.com/ternarybob/fiberforge/internal/gbfiber"
)

var logger = arbor.NewLogger()

// JobDataHandle identifies a per-job data slot allocated with
// AllocDataHandle.
type JobDataHandle int

// InvalidJobDataHandle marks a handle that failed to allocate.
const InvalidJobDataHandle JobDataHandle = 0

// MaxJobDataHandles bounds how many data slots a System can hand out.
const MaxJobDataHandles = 128

// JobFunc is a unit of work run by a System. ctx carries the job's own
// Context and data slots; retrieve them with GetContext and GetData.
type JobFunc func(ctx context.Context)

type job struct {
	name    string
	traceID string
	counter *Counter
	jobCtx  *gbcontext.Context
	fn      JobFunc
	data    []any
}

type fiberState struct {
	fiber *gbfiber.Fiber
	job   *job
}

type jobDataType struct {
	alloc func() any
}

// System schedules jobs across a fixed pool of worker threads, using
// fibers so a job that Waits on a Counter frees its worker thread to run
// other jobs rather than blocking it.
type System struct {
	mu   sync.Mutex
	cond *sync.Cond

	running bool

	pendingJobs   []*job
	idleFibers    map[*fiberState]struct{}
	pendingFibers []*fiberState
	runningFibers map[*fiberState]struct{}
	waitingFibers map[*Counter][]*fiberState
	unusedFibers  []*gbfiber.Fiber

	totalThreadCount int
	totalFiberCount  int

	jobDataMu    sync.RWMutex
	jobDataTypes []jobDataType
}

// NewSystem creates a System with threadCount worker threads (threadCount
// <= 0 means "hardware concurrency plus threadCount", floored at 1) and
// starts them. pinThreads requests OS-thread affinity pinning where
// supported. It fails if gbfiber reports no fiber support or no worker
// thread could be created.
func NewSystem(threadCount int, pinThreads bool) (*System, error) {
	if !gbfiber.SupportsFibers() {
		return nil, fmt.Errorf("gbjob: fibers are not supported on this platform")
	}
	s := &System{
		idleFibers:    make(map[*fiberState]struct{}),
		runningFibers: make(map[*fiberState]struct{}),
		waitingFibers: make(map[*Counter][]*fiberState),
		running:       true,
	}
	s.cond = sync.NewCond(&s.mu)

	fibers := gbfiber.CreateFiberThreads(threadCount, pinThreads, 0, nil, func(ctx context.Context, _ any) {
		s.jobMain(ctx)
	})
	if len(fibers) == 0 {
		return nil, fmt.Errorf("gbjob: no worker threads could be created")
	}

	s.mu.Lock()
	s.totalThreadCount = len(fibers)
	s.totalFiberCount = len(fibers)
	s.mu.Unlock()
	return s, nil
}

// GetThreadCount returns the number of worker threads hosting this system.
func (s *System) GetThreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalThreadCount
}

// GetFiberCount returns the total number of fibers ever created to host
// work for this system, including ones retired after a Wait.
func (s *System) GetFiberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalFiberCount
}

// Stats reports a snapshot of queue depth: jobs waiting for a worker, and
// fibers parked in Wait across every Counter.
func (s *System) Stats() (pendingJobs int, waitingFibers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pendingJobs = len(s.pendingJobs)
	for _, fibers := range s.waitingFibers {
		waitingFibers += len(fibers)
	}
	return pendingJobs, waitingFibers
}

// Close stops accepting new work, waits for in-flight jobs and idle
// workers to wind down, and releases every fiber the system created.
func (s *System) Close() {
	s.mu.Lock()
	s.running = false
	s.cond.Broadcast()
	for len(s.unusedFibers) != s.totalFiberCount {
		s.cond.Wait()
	}
	if len(s.pendingJobs) > 0 {
		logger.Warn().Int("count", len(s.pendingJobs)).Msg("gbjob: discarding pending jobs at shutdown")
	}
	unused := s.unusedFibers
	s.unusedFibers = nil
	s.mu.Unlock()

	for _, f := range unused {
		for f.IsRunning() {
			// A short race between a fiber's main returning and its
			// running flag clearing; yield until it settles.
			runtime.Gosched()
		}
		gbfiber.DeleteFiber(f)
	}
}

// RunOption configures a Run call.
type RunOption func(*job)

// WithName attaches a display name to the job, for diagnostics.
func WithName(name string) RunOption {
	return func(j *job) { j.name = name }
}

// WithCounter associates a Counter with the job: it is incremented when
// the job is submitted and decremented when it completes, unblocking any job
// waiting on it once it reaches zero. counter must outlive the job.
func WithCounter(counter *Counter) RunOption {
	return func(j *job) { j.counter = counter }
}

// WithContext seeds the job's own Context, retrievable inside the job via
// GetContext.
func WithContext(jobCtx *gbcontext.Context) RunOption {
	return func(j *job) { j.jobCtx = jobCtx }
}

// Run schedules fn to execute asynchronously on a worker thread. It may be
// called from any goroutine, not only from within another job. It returns
// false if the system is shutting down.
func (s *System) Run(fn JobFunc, opts ...RunOption) bool {
	j := &job{fn: fn, traceID: uuid.NewString()}
	for _, opt := range opts {
		opt(j)
	}
	if j.jobCtx == nil {
		j.jobCtx = gbcontext.New()
	}
	logger.Debug().Str("trace_id", j.traceID).Str("name", j.name).Msg("gbjob: submitting job")

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	if j.counter != nil && !j.counter.increment() {
		s.mu.Unlock()
		logger.Error().Str("trace_id", j.traceID).Msg("gbjob: counter would overflow, refusing submission")
		return false
	}
	if len(s.idleFibers) == 0 {
		s.pendingJobs = append(s.pendingJobs, j)
	} else {
		var state *fiberState
		for st := range s.idleFibers {
			state = st
			break
		}
		delete(s.idleFibers, state)
		state.job = j
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	return true
}

type jobRuntimeKey struct{}

type jobRuntime struct {
	system *System
	state  *fiberState
}

func contextWithJobRuntime(ctx context.Context, rt *jobRuntime) context.Context {
	return context.WithValue(ctx, jobRuntimeKey{}, rt)
}

func runtimeFromContext(ctx context.Context) (*jobRuntime, bool) {
	rt, ok := ctx.Value(jobRuntimeKey{}).(*jobRuntime)
	return rt, ok
}

// Get returns the System running the job associated with ctx, or nil if
// ctx is not running inside a job.
func Get(ctx context.Context) *System {
	rt, ok := runtimeFromContext(ctx)
	if !ok {
		return nil
	}
	return rt.system
}

// GetContext returns the job's own Context, as seeded by WithContext (or
// an empty one if none was given).
func GetContext(ctx context.Context) *gbcontext.Context {
	rt, ok := runtimeFromContext(ctx)
	if !ok {
		panic("gbjob: GetContext called outside a job")
	}
	return rt.state.job.jobCtx
}

// Wait blocks the calling job until counter reaches zero, without tying up
// the worker thread: the thread is handed to a freshly created fiber that
// continues servicing the job queue while this job is parked. It panics if
// called outside a job.
func Wait(ctx context.Context, counter *Counter) {
	rt, ok := runtimeFromContext(ctx)
	if !ok {
		panic("gbjob: Wait called outside a job")
	}
	system := rt.system
	state := rt.state

	system.mu.Lock()
	if counter == nil || counter.Get() == 0 {
		system.mu.Unlock()
		return
	}
	delete(system.runningFibers, state)
	system.waitingFibers[counter] = append(system.waitingFibers[counter], state)
	system.totalFiberCount++
	system.mu.Unlock()

	replacement := gbfiber.CreateFiber(0, nil, func(ctx2 context.Context, _ any) {
		system.jobMain(ctx2)
	})
	if replacement == nil {
		panic("gbjob: failed to create replacement fiber for Wait")
	}
	if !gbfiber.SwitchToFiber(ctx, replacement) {
		panic("gbjob: failed to switch to replacement fiber for Wait")
	}
}

// AllocDataHandle reserves a per-job data slot of type T, constructed with
// new(T) the first time a job requests it. It returns InvalidJobDataHandle
// once MaxJobDataHandles have been allocated.
func AllocDataHandle[T any](s *System) JobDataHandle {
	return AllocDataHandleFunc(s, func() *T { var zero T; return &zero })
}

// AllocDataHandleFunc is AllocDataHandle with an explicit constructor,
// invoked within the requesting job's context the first time the data is
// accessed.
func AllocDataHandleFunc[T any](s *System, create func() *T) JobDataHandle {
	s.jobDataMu.Lock()
	defer s.jobDataMu.Unlock()
	if len(s.jobDataTypes) >= MaxJobDataHandles {
		return InvalidJobDataHandle
	}
	s.jobDataTypes = append(s.jobDataTypes, jobDataType{alloc: func() any { return create() }})
	return JobDataHandle(len(s.jobDataTypes))
}

// GetData returns the job-local data for handle, allocating it on first
// use. handle must come from a previous AllocDataHandle[T]/AllocDataHandleFunc[T]
// call for the same T.
func GetData[T any](ctx context.Context, handle JobDataHandle) *T {
	rt, ok := runtimeFromContext(ctx)
	if !ok {
		panic("gbjob: GetData called outside a job")
	}
	if handle == InvalidJobDataHandle {
		panic("gbjob: invalid job data handle")
	}
	idx := int(handle) - 1
	j := rt.state.job
	if len(j.data) <= idx {
		grown := make([]any, handle)
		copy(grown, j.data)
		j.data = grown
	}
	if j.data[idx] != nil {
		return j.data[idx].(*T)
	}
	rt.system.jobDataMu.RLock()
	alloc := rt.system.jobDataTypes[idx].alloc
	rt.system.jobDataMu.RUnlock()
	v := alloc()
	j.data[idx] = v
	return v.(*T)
}

// jobMain is the body every worker thread (and every fiber created to
// replace one parked in Wait) runs: it pulls pending fiber handoffs and
// pending jobs until told to stop, idling when there is nothing to do.
func (s *System) jobMain(ctx context.Context) {
	fiber := gbfiber.GetThisFiber(ctx)

	s.mu.Lock()
	for s.running {
		if len(s.pendingFibers) > 0 {
			s.unusedFibers = append(s.unusedFibers, fiber)
			s.cond.Broadcast()

			state := s.pendingFibers[0]
			s.pendingFibers = s.pendingFibers[1:]
			s.runningFibers[state] = struct{}{}

			s.mu.Unlock()
			gbfiber.SwitchToFiber(ctx, state.fiber)
			// Control only returns here if the switch failed; retry.
			s.mu.Lock()
			continue
		}

		var state *fiberState
		if len(s.pendingJobs) > 0 {
			j := s.pendingJobs[0]
			s.pendingJobs = s.pendingJobs[1:]
			state = &fiberState{fiber: fiber, job: j}
		} else {
			state = &fiberState{fiber: fiber}
			s.idleFibers[state] = struct{}{}
			for state.job == nil && s.running {
				s.cond.Wait()
			}
			if !s.running {
				delete(s.idleFibers, state)
				break
			}
		}

		s.runningFibers[state] = struct{}{}
		j := state.job
		s.mu.Unlock()

		jobCtx := contextWithJobRuntime(ctx, &jobRuntime{system: s, state: state})
		j.fn(jobCtx)
		logger.Debug().Str("trace_id", j.traceID).Str("name", j.name).Msg("gbjob: job completed")

		s.mu.Lock()
		delete(s.runningFibers, state)
		if j.counter != nil && j.counter.decrement() == 0 {
			waiters := s.waitingFibers[j.counter]
			delete(s.waitingFibers, j.counter)
			s.pendingFibers = append(s.pendingFibers, waiters...)
		}
	}
	s.unusedFibers = append(s.unusedFibers, fiber)
	s.cond.Broadcast()
	s.mu.Unlock()
}

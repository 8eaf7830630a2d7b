package taskrunner

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// TaskExecutor runs a dispatched task while it holds a limiter slot.
type TaskExecutor func(handle *Handle) Outcome

// Limiter dispatches submitted tasks in submission order while keeping at most
// capacity task bodies running. Queued tasks observed after the gate closes
// resolve as skipped without running.
type Limiter struct {
	capacity       int
	slots          *semaphore.Weighted
	gate           *CancellationGate
	executor       TaskExecutor
	mutex          sync.Mutex
	wake           *sync.Cond
	pending        []*Handle
	closed         bool
	active         atomic.Int64
	running        sync.WaitGroup
	dispatcherDone chan struct{}
}

// NewLimiter constructs a limiter and starts its dispatcher.
func NewLimiter(capacity int, gate *CancellationGate, executor TaskExecutor) (*Limiter, error) {
	if capacity < 1 {
		return nil, ErrInvalidConcurrency
	}
	if gate == nil {
		gate = NewCancellationGate()
	}
	limiter := &Limiter{
		capacity:       capacity,
		slots:          semaphore.NewWeighted(int64(capacity)),
		gate:           gate,
		executor:       executor,
		dispatcherDone: make(chan struct{}),
	}
	limiter.wake = sync.NewCond(&limiter.mutex)
	go limiter.dispatch()
	return limiter, nil
}

// Submit queues a task and returns its handle without waiting for a slot.
func (limiter *Limiter) Submit(task TaskDescriptor) (*Handle, error) {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	if limiter.closed {
		return nil, ErrLimiterClosed
	}
	handle := newHandle(task)
	limiter.pending = append(limiter.pending, handle)
	limiter.wake.Signal()
	return handle, nil
}

// Close stops accepting submissions. Tasks already queued are still dispatched
// or skipped.
func (limiter *Limiter) Close() {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	limiter.closed = true
	limiter.wake.Broadcast()
}

// Wait blocks until the limiter is closed, its queue is drained, and every
// dispatched task has finished.
func (limiter *Limiter) Wait() {
	<-limiter.dispatcherDone
	limiter.running.Wait()
}

// Active returns the number of task bodies currently holding a slot.
func (limiter *Limiter) Active() int {
	return int(limiter.active.Load())
}

// Pending returns the number of queued tasks not yet dispatched.
func (limiter *Limiter) Pending() int {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return len(limiter.pending)
}

// Capacity returns the configured concurrency limit.
func (limiter *Limiter) Capacity() int {
	return limiter.capacity
}

func (limiter *Limiter) dispatch() {
	defer close(limiter.dispatcherDone)
	for {
		handle, available := limiter.next()
		if !available {
			return
		}

		if limiter.gate.Cancelled() {
			handle.resolve(Outcome{Kind: OutcomeSkipped})
			continue
		}

		// Acquire fails only when the gate closes while waiting for a slot.
		if acquireError := limiter.slots.Acquire(limiter.gate.context, 1); acquireError != nil {
			handle.resolve(Outcome{Kind: OutcomeSkipped})
			continue
		}
		if limiter.gate.Cancelled() {
			limiter.slots.Release(1)
			handle.resolve(Outcome{Kind: OutcomeSkipped})
			continue
		}

		limiter.active.Add(1)
		limiter.running.Add(1)
		go limiter.run(handle)
	}
}

func (limiter *Limiter) run(handle *Handle) {
	defer limiter.running.Done()
	outcome := limiter.executor(handle)
	limiter.active.Add(-1)
	limiter.slots.Release(1)
	handle.resolve(outcome)
}

func (limiter *Limiter) next() (*Handle, bool) {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	for len(limiter.pending) == 0 && !limiter.closed {
		limiter.wake.Wait()
	}
	if len(limiter.pending) == 0 {
		return nil, false
	}
	handle := limiter.pending[0]
	limiter.pending[0] = nil
	limiter.pending = limiter.pending[1:]
	return handle, true
}

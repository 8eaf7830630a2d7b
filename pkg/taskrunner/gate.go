package taskrunner

import (
	"context"
	"sync"
)

// CancellationGate is a one-way switch that stops queued tasks from starting.
// Tasks that already started are never interrupted by the gate.
type CancellationGate struct {
	once    sync.Once
	context context.Context
	cancel  context.CancelFunc
}

// NewCancellationGate constructs an open gate.
func NewCancellationGate() *CancellationGate {
	gateContext, cancel := context.WithCancel(context.Background())
	return &CancellationGate{context: gateContext, cancel: cancel}
}

// SignalCancel closes the gate. It reports whether this call performed the
// transition; repeated calls are no-ops.
func (gate *CancellationGate) SignalCancel() bool {
	transitioned := false
	gate.once.Do(func() {
		transitioned = true
		gate.cancel()
	})
	return transitioned
}

// Cancelled reports whether the gate has been closed.
func (gate *CancellationGate) Cancelled() bool {
	return gate.context.Err() != nil
}

// Done is closed once the gate has been closed.
func (gate *CancellationGate) Done() <-chan struct{} {
	return gate.context.Done()
}

package taskrunner

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCancellationGateSignalsOnce(t *testing.T) {
	gate := NewCancellationGate()
	require.False(t, gate.Cancelled())

	require.True(t, gate.SignalCancel())
	require.False(t, gate.SignalCancel())
	require.True(t, gate.Cancelled())

	select {
	case <-gate.Done():
	default:
		t.Fatal("gate done channel not closed")
	}
}

func TestCancellationGateConcurrentSignals(t *testing.T) {
	gate := NewCancellationGate()
	var transitions sync.WaitGroup
	var mutex sync.Mutex
	transitionCount := 0

	for range 16 {
		transitions.Add(1)
		go func() {
			defer transitions.Done()
			if gate.SignalCancel() {
				mutex.Lock()
				transitionCount++
				mutex.Unlock()
			}
		}()
	}
	transitions.Wait()

	require.Equal(t, 1, transitionCount)
	require.True(t, gate.Cancelled())
}

func TestOutcomeKindString(t *testing.T) {
	require.Equal(t, "succeeded", OutcomeSucceeded.String())
	require.Equal(t, "failed", OutcomeFailed.String())
	require.Equal(t, "skipped", OutcomeSkipped.String())
}

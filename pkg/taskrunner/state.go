package taskrunner

import "sync"

// Snapshot is a consistent view of the batch counters at one instant.
// Sequence increases with every counter transition.
type Snapshot struct {
	Sequence  uint64 `json:"sequence" yaml:"sequence"`
	Completed int    `json:"completed" yaml:"completed"`
	Total     int    `json:"total" yaml:"total"`
	Succeeded int    `json:"succeeded" yaml:"succeeded"`
	Failed    int    `json:"failed" yaml:"failed"`
	InFlight  int    `json:"in_flight" yaml:"in_flight"`
}

// Supersedes reports whether snapshot is at least as recent as previous.
// Sinks that keep only the latest snapshot use it to discard ones delivered
// out of order.
func (snapshot Snapshot) Supersedes(previous Snapshot) bool {
	return snapshot.Sequence >= previous.Sequence
}

// Fraction returns the completed share of the batch in the range [0, 1].
func (snapshot Snapshot) Fraction() float64 {
	if snapshot.Total <= 0 {
		return 1
	}
	return float64(snapshot.Completed) / float64(snapshot.Total)
}

// RunState holds the counters for a single batch. Every transition happens in
// one critical section so snapshots always satisfy
// succeeded+failed+inFlight <= total.
type RunState struct {
	mutex     sync.Mutex
	total     int
	succeeded int
	failed    int
	inFlight  int
	sequence  uint64
}

func newRunState(total int) *RunState {
	return &RunState{total: total}
}

func (state *RunState) taskStarted() Snapshot {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.inFlight++
	state.sequence++
	return state.snapshotLocked()
}

func (state *RunState) taskFinished(kind OutcomeKind) Snapshot {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.inFlight--
	switch kind {
	case OutcomeSucceeded:
		state.succeeded++
	case OutcomeFailed:
		state.failed++
	}
	state.sequence++
	return state.snapshotLocked()
}

// Snapshot returns the current counters.
func (state *RunState) Snapshot() Snapshot {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	return state.snapshotLocked()
}

func (state *RunState) snapshotLocked() Snapshot {
	return Snapshot{
		Sequence:  state.sequence,
		Completed: state.succeeded + state.failed,
		Total:     state.total,
		Succeeded: state.succeeded,
		Failed:    state.failed,
		InFlight:  state.inFlight,
	}
}

package probez

import (
	"sync"
	"sync/atomic"
)

type instanceState uint32

const (
	stateUnconfigured instanceState = iota
	stateConfiguring
	stateConfigured
	stateStarted
	stateStopping
	stateStopped
	stateDestroyed
)

var instanceStateNames = [...]string{
	stateUnconfigured: "unconfigured",
	stateConfiguring:  "configuring",
	stateConfigured:   "configured",
	stateStarted:      "started",
	stateStopping:     "stopping",
	stateStopped:      "stopped",
	stateDestroyed:    "destroyed",
}

func (s instanceState) String() string {
	if int(s) < len(instanceStateNames) {
		return instanceStateNames[s]
	}
	return "unknown"
}

// instance is one slot of a data source. Fields other than the atomics are
// written by the controller while the slot is not started and read by
// writers only after they observed stateStarted.
//
//nolint:govet // Field order optimized for functionality over memory
type instance struct {
	state atomic.Uint32
	refs  atomic.Int64

	// generation changes every time the slot is configured, so per-thread
	// state of an earlier occupant is recognised as stale.
	generation     atomic.Uint64
	incrGeneration atomic.Uint64

	config    []byte
	userState any
	session   *Session

	drainMu sync.Mutex
	drained *sync.Cond
}

func (i *instance) init() {
	i.drained = sync.NewCond(&i.drainMu)
}

func (i *instance) loadState() instanceState {
	return instanceState(i.state.Load())
}

// acquire pins the instance for one emission. It reports false, with the pin
// already dropped, when the instance is not started.
func (i *instance) acquire() bool {
	i.refs.Add(1)
	if i.loadState() != stateStarted {
		i.release()
		return false
	}
	return true
}

func (i *instance) release() {
	if i.refs.Add(-1) != 0 {
		return
	}
	if i.loadState() == stateStarted {
		return
	}
	i.drainMu.Lock()
	i.drained.Broadcast()
	i.drainMu.Unlock()
}

// waitDrained blocks until no writer holds the instance. The state must
// already be past stateStarted so no new holder can stay.
func (i *instance) waitDrained() {
	i.drainMu.Lock()
	for i.refs.Load() != 0 {
		i.drained.Wait()
	}
	i.drainMu.Unlock()
}

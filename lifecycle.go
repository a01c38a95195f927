package probez

import (
	"fmt"
)

// setupInstance claims a free slot for s and runs OnSetup. On failure the
// slot is released again without OnDestroy.
func (ds *DataSource) setupInstance(s *Session, config []byte) (InstanceIndex, error) {
	ds.mu.Lock()
	if ds.params.SingleInstance && ds.active > 0 {
		ds.mu.Unlock()
		return 0, fmt.Errorf("%w: %q supports a single instance", ErrNoFreeInstance, ds.name)
	}
	slot := -1
	for i := range ds.instances {
		if ds.instances[i].loadState() == stateUnconfigured {
			slot = i
			break
		}
	}
	if slot < 0 {
		ds.mu.Unlock()
		return 0, fmt.Errorf("%w: %q has %d active instances", ErrNoFreeInstance, ds.name, MaxInstances)
	}
	idx := InstanceIndex(slot) //nolint:gosec // slot < MaxInstances
	inst := &ds.instances[idx]
	inst.state.Store(uint32(stateConfiguring))
	inst.generation.Add(1)
	inst.session = s
	inst.config = config
	ds.active++
	ds.mu.Unlock()

	state, err := ds.handler.OnSetup(idx, config)
	if err != nil {
		ds.freeSlot(idx)
		return 0, fmt.Errorf("setup %q instance %d: %w", ds.name, idx, err)
	}
	inst.userState = state
	inst.state.Store(uint32(stateConfigured))
	return idx, nil
}

// startInstance runs OnStart and then makes the instance visible to writers.
func (ds *DataSource) startInstance(idx InstanceIndex) {
	inst := &ds.instances[idx]
	if inst.loadState() != stateConfigured {
		return
	}
	ds.handler.OnStart(idx, inst.userState)
	inst.state.Store(uint32(stateStarted))
	ds.enabled.Or(instanceBit(idx))
}

// stopInstance hides the instance from writers, runs OnStop and waits for a
// postponed stop to complete.
func (ds *DataSource) stopInstance(idx InstanceIndex) {
	inst := &ds.instances[idx]
	switch inst.loadState() {
	case stateStarted:
	case stateConfigured:
		// Never started: skip OnStop.
		inst.state.Store(uint32(stateStopped))
		return
	default:
		return
	}

	inst.state.Store(uint32(stateStopping))
	ds.enabled.And(^instanceBit(idx))
	ds.producer.epoch.Add(1)

	args := &StopArgs{}
	ds.handler.OnStop(idx, inst.userState, args)
	if stopper := args.postponed(); stopper != nil {
		<-stopper.done
	}
	inst.state.Store(uint32(stateStopped))
}

// destroyInstance waits until no writer holds the instance, runs OnDestroy
// and frees the slot.
func (ds *DataSource) destroyInstance(idx InstanceIndex) {
	inst := &ds.instances[idx]
	if inst.loadState() != stateStopped {
		return
	}
	inst.waitDrained()
	ds.handler.OnDestroy(inst.userState)
	inst.state.Store(uint32(stateDestroyed))
	ds.freeSlot(idx)
}

func (ds *DataSource) freeSlot(idx InstanceIndex) {
	inst := &ds.instances[idx]
	ds.mu.Lock()
	inst.userState = nil
	inst.config = nil
	inst.session = nil
	inst.state.Store(uint32(stateUnconfigured))
	ds.active--
	ds.mu.Unlock()
	ds.producer.epoch.Add(1)
}

// flushInstance runs OnFlush. done is called once the flush completed,
// immediately unless the handler postponed it. The instance stays pinned
// while OnFlush runs, so a concurrent stop destroys it only afterwards.
func (ds *DataSource) flushInstance(idx InstanceIndex, done func()) {
	inst := &ds.instances[idx]
	if !inst.acquire() {
		done()
		return
	}
	args := &FlushArgs{done: done}
	ds.handler.OnFlush(idx, inst.userState, args)
	inst.release()
	if args.postponed() == nil {
		done()
	}
}

// clearIncrementalState makes every thread recreate its incremental state
// for the instance on its next emission.
func (ds *DataSource) clearIncrementalState(idx InstanceIndex) {
	ds.instances[idx].incrGeneration.Add(1)
}

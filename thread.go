package probez

import (
	"sync/atomic"
)

// reapEvery is the number of implicit thread creations between scans for
// implicit threads whose goroutine has exited.
const reapEvery = 256

// Thread is the unit of per-thread trace state. It must only be used by one
// goroutine at a time.
//
//nolint:govet // Field order optimized for functionality over memory
type Thread struct {
	producer *Producer
	tid      uint64
	implicit bool
	states   map[stateKey]*threadState
	epoch    uint64
	depth    int
	closed   bool

	// active is non-zero while an emission runs on the thread. The reaper
	// reads it to synchronise with the last emission of an exited goroutine.
	active atomic.Int32
}

type stateKey struct {
	ds  *DataSource
	idx InstanceIndex
}

// threadState is the state of one (thread, instance) trace sequence.
//
//nolint:govet // Field order optimized for functionality over memory
type threadState struct {
	ds             *DataSource
	idx            InstanceIndex
	generation     uint64
	incrGeneration uint64
	tls            any
	tlsSet         bool
	incr           any
	incrSet        bool
	intern         *InternIndex
	writer         traceWriter
}

// NewThread creates an explicit thread. Close it when done to release the
// per-thread state of every data source it traced.
func (p *Producer) NewThread() *Thread {
	return p.newThread(p.nextTID.Add(1), false)
}

func (p *Producer) newThread(tid uint64, implicit bool) *Thread {
	return &Thread{
		producer: p,
		tid:      tid,
		implicit: implicit,
		states:   make(map[stateKey]*threadState),
		epoch:    p.epoch.Load(),
	}
}

// TID returns the thread id written into thread track descriptors. Implicit
// threads use their goroutine id.
func (th *Thread) TID() uint64 {
	return th.tid
}

// Close deletes all per-thread state. The thread must not be used afterwards.
func (th *Thread) Close() {
	if th.closed {
		return
	}
	th.closed = true
	for key, ts := range th.states {
		th.deleteState(key, ts)
	}
}

// currentThread returns the implicit thread of the calling goroutine.
func (p *Producer) currentThread() *Thread {
	gid := goid()
	if v, ok := p.implicit.Load(gid); ok {
		return v.(*Thread) //nolint:errcheck // only *Thread is stored
	}
	th := p.newThread(gid, true)
	p.implicit.Store(gid, th)
	if p.implicitCount.Add(1)%reapEvery == 0 {
		go p.reapImplicitThreads()
	}
	return th
}

// reapImplicitThreads releases the implicit threads of exited goroutines.
// Candidates are collected before the goroutine dump so a thread created
// after the dump is never mistaken for a dead one.
func (p *Producer) reapImplicitThreads() int {
	if !p.reaping.CompareAndSwap(false, true) {
		return 0
	}
	defer p.reaping.Store(false)

	var candidates []uint64
	p.implicit.Range(func(k, _ any) bool {
		candidates = append(candidates, k.(uint64)) //nolint:errcheck // only uint64 keys
		return true
	})
	live := liveGoroutines()

	reaped := 0
	for _, gid := range candidates {
		if _, ok := live[gid]; ok {
			continue
		}
		v, ok := p.implicit.Load(gid)
		if !ok {
			continue
		}
		th := v.(*Thread) //nolint:errcheck // only *Thread is stored
		// A thread still inside an emission stays for the next pass.
		if th.active.Load() != 0 || !p.implicit.CompareAndDelete(gid, th) {
			continue
		}
		th.Close()
		reaped++
	}
	if reaped > 0 {
		p.log.Debug("reaped implicit threads", "count", reaped)
	}
	return reaped
}

// housekeep deletes state of instances that stopped or were replaced since
// the thread last looked. It only runs at the outermost emission so state in
// use further up the stack is never deleted.
func (th *Thread) housekeep() {
	if th.depth > 0 {
		return
	}
	epoch := th.producer.epoch.Load()
	if epoch == th.epoch {
		return
	}
	th.epoch = epoch
	for key, ts := range th.states {
		inst := &key.ds.instances[key.idx]
		if inst.loadState() != stateStarted || inst.generation.Load() != ts.generation {
			th.deleteState(key, ts)
		}
	}
}

// stateFor returns the state of the sequence for an acquired instance,
// replacing stale state and rolling the incremental state if it was cleared.
func (th *Thread) stateFor(ds *DataSource, idx InstanceIndex, inst *instance) *threadState {
	key := stateKey{ds: ds, idx: idx}
	gen := inst.generation.Load()
	ts := th.states[key]
	if ts != nil && ts.generation != gen {
		th.deleteState(key, ts)
		ts = nil
	}
	if ts == nil {
		ts = &threadState{
			ds:             ds,
			idx:            idx,
			generation:     gen,
			incrGeneration: inst.incrGeneration.Load(),
			intern:         NewInternIndex(),
		}
		ts.writer.init(th.producer.nextSequence.Add(1), inst.session.buffer)
		th.states[key] = ts
	}
	if ig := inst.incrGeneration.Load(); ig != ts.incrGeneration {
		ts.incrGeneration = ig
		ts.resetIncremental()
	}
	return ts
}

func (th *Thread) deleteState(key stateKey, ts *threadState) {
	delete(th.states, key)
	if ts.tlsSet && ts.ds.tls != nil {
		ts.ds.tls.OnDeleteTLS(ts.tls)
	}
	if ts.incrSet && ts.ds.incr != nil {
		ts.ds.incr.OnDeleteIncr(ts.incr)
	}
	ts.tls, ts.incr = nil, nil
	ts.tlsSet, ts.incrSet = false, false
}

// resetIncremental drops the incremental state and the interning ids. The
// next packet of the sequence tells the reader to forget earlier state.
func (ts *threadState) resetIncremental() {
	if ts.incrSet && ts.ds.incr != nil {
		ts.ds.incr.OnDeleteIncr(ts.incr)
	}
	ts.incr, ts.incrSet = nil, false
	ts.intern.Reset()
	ts.writer.incrementalCleared = true
}

func (ts *threadState) customTLS() any {
	if !ts.tlsSet {
		if ts.ds.tls != nil {
			ts.tls = ts.ds.tls.OnCreateTLS(ts.idx)
		}
		ts.tlsSet = true
	}
	return ts.tls
}

func (ts *threadState) incrementalState() any {
	if !ts.incrSet {
		if ts.ds.incr != nil {
			ts.incr = ts.ds.incr.OnCreateIncr(ts.idx)
		}
		ts.incrSet = true
	}
	return ts.incr
}

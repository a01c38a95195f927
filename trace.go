package probez

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// TraceContext is the emission scope of one instance. It is only valid
// inside the callback it was passed to.
type TraceContext struct {
	th     *Thread
	ds     *DataSource
	idx    InstanceIndex
	inst   *instance
	ts     *threadState
	packet Packet
	broken bool
}

// Trace runs fn once for every started instance, on the implicit thread of
// the calling goroutine. While no instance is started it returns after a
// single atomic load.
func (ds *DataSource) Trace(fn func(tc *TraceContext)) {
	mask := ds.enabled.Load()
	if mask == 0 {
		return
	}
	ds.traceMasked(ds.producer.currentThread(), mask, fn)
}

// TraceOn is Trace on an explicit thread.
func (ds *DataSource) TraceOn(th *Thread, fn func(tc *TraceContext)) {
	mask := ds.enabled.Load()
	if mask == 0 {
		return
	}
	ds.traceMasked(th, mask, fn)
}

func (ds *DataSource) traceMasked(th *Thread, mask uint32, fn func(tc *TraceContext)) {
	if th == nil || th.closed {
		return
	}
	th.active.Add(1)
	defer th.active.Add(-1)
	th.housekeep()
	th.depth++
	defer func() { th.depth-- }()

	activeInstances(mask, func(idx InstanceIndex) bool {
		inst := &ds.instances[idx]
		if !inst.acquire() {
			return true
		}
		tc := &TraceContext{
			th:   th,
			ds:   ds,
			idx:  idx,
			inst: inst,
			ts:   th.stateFor(ds, idx, inst),
		}
		fn(tc)
		tc.packet.End()
		inst.release()
		return !tc.broken
	})
}

// NewPacket starts a new packet, finishing the previous one of this context.
func (tc *TraceContext) NewPacket() *Packet {
	tc.packet.End()
	tc.packet.Reset()
	tc.packet.ts = tc.ts
	tc.packet.flags = 0
	tc.packet.open = true
	return &tc.packet
}

// Break stops the emission after the current instance. Packets already
// written, including this instance's, are kept.
func (tc *TraceContext) Break() {
	tc.broken = true
}

// InstanceIndex returns the slot of the instance being traced.
func (tc *TraceContext) InstanceIndex() InstanceIndex {
	return tc.idx
}

// InstanceState returns the value OnSetup returned for the instance.
func (tc *TraceContext) InstanceState() any {
	return tc.inst.userState
}

// CustomTLS returns the thread's TLSHandler value for the instance, creating
// it on first use.
func (tc *TraceContext) CustomTLS() any {
	return tc.ts.customTLS()
}

// IncrementalState returns the thread's IncrementalStateHandler value for the
// instance, creating it on first use after every clear.
func (tc *TraceContext) IncrementalState() any {
	return tc.ts.incrementalState()
}

// InternString interns value in table and returns its id. The definition is
// written with the next packet ended on this sequence.
func (tc *TraceContext) InternString(table uint32, value string) uint64 {
	iid, _ := tc.ts.intern.Intern(table, value)
	return iid
}

// Intern exposes the sequence's intern index.
func (tc *TraceContext) Intern() *InternIndex {
	return tc.ts.intern
}

// Thread returns the thread the emission runs on.
func (tc *TraceContext) Thread() *Thread {
	return tc.th
}

// Timestamp returns the producer clock in nanoseconds.
func (tc *TraceContext) Timestamp() uint64 {
	return tc.ds.producer.now()
}

// Flush commits the current packet and calls done on another goroutine once
// the session holds everything written so far. done may be nil.
func (tc *TraceContext) Flush(done func()) {
	tc.packet.End()
	if done != nil {
		go done()
	}
}

func protowireNumber(table uint32) protowire.Number {
	return protowire.Number(table) //nolint:gosec // table numbers are small field numbers
}

package probez

import (
	"github.com/zoobzio/probez/pbz"
	"github.com/zoobzio/probez/protos"
)

// traceWriter serializes the packets of one trace sequence into a session
// buffer.
type traceWriter struct {
	sequenceID uint32
	buffer     *traceBuffer
	started    bool

	// incrementalCleared marks the next packet as the first one after the
	// reader must drop interned data and other incremental state.
	incrementalCleared bool

	// previousDropped marks the next packet as following lost data.
	previousDropped bool
}

func (w *traceWriter) init(sequenceID uint32, buf *traceBuffer) {
	w.sequenceID = sequenceID
	w.buffer = buf
	w.incrementalCleared = true
}

// Packet is one TracePacket under construction. Fields are appended with the
// embedded pbz.Message; the writer adds the sequence fields and pending
// interned data on End.
type Packet struct {
	pbz.Message
	ts    *threadState
	flags uint64
	open  bool
}

// SetSequenceFlags ORs TracePacket.sequence_flags bits into the packet.
func (p *Packet) SetSequenceFlags(flags uint64) {
	p.flags |= flags
}

// End finishes the packet and commits it to the session buffer. Calling End
// on a finished packet does nothing.
func (p *Packet) End() {
	if !p.open {
		return
	}
	p.open = false
	ts := p.ts
	w := &ts.writer

	if defs := ts.intern.takePending(); len(defs) > 0 {
		writeInternedData(&p.Message, defs)
	}

	p.AppendVarint(protos.TracePacketTrustedPacketSequenceID, uint64(w.sequenceID))
	if !w.started {
		p.AppendBool(protos.TracePacketFirstPacketOnSequence, true)
		w.started = true
	}
	if w.previousDropped {
		p.AppendBool(protos.TracePacketPreviousPacketDropped, true)
		w.previousDropped = false
	}
	flags := p.flags
	if w.incrementalCleared {
		flags |= protos.SeqIncrementalStateCleared
		w.incrementalCleared = false
	}
	if flags != protos.SeqUnspecified {
		p.AppendVarint(protos.TracePacketSequenceFlags, flags)
	}

	if lost := w.buffer.commit(w.sequenceID, p.Bytes()); lost {
		// Interned definitions may be gone with the lost data.
		w.previousDropped = true
		ts.resetIncremental()
	}
}

// writeInternedData groups definitions into one InternedData message. Table
// numbers are InternedData field numbers.
func writeInternedData(m *pbz.Message, defs []InternedEntry) {
	m.BeginNested(protos.TracePacketInternedData)
	for _, d := range defs {
		m.BeginNested(protowireNumber(d.Table))
		m.AppendVarint(protos.InternedIID, d.IID)
		m.AppendString(protos.InternedName, d.Value)
		m.EndNested()
	}
	m.EndNested()
}

package probez

import (
	"sync"
	"sync/atomic"

	"github.com/zoobzio/probez/pbz"
	"github.com/zoobzio/probez/protos"
)

// FillPolicy decides what a bounded buffer does when it is full.
type FillPolicy uint32

const (
	// FillRingBuffer evicts the oldest packets to make room.
	FillRingBuffer FillPolicy = FillPolicy(protos.FillPolicyRingBuffer)
	// FillDiscard rejects packets once the buffer is full.
	FillDiscard FillPolicy = FillPolicy(protos.FillPolicyDiscard)
)

// String returns the config file spelling of the policy.
func (f FillPolicy) String() string {
	switch f {
	case FillDiscard:
		return "discard"
	default:
		return "ring_buffer"
	}
}

type bufferedPacket struct {
	sequenceID uint32
	data       []byte
}

// traceBuffer holds the committed packets of a session.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type traceBuffer struct {
	packets []bufferedPacket
	head    int // index of the oldest packet still held
	size    int // bytes held
	limit   int // 0 is unlimited
	policy  FillPolicy

	// lost records sequences that lost data since their last commit.
	lost map[uint32]struct{}

	droppedCount atomic.Int64
	mu           sync.Mutex
	closed       atomic.Bool
}

func newTraceBuffer(limitBytes int, policy FillPolicy) *traceBuffer {
	if policy != FillDiscard {
		policy = FillRingBuffer
	}
	return &traceBuffer{
		packets: make([]bufferedPacket, 0, 32),
		limit:   limitBytes,
		policy:  policy,
		lost:    make(map[uint32]struct{}),
	}
}

// commit copies data into the buffer. It reports whether the sequence lost
// data, either this packet or earlier ones evicted since its last commit.
func (b *traceBuffer) commit(sequenceID uint32, data []byte) (lost bool) {
	if b.closed.Load() {
		b.droppedCount.Add(1)
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.lost[sequenceID]; ok {
		delete(b.lost, sequenceID)
		lost = true
	}

	if b.limit > 0 && b.size+len(data) > b.limit {
		if b.policy == FillDiscard || len(data) > b.limit {
			b.droppedCount.Add(1)
			return true
		}
		for b.size+len(data) > b.limit {
			b.evictOldestUnsafe()
		}
		if _, ok := b.lost[sequenceID]; ok {
			delete(b.lost, sequenceID)
			lost = true
		}
	}

	// Create a copy to prevent modifications after commit.
	cp := make([]byte, len(data))
	copy(cp, data)
	b.packets = append(b.packets, bufferedPacket{sequenceID: sequenceID, data: cp})
	b.size += len(cp)
	return lost
}

// evictOldestUnsafe drops the oldest held packet. Caller holds mu.
func (b *traceBuffer) evictOldestUnsafe() {
	old := b.packets[b.head]
	b.packets[b.head] = bufferedPacket{}
	b.head++
	b.size -= len(old.data)
	if old.sequenceID != 0 {
		b.lost[old.sequenceID] = struct{}{}
	}
	b.droppedCount.Add(1)

	// Compact once the evicted prefix dominates the slice.
	if b.head > 32 && b.head > len(b.packets)/2 {
		n := copy(b.packets, b.packets[b.head:])
		clear(b.packets[n:])
		b.packets = b.packets[:n]
		b.head = 0
	}
}

// appendService adds a packet written by the session itself, such as a
// trigger record. It bypasses the fill policy.
func (b *traceBuffer) appendService(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.packets = append(b.packets, bufferedPacket{data: data})
	b.size += len(data)
}

// read returns the held packets as a serialized Trace and empties the buffer.
func (b *traceBuffer) read() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	held := b.packets[b.head:]
	if len(held) == 0 {
		return nil
	}
	m := pbz.NewMessage(b.size + len(held)*(1+pbz.SizePrefixLen))
	for _, p := range held {
		m.AppendBytes(protos.TracePacket, p.data)
	}
	out := m.Bytes()

	// Conservative shrinking to avoid allocation churn.
	if cap(b.packets) > 256 && len(held) < cap(b.packets)/8 {
		b.packets = make([]bufferedPacket, 0, cap(b.packets)/4)
	} else {
		clear(b.packets)
		b.packets = b.packets[:0]
	}
	b.head = 0
	b.size = 0
	return out
}

// discard empties the buffer without reading it.
func (b *traceBuffer) discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.packets)
	b.packets = b.packets[:0]
	b.head = 0
	b.size = 0
}

// count returns the number of held packets.
func (b *traceBuffer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.packets) - b.head
}

// dropped returns the number of packets rejected or evicted.
func (b *traceBuffer) dropped() int64 {
	return b.droppedCount.Load()
}

// close makes every later commit a drop.
func (b *traceBuffer) close() {
	b.closed.Store(true)
}

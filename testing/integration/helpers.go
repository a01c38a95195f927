package integration

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/probez"
	"github.com/zoobzio/probez/tracedb"
)

// Capture is a started session plus the decoding needed to assert on what
// it recorded.
type Capture struct {
	t       *testing.T
	Session *probez.Session
}

// StartCapture starts a session recording the track event data source with
// the given category filters.
func StartCapture(t *testing.T, p *probez.Producer, filters ...probez.CategoryFilter) *Capture {
	t.Helper()
	s, err := p.StartSession(probez.SessionConfig{DataSources: []probez.DataSourceConfig{
		{Name: probez.TrackEventDataSourceName, Categories: filters},
	}})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return &Capture{t: t, Session: s}
}

// Stop stops the session and returns its decoded packets and tracks.
func (c *Capture) Stop() Trace {
	c.t.Helper()
	if err := c.Session.StopBlocking(); err != nil {
		c.t.Fatalf("stop session: %v", err)
	}
	raw := c.Session.ReadBlocking()
	packets, tracks, err := tracedb.NewDecoder().Decode(raw)
	if err != nil {
		c.t.Fatalf("decode trace: %v", err)
	}
	return Trace{Raw: raw, Packets: packets, Tracks: tracks}
}

// Trace is a decoded session trace.
type Trace struct {
	Raw     []byte
	Packets []tracedb.Packet
	Tracks  []tracedb.Track
}

// Events returns the track events, optionally only those named name. Slice
// ends carry no name and only match "".
func (tr Trace) Events(name string) []tracedb.Packet {
	var out []tracedb.Packet
	for _, p := range tr.Packets {
		if p.Kind != tracedb.KindTrackEvent {
			continue
		}
		if name != "" && p.Name != name {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Sequences groups track events by sequence id, preserving order.
func (tr Trace) Sequences() map[uint32][]tracedb.Packet {
	out := make(map[uint32][]tracedb.Packet)
	for _, p := range tr.Events("") {
		out[p.SequenceID] = append(out[p.SequenceID], p)
	}
	return out
}

// Track returns the descriptor of the track with uuid.
func (tr Trace) Track(uuid uint64) (tracedb.Track, bool) {
	for _, t := range tr.Tracks {
		if t.UUID == uuid {
			return t, true
		}
	}
	return tracedb.Track{}, false
}

// Arg returns the value of the named debug annotation on p.
func Arg(p tracedb.Packet, name string) (string, bool) {
	for _, a := range p.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// MockService simulates a downstream dependency that records every call as
// a slice on its own category.
type MockService struct {
	te           *probez.TrackEvent
	cat          *probez.Category
	name         string
	latency      time.Duration
	mu           sync.Mutex
	requestCount int
	failureRate  float32
}

// NewMockService registers a category named after the service.
func NewMockService(name string, te *probez.TrackEvent) *MockService {
	cat := probez.NewCategory("svc."+name, "service")
	te.RegisterCategories(cat)
	return &MockService{
		te:      te,
		cat:     cat,
		name:    name,
		latency: time.Millisecond,
	}
}

// SetLatency configures response time.
func (m *MockService) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// SetFailureRate configures error probability (0.0-1.0).
func (m *MockService) SetFailureRate(rate float32) {
	m.mu.Lock()
	m.failureRate = rate
	m.mu.Unlock()
}

// Call simulates a call, tracing it as a slice with request arguments.
func (m *MockService) Call(operation string) error {
	m.mu.Lock()
	m.requestCount++
	count := m.requestCount
	latency := m.latency
	shouldFail := rand.Float32() < m.failureRate //nolint:gosec // test noise
	m.mu.Unlock()

	m.te.Emit(m.cat, probez.SliceBegin(m.name+"."+operation),
		probez.ArgString("service", m.name),
		probez.ArgInt64("request_id", int64(count)),
	)
	time.Sleep(latency)

	if shouldFail {
		m.te.Emit(m.cat, probez.SliceEnd(), probez.ArgBool("error", true))
		return fmt.Errorf("%s: simulated failure", m.name)
	}
	m.te.Emit(m.cat, probez.SliceEnd())
	return nil
}

// Requests returns how many calls were made.
func (m *MockService) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

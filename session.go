package probez

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

type sessionState int

const (
	sessionNew sessionState = iota
	sessionConfigured
	sessionArmed // waiting for a start trigger
	sessionStarted
	sessionStopping
	sessionStopped
)

var sessionStateNames = [...]string{
	sessionNew:        "new",
	sessionConfigured: "configured",
	sessionArmed:      "armed",
	sessionStarted:    "started",
	sessionStopping:   "stopping",
	sessionStopped:    "stopped",
}

func (s sessionState) String() string {
	if int(s) < len(sessionStateNames) {
		return sessionStateNames[s]
	}
	return "unknown"
}

type instanceRef struct {
	ds  *DataSource
	idx InstanceIndex
}

// Session is an in-process tracing session. It enables data source
// instances according to its config and collects their packets in its own
// buffer. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Session struct {
	producer  *Producer
	id        string
	config    SessionConfig
	buffer    *traceBuffer
	instances []instanceRef
	setupErr  error
	state     sessionState
	triggered bool
	stopped   chan struct{}
	done      chan struct{} // closed when stopping starts, ends timers
	mu        sync.Mutex
	stopMu    sync.Mutex

	// discardOnStop drops the collected data when the session stops.
	discardOnStop bool
}

// NewSession creates an unconfigured session.
func (p *Producer) NewSession() *Session {
	return &Session{
		producer: p,
		id:       xid.New().String(),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// StartSession configures and starts a session from cfg. The session is
// returned even when some instances failed to set up; the error reports
// them.
func (p *Producer) StartSession(cfg SessionConfig) (*Session, error) {
	s := p.NewSession()
	if err := s.Setup(cfg.Encode()); err != nil {
		return nil, err
	}
	return s, s.StartBlocking()
}

// ID returns the unique session id.
func (s *Session) ID() string {
	return s.id
}

// Config returns the parsed session config.
func (s *Session) Config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Setup parses TraceConfig bytes and sets up an instance of every named
// data source that is registered. Names with no registered data source are
// skipped. Instance setup failures are reported by StartBlocking.
func (s *Session) Setup(traceConfig []byte) error {
	cfg, err := ParseSessionConfig(traceConfig)
	if err != nil {
		return err
	}
	if s.producer.closed.Load() {
		return ErrProducerClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessionNew {
		return fmt.Errorf("%w: setup in state %s", ErrSessionState, s.state)
	}

	s.config = cfg
	s.buffer = newTraceBuffer(int(cfg.BufferSizeKB)*1024, cfg.FillPolicy)

	var errs []error
	for _, dsCfg := range cfg.DataSources {
		ds, ok := s.producer.DataSource(dsCfg.Name)
		if !ok {
			s.producer.log.Debug("data source not registered", "session", s.id, "name", dsCfg.Name)
			continue
		}
		idx, err := ds.setupInstance(s, dsCfg.Encode())
		if err != nil {
			s.producer.log.Error("instance setup failed", "session", s.id, "name", dsCfg.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		s.producer.log.Debug("instance configured", "session", s.id, "name", dsCfg.Name, "index", idx)
		s.instances = append(s.instances, instanceRef{ds: ds, idx: idx})
	}
	s.setupErr = errors.Join(errs...)
	s.state = sessionConfigured
	s.producer.addSession(s)
	return nil
}

// StartBlocking starts every configured instance and returns once their
// OnStart callbacks have run. In start-tracing trigger mode the instances
// stay idle until a matching trigger arrives. The returned error joins the
// instance setup failures of Setup; the other instances run regardless.
func (s *Session) StartBlocking() error {
	s.mu.Lock()
	if s.state != sessionConfigured {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start in state %s", ErrSessionState, state)
	}
	cfg := s.config
	if cfg.Triggers.Mode == TriggerStartTracing {
		s.state = sessionArmed
		s.mu.Unlock()
		s.producer.log.Info("session armed", "session", s.id, "triggers", len(cfg.Triggers.Triggers))
	} else {
		s.startInstancesLocked()
		s.mu.Unlock()
	}

	if cfg.Triggers.Mode != TriggerNone && cfg.Triggers.TimeoutMs > 0 {
		go s.watchTriggerTimeout(msDuration(cfg.Triggers.TimeoutMs))
	}
	if cfg.IncrementalClearPeriodMs > 0 {
		go s.clearPeriodically(msDuration(cfg.IncrementalClearPeriodMs))
	}
	return s.setupErr
}

// startInstancesLocked starts the instances in slot order. Caller holds mu.
func (s *Session) startInstancesLocked() {
	for _, ref := range s.instances {
		ref.ds.startInstance(ref.idx)
	}
	s.state = sessionStarted
	s.producer.log.Info("session started", "session", s.id, "instances", len(s.instances))

	if s.config.DurationMs > 0 {
		go s.stopAfter(msDuration(s.config.DurationMs))
	}
}

func (s *Session) stopAfter(d time.Duration) {
	select {
	case <-s.producer.clock.After(d):
		if err := s.StopBlocking(); err != nil {
			s.producer.log.Warn("timed stop failed", "session", s.id, "err", err)
		}
	case <-s.done:
	}
}

func (s *Session) clearPeriodically(period time.Duration) {
	for {
		select {
		case <-s.producer.clock.After(period):
			s.ClearIncrementalState()
		case <-s.done:
			return
		}
	}
}

// StopBlocking stops every instance and waits until all of them are
// destroyed. Instances stop concurrently; each one's OnStop may postpone its
// completion. Stopping a stopped session does nothing.
func (s *Session) StopBlocking() error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case sessionStopped:
		s.mu.Unlock()
		return nil
	case sessionNew:
		s.state = sessionStopped
		s.mu.Unlock()
		close(s.done)
		close(s.stopped)
		return nil
	}
	s.state = sessionStopping
	refs := s.instances
	s.mu.Unlock()
	close(s.done)

	var g errgroup.Group
	for _, ref := range refs {
		g.Go(func() error {
			ref.ds.stopInstance(ref.idx)
			ref.ds.destroyInstance(ref.idx)
			return nil
		})
	}
	err := g.Wait()

	s.buffer.close()
	s.producer.removeSession(s)

	s.mu.Lock()
	if s.discardOnStop {
		s.buffer.discard()
	}
	s.state = sessionStopped
	s.mu.Unlock()
	close(s.stopped)

	s.producer.log.Info("session stopped", "session", s.id, "dropped_packets", s.buffer.dropped())
	return err
}

// WaitForStopped blocks until the session has stopped.
func (s *Session) WaitForStopped() {
	<-s.stopped
}

// Stopped returns a channel closed once the session has stopped.
func (s *Session) Stopped() <-chan struct{} {
	return s.stopped
}

// FlushBlocking asks every started instance to flush and waits until all
// completed or timeout elapsed, reporting whether all completed. A zero
// timeout waits indefinitely.
func (s *Session) FlushBlocking(timeout time.Duration) bool {
	refs := s.startedInstances()
	if len(refs) == 0 {
		return true
	}

	// The last completion closes done. A flusher never completed leaves it
	// open, which only the timeout below observes.
	var pending atomic.Int64
	pending.Store(int64(len(refs)))
	done := make(chan struct{})
	complete := func() {
		if pending.Add(-1) == 0 {
			close(done)
		}
	}
	for _, ref := range refs {
		ref.ds.flushInstance(ref.idx, complete)
	}

	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-s.producer.clock.After(timeout):
		s.producer.log.Warn("flush timed out", "session", s.id, "timeout", timeout)
		return false
	}
}

func (s *Session) startedInstances() []instanceRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessionStarted {
		return nil
	}
	return append([]instanceRef(nil), s.instances...)
}

// ReadBlocking returns the buffered packets as a serialized Trace and
// empties the buffer.
func (s *Session) ReadBlocking() []byte {
	s.mu.Lock()
	buf := s.buffer
	s.mu.Unlock()
	if buf == nil {
		return nil
	}
	return buf.read()
}

// ClearIncrementalState makes every thread start its incremental state over
// on its next emission into this session.
func (s *Session) ClearIncrementalState() {
	for _, ref := range s.startedInstances() {
		ref.ds.clearIncrementalState(ref.idx)
	}
}

// DroppedPackets returns the number of packets lost to a full buffer.
func (s *Session) DroppedPackets() int64 {
	s.mu.Lock()
	buf := s.buffer
	s.mu.Unlock()
	if buf == nil {
		return 0
	}
	return buf.dropped()
}

// BufferedPackets returns the number of packets waiting to be read.
func (s *Session) BufferedPackets() int {
	s.mu.Lock()
	buf := s.buffer
	s.mu.Unlock()
	if buf == nil {
		return 0
	}
	return buf.count()
}

package probez

import (
	"time"

	"github.com/zoobzio/probez/pbz"
	"github.com/zoobzio/probez/protos"
)

// ActivateTriggers delivers the named triggers to every session configured
// to react to them. It does not wait for delivery. Deliveries that have not
// run within timeout are discarded; a zero timeout never expires them.
func (p *Producer) ActivateTriggers(names []string, timeout time.Duration) {
	if len(names) == 0 || p.closed.Load() {
		return
	}
	names = append([]string(nil), names...)
	issued := p.clock.Now()

	ok := p.triggers.submit(func() {
		if timeout > 0 && p.clock.Since(issued) > timeout {
			p.log.Warn("triggers expired before delivery", "triggers", names, "timeout", timeout)
			return
		}
		for _, s := range p.liveSessions() {
			s.onTriggers(names)
		}
	})
	if !ok {
		p.log.Warn("trigger queue full, triggers dropped", "triggers", names)
	}
}

// onTriggers handles the first configured trigger among names. A session
// reacts to one trigger only.
func (s *Session) onTriggers(names []string) {
	s.mu.Lock()
	cfg := s.config.Triggers
	if cfg.Mode == TriggerNone || s.triggered {
		s.mu.Unlock()
		return
	}

	var (
		trigger Trigger
		found   bool
	)
	for _, name := range names {
		if trigger, found = cfg.find(name); found {
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return
	}

	switch {
	case cfg.Mode == TriggerStartTracing && s.state == sessionArmed:
		s.triggered = true
		s.recordTriggerLocked(trigger.Name)
		s.startInstancesLocked()
		s.mu.Unlock()
		s.producer.log.Info("session started by trigger", "session", s.id, "trigger", trigger.Name)

	case cfg.Mode == TriggerStopTracing && s.state == sessionStarted:
		s.triggered = true
		s.recordTriggerLocked(trigger.Name)
		s.mu.Unlock()
		s.producer.log.Info("session stopping on trigger", "session", s.id, "trigger", trigger.Name,
			"stop_delay", msDuration(trigger.StopDelayMs))
		// Stop off the trigger worker so a long stop delay does not hold it.
		go s.stopAfter(msDuration(trigger.StopDelayMs))

	default:
		s.mu.Unlock()
	}
}

// recordTriggerLocked writes a Trigger packet. Caller holds mu.
func (s *Session) recordTriggerLocked(name string) {
	m := pbz.NewMessage(32 + len(name))
	m.AppendVarint(protos.TracePacketTimestamp, s.producer.now())
	m.BeginNested(protos.TracePacketTrigger)
	m.AppendString(protos.TriggerTriggerName, name)
	m.AppendString(protos.TriggerProducerName, s.producer.name)
	m.EndNested()
	s.buffer.appendService(m.Bytes())
}

// watchTriggerTimeout ends a session that saw no trigger in time. In stop
// mode the data collected so far is discarded.
func (s *Session) watchTriggerTimeout(timeout time.Duration) {
	select {
	case <-s.producer.clock.After(timeout):
	case <-s.done:
		return
	}

	s.mu.Lock()
	if s.triggered {
		s.mu.Unlock()
		return
	}
	mode := s.config.Triggers.Mode
	s.discardOnStop = mode == TriggerStopTracing
	s.mu.Unlock()

	s.producer.log.Info("trigger timeout elapsed", "session", s.id, "mode", mode.String())
	if err := s.StopBlocking(); err != nil {
		s.producer.log.Warn("stop after trigger timeout failed", "session", s.id, "err", err)
	}
}

package probez

import (
	"time"

	"github.com/zoobzio/probez/protos"
)

// Event is the kind and name of a track event.
type Event struct {
	typ  uint64
	name string
}

// Instant is a zero-duration event.
func Instant(name string) Event {
	return Event{typ: protos.TrackEventTypeInstant, name: name}
}

// SliceBegin opens a slice on the event's track.
func SliceBegin(name string) Event {
	return Event{typ: protos.TrackEventTypeSliceBegin, name: name}
}

// SliceEnd closes the innermost open slice on the event's track.
func SliceEnd() Event {
	return Event{typ: protos.TrackEventTypeSliceEnd}
}

// Counter records a value on a registered counter track. Pass the value
// with IntCounter or DoubleCounter and the track with OnRegisteredTrack.
func Counter() Event {
	return Event{typ: protos.TrackEventTypeCounter}
}

// Name returns the event name.
func (e Event) Name() string {
	return e.name
}

type argKind uint8

const (
	argUint argKind = iota
	argInt
	argBool
	argDouble
	argString
	argPointer
)

type debugArg struct {
	name string
	kind argKind
	u    uint64
	i    int64
	d    float64
	s    string
	b    bool
}

//nolint:govet // Field order optimized for functionality over memory
type eventSpec struct {
	args             []debugArg
	track            *Track
	registered       *RegisteredTrack
	flows            []uint64
	terminatingFlows []uint64
	dynamicName      string
	timestamp        uint64
	counterInt       int64
	counterDouble    float64
	hasTimestamp     bool
	hasCounter       bool
	counterIsDouble  bool
	noIntern         bool
}

// EventOption adds detail to a track event.
type EventOption func(*eventSpec)

// ArgUint64 attaches an unsigned debug annotation.
func ArgUint64(name string, v uint64) EventOption {
	return func(s *eventSpec) { s.args = append(s.args, debugArg{name: name, kind: argUint, u: v}) }
}

// ArgInt64 attaches a signed debug annotation.
func ArgInt64(name string, v int64) EventOption {
	return func(s *eventSpec) { s.args = append(s.args, debugArg{name: name, kind: argInt, i: v}) }
}

// ArgBool attaches a boolean debug annotation.
func ArgBool(name string, v bool) EventOption {
	return func(s *eventSpec) { s.args = append(s.args, debugArg{name: name, kind: argBool, b: v}) }
}

// ArgDouble attaches a floating point debug annotation.
func ArgDouble(name string, v float64) EventOption {
	return func(s *eventSpec) { s.args = append(s.args, debugArg{name: name, kind: argDouble, d: v}) }
}

// ArgString attaches a string debug annotation.
func ArgString(name, v string) EventOption {
	return func(s *eventSpec) { s.args = append(s.args, debugArg{name: name, kind: argString, s: v}) }
}

// ArgPointer attaches a pointer debug annotation.
func ArgPointer(name string, v uintptr) EventOption {
	return func(s *eventSpec) { s.args = append(s.args, debugArg{name: name, kind: argPointer, u: uint64(v)}) }
}

// IntCounter sets the value of a Counter event.
func IntCounter(v int64) EventOption {
	return func(s *eventSpec) {
		s.hasCounter, s.counterIsDouble, s.counterInt = true, false, v
	}
}

// DoubleCounter sets the floating point value of a Counter event.
func DoubleCounter(v float64) EventOption {
	return func(s *eventSpec) {
		s.hasCounter, s.counterIsDouble, s.counterDouble = true, true, v
	}
}

// OnNamedTrack puts the event on the named track (name, id) below parent.
func OnNamedTrack(name string, id, parent uint64) EventOption {
	return func(s *eventSpec) {
		t := NamedTrack(name, id, parent)
		s.track, s.registered = &t, nil
	}
}

// OnTrack puts the event on t.
func OnTrack(t Track) EventOption {
	return func(s *eventSpec) { s.track, s.registered = &t, nil }
}

// OnRegisteredTrack puts the event on a registered track.
func OnRegisteredTrack(r *RegisteredTrack) EventOption {
	return func(s *eventSpec) {
		t := r.track
		s.track, s.registered = &t, r
	}
}

// Flow connects the event to other events carrying the same flow id.
func Flow(id uint64) EventOption {
	return func(s *eventSpec) { s.flows = append(s.flows, id) }
}

// TerminatingFlow ends the flow id at this event.
func TerminatingFlow(id uint64) EventOption {
	return func(s *eventSpec) { s.terminatingFlows = append(s.terminatingFlows, id) }
}

// NoIntern writes names inline instead of interning them.
func NoIntern() EventOption {
	return func(s *eventSpec) { s.noIntern = true }
}

// DynamicCategoryName names the category of an event emitted on the
// dynamic category. Sessions filter on this name.
func DynamicCategoryName(name string) EventOption {
	return func(s *eventSpec) { s.dynamicName = name }
}

// Timestamp overrides the event time, which defaults to the producer clock.
func Timestamp(t time.Time) EventOption {
	return func(s *eventSpec) {
		s.timestamp, s.hasTimestamp = uint64(t.UnixNano()), true //nolint:gosec // wall clock is positive
	}
}

package probez

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

type trackKind byte

const (
	trackProcess trackKind = 'p'
	trackThread  trackKind = 't'
	trackNamed   trackKind = 'n'
	trackCounter trackKind = 'c'
)

// Track identifies the timeline track events are drawn on.
type Track struct {
	UUID       uint64
	ParentUUID uint64
	Name       string

	kind trackKind
	tid  uint64
}

// Counter reports whether the track holds counter values.
func (t Track) Counter() bool {
	return t.kind == trackCounter
}

func trackUUID(kind trackKind, name string, id, parent uint64) uint64 {
	var b [17]byte
	b[0] = byte(kind)
	binary.LittleEndian.PutUint64(b[1:9], id)
	binary.LittleEndian.PutUint64(b[9:], parent)

	d := xxhash.New()
	_, _ = d.Write(b[:])
	_, _ = d.WriteString(name)
	if u := d.Sum64(); u != 0 {
		return u
	}
	return 1
}

// ProcessTrackUUID returns the uuid of the process track.
func (te *TrackEvent) ProcessTrackUUID() uint64 {
	return trackUUID(trackProcess, "", uint64(te.producer.pid), 0) //nolint:gosec // pids are positive
}

// ProcessTrack returns the process track.
func (te *TrackEvent) ProcessTrack() Track {
	return Track{UUID: te.ProcessTrackUUID(), Name: te.processName(), kind: trackProcess}
}

// ThreadTrackUUID returns the uuid of the track of thread tid.
func (te *TrackEvent) ThreadTrackUUID(tid uint64) uint64 {
	return trackUUID(trackThread, "", tid, te.ProcessTrackUUID())
}

func (te *TrackEvent) threadTrack(tid uint64) Track {
	return Track{UUID: te.ThreadTrackUUID(tid), ParentUUID: te.ProcessTrackUUID(), kind: trackThread, tid: tid}
}

// NamedTrackUUID returns the uuid of the named track (name, id) below parent.
func NamedTrackUUID(name string, id, parent uint64) uint64 {
	return trackUUID(trackNamed, name, id, parent)
}

// NamedTrack returns the named track (name, id) below parent.
func NamedTrack(name string, id, parent uint64) Track {
	return Track{UUID: NamedTrackUUID(name, id, parent), ParentUUID: parent, Name: name, kind: trackNamed}
}

// CounterTrackUUID returns the uuid of the counter track name below parent.
func CounterTrackUUID(name string, parent uint64) uint64 {
	return trackUUID(trackCounter, name, 0, parent)
}

// CounterTrack returns the counter track name below parent.
func CounterTrack(name string, parent uint64) Track {
	return Track{UUID: CounterTrackUUID(name, parent), ParentUUID: parent, Name: name, kind: trackCounter}
}

// RegisteredTrack is a track that events may only use while registered.
// Counter events require one.
type RegisteredTrack struct {
	track      Track
	registered atomic.Bool
}

// RegisterNamedTrack registers the named track (name, id) below parent.
func (te *TrackEvent) RegisterNamedTrack(name string, id, parent uint64) *RegisteredTrack {
	r := &RegisteredTrack{track: NamedTrack(name, id, parent)}
	r.registered.Store(true)
	return r
}

// RegisterCounterTrack registers the counter track name below parent. A
// zero parent places it below the process track.
func (te *TrackEvent) RegisterCounterTrack(name string, parent uint64) *RegisteredTrack {
	if parent == 0 {
		parent = te.ProcessTrackUUID()
	}
	r := &RegisteredTrack{track: CounterTrack(name, parent)}
	r.registered.Store(true)
	return r
}

// Track returns the registered track.
func (r *RegisteredTrack) Track() Track {
	return r.track
}

// UUID returns the track uuid.
func (r *RegisteredTrack) UUID() uint64 {
	return r.track.UUID
}

// Registered reports whether the track can still be used.
func (r *RegisteredTrack) Registered() bool {
	return r.registered.Load()
}

// Unregister retires the track. Events on it are dropped afterwards.
func (r *RegisteredTrack) Unregister() {
	r.registered.Store(false)
}

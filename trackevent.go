package probez

import (
	"os"
	"path/filepath"
	"slices"
	"sync"

	"fortio.org/safecast"
	"github.com/shirou/gopsutil/process"

	"github.com/zoobzio/probez/protos"
)

// TrackEventDataSourceName is the name of the built-in track event data source.
const TrackEventDataSourceName = "track_event"

// Interning tables used by track events.
const (
	InternEventCategories      = uint32(protos.InternedDataEventCategories)
	InternEventNames           = uint32(protos.InternedDataEventNames)
	InternDebugAnnotationNames = uint32(protos.InternedDataDebugAnnotationNames)
)

// TrackEvent is the built-in data source for categorized slices, instants
// and counters on tracks.
//
//nolint:govet // Field order optimized for functionality over memory
type TrackEvent struct {
	producer   *Producer
	ds         *DataSource
	dynamic    *Category
	categories []*Category
	filters    [MaxInstances]CategoryFilters
	started    uint32 // instances between OnStart and OnStop
	mu         sync.Mutex

	procName string
	procOnce sync.Once
}

type trackEventInstance struct {
	filters CategoryFilters
}

type trackEventIncr struct {
	seenTracks map[uint64]struct{}
}

func newTrackEvent(p *Producer) *TrackEvent {
	te := &TrackEvent{
		producer: p,
		dynamic:  NewCategory("dynamic"),
	}
	ds, err := p.Register(TrackEventDataSourceName, &trackEventHandler{te: te}, Params{})
	if err != nil {
		// The producer is new, so the name cannot be taken.
		panic(err)
	}
	te.ds = ds
	return te
}

// DataSource returns the underlying data source.
func (te *TrackEvent) DataSource() *DataSource {
	return te.ds
}

// DynamicCategory returns the category whose name is given per event with
// DynamicCategoryName. It is enabled while any instance is started.
func (te *TrackEvent) DynamicCategory() *Category {
	return te.dynamic
}

// RegisterCategories makes categories selectable by sessions. Categories
// are evaluated against running sessions immediately.
func (te *TrackEvent) RegisterCategories(cats ...*Category) {
	te.mu.Lock()
	defer te.mu.Unlock()
	for _, c := range cats {
		if c == nil || c == te.dynamic || slices.Contains(te.categories, c) {
			continue
		}
		te.categories = append(te.categories, c)
		activeInstances(te.started, func(idx InstanceIndex) bool {
			if te.filters[idx].EnabledCategory(c) {
				c.mask.Or(instanceBit(idx))
			}
			return true
		})
	}
}

// UnregisterCategories disables categories and forgets them.
func (te *TrackEvent) UnregisterCategories(cats ...*Category) {
	te.mu.Lock()
	defer te.mu.Unlock()
	for _, c := range cats {
		if i := slices.Index(te.categories, c); i >= 0 {
			te.categories = slices.Delete(te.categories, i, i+1)
			c.mask.Store(0)
		}
	}
}

// Categories returns the registered categories.
func (te *TrackEvent) Categories() []*Category {
	te.mu.Lock()
	defer te.mu.Unlock()
	return slices.Clone(te.categories)
}

func (te *TrackEvent) processName() string {
	te.procOnce.Do(func() {
		if pid, err := safecast.Conv[int32](te.producer.pid); err == nil {
			if proc, err := process.NewProcess(pid); err == nil {
				if name, err := proc.Name(); err == nil {
					te.procName = name
				}
			}
		}
		if te.procName == "" {
			te.procName = filepath.Base(os.Args[0])
		}
	})
	return te.procName
}

// trackEventHandler keeps category masks in sync with the instances.
type trackEventHandler struct {
	te *TrackEvent
}

func (h *trackEventHandler) OnSetup(_ InstanceIndex, config []byte) (any, error) {
	cfg, err := ParseDataSourceConfig(config)
	if err != nil {
		return nil, err
	}
	return &trackEventInstance{filters: cfg.Categories}, nil
}

func (h *trackEventHandler) OnStart(idx InstanceIndex, state any) {
	inst := state.(*trackEventInstance) //nolint:errcheck // set by OnSetup
	te := h.te
	bit := instanceBit(idx)

	te.mu.Lock()
	defer te.mu.Unlock()
	te.filters[idx] = inst.filters
	te.started |= bit
	for _, c := range te.categories {
		if inst.filters.EnabledCategory(c) {
			c.mask.Or(bit)
		}
	}
	te.dynamic.mask.Or(bit)
}

func (h *trackEventHandler) OnStop(idx InstanceIndex, _ any, _ *StopArgs) {
	te := h.te
	bit := instanceBit(idx)

	te.mu.Lock()
	defer te.mu.Unlock()
	te.started &^= bit
	te.filters[idx] = nil
	for _, c := range te.categories {
		c.mask.And(^bit)
	}
	te.dynamic.mask.And(^bit)
}

func (h *trackEventHandler) OnDestroy(any) {}

func (h *trackEventHandler) OnFlush(InstanceIndex, any, *FlushArgs) {}

func (h *trackEventHandler) OnCreateIncr(InstanceIndex) any {
	return &trackEventIncr{seenTracks: make(map[uint64]struct{})}
}

func (h *trackEventHandler) OnDeleteIncr(any) {}

// TrackEventContext is the emission scope of the low-level track event API.
type TrackEventContext struct {
	*TraceContext
	te   *TrackEvent
	incr *trackEventIncr
}

// Trace runs fn once for every started instance enabling cat, on the
// implicit thread of the calling goroutine.
func (te *TrackEvent) Trace(cat *Category, fn func(*TrackEventContext)) {
	mask := cat.mask.Load()
	if mask == 0 {
		return
	}
	te.traceOn(te.producer.currentThread(), cat, mask, "", fn)
}

// TraceOn is Trace on an explicit thread.
func (te *TrackEvent) TraceOn(th *Thread, cat *Category, fn func(*TrackEventContext)) {
	mask := cat.mask.Load()
	if mask == 0 {
		return
	}
	te.traceOn(th, cat, mask, "", fn)
}

func (te *TrackEvent) traceOn(th *Thread, cat *Category, mask uint32, dynamicName string, fn func(*TrackEventContext)) {
	// Dynamic events are only recorded under a name.
	if cat == te.dynamic && dynamicName == "" {
		return
	}
	te.ds.traceMasked(th, mask&te.ds.enabled.Load(), func(tc *TraceContext) {
		if cat == te.dynamic {
			inst := tc.InstanceState().(*trackEventInstance) //nolint:errcheck // set by OnSetup
			if !inst.filters.Enabled(dynamicName, nil) {
				return
			}
		}
		fn(&TrackEventContext{
			TraceContext: tc,
			te:           te,
			incr:         tc.IncrementalState().(*trackEventIncr), //nolint:errcheck // set by OnCreateIncr
		})
	})
}

// InternEventName returns the interned id of an event name.
func (c *TrackEventContext) InternEventName(name string) uint64 {
	return c.InternString(InternEventNames, name)
}

// InternCategory returns the interned id of a category name.
func (c *TrackEventContext) InternCategory(name string) uint64 {
	return c.InternString(InternEventCategories, name)
}

// InternDebugAnnotationName returns the interned id of a debug annotation name.
func (c *TrackEventContext) InternDebugAnnotationName(name string) uint64 {
	return c.InternString(InternDebugAnnotationNames, name)
}

// EnsureTrack writes the descriptor of t, and of the process track it hangs
// off, unless the sequence already did since its incremental state was
// last cleared.
func (c *TrackEventContext) EnsureTrack(t Track) {
	processUUID := c.te.ProcessTrackUUID()
	if t.UUID != processUUID && t.ParentUUID == processUUID {
		c.EnsureTrack(c.te.ProcessTrack())
	}
	if _, seen := c.incr.seenTracks[t.UUID]; seen {
		return
	}
	c.incr.seenTracks[t.UUID] = struct{}{}

	pkt := c.NewPacket()
	pkt.AppendVarint(protos.TracePacketTimestamp, c.Timestamp())
	pkt.SetSequenceFlags(protos.SeqNeedsIncrementalState)
	pkt.BeginNested(protos.TracePacketTrackDescriptor)
	pkt.AppendVarint(protos.TrackDescriptorUUID, t.UUID)
	if t.ParentUUID != 0 {
		pkt.AppendVarint(protos.TrackDescriptorParentUUID, t.ParentUUID)
	}
	if t.Name != "" {
		pkt.AppendString(protos.TrackDescriptorName, t.Name)
	}
	pid := uint64(c.te.producer.pid) //nolint:gosec // pids are positive
	switch t.kind {
	case trackProcess:
		pkt.BeginNested(protos.TrackDescriptorProcess)
		pkt.AppendVarint(protos.ProcessDescriptorPid, pid)
		pkt.AppendString(protos.ProcessDescriptorProcessName, t.Name)
		pkt.EndNested()
	case trackThread:
		pkt.BeginNested(protos.TrackDescriptorThread)
		pkt.AppendVarint(protos.ThreadDescriptorPid, pid)
		pkt.AppendVarint(protos.ThreadDescriptorTid, t.tid)
		pkt.EndNested()
	case trackCounter:
		pkt.BeginNested(protos.TrackDescriptorCounter)
		pkt.EndNested()
	}
	pkt.EndNested()
	pkt.End()
}

// Emit writes a track event on cat to every instance enabling it, on the
// implicit thread of the calling goroutine.
func (te *TrackEvent) Emit(cat *Category, ev Event, opts ...EventOption) {
	mask := cat.mask.Load()
	if mask == 0 {
		return
	}
	te.emit(te.producer.currentThread(), cat, mask, ev, opts)
}

// EmitOn is Emit on an explicit thread.
func (te *TrackEvent) EmitOn(th *Thread, cat *Category, ev Event, opts ...EventOption) {
	mask := cat.mask.Load()
	if mask == 0 {
		return
	}
	te.emit(th, cat, mask, ev, opts)
}

func (te *TrackEvent) emit(th *Thread, cat *Category, mask uint32, ev Event, opts []EventOption) {
	var spec eventSpec
	for _, opt := range opts {
		opt(&spec)
	}
	if spec.registered != nil && !spec.registered.Registered() {
		te.producer.log.Debug("event on unregistered track dropped", "track", spec.registered.track.Name)
		return
	}
	if ev.typ == protos.TrackEventTypeCounter && (spec.registered == nil || !spec.track.Counter()) {
		te.producer.log.Debug("counter event without registered counter track dropped", "category", cat.name)
		return
	}

	te.traceOn(th, cat, mask, spec.dynamicName, func(c *TrackEventContext) {
		c.writeEvent(cat, ev, &spec)
	})
}

func (c *TrackEventContext) writeEvent(cat *Category, ev Event, spec *eventSpec) {
	track := c.te.threadTrack(c.Thread().TID())
	if spec.track != nil {
		track = *spec.track
	}
	c.EnsureTrack(track)

	ts := spec.timestamp
	if !spec.hasTimestamp {
		ts = c.Timestamp()
	}

	pkt := c.NewPacket()
	pkt.AppendVarint(protos.TracePacketTimestamp, ts)
	pkt.SetSequenceFlags(protos.SeqNeedsIncrementalState)
	pkt.BeginNested(protos.TracePacketTrackEvent)
	pkt.AppendVarint(protos.TrackEventType, ev.typ)
	pkt.AppendVarint(protos.TrackEventTrackUUID, track.UUID)

	switch {
	case cat == c.te.dynamic:
		pkt.AppendString(protos.TrackEventCategories, spec.dynamicName)
	case spec.noIntern:
		pkt.AppendString(protos.TrackEventCategories, cat.name)
	default:
		pkt.AppendVarint(protos.TrackEventCategoryIIDs, c.InternCategory(cat.name))
	}

	if ev.name != "" {
		if spec.noIntern {
			pkt.AppendString(protos.TrackEventName, ev.name)
		} else {
			pkt.AppendVarint(protos.TrackEventNameIID, c.InternEventName(ev.name))
		}
	}

	for _, a := range spec.args {
		pkt.BeginNested(protos.TrackEventDebugAnnotations)
		if spec.noIntern {
			pkt.AppendString(protos.DebugAnnotationName, a.name)
		} else {
			pkt.AppendVarint(protos.DebugAnnotationNameIID, c.InternDebugAnnotationName(a.name))
		}
		switch a.kind {
		case argUint:
			pkt.AppendVarint(protos.DebugAnnotationUintValue, a.u)
		case argInt:
			pkt.AppendInt64(protos.DebugAnnotationIntValue, a.i)
		case argBool:
			pkt.AppendBool(protos.DebugAnnotationBoolValue, a.b)
		case argDouble:
			pkt.AppendDouble(protos.DebugAnnotationDoubleValue, a.d)
		case argString:
			pkt.AppendString(protos.DebugAnnotationStringValue, a.s)
		case argPointer:
			pkt.AppendVarint(protos.DebugAnnotationPointerValue, a.u)
		}
		pkt.EndNested()
	}

	if spec.hasCounter {
		if spec.counterIsDouble {
			pkt.AppendDouble(protos.TrackEventDoubleCounterValue, spec.counterDouble)
		} else {
			pkt.AppendInt64(protos.TrackEventCounterValue, spec.counterInt)
		}
	}
	for _, id := range spec.flows {
		pkt.AppendFixed64(protos.TrackEventFlowIDs, id)
	}
	for _, id := range spec.terminatingFlows {
		pkt.AppendFixed64(protos.TrackEventTerminatingFlowIDs, id)
	}

	pkt.EndNested()
	pkt.End()
}

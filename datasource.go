package probez

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// Handler receives the lifecycle callbacks of a data source instance.
//
// For one instance the calls arrive in the order OnSetup, OnStart, OnStop,
// OnDestroy, each at most once, with OnFlush any number of times between
// OnStart and OnStop. Different instances are independent. The value
// returned by OnSetup is handed back to every later callback and stays valid
// until OnDestroy returns.
type Handler interface {
	OnSetup(idx InstanceIndex, config []byte) (any, error)
	OnStart(idx InstanceIndex, state any)
	OnStop(idx InstanceIndex, state any, args *StopArgs)
	OnDestroy(state any)
	OnFlush(idx InstanceIndex, state any, args *FlushArgs)
}

// TLSHandler is implemented by handlers that keep custom per-thread state.
// OnCreateTLS runs lazily on the first TraceContext.CustomTLS call of a
// thread for an instance; OnDeleteTLS runs on that thread after the
// instance has gone away.
type TLSHandler interface {
	OnCreateTLS(idx InstanceIndex) any
	OnDeleteTLS(tls any)
}

// IncrementalStateHandler is implemented by handlers that keep incremental
// per-thread state, which is recreated whenever the session clears it.
type IncrementalStateHandler interface {
	OnCreateIncr(idx InstanceIndex) any
	OnDeleteIncr(incr any)
}

// Callbacks is the full callback surface of a data source.
type Callbacks interface {
	Handler
	TLSHandler
	IncrementalStateHandler
}

// HandlerFuncs adapts plain functions to Callbacks. Nil fields are no-ops.
type HandlerFuncs struct {
	Setup      func(idx InstanceIndex, config []byte) (any, error)
	Start      func(idx InstanceIndex, state any)
	Stop       func(idx InstanceIndex, state any, args *StopArgs)
	Destroy    func(state any)
	Flush      func(idx InstanceIndex, state any, args *FlushArgs)
	CreateTLS  func(idx InstanceIndex) any
	DeleteTLS  func(tls any)
	CreateIncr func(idx InstanceIndex) any
	DeleteIncr func(incr any)
}

func (h *HandlerFuncs) OnSetup(idx InstanceIndex, config []byte) (any, error) {
	if h.Setup == nil {
		return nil, nil
	}
	return h.Setup(idx, config)
}

func (h *HandlerFuncs) OnStart(idx InstanceIndex, state any) {
	if h.Start != nil {
		h.Start(idx, state)
	}
}

func (h *HandlerFuncs) OnStop(idx InstanceIndex, state any, args *StopArgs) {
	if h.Stop != nil {
		h.Stop(idx, state, args)
	}
}

func (h *HandlerFuncs) OnDestroy(state any) {
	if h.Destroy != nil {
		h.Destroy(state)
	}
}

func (h *HandlerFuncs) OnFlush(idx InstanceIndex, state any, args *FlushArgs) {
	if h.Flush != nil {
		h.Flush(idx, state, args)
	}
}

func (h *HandlerFuncs) OnCreateTLS(idx InstanceIndex) any {
	if h.CreateTLS == nil {
		return nil
	}
	return h.CreateTLS(idx)
}

func (h *HandlerFuncs) OnDeleteTLS(tls any) {
	if h.DeleteTLS != nil {
		h.DeleteTLS(tls)
	}
}

func (h *HandlerFuncs) OnCreateIncr(idx InstanceIndex) any {
	if h.CreateIncr == nil {
		return nil
	}
	return h.CreateIncr(idx)
}

func (h *HandlerFuncs) OnDeleteIncr(incr any) {
	if h.DeleteIncr != nil {
		h.DeleteIncr(incr)
	}
}

// Params are the registration options of a data source.
type Params struct {
	// SingleInstance limits the data source to one concurrent instance.
	SingleInstance bool
}

// DataSource is a registered event source. It lives as long as its Producer.
//
//nolint:govet // Field order optimized for functionality over memory
type DataSource struct {
	producer  *Producer
	name      string
	handler   Handler
	tls       TLSHandler
	incr      IncrementalStateHandler
	params    Params
	instances [MaxInstances]instance

	// enabled has bit i set while instance i is started. It is the only thing
	// the disabled fast path reads.
	enabled atomic.Uint32

	mu     sync.Mutex // guards slot allocation
	active int
}

// Name returns the registered name.
func (ds *DataSource) Name() string {
	return ds.name
}

// Enabled reports whether any instance is started.
func (ds *DataSource) Enabled() bool {
	return ds.enabled.Load() != 0
}

// activeInstances calls fn for every slot set in mask in ascending order
// and stops early when fn returns false.
func activeInstances(mask uint32, fn func(idx InstanceIndex) bool) {
	for mask != 0 {
		i := bits.TrailingZeros32(mask)
		mask &^= 1 << i
		if !fn(InstanceIndex(i)) { //nolint:gosec // i < 32
			return
		}
	}
}

func instanceBit(idx InstanceIndex) uint32 {
	return 1 << idx
}

// Package probez is an in-process tracing engine.
//
// Application code registers data sources on a Producer and emits trace
// packets through them. While no tracing session is active an emission costs
// a single atomic load. While sessions are active every emission is written
// once per active instance, as length-delimited protobuf packets in the
// Perfetto trace format, into the buffer of the session that owns the
// instance.
//
// Core Components:
//   - Producer: owns data sources, sessions and threads.
//   - DataSource: a named event source with up to MaxInstances concurrent
//     instances, one per session that enabled it.
//   - Handler: the lifecycle callbacks of a data source.
//   - Session: an in-process tracing session with its own buffer.
//   - TrackEvent: the built-in "track_event" data source with categories,
//     slices, instants, counters and tracks.
//
// Basic Usage:
//
//	p := probez.NewProducer(probez.WithName("svc"))
//	defer p.Close()
//
//	ds, err := p.Register("com.example.ds", handler, probez.Params{})
//	...
//	ds.Trace(func(tc *probez.TraceContext) {
//		pkt := tc.NewPacket()
//		pkt.AppendVarint(protos.TracePacketTimestamp, tc.Timestamp())
//		pkt.End()
//	})
//
// Threads:
//
// Every emission runs on a Thread. DataSource.Trace uses an implicit thread
// bound to the calling goroutine; DataSource.TraceOn takes an explicit one
// created with Producer.NewThread. Per-thread state (writers, interning, the
// values of TLSHandler and IncrementalStateHandler) belongs to one goroutine
// and is never shared.
//
// Lifecycle:
//
// Each instance moves through setup, start, stop and destroy, in that order
// and once each. Stop and flush can be postponed by the handler and
// completed later from any goroutine. Instance state is never destroyed
// while a writer may still be using it.
package probez

import "github.com/zoobzio/probez/internal/logger"

// MaxInstances is the number of concurrent instances a data source supports.
const MaxInstances = 32

// InstanceIndex identifies an instance slot of a data source.
type InstanceIndex uint32

// Logger is the structured logger used on the control path.
type Logger = logger.Logger

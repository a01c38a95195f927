// Package otelbridge records OpenTelemetry spans as probez track events.
//
// Register a SpanProcessor with an SDK tracer provider and every recorded
// span becomes a slice on its own named track. Child spans started in the
// same process hang below their parent's track. Span attributes are written
// as debug annotations on the closing event.
//
//	bridge := otelbridge.New(producer.TrackEvent(), nil)
//	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(bridge))
package otelbridge

import (
	"context"
	"encoding/binary"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/probez"
)

// CategoryName names the category New creates when given none.
const CategoryName = "otel"

// SpanProcessor is an sdktrace.SpanProcessor writing spans into a track
// event data source. Safe for concurrent use by multiple goroutines.
type SpanProcessor struct {
	te  *probez.TrackEvent
	cat *probez.Category

	// open maps the ids of started spans to their tracks so the end event
	// lands on the same track after a rename.
	open sync.Map
}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

// New returns a processor emitting on cat, registering it with te. A nil
// cat creates a CategoryName category tagged "otel".
func New(te *probez.TrackEvent, cat *probez.Category) *SpanProcessor {
	if cat == nil {
		cat = probez.NewCategory(CategoryName, "otel")
	}
	te.RegisterCategories(cat)
	return &SpanProcessor{te: te, cat: cat}
}

// Category returns the category spans are recorded on.
func (p *SpanProcessor) Category() *probez.Category {
	return p.cat
}

// OnStart opens a slice on the span's track.
func (p *SpanProcessor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	sc := s.SpanContext()
	parent := p.te.ProcessTrackUUID()
	if ps := s.Parent(); ps.IsValid() && !ps.IsRemote() {
		if v, ok := p.open.Load(ps.SpanID()); ok {
			parent = v.(probez.Track).UUID //nolint:errcheck // only Track is stored
		}
	}
	track := probez.NamedTrack(s.Name(), spanID(sc.SpanID()), parent)
	p.open.Store(sc.SpanID(), track)

	if !p.cat.Enabled() {
		return
	}
	p.te.Emit(p.cat, probez.SliceBegin(s.Name()),
		probez.OnTrack(track),
		probez.Timestamp(s.StartTime()),
		probez.ArgString("trace_id", sc.TraceID().String()),
		probez.ArgString("span_kind", s.SpanKind().String()),
	)
}

// OnEnd closes the span's slice, attaching its attributes and status.
func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	sc := s.SpanContext()
	v, ok := p.open.LoadAndDelete(sc.SpanID())
	if !ok || !p.cat.Enabled() {
		return
	}
	track := v.(probez.Track) //nolint:errcheck // only Track is stored

	attrs := s.Attributes()
	opts := make([]probez.EventOption, 0, len(attrs)+4)
	opts = append(opts, probez.OnTrack(track), probez.Timestamp(s.EndTime()))
	for _, kv := range attrs {
		opts = append(opts, attributeArg(kv))
	}
	if st := s.Status(); st.Code != codes.Unset {
		opts = append(opts, probez.ArgString("otel.status_code", st.Code.String()))
		if st.Description != "" {
			opts = append(opts, probez.ArgString("otel.status_description", st.Description))
		}
	}
	if n := s.DroppedAttributes(); n > 0 {
		opts = append(opts, probez.ArgInt64("otel.dropped_attributes", int64(n)))
	}
	p.te.Emit(p.cat, probez.SliceEnd(), opts...)
}

// Shutdown forgets spans still open.
func (p *SpanProcessor) Shutdown(ctx context.Context) error {
	p.open.Range(func(k, _ any) bool {
		p.open.Delete(k)
		return true
	})
	return ctx.Err()
}

// ForceFlush does nothing; events are written as spans start and end.
func (p *SpanProcessor) ForceFlush(ctx context.Context) error {
	return ctx.Err()
}

func spanID(id trace.SpanID) uint64 {
	return binary.BigEndian.Uint64(id[:])
}

func attributeArg(kv attribute.KeyValue) probez.EventOption {
	name := string(kv.Key)
	switch kv.Value.Type() {
	case attribute.BOOL:
		return probez.ArgBool(name, kv.Value.AsBool())
	case attribute.INT64:
		return probez.ArgInt64(name, kv.Value.AsInt64())
	case attribute.FLOAT64:
		return probez.ArgDouble(name, kv.Value.AsFloat64())
	case attribute.STRING:
		return probez.ArgString(name, kv.Value.AsString())
	default:
		return probez.ArgString(name, kv.Value.Emit())
	}
}

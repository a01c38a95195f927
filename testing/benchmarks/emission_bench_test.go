package benchmarks

import (
	"fmt"
	"testing"
	"time"

	"github.com/zoobzio/probez"
	"github.com/zoobzio/probez/protos"
)

func benchProducer(b *testing.B, sessions int, filters ...probez.CategoryFilter) (*probez.TrackEvent, *probez.Category) {
	b.Helper()
	p := probez.NewProducer()
	b.Cleanup(func() { _ = p.Close() })
	te := p.TrackEvent()
	cat := probez.NewCategory("bench")
	te.RegisterCategories(cat)

	for range sessions {
		s, err := p.StartSession(probez.SessionConfig{
			BufferSizeKB: 8 << 10,
			DataSources:  []probez.DataSourceConfig{{Name: probez.TrackEventDataSourceName, Categories: filters}},
		})
		if err != nil {
			b.Fatal(err)
		}
		// Keep the ring buffer from dominating memory stats.
		go func() {
			t := time.NewTicker(50 * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-s.Stopped():
					return
				case <-t.C:
					s.ReadBlocking()
				}
			}
		}()
	}
	return te, cat
}

// BenchmarkDisabledCategory measures the cost of an event nobody records.
// This is the path instrumented code takes almost always.
func BenchmarkDisabledCategory(b *testing.B) {
	te, cat := benchProducer(b, 0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		te.Emit(cat, probez.Instant("noop"))
	}
}

// BenchmarkDeniedCategory measures a session running whose filter rejects
// the category.
func BenchmarkDeniedCategory(b *testing.B) {
	te, cat := benchProducer(b, 1, probez.Deny("bench"))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		te.Emit(cat, probez.Instant("noop"))
	}
}

// BenchmarkInstant measures an interned instant into one session.
func BenchmarkInstant(b *testing.B) {
	te, cat := benchProducer(b, 1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		te.Emit(cat, probez.Instant("tick"))
	}
}

// BenchmarkInstantNoIntern writes the name inline instead.
func BenchmarkInstantNoIntern(b *testing.B) {
	te, cat := benchProducer(b, 1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		te.Emit(cat, probez.Instant("tick"), probez.NoIntern())
	}
}

// BenchmarkSliceWithArgs measures a begin/end pair carrying annotations.
func BenchmarkSliceWithArgs(b *testing.B) {
	te, cat := benchProducer(b, 1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		te.Emit(cat, probez.SliceBegin("work"),
			probez.ArgInt64("i", int64(i)),
			probez.ArgString("kind", "bench"),
			probez.ArgBool("hot", true))
		te.Emit(cat, probez.SliceEnd())
	}
}

// BenchmarkCounter measures counter samples on a registered track.
func BenchmarkCounter(b *testing.B) {
	te, cat := benchProducer(b, 1)
	track := te.RegisterCounterTrack("depth", 0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		te.Emit(cat, probez.Counter(), probez.OnRegisteredTrack(track), probez.IntCounter(int64(i)))
	}
}

// BenchmarkFanOut measures one event delivered to several sessions.
func BenchmarkFanOut(b *testing.B) {
	for _, n := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("sessions-%d", n), func(b *testing.B) {
			te, cat := benchProducer(b, n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				te.Emit(cat, probez.Instant("tick"))
			}
		})
	}
}

// BenchmarkDataSourceTrace measures a custom data source writing a raw
// packet.
func BenchmarkDataSourceTrace(b *testing.B) {
	p := probez.NewProducer()
	b.Cleanup(func() { _ = p.Close() })
	ds, err := p.Register("bench.raw", &probez.HandlerFuncs{}, probez.Params{})
	if err != nil {
		b.Fatal(err)
	}
	if _, err := p.StartSession(probez.SessionConfig{
		BufferSizeKB: 8 << 10,
		DataSources:  []probez.DataSourceConfig{{Name: "bench.raw"}},
	}); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ds.Trace(func(tc *probez.TraceContext) {
			pkt := tc.NewPacket()
			pkt.AppendVarint(protos.TracePacketTimestamp, uint64(i)) //nolint:gosec // loop index
			pkt.End()
		})
	}
}

package reliability

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/probez"
	"github.com/zoobzio/probez/tracedb"
)

// Buffer saturation tests - verify sessions stay consistent when emitters
// outrun the buffer.
// Environment: PROBEZ_RELIABILITY_LEVEL controls test intensity
//   basic: CI-safe saturation checks
//   stress: sustained saturation for PROBEZ_RELIABILITY_DURATION

func TestBufferSaturation(t *testing.T) {
	config := getReliabilityConfig()

	switch config.Level {
	case "basic":
		t.Run("ring_keeps_newest", func(t *testing.T) { testRingKeepsNewest(t, config) })
		t.Run("discard_keeps_oldest", func(t *testing.T) { testDiscardKeepsOldest(t, config) })
	case "stress":
		t.Run("sustained_pressure", func(t *testing.T) { testSustainedPressure(t, config) })
	default:
		t.Skip("PROBEZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
}

type saturation struct {
	p   *probez.Producer
	te  *probez.TrackEvent
	cat *probez.Category
	s   *probez.Session
}

func saturate(t *testing.T, policy probez.FillPolicy, bufferKB uint32) *saturation {
	t.Helper()
	p := probez.NewProducer()
	t.Cleanup(func() { _ = p.Close() })
	te := p.TrackEvent()
	cat := probez.NewCategory("flood")
	te.RegisterCategories(cat)
	s, err := p.StartSession(probez.SessionConfig{
		BufferSizeKB: bufferKB,
		FillPolicy:   policy,
		DataSources:  []probez.DataSourceConfig{{Name: probez.TrackEventDataSourceName}},
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return &saturation{p: p, te: te, cat: cat, s: s}
}

// flood emits n numbered instants from each of workers goroutines.
func (f *saturation) flood(workers, n int) {
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := f.p.NewThread()
			defer th.Close()
			for i := range n {
				f.te.EmitOn(th, f.cat, probez.Instant("flood"),
					probez.ArgInt64("i", int64(i)),
					probez.ArgString("pad", "0123456789abcdef0123456789abcdef"))
			}
		}()
	}
	wg.Wait()
}

func decode(t *testing.T, s *probez.Session) []tracedb.Packet {
	t.Helper()
	if err := s.StopBlocking(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	packets, _, err := tracedb.NewDecoder().Decode(s.ReadBlocking())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return packets
}

func testRingKeepsNewest(t *testing.T, config ReliabilityConfig) {
	f := saturate(t, probez.FillRingBuffer, config.BufferSizeKB)
	f.flood(8, 2000)

	if f.s.DroppedPackets() == 0 {
		t.Fatal("expected the ring buffer to overwrite packets")
	}
	packets := decode(t, f.s)
	var lastSeen, lossMarked bool
	for _, p := range packets {
		if p.PreviousDropped {
			lossMarked = true
		}
		for _, a := range p.Args {
			if a.Name == "i" && a.Value == "1999" {
				lastSeen = true
			}
		}
	}
	if !lastSeen {
		t.Error("newest packets were not kept")
	}
	if !lossMarked {
		t.Error("no packet marks the preceding loss")
	}
}

func testDiscardKeepsOldest(t *testing.T, config ReliabilityConfig) {
	f := saturate(t, probez.FillDiscard, config.BufferSizeKB)
	f.flood(1, 5000)

	if f.s.DroppedPackets() == 0 {
		t.Fatal("expected the discard buffer to drop packets")
	}
	packets := decode(t, f.s)
	var first bool
	for _, p := range packets {
		for _, a := range p.Args {
			if a.Name == "i" && a.Value == "0" {
				first = true
			}
			if a.Name == "i" && a.Value == "4999" {
				t.Error("discard buffer kept a packet written after it filled")
			}
		}
	}
	if !first {
		t.Error("oldest packet was not kept")
	}
}

func testSustainedPressure(t *testing.T, config ReliabilityConfig) {
	f := saturate(t, probez.FillRingBuffer, config.BufferSizeKB)

	var stop atomic.Bool
	var emitted atomic.Int64
	var wg sync.WaitGroup
	for range config.MaxGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				f.te.Emit(f.cat, probez.Instant("flood"))
				emitted.Add(1)
			}
		}()
	}

	// Drain concurrently the way an exporter would.
	deadline := time.Now().Add(config.Duration)
	var read int
	for time.Now().Before(deadline) {
		raw := f.s.ReadBlocking()
		packets, _, err := tracedb.NewDecoder().Decode(raw)
		if err != nil {
			t.Fatalf("decode while draining: %v", err)
		}
		read += len(packets)
		time.Sleep(10 * time.Millisecond)
	}
	stop.Store(true)
	wg.Wait()

	t.Logf("emitted %d, read %d, dropped %d", emitted.Load(), read, f.s.DroppedPackets())
	if read == 0 {
		t.Error("nothing read under sustained pressure")
	}
}

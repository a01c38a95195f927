package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/probez"
)

// workload emits a mix of slices, instants, counters and dynamic category
// events from a set of goroutines.
type workload struct {
	p     *probez.Producer
	te    *probez.TrackEvent
	cpu   *probez.Category
	io    *probez.Category
	queue *probez.RegisteredTrack
}

func newWorkload(p *probez.Producer) *workload {
	te := p.TrackEvent()
	w := &workload{
		p:   p,
		te:  te,
		cpu: probez.NewCategory("workload.cpu", "workload"),
		io:  probez.NewCategory("workload.io", "workload", "slow"),
	}
	te.RegisterCategories(w.cpu, w.io)
	w.queue = te.RegisterCounterTrack("queue_depth", 0)
	return w
}

// close unregisters what newWorkload registered.
func (w *workload) close() {
	w.queue.Unregister()
	w.te.UnregisterCategories(w.cpu, w.io)
}

// run drives workers goroutines until ctx is done. Each worker traces on its
// own explicit thread.
func (w *workload) run(ctx context.Context, workers int) error {
	if workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", workers)
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error {
			th := w.p.NewThread()
			defer th.Close()
			return w.worker(ctx, th, i)
		})
	}
	return g.Wait()
}

func (w *workload) worker(ctx context.Context, th *probez.Thread, id int) error {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	track := probez.NamedTrack(fmt.Sprintf("worker-%d", id), uint64(id), 0) //nolint:gosec // small ids
	for n := uint64(0); ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}

		w.te.EmitOn(th, w.cpu, probez.SliceBegin("compute"), probez.ArgInt64("iteration", int64(n))) //nolint:gosec // counter
		sum := spin(rand.IntN(2000))
		w.te.EmitOn(th, w.cpu, probez.SliceEnd(), probez.ArgUint64("checksum", sum))

		bytes := uint64(rand.IntN(64 << 10)) //nolint:gosec // non-negative
		w.te.EmitOn(th, w.io, probez.Instant("read"), probez.OnTrack(track), probez.ArgUint64("bytes", bytes))
		w.te.EmitOn(th, w.io, probez.Counter(), probez.OnRegisteredTrack(w.queue), probez.IntCounter(int64(rand.IntN(32))))

		if n%64 == 0 {
			w.te.EmitOn(th, w.te.DynamicCategory(), probez.Instant("checkpoint"),
				probez.DynamicCategoryName(fmt.Sprintf("workload.dyn.%d", id)))
		}
	}
}

func spin(n int) uint64 {
	var x uint64
	for i := range n {
		x += uint64(i) * 2654435761 //nolint:gosec // hashing noise
	}
	return x
}

package probez

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"

	"github.com/zoobzio/probez/internal/logger"
)

// Producer owns a set of data sources together with the sessions and
// threads that trace them. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Producer struct {
	name       string
	clock      clockz.Clock
	log        Logger
	sources    map[string]*DataSource
	sessions   map[*Session]struct{}
	triggers   *workerPool
	trackEvent *TrackEvent
	implicit   sync.Map // goroutine id -> *Thread
	mu         sync.Mutex
	pid        int

	triggerWorkers int
	triggerQueue   int

	// epoch changes whenever an instance stops or is destroyed; threads run
	// their housekeeping pass when they observe a new value.
	epoch           atomic.Uint64
	nextSequence    atomic.Uint32
	nextTID         atomic.Uint64
	implicitCount   atomic.Uint64
	reaping         atomic.Bool
	droppedTriggers atomic.Uint64
	closed          atomic.Bool
}

// Option configures a Producer.
type Option func(*Producer)

// WithClock sets the clock used for timestamps, timeouts and delays.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(p *Producer) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the control-path logger. The default discards everything.
func WithLogger(l Logger) Option {
	return func(p *Producer) {
		if l != nil {
			p.log = l
		}
	}
}

// WithName sets the producer name recorded in trigger packets.
func WithName(name string) Option {
	return func(p *Producer) {
		p.name = name
	}
}

// WithTriggerWorkers sizes the pool delivering triggers to sessions.
func WithTriggerWorkers(workers, queueSize int) Option {
	return func(p *Producer) {
		p.triggerWorkers = workers
		p.triggerQueue = queueSize
	}
}

// NewSlogLogger adapts a *slog.Logger for WithLogger.
func NewSlogLogger(l *slog.Logger) Logger {
	return logger.NewSlogAdapter(l)
}

// explicitTIDBase keeps explicit thread ids clear of goroutine ids.
const explicitTIDBase = 1 << 48

// NewProducer creates a producer with the built-in track event data source
// already registered.
func NewProducer(opts ...Option) *Producer {
	p := &Producer{
		name:           "probez",
		clock:          clockz.RealClock,
		log:            &logger.NoopLogger{},
		sources:        make(map[string]*DataSource),
		sessions:       make(map[*Session]struct{}),
		pid:            os.Getpid(),
		triggerWorkers: 1,
		triggerQueue:   64,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.nextTID.Store(explicitTIDBase)

	pool, err := newWorkerPool(p.triggerWorkers, p.triggerQueue, &p.droppedTriggers)
	if err != nil {
		p.log.Warn("invalid trigger pool size, using defaults", "err", err)
		pool, _ = newWorkerPool(1, 64, &p.droppedTriggers) //nolint:errcheck // constant sizes
	}
	p.triggers = pool

	p.trackEvent = newTrackEvent(p)
	return p
}

// Name returns the producer name.
func (p *Producer) Name() string {
	return p.name
}

// TrackEvent returns the built-in track event data source.
func (p *Producer) TrackEvent() *TrackEvent {
	return p.trackEvent
}

// DroppedTriggers returns the number of trigger deliveries dropped because
// the trigger queue was full.
func (p *Producer) DroppedTriggers() uint64 {
	return p.droppedTriggers.Load()
}

func (p *Producer) now() uint64 {
	return uint64(p.clock.Now().UnixNano()) //nolint:gosec // wall clock is positive
}

func (p *Producer) addSession(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s] = struct{}{}
}

func (p *Producer) removeSession(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, s)
}

func (p *Producer) liveSessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, 0, len(p.sessions))
	for s := range p.sessions {
		out = append(out, s)
	}
	return out
}

// Close stops every session and shuts down the trigger workers.
// This should be called when the producer is no longer needed.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	for _, s := range p.liveSessions() {
		if err := s.StopBlocking(); err != nil {
			errs = append(errs, err)
		}
	}

	// Wait for in-flight trigger deliveries.
	p.triggers.shutdown()
	return errors.Join(errs...)
}

// workerPool runs fire-and-forget tasks on a fixed number of goroutines.
// Tasks submitted while the queue is full are dropped and counted.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks    chan func()
	stop     chan struct{}
	dropped  *atomic.Uint64
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newWorkerPool(workers, queueSize int, dropped *atomic.Uint64) (*workerPool, error) {
	if workers <= 0 {
		return nil, errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return nil, errors.New("queueSize must be > 0")
	}

	w := &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: dropped,
	}
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run()
	}
	return w, nil
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			// Drain what was accepted before shutdown.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (w *workerPool) submit(task func()) bool {
	select {
	case <-w.stop:
		w.dropped.Add(1)
		return false
	default:
	}
	select {
	case w.tasks <- task:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *workerPool) shutdown() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
}

package probez

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/mock/gomock"
)

type mockState struct{ name string }

func TestLifecycleOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockCallbacks(ctrl)
	p := newTestProducer(t)

	_, err := p.Register(testDataSource, mock, Params{})
	require.NoError(t, err)

	state := &mockState{name: "instance"}
	var setupIdx InstanceIndex
	gomock.InOrder(
		mock.EXPECT().OnSetup(gomock.Any(), gomock.Any()).DoAndReturn(
			func(idx InstanceIndex, config []byte) (any, error) {
				setupIdx = idx
				cfg, err := ParseDataSourceConfig(config)
				require.NoError(t, err)
				assert.Equal(t, testDataSource, cfg.Name)
				return state, nil
			}),
		mock.EXPECT().OnStart(gomock.Any(), state).Do(func(idx InstanceIndex, _ any) {
			assert.Equal(t, setupIdx, idx)
		}),
		mock.EXPECT().OnStop(gomock.Any(), state, gomock.Any()).Do(func(idx InstanceIndex, _ any, _ *StopArgs) {
			assert.Equal(t, setupIdx, idx)
		}),
		mock.EXPECT().OnDestroy(state),
	)

	s := startSession(t, p, DataSourceConfig{Name: testDataSource})
	require.NoError(t, s.StopBlocking())
	require.NoError(t, s.StopBlocking())
}

func TestPostponedStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockCallbacks(ctrl)
	p := newTestProducer(t)

	_, err := p.Register(testDataSource, mock, Params{})
	require.NoError(t, err)

	stoppers := make(chan *AsyncStopper, 1)
	destroyed := make(chan struct{})
	mock.EXPECT().OnSetup(gomock.Any(), gomock.Any()).Return(nil, nil)
	mock.EXPECT().OnStart(gomock.Any(), gomock.Any())
	mock.EXPECT().OnStop(gomock.Any(), gomock.Any(), gomock.Any()).Do(
		func(_ InstanceIndex, _ any, args *StopArgs) {
			stoppers <- args.Postpone()
		})
	mock.EXPECT().OnDestroy(gomock.Any()).Do(func(any) { close(destroyed) })

	s := startSession(t, p, DataSourceConfig{Name: testDataSource})
	stopped := make(chan error, 1)
	go func() { stopped <- s.StopBlocking() }()

	// Nothing but StopDone can release the stop.
	stopper := <-stoppers
	select {
	case <-stopped:
		t.Fatal("stop completed before StopDone")
	case <-destroyed:
		t.Fatal("destroyed before StopDone")
	default:
	}

	stopper.StopDone()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("stop did not complete")
	}
	<-destroyed
	assert.Panics(t, stopper.StopDone)
}

func TestPostponedStopUnderConcurrentEmission(t *testing.T) {
	p := newTestProducer(t)

	var (
		inFlight  atomic.Int32
		emitted   atomic.Int64
		afterDone atomic.Bool
	)
	stoppers := make(chan *AsyncStopper, 1)
	destroyed := make(chan struct{})
	ds := registerFuncs(t, p, testDataSource, &HandlerFuncs{
		Stop: func(_ InstanceIndex, _ any, args *StopArgs) {
			stoppers <- args.Postpone()
		},
		Destroy: func(any) {
			assert.Zero(t, inFlight.Load(), "destroyed with an emission in flight")
			afterDone.Store(true)
			close(destroyed)
		},
	})
	s := startSession(t, p, DataSourceConfig{Name: testDataSource})

	const emitters = 4
	var (
		quit atomic.Bool
		wg   sync.WaitGroup
	)
	for range emitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !quit.Load() {
				ds.Trace(func(*TraceContext) {
					inFlight.Add(1)
					if afterDone.Load() {
						t.Error("traced after destroy")
					}
					emitted.Add(1)
					runtime.Gosched()
					inFlight.Add(-1)
				})
			}
		}()
	}
	t.Cleanup(func() {
		quit.Store(true)
		wg.Wait()
	})
	require.Eventually(t, func() bool { return emitted.Load() >= emitters }, testWait, testTick)

	stopped := make(chan error, 1)
	go func() { stopped <- s.StopBlocking() }()

	stopper := <-stoppers
	assert.False(t, ds.Enabled())
	select {
	case <-stopped:
		t.Fatal("stop completed before StopDone")
	case <-destroyed:
		t.Fatal("destroyed before StopDone")
	default:
	}

	stopper.StopDone()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("stop did not complete")
	}
	<-destroyed
}

func TestPostponedFlush(t *testing.T) {
	p := newTestProducer(t)
	flushers := make(chan *AsyncFlusher, 1)
	registerFuncs(t, p, testDataSource, &HandlerFuncs{
		Flush: func(_ InstanceIndex, _ any, args *FlushArgs) {
			flushers <- args.Postpone()
		},
	})
	s := startSession(t, p, DataSourceConfig{Name: testDataSource})

	result := make(chan bool, 1)
	go func() { result <- s.FlushBlocking(0) }()

	flusher := <-flushers
	select {
	case <-result:
		t.Fatal("flush completed before FlushDone")
	default:
	}
	flusher.FlushDone()
	assert.True(t, <-result)
}

func TestFlushTimeout(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := newTestProducer(t, WithClock(clock))
	flushers := make(chan *AsyncFlusher, 1)
	registerFuncs(t, p, testDataSource, &HandlerFuncs{
		Flush: func(_ InstanceIndex, _ any, args *FlushArgs) {
			flushers <- args.Postpone()
		},
	})
	s := startSession(t, p, DataSourceConfig{Name: testDataSource})

	result := make(chan bool, 1)
	go func() { result <- s.FlushBlocking(20 * time.Millisecond) }()
	flusher := <-flushers
	require.Eventually(t, clock.HasWaiters, testWait, testTick)

	clock.Advance(10 * time.Millisecond)
	clock.BlockUntilReady()
	select {
	case <-result:
		t.Fatal("flush gave up before its timeout")
	default:
	}

	clock.Advance(10 * time.Millisecond)
	clock.BlockUntilReady()
	assert.False(t, <-result)

	// Completing after the timeout is allowed once.
	assert.NotPanics(t, flusher.FlushDone)
	assert.Panics(t, flusher.FlushDone)
}

func TestFlushPinsInstanceAgainstStop(t *testing.T) {
	p := newTestProducer(t)

	var flushing atomic.Bool
	entered, leave := make(chan struct{}), make(chan struct{})
	destroyedMidFlush := make(chan bool, 1)
	ds := registerFuncs(t, p, testDataSource, &HandlerFuncs{
		Setup: func(InstanceIndex, []byte) (any, error) {
			return &mockState{name: "flushed"}, nil
		},
		Flush: func(_ InstanceIndex, state any, _ *FlushArgs) {
			flushing.Store(true)
			close(entered)
			<-leave
			st, ok := state.(*mockState)
			if assert.True(t, ok) {
				assert.Equal(t, "flushed", st.name)
			}
			flushing.Store(false)
		},
		Destroy: func(any) { destroyedMidFlush <- flushing.Load() },
	})
	s := startSession(t, p, DataSourceConfig{Name: testDataSource})

	flushed := make(chan bool, 1)
	go func() { flushed <- s.FlushBlocking(0) }()
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.StopBlocking() }()
	require.Eventually(t, func() bool { return !ds.Enabled() }, testWait, testTick)
	assert.Never(t, func() bool { return len(destroyedMidFlush) > 0 }, 50*time.Millisecond, testTick)

	close(leave)
	assert.True(t, <-flushed)
	require.NoError(t, <-stopped)
	assert.False(t, <-destroyedMidFlush)
}

func TestFlushSkipsStoppingInstance(t *testing.T) {
	p := newTestProducer(t)
	stoppers := make(chan *AsyncStopper, 1)
	registerFuncs(t, p, testDataSource, &HandlerFuncs{
		Stop: func(_ InstanceIndex, _ any, args *StopArgs) {
			stoppers <- args.Postpone()
		},
		Flush: func(InstanceIndex, any, *FlushArgs) { t.Error("flushed a stopping instance") },
	})
	s := startSession(t, p, DataSourceConfig{Name: testDataSource})
	refs := s.startedInstances()
	require.Len(t, refs, 1)

	stopped := make(chan error, 1)
	go func() { stopped <- s.StopBlocking() }()
	stopper := <-stoppers

	done := make(chan struct{})
	refs[0].ds.flushInstance(refs[0].idx, func() { close(done) })
	<-done

	stopper.StopDone()
	require.NoError(t, <-stopped)
}

func TestFlushWithoutPostponeCompletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockCallbacks(ctrl)
	p := newTestProducer(t)
	_, err := p.Register(testDataSource, mock, Params{})
	require.NoError(t, err)

	mock.EXPECT().OnSetup(gomock.Any(), gomock.Any()).Return("st", nil)
	mock.EXPECT().OnStart(gomock.Any(), "st")
	mock.EXPECT().OnFlush(gomock.Any(), "st", gomock.Any()).Times(2)
	mock.EXPECT().OnStop(gomock.Any(), "st", gomock.Any())
	mock.EXPECT().OnDestroy("st")

	s := startSession(t, p, DataSourceConfig{Name: testDataSource})
	assert.True(t, s.FlushBlocking(time.Second))
	assert.True(t, s.FlushBlocking(0))
	require.NoError(t, s.StopBlocking())

	// A stopped session has nothing to flush.
	assert.True(t, s.FlushBlocking(time.Second))
}

func TestSetupFailureSkipsDestroy(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockCallbacks(ctrl)
	p := newTestProducer(t)
	_, err := p.Register(testDataSource, mock, Params{})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.EXPECT().OnSetup(gomock.Any(), gomock.Any()).Return(nil, boom)

	s, err := p.StartSession(SessionConfig{DataSources: []DataSourceConfig{{Name: testDataSource}}})
	require.ErrorIs(t, err, boom)
	require.NoError(t, s.StopBlocking())
}

func TestStopDrainsInFlightEmission(t *testing.T) {
	p := newTestProducer(t)
	destroyed := make(chan struct{})
	ds := registerFuncs(t, p, testDataSource, &HandlerFuncs{
		Destroy: func(any) { close(destroyed) },
	})
	s := startSession(t, p, DataSourceConfig{Name: testDataSource})

	inside := make(chan struct{})
	leave := make(chan struct{})
	go ds.Trace(func(*TraceContext) {
		close(inside)
		<-leave
	})
	<-inside

	stopped := make(chan struct{})
	go func() {
		assert.NoError(t, s.StopBlocking())
		close(stopped)
	}()

	select {
	case <-destroyed:
		t.Fatal("destroyed while an emission was running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, ds.Enabled())

	close(leave)
	<-stopped
	<-destroyed
}

func TestSessionStateErrors(t *testing.T) {
	p := newTestProducer(t)
	s := p.NewSession()

	assert.ErrorIs(t, s.StartBlocking(), ErrSessionState)
	require.NoError(t, s.Setup(SessionConfig{}.Encode()))
	assert.ErrorIs(t, s.Setup(SessionConfig{}.Encode()), ErrSessionState)
	require.NoError(t, s.StartBlocking())
	assert.ErrorIs(t, s.StartBlocking(), ErrSessionState)
	require.NoError(t, s.StopBlocking())

	select {
	case <-s.Stopped():
	default:
		t.Fatal("stopped channel not closed")
	}
	s.WaitForStopped()
}

func TestSetupRejectsMalformedConfig(t *testing.T) {
	p := newTestProducer(t)
	s := p.NewSession()
	assert.ErrorIs(t, s.Setup([]byte{0x0a, 0x05, 0x01}), ErrInvalidConfig)
}

func TestDurationStopsSession(t *testing.T) {
	clock := clockz.NewFakeClock()
	p := newTestProducer(t, WithClock(clock))
	registerFuncs(t, p, testDataSource, &HandlerFuncs{})

	s, err := p.StartSession(SessionConfig{
		DurationMs:  20,
		DataSources: []DataSourceConfig{{Name: testDataSource}},
	})
	require.NoError(t, err)
	require.Eventually(t, clock.HasWaiters, testWait, testTick)

	clock.Advance(20 * time.Millisecond)
	clock.BlockUntilReady()
	select {
	case <-s.Stopped():
	case <-time.After(testWait):
		t.Fatal("session did not stop after its duration")
	}
}

func TestInstanceStateString(t *testing.T) {
	assert.Equal(t, "started", stateStarted.String())
	assert.Equal(t, "destroyed", stateDestroyed.String())
	assert.Equal(t, "unknown", instanceState(99).String())
	assert.Equal(t, "armed", sessionArmed.String())
}

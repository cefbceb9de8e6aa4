package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/automute/internal/classifier"
	"github.com/relabs-tech/automute/internal/guard"
	"github.com/relabs-tech/automute/internal/ringer"
	"github.com/relabs-tech/automute/internal/sensors"
)

// fakeHost is a guard provider and actuator that remembers the mode.
type fakeHost struct {
	mu      sync.Mutex
	state   guard.State
	mode    ringer.Mode
	calls   []ringer.Mode
	setErr  error
	readErr error
	reads   int
}

func newFakeHost() *fakeHost {
	return &fakeHost{state: guard.State{InterruptionFilterAllowsAll: true}}
}

func (h *fakeHost) QueryGuardState() guard.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *fakeHost) SetRingerMode(m ringer.Mode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, m)
	if h.setErr != nil {
		return h.setErr
	}
	h.mode = m
	return nil
}

func (h *fakeHost) CurrentMode() (ringer.Mode, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads++
	return h.mode, h.readErr
}

func (h *fakeHost) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// plainActuator has no ModeReader.
type plainActuator struct{ calls []ringer.Mode }

func (a *plainActuator) SetRingerMode(m ringer.Mode) error {
	a.calls = append(a.calls, m)
	return nil
}

func ms(n int64) int64 { return n * int64(time.Millisecond) }

func lightTilt() Settings {
	return DefaultSettings()
}

func proximity(threshold float64, debounce time.Duration) Settings {
	th := classifier.DefaultThresholds()
	th.ProximityCm = threshold
	return Settings{Classifier: classifier.Proximity, Thresholds: th, DebounceInterval: debounce}
}

// pocketAccel yields gravity.y ≈ -0.996 and an 85° inclination.
func pocketAccel(ts int64) sensors.Reading {
	return sensors.Acceleration(ts, 0, -0.8, 0.07)
}

func TestLightTiltPocketScenario(t *testing.T) {
	h := newFakeHost()
	e := New(h, h)
	e.Start(lightTilt())

	require.NoError(t, e.OnSensorEvent(sensors.Light(ms(0), 5)))
	assert.Equal(t, 0, h.callCount(), "orientation unknown, stays open")

	require.NoError(t, e.OnSensorEvent(pocketAccel(ms(400))))
	assert.Equal(t, []ringer.Mode{ringer.Vibrate}, h.calls)

	snap := e.Snapshot()
	assert.Equal(t, ringer.Vibrate, snap.Mode)
	assert.Equal(t, 85.0, snap.Input.Orientation.Inclination)
	assert.Equal(t, uint64(2), snap.Stats.Evaluations)
	assert.Equal(t, uint64(1), snap.Stats.Transitions)
}

func TestDisplayInteractiveVeto(t *testing.T) {
	h := newFakeHost()
	h.state.DisplayInteractive = true
	e := New(h, h)
	e.Start(lightTilt())

	require.NoError(t, e.OnSensorEvent(sensors.Light(ms(0), 5)))
	require.NoError(t, e.OnSensorEvent(pocketAccel(ms(400))))

	assert.Empty(t, h.calls)
	snap := e.Snapshot()
	assert.Equal(t, ringer.Normal, snap.Mode)
	assert.Equal(t, uint64(2), snap.Stats.Vetoes)
}

func TestDoNotDisturbWins(t *testing.T) {
	h := newFakeHost()
	h.state = guard.State{InterruptionFilterAllowsAll: false}

	var got []Evaluation
	e := New(h, h, ListenerFunc(func(ev Evaluation) { got = append(got, ev) }))
	e.Start(proximity(1.0, 0))

	require.NoError(t, e.OnSensorEvent(sensors.Proximity(ms(0), 0)))

	assert.Empty(t, h.calls)
	require.Len(t, got, 1)
	assert.True(t, got[0].Enclosed)
	assert.Equal(t, "interruption_filter", got[0].Veto)
	assert.False(t, got[0].Changed)
}

func TestCallActiveVeto(t *testing.T) {
	h := newFakeHost()
	h.state.CallActive = true
	e := New(h, h)
	e.Start(proximity(1.0, 0))

	require.NoError(t, e.OnSensorEvent(sensors.Proximity(ms(0), 0.2)))
	assert.Empty(t, h.calls)
}

func TestProximityScenario(t *testing.T) {
	h := newFakeHost()
	var evals []Evaluation
	e := New(h, h, ListenerFunc(func(ev Evaluation) { evals = append(evals, ev) }))
	e.Start(proximity(1.0, 300*time.Millisecond))

	for i := int64(0); i < 6; i++ {
		require.NoError(t, e.OnSensorEvent(sensors.Proximity(ms(i*50), 0.5)))
	}
	require.Len(t, evals, 1, "only the first reading passes the debounce gate")
	assert.True(t, evals[0].Enclosed)
	assert.Equal(t, []ringer.Mode{ringer.Vibrate}, h.calls)

	snap := e.Snapshot()
	assert.Equal(t, uint64(5), snap.Stats.Dropped)
	assert.Equal(t, uint64(1), snap.Stats.Evaluations)

	require.NoError(t, e.OnSensorEvent(sensors.Proximity(ms(400), 2.0)))
	require.Len(t, evals, 2)
	assert.False(t, evals[1].Enclosed)
	assert.Equal(t, []ringer.Mode{ringer.Vibrate, ringer.Normal}, h.calls)
}

func TestIdempotentActuation(t *testing.T) {
	h := newFakeHost()
	e := New(h, h)
	e.Start(proximity(1.0, 100*time.Millisecond))

	for i := int64(0); i < 10; i++ {
		require.NoError(t, e.OnSensorEvent(sensors.Proximity(ms(i*200), 0.1)))
	}
	assert.Equal(t, []ringer.Mode{ringer.Vibrate}, h.calls)
	assert.Equal(t, uint64(10), e.Snapshot().Stats.Evaluations)

	for i := int64(10); i < 20; i++ {
		require.NoError(t, e.OnSensorEvent(sensors.Proximity(ms(i*200), 5)))
	}
	assert.Equal(t, []ringer.Mode{ringer.Vibrate, ringer.Normal}, h.calls)
}

func TestCoalescesReadingsInsideWindow(t *testing.T) {
	h := newFakeHost()
	var evals []Evaluation
	e := New(h, h, ListenerFunc(func(ev Evaluation) { evals = append(evals, ev) }))
	e.Start(lightTilt())

	require.NoError(t, e.OnSensorEvent(sensors.Light(ms(0), 5)))
	// Arrives inside the window: stored, not evaluated.
	require.NoError(t, e.OnSensorEvent(pocketAccel(ms(50))))
	require.Len(t, evals, 1)
	assert.Empty(t, h.calls)

	// Next accepted reading sees both values.
	require.NoError(t, e.OnSensorEvent(sensors.Light(ms(350), 4)))
	require.Len(t, evals, 2)
	assert.True(t, evals[1].Enclosed)
	assert.Equal(t, "light", evals[1].Trigger)
	assert.Equal(t, []ringer.Mode{ringer.Vibrate}, h.calls)
}

func TestIgnoresReadingsTheStrategyDoesNotUse(t *testing.T) {
	h := newFakeHost()
	h.mode = ringer.Vibrate
	e := New(h, h)
	e.Start(proximity(1.0, 0))

	require.NoError(t, e.OnSensorEvent(sensors.Light(ms(0), 500)))
	require.NoError(t, e.OnSensorEvent(sensors.Acceleration(ms(10), 0, 0, 9.8)))

	assert.Empty(t, h.calls, "light and accel must not unmute a proximity session")
	snap := e.Snapshot()
	assert.Equal(t, uint64(2), snap.Stats.Ignored)
	assert.Equal(t, uint64(0), snap.Stats.Evaluations)
}

func TestDegenerateAccelerationKeepsEstimate(t *testing.T) {
	h := newFakeHost()
	e := New(h, h)
	e.Start(lightTilt())

	require.NoError(t, e.OnSensorEvent(pocketAccel(ms(0))))
	require.NoError(t, e.OnSensorEvent(sensors.Acceleration(ms(500), 0, 0, 0)))

	snap := e.Snapshot()
	assert.Equal(t, uint64(1), snap.Stats.Degenerate)
	assert.Equal(t, uint64(1), snap.Stats.Evaluations)
	assert.Equal(t, 85.0, snap.Input.Orientation.Inclination)

	// The zero sample did not consume the debounce slot.
	require.NoError(t, e.OnSensorEvent(sensors.Light(ms(300), 1)))
	assert.Equal(t, []ringer.Mode{ringer.Vibrate}, h.calls)
}

func TestStopStartRoundTrip(t *testing.T) {
	h := newFakeHost()
	e := New(h, h)
	first := e.Start(lightTilt())

	require.NoError(t, e.OnSensorEvent(sensors.Light(ms(0), 5)))
	require.NoError(t, e.OnSensorEvent(pocketAccel(ms(400))))
	require.Equal(t, ringer.Vibrate, h.mode)

	e.Stop()
	assert.False(t, e.Running())
	require.NoError(t, e.OnSensorEvent(sensors.Light(ms(800), 5)))
	assert.Len(t, h.calls, 1, "no evaluation after stop")

	second := e.Start(lightTilt())
	assert.NotEqual(t, first.ID(), second.ID())

	snap := e.Snapshot()
	assert.Equal(t, ringer.Vibrate, snap.Mode, "initial mode read back from the host")
	assert.False(t, snap.Input.HaveLux)
	assert.False(t, snap.Input.HaveOrientation)

	// Same pose, no light yet: unknown input is open.
	var evals []Evaluation
	e.AddListener(ListenerFunc(func(ev Evaluation) { evals = append(evals, ev) }))
	require.NoError(t, e.OnSensorEvent(pocketAccel(ms(1200))))
	require.Len(t, evals, 1)
	assert.False(t, evals[0].Enclosed)
	assert.Equal(t, []ringer.Mode{ringer.Vibrate, ringer.Normal}, h.calls)
}

func TestStartStopIdempotent(t *testing.T) {
	h := newFakeHost()
	e := New(h, h)

	e.Stop()
	assert.False(t, e.Running())

	s1 := e.Start(lightTilt())
	s2 := e.Start(proximity(1.0, 0))
	assert.Same(t, s1, s2)
	assert.Equal(t, classifier.LightTilt, s2.Strategy().Kind)

	e.Stop()
	e.Stop()
	assert.False(t, e.Running())
	assert.Equal(t, Snapshot{}, e.Snapshot())
}

func TestActuatorFailure(t *testing.T) {
	h := newFakeHost()
	h.setErr = errors.New("policy access not granted")
	var evals []Evaluation
	e := New(h, h, ListenerFunc(func(ev Evaluation) { evals = append(evals, ev) }))
	e.Start(proximity(1.0, 0))

	err := e.OnSensorEvent(sensors.Proximity(ms(0), 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ringer.ErrActuatorFailure)
	require.Len(t, evals, 1)
	assert.NotEmpty(t, evals[0].Error)

	snap := e.Snapshot()
	assert.True(t, snap.Stale)
	assert.Equal(t, ringer.Vibrate, snap.Mode, "record is not rolled back")
	assert.Equal(t, uint64(1), snap.Stats.ActuatorErrors)

	// Next evaluation re-reads the device (still normal) and retries
	// the change on its own merits.
	h.setErr = nil
	readsBefore := h.reads
	require.NoError(t, e.OnSensorEvent(sensors.Proximity(ms(10), 0)))
	assert.Equal(t, readsBefore+1, h.reads)
	assert.Equal(t, []ringer.Mode{ringer.Vibrate, ringer.Vibrate}, h.calls)
	assert.False(t, e.Snapshot().Stale)
}

func TestActuatorWithoutModeReader(t *testing.T) {
	act := &plainActuator{}
	e := New(guard.ProviderFunc(func() guard.State {
		return guard.State{InterruptionFilterAllowsAll: true}
	}), act)
	e.Start(proximity(1.0, 0))

	require.NoError(t, e.OnSensorEvent(sensors.Proximity(0, 3)))
	assert.Empty(t, act.calls, "assumed normal at start")

	require.NoError(t, e.OnSensorEvent(sensors.Proximity(1, 0)))
	assert.Equal(t, []ringer.Mode{ringer.Vibrate}, act.calls)
}

func TestConcurrentEventsTransitionOnce(t *testing.T) {
	h := newFakeHost()
	e := New(h, h)
	e.Start(proximity(1.0, 0))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = e.OnSensorEvent(sensors.Proximity(int64(g*1000+i), 0.3))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 1, h.callCount())
	assert.Equal(t, ringer.Vibrate, e.Snapshot().Mode)
}

func TestStopWaitsForInFlightEvaluation(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	h := newFakeHost()
	blocking := &blockingActuator{host: h, entered: entered, release: release}
	e := New(h, blocking)
	e.Start(proximity(1.0, 0))

	done := make(chan error, 1)
	go func() { done <- e.OnSensorEvent(sensors.Proximity(0, 0)) }()
	<-entered

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an evaluation was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	<-stopped
	assert.Equal(t, ringer.Vibrate, h.mode)
	assert.False(t, e.Running())
}

type blockingActuator struct {
	host    *fakeHost
	entered chan struct{}
	release chan struct{}
}

func (b *blockingActuator) SetRingerMode(m ringer.Mode) error {
	close(b.entered)
	<-b.release
	return b.host.SetRingerMode(m)
}

package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type frame struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// recorder is an in-memory Deliverer keeping every frame per connection.
type recorder struct {
	mu       sync.Mutex
	attached map[string]bool
	frames   map[string][]frame
}

func newRecorder() *recorder {
	return &recorder{attached: make(map[string]bool), frames: make(map[string][]frame)}
}

func (r *recorder) attach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached[connID] = true
}

func (r *recorder) detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attached, connID)
}

func (r *recorder) Deliver(connID string, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliverLocked(connID, payload)
}

func (r *recorder) DeliverAll(payload []byte, except string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID := range r.attached {
		if connID == except {
			continue
		}
		r.deliverLocked(connID, payload)
	}
}

func (r *recorder) deliverLocked(connID string, payload []byte) bool {
	if !r.attached[connID] {
		return false
	}
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		panic(err)
	}
	r.frames[connID] = append(r.frames[connID], f)
	return true
}

// named returns the frames of connID carrying event name.
func (r *recorder) named(connID, name string) []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []frame
	for _, f := range r.frames[connID] {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// all returns every frame delivered to connID in delivery order.
func (r *recorder) all(connID string) []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame(nil), r.frames[connID]...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make(map[string][]frame)
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func lastFrame[T any](t *testing.T, r *recorder, connID, name string) T {
	t.Helper()
	frames := r.named(connID, name)
	require.NotEmpty(t, frames, "no %s frame for %s", name, connID)
	return decode[T](t, frames[len(frames)-1])
}

// fakeScheduler collects removal timers so tests decide when they fire.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, timer)
	return timer
}

// fire runs every timer that was not stopped, including stopped ones when
// force is set, mimicking a timer that already fired when Stop was called.
func (s *fakeScheduler) fire(force bool) int {
	s.mu.Lock()
	timers := append([]*fakeTimer(nil), s.timers...)
	s.mu.Unlock()

	fired := 0
	for _, timer := range timers {
		timer.mu.Lock()
		run := !timer.fired && (force || !timer.stopped)
		timer.fired = true
		timer.mu.Unlock()
		if run {
			timer.f()
			fired++
		}
	}
	return fired
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type engineFixture struct {
	engine    *Engine
	out       *recorder
	scheduler *fakeScheduler
	now       time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	fx := &engineFixture{
		out:       newRecorder(),
		scheduler: &fakeScheduler{},
		now:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	engine, err := NewEngine(fx.out, Options{
		Now:       func() time.Time { return fx.now },
		AfterFunc: fx.scheduler.AfterFunc,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	fx.engine = engine
	return fx
}

// connect attaches connID for username under session and returns its record.
func (fx *engineFixture) connect(connID, session, username string) ConnectResult {
	fx.out.attach(connID)
	return fx.engine.Connect(Identity{ID: connID, SessionID: session, Username: username})
}

func (fx *engineFixture) disconnect(connID string) {
	fx.out.detach(connID)
	fx.engine.Disconnect(connID)
}

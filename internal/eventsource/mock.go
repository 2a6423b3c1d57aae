// Package eventsource provides the concrete device orientation event
// feeds the permission coordinator subscribes to: a browser websocket
// bridge, an MQTT subscriber, an SPI IMU, a serial NMEA heading feed
// and a mock.
package eventsource

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/camera_orientation/internal/orientation"
	"github.com/relabs-tech/camera_orientation/internal/permission"
)

// Mock is an in-memory event source, gesture surface and permission
// requester in one. It drives demos (Start generates smooth changing
// angles) and tests (Emit*/Tap/Script inject exact events).
type Mock struct {
	mu       sync.Mutex
	nextID   int
	orient   map[int]func(orientation.Sample)
	screen   map[int]func(float64)
	gestures map[int]func()
	script   []Result
	requests int
	start    time.Time
}

type Result struct {
	outcome permission.Outcome
	err     error
}

// NewMock returns a mock source. With an empty script every permission
// request is granted.
func NewMock() *Mock {
	return &Mock{
		orient:   make(map[int]func(orientation.Sample)),
		screen:   make(map[int]func(float64)),
		gestures: make(map[int]func()),
		start:    time.Now(),
	}
}

func (m *Mock) SubscribeOrientation(fn func(orientation.Sample)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.orient[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.orient, id)
		m.mu.Unlock()
	}, nil
}

func (m *Mock) SubscribeScreen(fn func(deg float64)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.screen[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.screen, id)
		m.mu.Unlock()
	}, nil
}

// EmitSample delivers a sensor event to every orientation subscriber.
func (m *Mock) EmitSample(s orientation.Sample) {
	for _, fn := range m.snapshotOrient() {
		fn(s)
	}
}

// EmitScreen delivers a screen rotation event (degrees).
func (m *Mock) EmitScreen(deg float64) {
	m.mu.Lock()
	fns := make([]func(float64), 0, len(m.screen))
	for _, fn := range m.screen {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(deg)
	}
}

func (m *Mock) snapshotOrient() []func(orientation.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fns := make([]func(orientation.Sample), 0, len(m.orient))
	for _, fn := range m.orient {
		fns = append(fns, fn)
	}
	return fns
}

// OnceGesture implements permission.GestureSurface.
func (m *Mock) OnceGesture(fn func()) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.gestures[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.gestures, id)
		m.mu.Unlock()
	}
}

// Tap fires every pending one-shot gesture listener once.
func (m *Mock) Tap() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.gestures))
	for _, fn := range m.gestures {
		fns = append(fns, fn)
	}
	m.gestures = make(map[int]func())
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// GestureListeners reports how many one-shot listeners are pending.
func (m *Mock) GestureListeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.gestures)
}

// Script queues permission request results, consumed in order. Grant
// and NotAllowed build the common entries.
func (m *Mock) Script(results ...Result) {
	m.mu.Lock()
	m.script = append(m.script, results...)
	m.mu.Unlock()
}

// Grant is a scripted granted outcome.
func Grant() Result { return Result{outcome: permission.OutcomeGranted} }

// Deny is a scripted denied outcome.
func Deny() Result { return Result{outcome: permission.OutcomeDenied} }

// NotAllowed is a scripted not-allowed-without-gesture failure.
func NotAllowed() Result {
	return Result{err: &permission.RequestError{Kind: permission.KindNotAllowed, Reason: "no user gesture"}}
}

// Fail is a scripted non-retryable failure.
func Fail(reason string) Result {
	return Result{err: &permission.RequestError{Kind: permission.KindOther, Reason: reason}}
}

// RequestPermission implements permission.Requester.
func (m *Mock) RequestPermission() (permission.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	if len(m.script) == 0 {
		return permission.OutcomeGranted, nil
	}
	r := m.script[0]
	m.script = m.script[1:]
	return r.outcome, r.err
}

// Requests reports how many permission requests have been issued.
func (m *Mock) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Start emits smooth changing angles every interval until the returned
// stop func runs.
func (m *Mock) Start(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				elapsed := time.Since(m.start).Seconds()
				m.EmitSample(orientation.NewSample(
					math.Mod(elapsed*30, 360),
					20*math.Sin(elapsed),
					15*math.Cos(elapsed*0.7),
				))
			}
		}
	}()
	return func() { close(done) }
}

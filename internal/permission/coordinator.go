package permission

import (
	"fmt"
	"sync"

	"github.com/relabs-tech/camera_orientation/internal/orientation"
	"github.com/relabs-tech/camera_orientation/internal/rotation"
)

// State is where the coordinator currently is in the handshake.
type State int

const (
	StateIdle State = iota
	StateAwaitingGesture
	StateRequesting
	StateRetryWait
	StateEnabled
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingGesture:
		return "awaiting-gesture"
	case StateRequesting:
		return "requesting"
	case StateRetryWait:
		return "retry-wait"
	case StateEnabled:
		return "enabled"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Ready is the single-shot completion signal returned by Initialize.
// It settles exactly once: fulfilled (nil error) or rejected.
type Ready struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newReady() *Ready {
	return &Ready{done: make(chan struct{})}
}

// Done is closed once the signal settles.
func (r *Ready) Done() <-chan struct{} { return r.done }

// Err returns the rejection error, or nil. Valid only after Done.
func (r *Ready) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the signal settles and returns its error.
func (r *Ready) Wait() error {
	<-r.done
	return r.err
}

func (r *Ready) settle(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Options configures a Coordinator.
type Options struct {
	// Math is handed to the transformer; nil selects raw angle tuples.
	Math rotation.Math

	// Events delivers sensor and screen rotation notifications. nil
	// marks a platform without the orientation facility.
	Events EventSource

	// Permissions is the consent capability. nil marks the ungated
	// legacy platform.
	Permissions Requester

	// Detect overrides the platform variant detection. Defaults to
	// DetectByProbe.
	Detect DetectFunc

	// Gesture, when set, defers the permission request until a user
	// gesture fires on it. OnGesture, when set, runs on that gesture
	// before the request goes out.
	Gesture   GestureSurface
	OnGesture func()

	// RetryGesture is the surface a one-shot retry listener lands on
	// when the platform refuses an ungestured request. Defaults to
	// DefaultRetrySurface.
	RetryGesture GestureSurface

	// RejectIfUnsupported rejects the ready signal on platforms without
	// the sensor instead of enabling unconditionally.
	RejectIfUnsupported bool

	// DebugAlerts routes state transitions through Alerter (log-backed
	// by default). Manual-testing side channel only.
	DebugAlerts bool
	Alerter     Alerter
}

// Coordinator negotiates access to the orientation sensor stream and
// wires the transformer's event sinks to it once access resolves. It
// owns the enabled flag and the subscription lifecycle; the transformer
// owns the rotation computation.
type Coordinator struct {
	mu            sync.Mutex
	opts          Options
	tr            *orientation.Transformer
	state         State
	ready         *Ready
	attempts      int
	cancelGesture func()
	unsubs        []func()
}

// New builds a coordinator and its transformer. Initialize starts the
// handshake; until then the transformer stays disabled.
func New(opts Options) *Coordinator {
	if opts.Detect == nil {
		opts.Detect = DetectByProbe
	}
	if opts.Alerter == nil {
		opts.Alerter = logAlerter{}
	}
	return &Coordinator{
		opts: opts,
		tr:   orientation.NewTransformer(opts.Math),
	}
}

// Transformer returns the transformer owned by this coordinator.
func (c *Coordinator) Transformer() *orientation.Transformer { return c.tr }

// State returns the current handshake state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize runs the permission handshake and returns its single-shot
// ready signal. Calling it again before Teardown returns the same
// signal. A fulfilled signal means sensor events now feed the
// transformer; a rejected one means the host should proceed without
// this sensor.
func (c *Coordinator) Initialize() *Ready {
	c.mu.Lock()
	if c.ready != nil {
		r := c.ready
		c.mu.Unlock()
		return r
	}
	r := newReady()
	c.ready = r
	c.attempts = 0

	variant := c.opts.Detect(c.opts.Events, c.opts.Permissions)
	c.debugf("platform variant: %s", variant)

	switch variant {
	case VariantUnsupported:
		if c.opts.RejectIfUnsupported {
			c.rejectLocked(ErrUnsupported)
		} else {
			// Lower-quality operation beats hard failure: enable
			// unconditionally and let the host run without the sensor.
			c.enableLocked()
		}
	case VariantLegacyUngated:
		c.enableLocked()
	case VariantGestureGated:
		if c.opts.Gesture != nil {
			c.state = StateAwaitingGesture
			c.debugf("waiting for user gesture before permission request")
			c.cancelGesture = c.opts.Gesture.OnceGesture(func() {
				if c.opts.OnGesture != nil {
					c.opts.OnGesture()
				}
				c.request(r)
			})
		} else {
			c.mu.Unlock()
			c.request(r)
			return r
		}
	}
	c.mu.Unlock()
	return r
}

// request issues one permission request and applies the outcome. r pins
// the initialization this request belongs to so a Teardown (or a
// Teardown plus re-Initialize) in between makes it a no-op.
func (c *Coordinator) request(r *Ready) {
	c.mu.Lock()
	if c.ready != r || settled(r) {
		c.mu.Unlock()
		return
	}
	c.state = StateRequesting
	c.attempts++
	c.cancelGesture = nil
	attempt := c.attempts
	req := c.opts.Permissions
	c.mu.Unlock()

	if req == nil {
		c.mu.Lock()
		c.rejectLocked(ErrUnsupported)
		c.mu.Unlock()
		return
	}

	c.debugf("requesting orientation permission (attempt %d)", attempt)
	outcome, err := req.RequestPermission()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready != r || settled(r) {
		return
	}

	if err != nil {
		// A request refused for want of a user gesture is retryable
		// exactly once, and only when no gesture element was configured
		// up front: a configured gesture should already have satisfied
		// the platform, so a refusal after it is final.
		if isNotAllowed(err) && c.opts.Gesture == nil && attempt == 1 {
			surface := c.opts.RetryGesture
			if surface == nil {
				surface = DefaultRetrySurface
			}
			if surface != nil {
				c.state = StateRetryWait
				c.debugf("request refused without gesture, waiting for one to retry")
				c.cancelGesture = surface.OnceGesture(func() { c.request(r) })
				return
			}
		}
		c.rejectLocked(err)
		return
	}

	switch outcome {
	case OutcomeGranted:
		c.debugf("permission granted")
		c.enableLocked()
	case OutcomeDenied:
		// The consuming pipeline must never be blocked by a declined
		// non-essential sensor: enable degraded and fulfil.
		c.debugf("permission denied, enabling degraded operation")
		c.enableLocked()
	default:
		c.rejectLocked(fmt.Errorf("permission: unexpected outcome %d", outcome))
	}
}

func (c *Coordinator) enableLocked() {
	if c.opts.Events != nil {
		unsub, err := c.opts.Events.SubscribeOrientation(c.tr.OnSensorEvent)
		if err != nil {
			c.rejectLocked(fmt.Errorf("subscribe orientation events: %w", err))
			return
		}
		c.unsubs = append(c.unsubs, unsub)

		unsub, err = c.opts.Events.SubscribeScreen(c.tr.OnScreenRotationEvent)
		if err != nil {
			c.rejectLocked(fmt.Errorf("subscribe screen events: %w", err))
			return
		}
		c.unsubs = append(c.unsubs, unsub)
	}
	c.tr.Enable()
	c.state = StateEnabled
	c.debugf("sensor subscription enabled")
	c.ready.settle(nil)
}

func (c *Coordinator) rejectLocked(err error) {
	c.state = StateRejected
	c.debugf("initialization rejected: %v", err)
	c.ready.settle(err)
}

// Teardown removes every listener and subscription and returns the
// coordinator to idle. Idempotent, safe at any point including
// mid-handshake: a pending ready signal settles with ErrTornDown and a
// pending retry-gesture listener is removed.
func (c *Coordinator) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelGesture != nil {
		c.cancelGesture()
		c.cancelGesture = nil
	}
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.tr.Disable()
	if c.ready != nil {
		c.ready.settle(ErrTornDown)
		c.ready = nil
	}
	c.attempts = 0
	c.state = StateIdle
	c.debugf("torn down")
}

func settled(r *Ready) bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (c *Coordinator) debugf(format string, args ...any) {
	if !c.opts.DebugAlerts {
		return
	}
	c.opts.Alerter.Alert(fmt.Sprintf(format, args...))
}

package orientation

import (
	"errors"
	"math"
	"sync"

	"github.com/relabs-tech/camera_orientation/internal/rotation"
)

// ErrNoMath is returned by ExtractAxisAngle when the transformer was
// built without a rotation math capability. It marks a caller
// configuration mistake, not a runtime condition.
var ErrNoMath = errors.New("orientation: no rotation math configured")

// Axis selects a component of a decomposed rotation.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Rotation is the transformer output for one tick. When Quat is set,
// Q holds a unit quaternion ready for a camera; otherwise Raw holds
// [alpha, beta, gamma, screen offset] in radians.
type Rotation struct {
	Q    rotation.Quaternion `json:"q"`
	Quat bool                `json:"quat"`
	Raw  [4]float64          `json:"raw"`
}

// Transformer converts the latest orientation sample plus the screen
// rotation offset into a camera-facing rotation. It stores at most one
// sample (last-value-wins) and recomputes the output on every Update.
//
// The enabled flag is owned by the permission coordinator; the
// transformer only honors it.
type Transformer struct {
	mu         sync.Mutex
	math       rotation.Math // nil selects the raw-tuple path
	sample     Sample
	haveSample bool
	screenRad  float64
	enabled    bool
	out        Rotation // reused output buffer, overwritten per Update
}

// NewTransformer builds a transformer. m may be nil, in which case
// Update returns raw angle tuples and ExtractAxisAngle fails.
func NewTransformer(m rotation.Math) *Transformer {
	return &Transformer{math: m}
}

// OnSensorEvent stores the sample, fully replacing the previous one.
// Samples with any missing angle signal a context without the sensor
// and are discarded without touching the stored sample.
func (t *Transformer) OnSensorEvent(s Sample) {
	if !s.Valid() {
		return
	}
	t.mu.Lock()
	t.sample = s
	t.haveSample = true
	t.mu.Unlock()
}

// OnScreenRotationEvent records the platform's reported screen rotation
// (0/90/180/270 degrees). The offset persists until the next event.
func (t *Transformer) OnScreenRotationEvent(deg float64) {
	t.mu.Lock()
	t.screenRad = deg * math.Pi / 180
	t.mu.Unlock()
}

// Enable marks the sensor subscription live. Called by the permission
// coordinator only.
func (t *Transformer) Enable() {
	t.mu.Lock()
	t.enabled = true
	t.mu.Unlock()
}

// Disable clears the enabled flag.
func (t *Transformer) Disable() {
	t.mu.Lock()
	t.enabled = false
	t.mu.Unlock()
}

// Enabled reports whether the subscription is live.
func (t *Transformer) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// The camera looks out of the back face of the device, not out of its
// top edge: a fixed -90 degree rotation about X applied after the
// device orientation.
var cameraCorrection = rotation.Quaternion{X: -math.Sqrt2 / 2, W: math.Sqrt2 / 2}

// Update returns the rotation for the current tick, or nil when the
// subscription is disabled or no valid sample has ever arrived. Angles
// are stored in degrees and converted to radians only here.
//
// The returned pointer aliases an internal buffer that the next Update
// overwrites; callers needing to keep it must copy the value.
func (t *Transformer) Update() *Rotation {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled || !t.haveSample {
		return nil
	}

	alpha := radians(t.sample.Alpha)
	beta := radians(t.sample.Beta)
	gamma := radians(t.sample.Gamma)

	if t.math == nil {
		t.out = Rotation{Raw: [4]float64{alpha, beta, gamma, t.screenRad}}
		return &t.out
	}

	// Device angles compose ZXY in the device frame; in the world frame
	// the camera expects they map onto a YXZ composition of
	// yaw(alpha), pitch(beta), roll(-gamma).
	q := t.math.FromEuler(beta, alpha, -gamma, rotation.OrderYXZ)
	q = t.math.Mul(q, cameraCorrection)
	q = t.math.Mul(q, t.math.FromAxisAngle(rotation.Vec3{Z: 1}, -t.screenRad))

	t.out = Rotation{Q: q, Quat: true}
	return &t.out
}

// ExtractAxisAngle decomposes a rotation produced by Update back into
// the YXZ Euler convention and returns the requested component in
// radians. Requires the rotation math capability.
func (t *Transformer) ExtractAxisAngle(q rotation.Quaternion, axis Axis) (float64, error) {
	t.mu.Lock()
	m := t.math
	t.mu.Unlock()

	if m == nil {
		return 0, ErrNoMath
	}

	x, y, z := m.ToEuler(q, rotation.OrderYXZ)
	switch axis {
	case AxisX:
		return x, nil
	case AxisY:
		return y, nil
	case AxisZ:
		return z, nil
	default:
		return 0, errors.New("orientation: unknown axis")
	}
}

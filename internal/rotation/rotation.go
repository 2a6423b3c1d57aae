package rotation

// Quaternion is a rotation in (x, y, z, w) component form, w being the
// scalar part. The zero value is not a valid rotation; use Identity.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity returns the no-rotation quaternion.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

// Vec3 is a 3-component vector, used here only as a rotation axis.
type Vec3 struct {
	X, Y, Z float64
}

// EulerOrder selects the axis order in which the three Euler angles are
// applied when composing or decomposing a rotation.
type EulerOrder int

const (
	// OrderYXZ applies yaw about Y, then pitch about X, then roll about Z.
	// This is the world-frame order the camera pipeline composes in.
	OrderYXZ EulerOrder = iota
	// OrderZXY is the device-frame order orientation sensors report in.
	OrderZXY
)

func (o EulerOrder) String() string {
	switch o {
	case OrderYXZ:
		return "YXZ"
	case OrderZXY:
		return "ZXY"
	default:
		return "unknown"
	}
}

// Math is the rotation algebra the orientation transformer needs. It is
// deliberately small so a rendering engine's own math can be slotted in;
// NewMath returns the built-in implementation.
type Math interface {
	// FromEuler builds a unit quaternion from angles (radians) about the
	// X, Y and Z axes, applied in the given order.
	FromEuler(x, y, z float64, order EulerOrder) Quaternion

	// FromAxisAngle builds a unit quaternion rotating by angle (radians)
	// about the given axis. The axis need not be normalized.
	FromAxisAngle(axis Vec3, angle float64) Quaternion

	// Mul returns a*b, the rotation b followed by a.
	Mul(a, b Quaternion) Quaternion

	// ToEuler decomposes a rotation back into angles (radians) about the
	// X, Y and Z axes under the given order.
	ToEuler(q Quaternion, order EulerOrder) (x, y, z float64)
}

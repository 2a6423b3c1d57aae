package rotation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// quatMath implements Math on top of gonum's quaternion numbers. The
// ordered Euler composition/decomposition is done by hand since gonum
// treats quaternions as plain hypercomplex numbers.
type quatMath struct{}

// NewMath returns the built-in rotation algebra.
func NewMath() Math {
	return quatMath{}
}

func toNumber(q Quaternion) quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

func (quatMath) Mul(a, b Quaternion) Quaternion {
	return fromNumber(quat.Mul(toNumber(a), toNumber(b)))
}

func (quatMath) FromEuler(x, y, z float64, order EulerOrder) Quaternion {
	c1, s1 := math.Cos(x/2), math.Sin(x/2)
	c2, s2 := math.Cos(y/2), math.Sin(y/2)
	c3, s3 := math.Cos(z/2), math.Sin(z/2)

	switch order {
	case OrderYXZ:
		return Quaternion{
			X: s1*c2*c3 + c1*s2*s3,
			Y: c1*s2*c3 - s1*c2*s3,
			Z: c1*c2*s3 - s1*s2*c3,
			W: c1*c2*c3 + s1*s2*s3,
		}
	case OrderZXY:
		return Quaternion{
			X: s1*c2*c3 - c1*s2*s3,
			Y: c1*s2*c3 + s1*c2*s3,
			Z: c1*c2*s3 + s1*s2*c3,
			W: c1*c2*c3 - s1*s2*s3,
		}
	default:
		return Identity()
	}
}

func (quatMath) FromAxisAngle(axis Vec3, angle float64) Quaternion {
	n := math.Sqrt(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z)
	if n == 0 {
		return Identity()
	}
	s := math.Sin(angle/2) / n
	return Quaternion{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: math.Cos(angle / 2),
	}
}

func (quatMath) ToEuler(q Quaternion, order EulerOrder) (x, y, z float64) {
	// Normalize first so the matrix elements stay in range even when
	// the input has accumulated floating-point drift.
	n := toNumber(q)
	if abs := quat.Abs(n); abs != 0 && abs != 1 {
		n = quat.Scale(1/abs, n)
	}
	qx, qy, qz, qw := n.Imag, n.Jmag, n.Kmag, n.Real

	// Rotation matrix elements, row-major.
	m11 := 1 - 2*(qy*qy+qz*qz)
	m12 := 2 * (qx*qy - qw*qz)
	m13 := 2 * (qx*qz + qw*qy)
	m21 := 2 * (qx*qy + qw*qz)
	m22 := 1 - 2*(qx*qx+qz*qz)
	m23 := 2 * (qy*qz - qw*qx)
	m31 := 2 * (qx*qz - qw*qy)
	m32 := 2 * (qy*qz + qw*qx)
	m33 := 1 - 2*(qx*qx+qy*qy)

	const gimbal = 0.9999999

	switch order {
	case OrderYXZ:
		x = math.Asin(-clamp(m23))
		if math.Abs(m23) < gimbal {
			y = math.Atan2(m13, m33)
			z = math.Atan2(m21, m22)
		} else {
			y = math.Atan2(-m31, m11)
			z = 0
		}
	case OrderZXY:
		x = math.Asin(clamp(m32))
		if math.Abs(m32) < gimbal {
			y = math.Atan2(-m31, m33)
			z = math.Atan2(-m12, m22)
		} else {
			y = 0
			z = math.Atan2(m21, m11)
		}
	}
	return x, y, z
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

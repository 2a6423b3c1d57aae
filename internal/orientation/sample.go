package orientation

import "math"

// Sample is one raw reading from a device orientation sensor: intrinsic
// yaw/pitch/roll of the device in its own frame, in degrees. Fields are
// pointers because a browser's deviceorientation payload reports null on
// desktops and other contexts without the sensor; a Sample with any nil
// field is invalid and must never be stored.
type Sample struct {
	Alpha *float64 `json:"alpha"` // rotation about the device Z axis, 0..360
	Beta  *float64 `json:"beta"`  // rotation about the device X axis, -180..180
	Gamma *float64 `json:"gamma"` // rotation about the device Y axis, -90..90
}

// NewSample builds a valid Sample from three angles in degrees.
func NewSample(alpha, beta, gamma float64) Sample {
	return Sample{Alpha: &alpha, Beta: &beta, Gamma: &gamma}
}

// Valid reports whether all three angles are present.
func (s Sample) Valid() bool {
	return s.Alpha != nil && s.Beta != nil && s.Gamma != nil
}

func radians(deg *float64) float64 {
	if deg == nil {
		return 0
	}
	return *deg * math.Pi / 180
}
